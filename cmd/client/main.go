package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Call/internal/adapters/http"
	"github.com/dkeye/Call/internal/adapters/media"
	"github.com/dkeye/Call/internal/adapters/rtc"
	sig "github.com/dkeye/Call/internal/adapters/signal"
	"github.com/dkeye/Call/internal/app/call"
	"github.com/dkeye/Call/internal/config"
	"github.com/dkeye/Call/internal/domain"
)

// staticIdentity holds who we are for the lifetime of the process.
type staticIdentity struct {
	user domain.User
}

func (s staticIdentity) Self() domain.User { return s.user }

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	identity, err := buildIdentity(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bad identity config")
	}
	log.Info().Str("user_id", string(identity.user.ID)).Str("username", identity.user.Username).Msg("identity ready")

	capture, err := media.NewCapture()
	if err != nil {
		log.Fatal().Err(err).Msg("media codecs unavailable")
	}

	engine := rtc.NewEngine(iceServers(cfg))

	gateway := sig.NewGateway(cfg.SignalingURL, cfg.PingPeriod, cfg.SendBuffer)
	if err := gateway.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("signaling unreachable")
	}

	opts := call.DefaultOptions()
	if cfg.DisconnectGrace > 0 {
		opts.DisconnectGrace = cfg.DisconnectGrace
	}
	opts.RingTimeout = cfg.RingTimeout

	ctrl := call.NewController(identity, capture, engine, gateway, opts)
	go ctrl.Run(ctx)
	go func() {
		gateway.Run(ctx, ctrl.HandleSignal)
		// The signaling link is the engine's lifeline; losing it stops the client.
		cancel()
	}()

	r := router.SetupRouter(ctx, cfg, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Call client started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	gateway.Close()
	log.Info().Msg("Client exited gracefully")
}

func buildIdentity(cfg *config.Config) (staticIdentity, error) {
	if cfg.UserID != "" {
		return staticIdentity{user: domain.User{ID: domain.UserID(cfg.UserID), Username: cfg.Username}}, nil
	}
	u, err := domain.NewUser(cfg.Username)
	if err != nil {
		return staticIdentity{}, err
	}
	return staticIdentity{user: *u}, nil
}

func iceServers(cfg *config.Config) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return servers
}

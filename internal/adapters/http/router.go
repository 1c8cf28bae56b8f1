// Package http exposes the local control API the UI layer drives.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Call/internal/app/call"
	"github.com/dkeye/Call/internal/config"
	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

// CallCommands is what the router needs from the engine.
type CallCommands interface {
	StartCall(ctx context.Context, target domain.CallTarget, kind domain.CallKind) error
	AcceptCall(ctx context.Context) error
	JoinCall(ctx context.Context) error
	RejectCall(ctx context.Context) error
	EndCall(ctx context.Context) error
	ToggleAudio(ctx context.Context) error
	ToggleVideo(ctx context.Context) error
	Snapshot() call.Snapshot
}

type StartRequest struct {
	Mode      domain.CallMode  `json:"mode" binding:"required"`
	Kind      domain.CallKind  `json:"kind" binding:"required"`
	PeerID    domain.UserID    `json:"peer_id"`
	ChannelID domain.ChannelID `json:"channel_id"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctrl CallCommands) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Int("port", cfg.Port).Msg("router setup")

	api := r.Group("/api")

	api.GET("/call", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctrl.Snapshot())
	})

	api.POST("/call/start", func(c *gin.Context) {
		var req StartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		target := domain.CallTarget{Mode: req.Mode, Peer: req.PeerID, Channel: req.ChannelID}
		if err := ctrl.StartCall(ctx, target, req.Kind); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, ctrl.Snapshot())
	})

	api.POST("/call/accept", command(ctx, ctrl, ctrl.AcceptCall))
	api.POST("/call/join", command(ctx, ctrl, ctrl.JoinCall))
	api.POST("/call/reject", command(ctx, ctrl, ctrl.RejectCall))
	api.POST("/call/end", command(ctx, ctrl, ctrl.EndCall))
	api.POST("/call/audio", command(ctx, ctrl, ctrl.ToggleAudio))
	api.POST("/call/video", command(ctx, ctrl, ctrl.ToggleVideo))

	return r
}

func command(ctx context.Context, ctrl CallCommands, op func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := op(ctx); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, ctrl.Snapshot())
	}
}

func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, call.ErrCallActive),
		errors.Is(err, call.ErrWrongStatus),
		errors.Is(err, call.ErrWrongMode),
		errors.Is(err, call.ErrSetupInFlight):
		status = http.StatusConflict
	case errors.Is(err, call.ErrNoCall):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrBadCallMode),
		errors.Is(err, domain.ErrBadCallKind),
		errors.Is(err, domain.ErrNoTarget),
		errors.Is(err, core.ErrNoVideoTrack):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrPermissionDenied),
		errors.Is(err, core.ErrDeviceUnavailable):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Config struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	SignalingURL string `mapstructure:"signaling_url"`
	UserID       string `mapstructure:"user_id"`
	Username     string `mapstructure:"username"`

	ICEServers []ICEServer `mapstructure:"ice_servers"`

	// DisconnectGrace is how long a dropped peer connection may recover
	// before the call ends. RingTimeout of 0 keeps unanswered calls
	// ringing until the user gives up.
	DisconnectGrace time.Duration `mapstructure:"disconnect_grace"`
	RingTimeout     time.Duration `mapstructure:"ring_timeout"`

	SendBuffer int           `mapstructure:"send_buffer"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8090)
	v.SetDefault("signaling_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("username", "guest")
	v.SetDefault("disconnect_grace", "10s")
	v.SetDefault("ring_timeout", "0s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("ping_period", "54s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Signaling: %s\n", cfg.Mode, cfg.Port, cfg.SignalingURL)
	return &cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode                 string        `mapstructure:"mode" validate:"oneof=debug release test"`
	Port                 int           `mapstructure:"port" validate:"min=1,max=65535"`
	LogLevel             string        `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	ReadLimit            int64         `mapstructure:"read_limit" validate:"min=512"`
	PingPeriod           time.Duration `mapstructure:"ping_period" validate:"min=1s"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout" validate:"min=1ms"`
	SendBuffer           int           `mapstructure:"send_buffer" validate:"min=1"`
	FloorRequestLimit    int           `mapstructure:"floor_request_limit" validate:"min=0"`
	FloorRequestInterval time.Duration `mapstructure:"floor_request_interval" validate:"min=0s"`
	KickSlowConsumers    bool          `mapstructure:"kick_slow_consumers"`
	TrustedProxies       []string      `mapstructure:"trusted_proxies" validate:"dive,ip|cidr"`
}

// PongWait is how long the transport waits for a pong after a ping.
func (c *Config) PongWait() time.Duration {
	return c.PingPeriod * 10 / 9
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 3001)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("floor_request_limit", 0)
	v.SetDefault("floor_request_interval", "1s")
	v.SetDefault("kick_slow_consumers", false)
	v.SetDefault("trusted_proxies", []string{})
}

// Load reads config/config.<CONFIG_ENV>.yaml when present; environment
// variables (PORT, LOG_LEVEL, ...) override the file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	setDefaults(v)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("log_level", cfg.LogLevel).Msg("config ready")
	return &cfg, nil
}

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "PLUGIN_STORE"

// Load populates cfg from the defaults, the optional config file at path and
// PLUGIN_STORE_* environment variables, in increasing order of precedence.
// A path that cannot be read is an error.
func Load(cfg *AppConfig, path string, defaults ...DefaultValue) error {
	v := viper.New()
	for _, d := range defaults {
		v.SetDefault(d.Key, d.Value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

// InitLogger configures the global zerolog logger from cfg.
func InitLogger(cfg *AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.HumanReadableOutput {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Debug().
		Str("log_level", level.String()).
		Bool("production", cfg.ProductionEnvironment).
		Msg("logger initialized")
}

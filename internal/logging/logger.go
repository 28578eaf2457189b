package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/hosting-billing/internal/config"
)

// NewLogger returns the process logger: JSON to stdout, timestamped, tagged
// with the service name and filtered at the configured level.
func NewLogger(cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(os.Stdout).With().Timestamp()
	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.ProvisioningBackend != "" {
		ctx = ctx.Str("provisioning", cfg.ProvisioningBackend)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return ctx.Logger().Level(level)
}

// Component derives a child logger for a named subsystem.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

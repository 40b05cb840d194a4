// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/adamscao/licenseserver/internal/config"
)

// Setup applies the configured level and format to the standard logger
func Setup(cfg config.LoggingConfig) error {
	return configure(log.StandardLogger(), cfg, os.Stderr)
}

func configure(logger *log.Logger, cfg config.LoggingConfig, out io.Writer) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	logger.SetOutput(out)
	logger.SetLevel(level)
	return nil
}

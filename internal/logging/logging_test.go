package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/licenseserver/internal/config"
)

func TestConfigureJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New()

	require.NoError(t, configure(logger, config.LoggingConfig{Level: "warn", Format: "json"}, &buf))

	logger.Info("dropped")
	logger.WithField("license_key", "ACME-X").Warn("kept")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "ACME-X", entry["license_key"])
	assert.Equal(t, "warning", entry["level"])
}

func TestConfigureText(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New()

	require.NoError(t, configure(logger, config.LoggingConfig{Level: "debug", Format: "text"}, &buf))
	logger.Debug("hello")

	assert.Contains(t, buf.String(), "msg=hello")
	assert.Equal(t, log.DebugLevel, logger.GetLevel())
}

func TestConfigureRejectsBadInput(t *testing.T) {
	logger := log.New()

	assert.Error(t, configure(logger, config.LoggingConfig{Level: "loud", Format: "json"}, &bytes.Buffer{}))
	assert.Error(t, configure(logger, config.LoggingConfig{Level: "info", Format: "xml"}, &bytes.Buffer{}))
}

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	os.Setenv("ETHCONNECT_URL", "http://localhost:5000")
	os.Unsetenv("TOPIC")
	os.Unsetenv("PASSTHROUGH_HEADERS")
	defer os.Unsetenv("ETHCONNECT_URL")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "tokens", cfg.Topic)
	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Empty(t, cfg.PassthroughHeaders)
}

func TestLoadParsesPassthroughHeaders(t *testing.T) {
	os.Setenv("ETHCONNECT_URL", "http://localhost:5000")
	os.Setenv("PASSTHROUGH_HEADERS", "X-Request-Id, X-Trace-Id")
	defer os.Unsetenv("ETHCONNECT_URL")
	defer os.Unsetenv("PASSTHROUGH_HEADERS")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"X-Request-Id", "X-Trace-Id"}, cfg.PassthroughHeaders)
}

func TestLoadRequiresEthConnectURL(t *testing.T) {
	os.Unsetenv("ETHCONNECT_URL")
	_, err := Load("")
	require.Error(t, err)
}

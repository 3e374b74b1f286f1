package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := LoadAppConfig()
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Process)
	assert.Equal(t, TransportInProc, cfg.Transport)
	assert.False(t, cfg.Headless)
	assert.Equal(t, 8080, cfg.HTTPSrvCfg.Port)
	assert.True(t, cfg.NatsCfg.InProcess)
}

func TestLoadAppConfigFromEnv(t *testing.T) {
	t.Setenv("PANELBUS_PROCESS", "kiosk")
	t.Setenv("PANELBUS_TRANSPORT", "nats")
	t.Setenv("PANELBUS_HTTP_PORT", "9090")
	t.Setenv("PANELBUS_NATS_LEAF_URL", "nats://hub:7422")

	cfg, err := LoadAppConfig()
	require.NoError(t, err)
	assert.Equal(t, "kiosk", cfg.Process)
	assert.Equal(t, TransportNATS, cfg.Transport)
	assert.Equal(t, 9090, cfg.HTTPSrvCfg.Port)
	assert.Equal(t, "nats://hub:7422", cfg.NatsCfg.LeafNodeURL)
}

func TestLoadAppConfigRejectsUnknownTransport(t *testing.T) {
	t.Setenv("PANELBUS_TRANSPORT", "carrier-pigeon")
	_, err := LoadAppConfig()
	assert.Error(t, err)
}

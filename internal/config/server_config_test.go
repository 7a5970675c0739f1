package config_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kashguard/go-mpc-oracle/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintServiceEnv(t *testing.T) {
	config := config.DefaultServiceConfigFromEnv()
	_, err := json.MarshalIndent(config, "", "  ")

	if err != nil {
		t.Fatal(err)
	}
}

func TestServiceConfigFromEnv(t *testing.T) {
	t.Setenv("MPC_NODE_WALLET", "0x1d5B82C42E4aAa3B3E6d2dA8e3a8cB1f0D6Af021")
	t.Setenv("MPC_NODE_PRIVATE_KEY", "deadbeef")
	t.Setenv("MPC_TRANSPORT", "grpc")
	t.Setenv("MPC_KEY_TIMEOUT", "20s")
	t.Setenv("MPC_BOOTNODES", "/ip4/10.0.0.1/tcp/4000/p2p/a,/ip4/10.0.0.2/tcp/4000/p2p/b")

	cfg := config.DefaultServiceConfigFromEnv()
	assert.Equal(t, "grpc", cfg.Transport.Type)
	assert.Equal(t, 20*time.Second, cfg.Key.Timeout)
	assert.Equal(t, 6*time.Minute, cfg.Key.CacheTTL)
	assert.Equal(t, 5*time.Second, cfg.Key.StatusPollInterval)
	assert.Len(t, cfg.Transport.Bootnodes, 2)

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "deadbeef", "secrets are not printed")
}

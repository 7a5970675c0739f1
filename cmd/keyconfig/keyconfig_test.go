package keyconfig

import (
	"testing"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/storage"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/tss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *storage.KeyConfig {
	t.Helper()
	var pub *tss.Point
	for {
		secret, err := tss.RandomScalar()
		require.NoError(t, err)
		pub = tss.BaseMul(secret)
		if tss.IsCanonical(pub) {
			break
		}
	}
	share, err := tss.RandomScalar()
	require.NoError(t, err)
	pubHex, err := tss.PointToHex(pub)
	require.NoError(t, err)
	address, err := tss.PubToAddress(pub)
	require.NoError(t, err)

	return &storage.KeyConfig{
		Party: storage.PartyConfig{ID: "party-1", T: 2, Max: 3},
		Key: storage.KeyEntry{
			ID:        "key-1",
			Share:     tss.ScalarToHex(share),
			PublicKey: pubHex,
			Address:   address,
		},
	}
}

func TestVerify(t *testing.T) {
	require.NoError(t, Verify(validConfig(t)))

	cfg := validConfig(t)
	cfg.Key.Address = "0x0000000000000000000000000000000000000001"
	assert.ErrorContains(t, Verify(cfg), "does not match")

	cfg = validConfig(t)
	cfg.Key.Share = "0x00"
	assert.ErrorContains(t, Verify(cfg), "share is zero")

	cfg = validConfig(t)
	cfg.Key.Share = "zz"
	assert.ErrorContains(t, Verify(cfg), "invalid share")

	cfg = validConfig(t)
	cfg.Party.T = 4
	assert.ErrorContains(t, Verify(cfg), "invalid party")

	cfg = validConfig(t)
	cfg.Key.PublicKey = "02ff"
	assert.ErrorContains(t, Verify(cfg), "invalid public key")
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConfig(keyID string) *KeyConfig {
	return &KeyConfig{
		Party: PartyConfig{ID: "oracle-group", T: 3, Max: 5},
		Key: KeyEntry{
			ID:        keyID,
			Share:     "0x0badc0ffee",
			PublicKey: "02a1b2c3",
			Address:   "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf",
		},
	}
}

func TestFileStoreRoundTripAndBackup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)

	store, err := NewFileKeyConfigStore(path, "correct horse")
	require.NoError(t, err)

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	first := sampleConfig("key-1")
	require.NoError(t, store.Save(ctx, first))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "0x0badc0ffee", "share is encrypted at rest")

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, loaded)
	assert.True(t, loaded.Matches("oracle-group", 3))
	assert.False(t, loaded.Matches("oracle-group", 2))
	assert.False(t, loaded.Matches("other", 3))

	store.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	require.NoError(t, store.Save(ctx, sampleConfig("key-2")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var backups []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".bak") {
			backups = append(backups, e.Name())
		}
	}
	require.Len(t, backups, 1)
	assert.Equal(t, filepath.Base(BackupPath(path, store.now())), backups[0])

	backup, err := os.ReadFile(filepath.Join(dir, backups[0]))
	require.NoError(t, err)
	assert.Equal(t, raw, backup, "backup holds the previous file byte for byte")

	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "key-2", loaded.Key.ID)

	wrong, err := NewFileKeyConfigStore(path, "wrong passphrase")
	require.NoError(t, err)
	_, err = wrong.Load(ctx)
	assert.Error(t, err)
}

func TestFileStorePlaintext(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", DefaultConfigFile)

	store, err := NewFileKeyConfigStore(path, "")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sampleConfig("key-1")))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"share": "0x0badc0ffee"`)
}

func TestRedisStoreRoundTripAndBackup(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store, err := NewRedisKeyConfigStore(client, "0xaaaa", "secret")
	require.NoError(t, err)

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, sampleConfig("key-1")))
	n, err := client.LLen(ctx, store.BackupKey()).Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, store.Save(ctx, sampleConfig("key-2")))
	require.NoError(t, store.Save(ctx, sampleConfig("key-3")))
	n, err = client.LLen(ctx, store.BackupKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "key-3", loaded.Key.ID)

	latest, err := client.LIndex(ctx, store.BackupKey(), 0).Bytes()
	require.NoError(t, err)
	plain, err := store.sealer.open(latest)
	require.NoError(t, err)
	assert.Contains(t, string(plain), `"key-2"`)
}

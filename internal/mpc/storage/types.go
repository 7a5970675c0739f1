package storage

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound 尚未保存过密钥配置
var ErrNotFound = errors.New("key config not found")

// PartyConfig 生成密钥时的 Party 参数
type PartyConfig struct {
	ID  string `json:"id"`
	T   int    `json:"t"`
	Max int    `json:"max"`
}

// KeyEntry 本节点持有的密钥分片
type KeyEntry struct {
	ID        string `json:"id"`
	Share     string `json:"share"`     // 0x 前缀的十六进制分片
	PublicKey string `json:"publicKey"` // 压缩公钥十六进制
	Address   string `json:"address"`
}

// KeyConfig 持久化的密钥配置
type KeyConfig struct {
	Party PartyConfig `json:"party"`
	Key   KeyEntry    `json:"key"`
}

// Matches 配置是否属于给定的 Party
func (c *KeyConfig) Matches(partyID string, threshold int) bool {
	return c != nil && c.Party.ID == partyID && c.Party.T == threshold && c.Key.Share != ""
}

// KeyConfigStore 密钥配置存储接口，保存新配置时旧配置必须先备份
type KeyConfigStore interface {
	Load(ctx context.Context) (*KeyConfig, error)
	Save(ctx context.Context, cfg *KeyConfig) error
}

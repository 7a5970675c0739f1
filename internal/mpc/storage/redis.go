package storage

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisKeyConfigStore Redis 密钥配置存储，旧配置压入备份列表
type RedisKeyConfigStore struct {
	client *redis.Client
	wallet string
	sealer *sealer
}

// NewRedisKeyConfigStore 创建Redis存储实例
func NewRedisKeyConfigStore(client *redis.Client, wallet string, passphrase string) (*RedisKeyConfigStore, error) {
	s, err := newSealer(passphrase)
	if err != nil {
		return nil, err
	}
	return &RedisKeyConfigStore{client: client, wallet: wallet, sealer: s}, nil
}

func (s *RedisKeyConfigStore) configKey() string {
	return "mpc:tss:config:" + s.wallet
}

// BackupKey 备份列表的键
func (s *RedisKeyConfigStore) BackupKey() string {
	return s.configKey() + ":backup"
}

// Load 读取配置
func (s *RedisKeyConfigStore) Load(ctx context.Context) (*KeyConfig, error) {
	data, err := s.client.Get(ctx, s.configKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get key config")
	}
	plain, err := s.sealer.open(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt key config")
	}
	var cfg KeyConfig
	if err := json.Unmarshal(plain, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal key config")
	}
	return &cfg, nil
}

// Save 在一个事务中备份旧配置并写入新配置
func (s *RedisKeyConfigStore) Save(ctx context.Context, cfg *KeyConfig) error {
	plain, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal key config")
	}
	data, err := s.sealer.seal(plain)
	if err != nil {
		return errors.Wrap(err, "failed to encrypt key config")
	}

	key := s.configKey()
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		old, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(old) > 0 {
				pipe.LPush(ctx, s.BackupKey(), old)
			}
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return errors.Wrap(err, "failed to save key config")
	}

	log.Info().
		Str("party_id", cfg.Party.ID).
		Str("key_id", cfg.Key.ID).
		Str("address", cfg.Key.Address).
		Msg("Key config saved to redis")
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultConfigFile 默认配置文件名
const DefaultConfigFile = "tss.conf.json"

// FileKeyConfigStore 文件系统密钥配置存储
type FileKeyConfigStore struct {
	path   string
	sealer *sealer
	now    func() time.Time
}

// NewFileKeyConfigStore 创建文件存储，passphrase 非空时加密落盘
func NewFileKeyConfigStore(path string, passphrase string) (*FileKeyConfigStore, error) {
	s, err := newSealer(passphrase)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create config directory")
	}
	return &FileKeyConfigStore{path: path, sealer: s, now: time.Now}, nil
}

// Load 读取配置
func (s *FileKeyConfigStore) Load(ctx context.Context) (*KeyConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to read key config")
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

// Save 备份旧配置后写入新配置（临时文件 + 原子重命名）
func (s *FileKeyConfigStore) Save(ctx context.Context, cfg *KeyConfig) error {
	if err := s.backup(); err != nil {
		return err
	}

	plain, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal key config")
	}
	data, err := s.sealer.seal(plain)
	if err != nil {
		return errors.Wrap(err, "failed to encrypt key config")
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write key config")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return errors.Wrap(err, "failed to rename temp file")
	}

	log.Info().
		Str("party_id", cfg.Party.ID).
		Str("key_id", cfg.Key.ID).
		Str("address", cfg.Key.Address).
		Msg("Key config saved")
	return nil
}

// backup 把现有配置复制为 <name>.<timestamp>.bak
func (s *FileKeyConfigStore) backup() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "failed to read key config for backup")
	}
	backupPath := BackupPath(s.path, s.now())
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write key config backup")
	}
	log.Info().Str("backup", backupPath).Msg("Previous key config backed up")
	return nil
}

// BackupPath 备份文件路径
func BackupPath(path string, at time.Time) string {
	return path + "." + at.UTC().Format("20060102-150405.000000000") + ".bak"
}

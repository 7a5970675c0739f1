package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"
)

// sealer 使用口令派生的密钥做 AES-GCM 加密，口令为空时不加密
type sealer struct {
	key []byte
}

func newSealer(passphrase string) (*sealer, error) {
	if passphrase == "" {
		return &sealer{}, nil
	}
	key, err := deriveKey(passphrase)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive encryption key")
	}
	return &sealer{key: key}, nil
}

// deriveKey 从口令派生加密密钥
func deriveKey(password string) ([]byte, error) {
	salt := []byte("mpc-oracle-key-config-salt")
	return scrypt.Key([]byte(password), salt, 32768, 8, 1, 32)
}

func (s *sealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCM")
	}
	return gcm, nil
}

// seal 加密数据
func (s *sealer) seal(plaintext []byte) ([]byte, error) {
	if s.key == nil {
		return plaintext, nil
	}
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open 解密数据
func (s *sealer) open(ciphertext []byte) ([]byte, error) {
	if s.key == nil {
		return ciphertext, nil
	}
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt")
	}
	return plaintext, nil
}

package tss

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// PubToAddress derives the checksummed address Keccak256(X||Y)[12:] of p.
func PubToAddress(p *Point) (string, error) {
	pub, err := ToPublicKey(p)
	if err != nil {
		return "", err
	}
	u := pub.SerializeUncompressed() // 0x04 | X | Y
	hash := crypto.Keccak256(u[1:])
	return common.BytesToAddress(hash[12:]).Hex(), nil
}

// IndexFromWallet maps a hex wallet identifier to its polynomial evaluation point.
func IndexFromWallet(wallet string) (*Scalar, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(wallet, "0x"), "0X")
	if raw == "" {
		return nil, errors.New("empty wallet")
	}
	if _, err := hex.DecodeString(padEven(raw)); err != nil {
		return nil, errors.Wrapf(err, "wallet %s is not hex", wallet)
	}
	v, _ := new(big.Int).SetString(raw, 16)
	idx := ScalarFromBig(v)
	if idx.IsZero() {
		return nil, errors.Errorf("wallet %s maps to the zero index", wallet)
	}
	return idx, nil
}

func padEven(s string) string {
	if len(s)%2 == 1 {
		return "0" + s
	}
	return s
}

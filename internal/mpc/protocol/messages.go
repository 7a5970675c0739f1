package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Remote method names served by every node.
const (
	MethodCreateKey        = "createKey"
	MethodDistributeKey    = "distributeKey"
	MethodRecoverMyKey     = "recoverMyKey"
	MethodStoreKey         = "storeKey"
	MethodAnnouncePresence = "announcePresence"
	MethodCheckStatus      = "checkStatus"
)

// CreateKeyRequest reserves a key id on a partner.
type CreateKeyRequest struct {
	PartyID  string   `json:"party" validate:"required"`
	KeyID    string   `json:"key" validate:"required"`
	Partners []string `json:"partners" validate:"required,min=1,dive,hexadecimal"`
}

// DistributeKeyRequest carries the sender's commitments and the receiver's evaluations.
type DistributeKeyRequest struct {
	PartyID    string   `json:"party" validate:"required"`
	KeyID      string   `json:"key" validate:"required"`
	Partners   []string `json:"partners" validate:"required,min=1,dive,hexadecimal"`
	Commitment []string `json:"commitment" validate:"required,min=1,dive,hexadecimal"`
	PubKeys    []string `json:"pubKeys" validate:"required,min=1,dive,hexadecimal"`
	F          string   `json:"f" validate:"required,hexadecimal"`
	H          string   `json:"h" validate:"required,hexadecimal"`
}

// RecoverMyKeyRequest asks a partner for its blinded production share.
type RecoverMyKeyRequest struct {
	NonceID string `json:"nonce" validate:"required"`
}

// RecoverMyKeyResponse is nonceShare + productionShare and the group key it belongs to.
type RecoverMyKeyResponse struct {
	ID            string `json:"id"`
	RecoveryShare string `json:"recoveryShare"`
	PublicKey     string `json:"publicKey"`
	Address       string `json:"address"`
}

// StoreKeyRequest instructs a partner to persist a fulfilled key.
type StoreKeyRequest struct {
	PartyID   string `json:"party" validate:"required"`
	KeyID     string `json:"key" validate:"required"`
	PublicKey string `json:"publicKey,omitempty" validate:"omitempty,hexadecimal"` // leader's group key, compared by the receiver
}

// AnnouncePresenceRequest tells a partner how to reach the caller.
type AnnouncePresenceRequest struct {
	PeerID string   `json:"peerId,omitempty"`
	Addrs  []string `json:"addrs,omitempty"`
}

// StatusResponse reports whether a node holds a usable key.
type StatusResponse struct {
	IsReady bool   `json:"isReady"`
	Address string `json:"address,omitempty"`
}

// Broadcast message types.
const (
	BroadcastWhoIsThere = "WhoIsThere"
)

// Broadcast is a decoded party broadcast.
type Broadcast interface {
	BroadcastType() string
}

// WhoIsThere asks partners to announce themselves to PeerID.
type WhoIsThere struct {
	PeerID string   `json:"peerId" validate:"required"`
	Addrs  []string `json:"addrs,omitempty"`
}

func (WhoIsThere) BroadcastType() string { return BroadcastWhoIsThere }

type broadcastEnvelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// EncodeBroadcast wraps msg with its type tag.
func EncodeBroadcast(msg Broadcast) ([]byte, error) {
	params, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal broadcast params")
	}
	return json.Marshal(broadcastEnvelope{Method: msg.BroadcastType(), Params: params})
}

// DecodeBroadcast parses and validates a tagged broadcast.
func DecodeBroadcast(data []byte) (Broadcast, error) {
	var env broadcastEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal broadcast")
	}

	var msg Broadcast
	switch env.Method {
	case BroadcastWhoIsThere:
		var w WhoIsThere
		if err := json.Unmarshal(env.Params, &w); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal WhoIsThere")
		}
		msg = w
	default:
		return nil, errors.Errorf("unknown broadcast method %q", env.Method)
	}

	if err := Validate(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

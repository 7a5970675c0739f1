package protocol

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ProtocolError represents a generic protocol error
type ProtocolError struct {
	Type     ErrorType
	Message  string
	KeyID    string
	Culprits []string // wallets of misbehaving partners
	Original error
}

type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeTimeout
	ErrTypeNetwork
	ErrTypeMalicious
	ErrTypeResource
	ErrTypeQuorum
	ErrTypeViolation
	ErrTypeConfig
)

func (e *ProtocolError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))
	if len(e.Culprits) > 0 {
		sb.WriteString(fmt.Sprintf(" (culprits: %v)", e.Culprits))
	}
	if e.KeyID != "" {
		sb.WriteString(fmt.Sprintf(" [key: %s]", e.KeyID))
	}
	if e.Original != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Original))
	}
	return sb.String()
}

func (e *ProtocolError) Unwrap() error {
	return e.Original
}

func (t ErrorType) String() string {
	switch t {
	case ErrTypeTimeout:
		return "TIMEOUT"
	case ErrTypeNetwork:
		return "NETWORK"
	case ErrTypeMalicious:
		return "MALICIOUS"
	case ErrTypeResource:
		return "RESOURCE"
	case ErrTypeQuorum:
		return "QUORUM"
	case ErrTypeViolation:
		return "VIOLATION"
	case ErrTypeConfig:
		return "CONFIG"
	default:
		return "UNKNOWN"
	}
}

// ParseErrorType is the inverse of ErrorType.String.
func ParseErrorType(s string) ErrorType {
	for t := ErrTypeTimeout; t <= ErrTypeConfig; t++ {
		if t.String() == s {
			return t
		}
	}
	return ErrTypeUnknown
}

// IsType reports whether err wraps a ProtocolError of the given type.
func IsType(err error, t ErrorType) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Type == t
	}
	return false
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(keyID string, msg string) *ProtocolError {
	return &ProtocolError{
		Type:    ErrTypeTimeout,
		Message: msg,
		KeyID:   keyID,
	}
}

// NewMaliciousNodeError creates a new malicious node error
func NewMaliciousNodeError(keyID string, culprits []string, msg string) *ProtocolError {
	return &ProtocolError{
		Type:     ErrTypeMalicious,
		Message:  msg,
		KeyID:    keyID,
		Culprits: culprits,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(keyID string, err error) *ProtocolError {
	return &ProtocolError{
		Type:     ErrTypeNetwork,
		Message:  "network error",
		KeyID:    keyID,
		Original: err,
	}
}

// NewQuorumError reports fewer than the required participants or results.
func NewQuorumError(keyID string, need, have int, msg string) *ProtocolError {
	return &ProtocolError{
		Type:    ErrTypeQuorum,
		Message: fmt.Sprintf("%s: need %d, have %d", msg, need, have),
		KeyID:   keyID,
	}
}

// NewViolationError reports a rejected request such as a duplicate key id or unknown party.
func NewViolationError(keyID string, msg string) *ProtocolError {
	return &ProtocolError{
		Type:    ErrTypeViolation,
		Message: msg,
		KeyID:   keyID,
	}
}

// NewConfigError reports a persisted configuration that disagrees with the network.
func NewConfigError(msg string) *ProtocolError {
	return &ProtocolError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

package protocol

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate checks the struct tags of an inbound payload.
func Validate(v interface{}) error {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	if err := validate.Struct(v); err != nil {
		return &ProtocolError{
			Type:     ErrTypeViolation,
			Message:  "invalid payload",
			Original: err,
		}
	}
	return nil
}

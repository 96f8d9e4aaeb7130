package domain

import (
	"fmt"
	"pheme/errors"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = newValidator()

type messageRequest struct {
	SenderID  uuid.UUID   `validate:"required"`
	Receivers []uuid.UUID `validate:"required,min=1,dive,required"`
	Type      MessageType `validate:"required,oneof=direct feed-item"`
	Lifetime  int64       `validate:"gte=0"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	// uuid.UUID is an array: teach the validator that uuid.Nil is "empty"
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if id, ok := field.Interface().(uuid.UUID); ok {
			if id == uuid.Nil {
				return ""
			}
			return id.String()
		}
		return nil
	}, uuid.UUID{})
	return v
}

// ValidateMessage checks a caller-supplied message before routing.
func ValidateMessage(m Message) error {
	req := messageRequest{
		SenderID:  m.SenderID,
		Receivers: m.ReceiverIDs,
		Type:      m.Type,
		Lifetime:  int64(m.LifetimeOrZero()),
	}
	if m.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", errors.ErrInvalidMessage)
	}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidMessage, err)
	}
	return nil
}

package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Booking is the payload of a KindBooking operation. Reference is assigned
// by the client before the booking is queued and doubles as the natural key.
type Booking struct {
	Reference    string    `json:"reference" yaml:"reference"`
	UserID       int64     `json:"user_id" yaml:"user_id"`
	UserName     string    `json:"user_name" yaml:"user_name"`
	UserNickname string    `json:"user_nickname,omitempty" yaml:"user_nickname,omitempty"`
	Phone        string    `json:"phone" yaml:"phone"`
	ItemID       int64     `json:"item_id" yaml:"item_id"`
	ItemName     string    `json:"item_name" yaml:"item_name"`
	Date         time.Time `json:"date" yaml:"date"`
	Status       string    `json:"status" yaml:"status"` // pending, confirmed, cancelled, changed, completed
	Comment      string    `json:"comment,omitempty" yaml:"comment,omitempty"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// NewBookingOperation wraps a booking into a queueable operation.
func NewBookingOperation(b *Booking) (Operation, error) {
	if b == nil {
		return Operation{}, fmt.Errorf("booking is nil")
	}
	ref := strings.TrimSpace(b.Reference)
	if ref == "" {
		return Operation{}, ErrEmptyNaturalKey
	}
	if b.Status == "" {
		b.Status = StatusPending
	}

	payload, err := json.Marshal(b)
	if err != nil {
		return Operation{}, fmt.Errorf("encode booking %s: %w", ref, err)
	}

	return Operation{
		Kind:       KindBooking,
		NaturalKey: ref,
		Payload:    payload,
	}, nil
}

// DecodeBooking reads the booking payload of an operation.
func DecodeBooking(op Operation) (*Booking, error) {
	if op.Kind != KindBooking {
		return nil, fmt.Errorf("operation kind %q is not a booking", op.Kind)
	}
	var b Booking
	if err := json.Unmarshal(op.Payload, &b); err != nil {
		return nil, fmt.Errorf("decode booking %s: %w", op.NaturalKey, err)
	}
	return &b, nil
}

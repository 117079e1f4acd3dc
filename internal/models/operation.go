package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies the remote collection an operation is written to.
type Kind string

const (
	KindBooking Kind = "booking"
)

var (
	ErrEmptyKind       = errors.New("operation kind is required")
	ErrEmptyNaturalKey = errors.New("operation natural key is required")
	ErrInvalidPayload  = errors.New("operation payload must be valid JSON")
)

// Operation is a single buffered write awaiting remote commit.
// Operations are immutable once enqueued: retries resend the same payload.
type Operation struct {
	Kind       Kind            `json:"kind"`
	NaturalKey string          `json:"natural_key"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// OperationKey is the identity used for deduplication and queue removal.
type OperationKey struct {
	Kind       Kind
	NaturalKey string
}

func (o Operation) Key() OperationKey {
	return OperationKey{Kind: o.Kind, NaturalKey: o.NaturalKey}
}

// CacheKey returns the durable cache key, e.g. "booking_BK-001".
func (k OperationKey) CacheKey() string {
	return CacheKeyPrefix(k.Kind) + k.NaturalKey
}

// CacheKeyPrefix returns the prefix shared by every cache entry of a kind.
func CacheKeyPrefix(kind Kind) string {
	return string(kind) + "_"
}

func (o Operation) Validate() error {
	if strings.TrimSpace(string(o.Kind)) == "" {
		return ErrEmptyKind
	}
	if strings.TrimSpace(o.NaturalKey) == "" {
		return ErrEmptyNaturalKey
	}
	if len(o.Payload) > 0 && !json.Valid(o.Payload) {
		return ErrInvalidPayload
	}
	return nil
}

// NaturalKeys extracts the natural keys of ops in order.
func NaturalKeys(ops []Operation) []string {
	keys := make([]string, 0, len(ops))
	for _, op := range ops {
		keys = append(keys, op.NaturalKey)
	}
	return keys
}

// EncodeOperation serializes an operation for the durable cache.
func EncodeOperation(op Operation) ([]byte, error) {
	data, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("encode operation %s: %w", op.Key().CacheKey(), err)
	}
	return data, nil
}

// DecodeOperation is the inverse of EncodeOperation.
func DecodeOperation(data []byte) (Operation, error) {
	var op Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return Operation{}, fmt.Errorf("decode operation: %w", err)
	}
	if err := op.Validate(); err != nil {
		return Operation{}, err
	}
	return op, nil
}

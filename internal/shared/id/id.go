// Package id provides prefixed, time-ordered identifiers.
//
// IDs are UUIDv7 strings with a short type prefix so logs stay readable:
//
//	int_0192f3c4-...   intent
//	run_0192f3c4-...   process handle (one per launched child)
//	req_0192f3c4-...   HTTP request
package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// IntentID identifies an inbound intent
type IntentID string

// HandleID identifies one launched child process
type HandleID string

// RequestID identifies an HTTP request
type RequestID string

const (
	IntentPrefix  = "int"
	HandlePrefix  = "run"
	RequestPrefix = "req"
)

// generate returns a UUIDv7, falling back to v4 if the clock read fails.
func generate() uuid.UUID {
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return u
}

// WithPrefix creates a prefixed ID string
func WithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, generate().String())
}

// NewIntentID generates a new intent ID
func NewIntentID() IntentID {
	return IntentID(WithPrefix(IntentPrefix))
}

// NewHandleID generates a new process handle ID
func NewHandleID() HandleID {
	return HandleID(WithPrefix(HandlePrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(WithPrefix(RequestPrefix))
}

func (id IntentID) String() string  { return string(id) }
func (id HandleID) String() string  { return string(id) }
func (id RequestID) String() string { return string(id) }

// IsValid checks that id is "<prefix>_<uuid>" for a known prefix
func IsValid(id string) bool {
	prefix, rest, ok := strings.Cut(id, "_")
	if !ok {
		return false
	}
	switch prefix {
	case IntentPrefix, HandlePrefix, RequestPrefix:
	default:
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

package domain

import (
	"errors"
	"fmt"
)

var (
	ErrStoreUnavailable = errors.New("state store unavailable")
	ErrInvalidInput     = errors.New("invalid input")
	ErrSendFailure      = errors.New("send failure")
	ErrProtocolParse    = errors.New("protocol parse error")
)

// StoreError wraps a failed state store operation.
// It matches ErrStoreUnavailable with errors.Is.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// ProtocolError describes an inbound client message that could not be understood.
// It matches ErrProtocolParse with errors.Is.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrProtocolParse, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrProtocolParse, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocolParse }

package core

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateKey is returned by a strict create whose identifier already exists.
	ErrDuplicateKey = errors.New("duplicate primary key")

	// ErrStoreReported marks an error carried in a write acknowledgement.
	ErrStoreReported = errors.New("store reported write error")

	// ErrNotConnected is returned when a queued operation is abandoned before a connection exists.
	ErrNotConnected = errors.New("store is not connected")

	// ErrStoreClosed is returned by a transport after Close.
	ErrStoreClosed = errors.New("store is closed")

	// ErrUnknownModel is returned for a model name missing from the registry.
	ErrUnknownModel = errors.New("unknown model")
)

// StoreError is the first error reported by a write acknowledgement.
type StoreError struct {
	Collection string
	Message    string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("write to %q failed: %s", e.Collection, e.Message)
}

// Unwrap lets errors.Is match ErrStoreReported.
func (e *StoreError) Unwrap() error {
	return ErrStoreReported
}

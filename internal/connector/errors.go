// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package connector

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownConnector is returned for a provider connector tag with no implementation.
	ErrUnknownConnector = errors.New("unknown connector")
	// ErrInvalidProvider is returned when a provider configuration cannot be dispatched.
	ErrInvalidProvider = errors.New("invalid provider configuration")
)

// MappingError reports a query or page mapping problem.
type MappingError struct {
	Key    string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping %s: %s", e.Key, e.Reason)
}

// StatusError is a provider response other than 200 OK.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned HTTP %s", e.Status)
}

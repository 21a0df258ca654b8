// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 36

var (
	ErrNameTooLong = errors.New("display name too long")
	ErrNameEmpty   = errors.New("display name empty")
)

type SessionID string

// NewSessionID is the process-wide unique-identifier source for sessions.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// ValidateDisplayName rejects names the join handshake must not accept.
func ValidateDisplayName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrNameTooLong
	}
	return nil
}

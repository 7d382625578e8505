// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen      = 36
	MaxDisplayNameLen = 36
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type UserID string

// Identity is a stable identifier plus a display name. Created on first
// registration and kept until process restart; presence is tracked separately.
type Identity struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"displayName"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(displayName string) (*Identity, error) {
	if len(displayName) == 0 {
		return nil, ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	id := UserID(uuid.NewString())
	return &Identity{ID: id, DisplayName: displayName}, nil
}

func (u *Identity) SetDisplayName(displayName string) error {
	if len(displayName) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	u.DisplayName = displayName
	return nil
}

package core

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrBadPassword      = errors.New("bad room password")
	ErrPasswordRequired = errors.New("room password required")
)

// HashPassword hashes a room password with bcrypt.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// Authenticate gates entry to the room. The first joiner to supply a
// password locks the room with it; later joiners must match. required
// forces a password even on rooms nobody has locked yet.
func (r *Room) Authenticate(password string, required bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomClosed
	}
	if len(r.meta.PasswordHash) == 0 {
		if password == "" {
			if required {
				return ErrPasswordRequired
			}
			return nil
		}
		hash, err := HashPassword(password)
		if err != nil {
			return err
		}
		r.meta.PasswordHash = hash
		return nil
	}
	if bcrypt.CompareHashAndPassword(r.meta.PasswordHash, []byte(password)) != nil {
		return ErrBadPassword
	}
	return nil
}

package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

const idSize = 16

// NewID returns a random 128-bit session id, base64url encoded without padding.
func NewID() (string, error) {
	var raw [idSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidID reports whether id has the shape produced by NewID.
func ValidID(id string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	return err == nil && len(raw) == idSize
}

var errInvalidID = errors.New("invalid session id")

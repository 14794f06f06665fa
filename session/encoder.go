package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	sessionFormatVersionCurrent = 1

	// CurrentSchemaVersion is the blob version written by Encode.
	CurrentSchemaVersion = sessionFormatVersionCurrent
)

// ErrSessionCorrupt is returned when a stored blob cannot be decoded.
var ErrSessionCorrupt = errors.New("session corrupt")

// Encode serializes a session as a version byte followed by a JSON document.
// The session id is the storage key and is not part of the blob.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}

	var buf bytes.Buffer
	buf.WriteByte(sessionFormatVersionCurrent)
	if err := json.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses a blob produced by Encode.
func Decode(data []byte) (*Session, error) {
	if len(data) < 2 {
		return nil, ErrSessionCorrupt
	}

	version := data[0]
	switch version {
	case sessionFormatVersionCurrent:
	default:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrSessionCorrupt, version)
	}

	dec := json.NewDecoder(bytes.NewReader(data[1:]))
	dec.UseNumber()

	var s Session
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	s.SchemaVersion = version
	return &s, nil
}

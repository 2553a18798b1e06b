package keygen

import "github.com/google/uuid"

// UUIDv7Generator generates version 7 UUIDs. The canonical lowercase hex form
// starts with the millisecond timestamp, and google/uuid keeps successive
// values monotonic within a process.
type UUIDv7Generator struct{}

// NewKey returns a new UUIDv7 string. It panics only if the system random
// source fails.
func (UUIDv7Generator) NewKey() string {
	return uuid.Must(uuid.NewV7()).String()
}

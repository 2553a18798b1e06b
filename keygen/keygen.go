// Package keygen produces record keys whose lexicographic order matches the
// order in which they were generated.
package keygen

import "fmt"

// Supported key formats.
const (
	FormatPush   = "push"
	FormatUUIDv7 = "uuidv7"
)

// Generator creates unique, chronologically sortable keys.
type Generator interface {
	NewKey() string
}

// New returns the generator for the named format. An empty format selects
// push IDs.
func New(format string) (Generator, error) {
	switch format {
	case "", FormatPush:
		return NewPushIDGenerator(), nil
	case FormatUUIDv7:
		return UUIDv7Generator{}, nil
	default:
		return nil, fmt.Errorf("unknown key format %q", format)
	}
}

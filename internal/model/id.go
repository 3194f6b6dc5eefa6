package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string. Every processing attempt gets one so
// that log lines, history rows and liveness transitions can be correlated.
func NewID() string {
	return ulid.Make().String()
}

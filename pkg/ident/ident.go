// Package ident provides id generation and the clock abstraction injected
// into repositories. Timestamps are UTC nanoseconds throughout the keyspace.
package ident

import (
	"time"

	"github.com/google/uuid"
)

// Generator produces globally unique opaque identifiers.
type Generator interface {
	NewID(prefix string) string
}

// Clock supplies timestamps so tests can control watermark and ordering
// behaviour deterministically.
type Clock interface {
	Now() int64
}

// Prefixes used across the keyspace. They only aid debugging; nothing
// parses an id back apart from validation of its charset.
const (
	PrefixUser      = "u"
	PrefixChannel   = "c"
	PrefixMessage   = "m"
	PrefixWorkspace = "w"
)

// UUIDGenerator generates ids as "<prefix>-<uuid>".
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// SystemClock returns the wall clock in UTC nanoseconds.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().UTC().UnixNano() }

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

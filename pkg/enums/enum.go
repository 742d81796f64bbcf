// Package enums holds the closed string sets persisted in the database and
// carried on the wire.
package enums

import (
	"fmt"
	"slices"
)

// closedSet is the full list of values a string enum may take.
type closedSet[T ~string] []T

func (s closedSet[T]) has(v T) bool {
	return slices.Contains(s, v)
}

func (s closedSet[T]) parse(kind, raw string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}

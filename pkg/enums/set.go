// Package enums holds the closed string types stored in Postgres enum columns.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

// set is the closed list of values one enum type accepts.
type set[T ~string] struct {
	kind   string
	values []T
}

func newSet[T ~string](kind string, values ...T) set[T] {
	return set[T]{kind: kind, values: values}
}

func (s set[T]) has(v T) bool {
	return slices.Contains(s.values, v)
}

// parse trims raw and matches it exactly; enum values are lower snake case.
func (s set[T]) parse(raw string) (T, error) {
	v := T(strings.TrimSpace(raw))
	if s.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", s.kind, raw)
}

func (s set[T]) list() []T {
	return slices.Clone(s.values)
}

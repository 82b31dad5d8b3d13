// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package requestinfo

import (
	"fmt"
	"strings"
)

// Priority is the scheduling priority a caller requests for its request.
type Priority int

const (
	Critical Priority = iota
	High
	Ordinary
	Low
)

var priorityNames = [...]string{
	Critical: "Critical",
	High:     "High",
	Ordinary: "Ordinary",
	Low:      "Low",
}

// String implements the [fmt.Stringer] interface.
func (p Priority) String() string {
	if p < Critical || p > Low {
		return fmt.Sprintf("Priority(%d)", int(p))
	}
	return priorityNames[p]
}

// UnknownPriorityError is returned when a string does not name a [Priority].
type UnknownPriorityError struct {
	Value string
}

// Error implements the [builtin.error] interface.
func (e UnknownPriorityError) Error() string {
	return fmt.Sprintf("unknown request priority: %q", e.Value)
}

// ParsePriority parses a priority name, ignoring case. Numeric values,
// such as "2", are not priority names and are rejected.
func ParsePriority(s string) (Priority, error) {
	s = strings.TrimSpace(s)
	for p, name := range priorityNames {
		if strings.EqualFold(name, s) {
			return Priority(p), nil
		}
	}
	return Ordinary, UnknownPriorityError{Value: s}
}

// MarshalText implements the [encoding.TextMarshaler] interface.
func (p Priority) MarshalText() ([]byte, error) {
	if p < Critical || p > Low {
		return nil, UnknownPriorityError{Value: p.String()}
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements the [encoding.TextUnmarshaler] interface.
func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

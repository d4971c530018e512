package cmd

import (
	"fmt"
	"sort"
	"strings"
)

// UserRef is a resolved user option value.
type UserRef struct {
	ID       string
	Username string
	// Member is false when the user is not a member of the invoking guild.
	Member bool
}

// Args holds option values by option name. Values are string, int64, bool
// or UserRef.
type Args map[string]any

// String returns the named option as a string.
func (a Args) String(name string) (string, bool) {
	v, ok := a[name].(string)
	return v, ok
}

// Int returns the named option as an int64.
func (a Args) Int(name string) (int64, bool) {
	switch v := a[name].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// Bool returns the named option as a bool.
func (a Args) Bool(name string) (bool, bool) {
	v, ok := a[name].(bool)
	return v, ok
}

// User returns the named option as a UserRef.
func (a Args) User(name string) (UserRef, bool) {
	v, ok := a[name].(UserRef)
	return v, ok
}

// Has reports whether the option was supplied.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Describe renders the args for log lines, sorted by name.
func (a Args) Describe() string {
	if len(a) == 0 {
		return ""
	}
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, k := range names {
		v := a[k]
		if u, ok := v.(UserRef); ok {
			v = u.ID
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " ")
}

// Package plugin defines the closed set of plugin categories commands are
// grouped into.
package plugin

import (
	"fmt"
	"strings"
)

// Plugin is a named grouping of related commands.
type Plugin uint8

const (
	// Moderation performs moderation in the guild.
	Moderation Plugin = iota + 1
	// Information provides information about the bot or guild.
	Information
	// Statistics reports usage statistics.
	Statistics
	// Safety guards the guild (lockdown and friends).
	Safety
	// Miscellaneous holds fun commands.
	Miscellaneous
	// Plugins manipulates the plugin settings of a guild.
	Plugins

	count = iota
)

var names = [...]string{
	Moderation:    "Moderation",
	Information:   "Information",
	Statistics:    "Statistics",
	Safety:        "Safety",
	Miscellaneous: "Miscellaneous",
	Plugins:       "Plugins",
}

// All returns every plugin in declaration order.
func All() []Plugin {
	out := make([]Plugin, 0, count)
	for p := Moderation; int(p) <= count; p++ {
		out = append(out, p)
	}
	return out
}

// Valid reports whether p is a member of the enumeration.
func (p Plugin) Valid() bool {
	return p >= Moderation && int(p) <= count
}

func (p Plugin) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Plugin(%d)", uint8(p))
	}
	return names[p]
}

// Parse converts a name (case-insensitive) into a Plugin.
func Parse(name string) (Plugin, error) {
	for _, p := range All() {
		if strings.EqualFold(names[p], strings.TrimSpace(name)) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown plugin %q", name)
}

// Names returns the names of all plugins.
func Names() []string {
	out := make([]string, 0, count)
	for _, p := range All() {
		out = append(out, p.String())
	}
	return out
}

// Defaults returns the plugins that are always enabled and cannot be
// disabled for a guild.
func Defaults() []Plugin {
	return []Plugin{Information, Moderation, Plugins}
}

// IsDefault reports whether p is a default plugin.
func (p Plugin) IsDefault() bool {
	for _, d := range Defaults() {
		if d == p {
			return true
		}
	}
	return false
}

// Package safety is reserved for guild protection commands. It contributes
// none yet, which the catalog reports as an empty plugin.
package safety

import "github.com/keshon/aegistrate/internal/command"

// Contribution returns no commands.
func Contribution() command.Contribution {
	return func() []command.Descriptor { return nil }
}

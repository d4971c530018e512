// Package command holds command descriptors, the immutable catalog built from
// plugin contributions, and option validation.
package command

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/keshon/aegistrate/internal/plugin"
	"github.com/keshon/aegistrate/pkg/cmd"
)

const maxDescriptionLen = 100

var namePattern = regexp.MustCompile(`^[-_a-z0-9]{1,32}$`)

var (
	ErrDuplicateCommandName = errors.New("duplicate command name")
	ErrInvalidDescriptor    = errors.New("invalid command descriptor")
	ErrUnknownPlugin        = errors.New("unknown plugin")
)

// Descriptor is the validated metadata of one invocable command.
type Descriptor struct {
	Name        string
	Description string
	Plugin      plugin.Plugin
	// Cooldown of 0 means no cooldown.
	Cooldown time.Duration
	Options  []Option
	Handler  cmd.Handler
}

// Contribution is a plugin's pure command list. It must not do I/O.
type Contribution func() []Descriptor

func (d Descriptor) validate() error {
	if !namePattern.MatchString(d.Name) {
		return fmt.Errorf("%w: name %q must match %s", ErrInvalidDescriptor, d.Name, namePattern)
	}
	if d.Description == "" || len(d.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: /%s description must be 1-%d characters", ErrInvalidDescriptor, d.Name, maxDescriptionLen)
	}
	if !d.Plugin.Valid() {
		return fmt.Errorf("%w: /%s names %s", ErrUnknownPlugin, d.Name, d.Plugin)
	}
	if d.Cooldown < 0 {
		return fmt.Errorf("%w: /%s has negative cooldown %s", ErrInvalidDescriptor, d.Name, d.Cooldown)
	}
	if d.Handler == nil {
		return fmt.Errorf("%w: /%s has no handler", ErrInvalidDescriptor, d.Name)
	}
	seen := make(map[string]struct{}, len(d.Options))
	for _, o := range d.Options {
		if !namePattern.MatchString(o.Name) {
			return fmt.Errorf("%w: /%s option %q has an invalid name", ErrInvalidDescriptor, d.Name, o.Name)
		}
		if _, dup := seen[o.Name]; dup {
			return fmt.Errorf("%w: /%s declares option %q twice", ErrInvalidDescriptor, d.Name, o.Name)
		}
		seen[o.Name] = struct{}{}
		if !o.Type.Valid() {
			return fmt.Errorf("%w: /%s option %q has no type", ErrInvalidDescriptor, d.Name, o.Name)
		}
	}
	return nil
}

// DuplicateNameError names the command contributed twice.
type DuplicateNameError struct {
	Name   string
	First  plugin.Plugin
	Second plugin.Plugin
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s: /%s contributed by %s and %s", ErrDuplicateCommandName, e.Name, e.First, e.Second)
}

func (e *DuplicateNameError) Unwrap() error { return ErrDuplicateCommandName }

// Package registration reconciles the local command catalog with the
// platform's remote command registry.
package registration

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/keshon/aegistrate/internal/command"
)

// OptionKind is the platform-visible type of an option. Duration and date
// options travel as strings and are validated locally.
type OptionKind string

const (
	KindString  OptionKind = "string"
	KindInteger OptionKind = "integer"
	KindBoolean OptionKind = "boolean"
	KindUser    OptionKind = "user"
)

// ChoiceDefinition is a fixed option value.
type ChoiceDefinition struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// OptionDefinition is the platform-visible shape of one option.
type OptionDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Kind        OptionKind         `json:"kind"`
	Required    bool               `json:"required"`
	Choices     []ChoiceDefinition `json:"choices,omitempty"`
}

// Definition is what the platform stores for a command. Handler and
// cooldown never leave the process, so they are not part of it.
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Options     []OptionDefinition `json:"options,omitempty"`
}

// Snapshot is the platform's record of one registered command.
type Snapshot struct {
	ID   string
	Name string
	Hash string
}

// FromDescriptor projects a descriptor onto its platform definition.
func FromDescriptor(d command.Descriptor) Definition {
	def := Definition{Name: d.Name, Description: d.Description}
	for _, o := range d.Options {
		od := OptionDefinition{
			Name:        o.Name,
			Description: o.Description,
			Kind:        kindOf(o.Type),
			Required:    o.Required,
		}
		if od.Description == "" {
			od.Description = o.Name
		}
		for _, c := range o.Choices {
			od.Choices = append(od.Choices, ChoiceDefinition{Name: c.Name, Value: c.Value})
		}
		def.Options = append(def.Options, od)
	}
	return def
}

func kindOf(t command.OptionType) OptionKind {
	switch t {
	case command.OptionInteger:
		return KindInteger
	case command.OptionBoolean:
		return KindBoolean
	case command.OptionUser:
		return KindUser
	default:
		return KindString
	}
}

// WireOrder returns options in the order the platform displays them:
// required options first, otherwise declaration order.
func WireOrder(opts []OptionDefinition) []OptionDefinition {
	out := slices.Clone(opts)
	slices.SortStableFunc(out, func(a, b OptionDefinition) int {
		switch {
		case a.Required == b.Required:
			return 0
		case a.Required:
			return -1
		}
		return 1
	})
	return out
}

// Hash returns a deterministic SHA-1 of a definition's semantically relevant
// fields. Options are hashed in WireOrder, so moving an optional option
// changes the hash.
func Hash(def Definition) string {
	norm := Definition{Name: def.Name, Description: def.Description}
	if len(def.Options) > 0 {
		norm.Options = WireOrder(def.Options)
		for i := range norm.Options {
			if len(norm.Options[i].Choices) == 0 {
				norm.Options[i].Choices = nil
			}
		}
	}
	data, _ := json.Marshal(norm)
	sum := sha1.Sum(data)
	return fmt.Sprintf("%x", sum)
}

package command

import (
	"fmt"
	"sort"
	"time"

	"github.com/keshon/aegistrate/internal/plugin"
	"github.com/keshon/aegistrate/pkg/cmd"
)

// WarningEmptyPlugin flags a plugin that contributes no commands.
const WarningEmptyPlugin = "EmptyPlugin"

// Warning is a non-fatal finding from catalog construction.
type Warning struct {
	Kind   string
	Plugin plugin.Plugin
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: plugin %s contributes no commands", w.Kind, w.Plugin)
}

// Catalog is the immutable set of descriptors, keyed by name. It is safe for
// concurrent readers without locking.
type Catalog struct {
	byName   map[string]Descriptor
	ordered  []Descriptor
	byPlugin map[plugin.Plugin][]Descriptor
}

// BuildCatalog concatenates every plugin's contribution and validates the
// result. Contributions are visited in plugin declaration order, so the first
// contributor of a duplicated name is deterministic.
func BuildCatalog(contributions map[plugin.Plugin]Contribution) (*Catalog, []Warning, error) {
	for p := range contributions {
		if !p.Valid() {
			return nil, nil, fmt.Errorf("%w: contribution keyed by %s", ErrUnknownPlugin, p)
		}
	}

	c := &Catalog{
		byName:   make(map[string]Descriptor),
		byPlugin: make(map[plugin.Plugin][]Descriptor),
	}
	var warnings []Warning

	for _, p := range plugin.All() {
		var descs []Descriptor
		if fn := contributions[p]; fn != nil {
			descs = fn()
		}
		if len(descs) == 0 {
			warnings = append(warnings, Warning{Kind: WarningEmptyPlugin, Plugin: p})
			continue
		}

		for _, d := range descs {
			if d.Plugin == 0 {
				d.Plugin = p
			}
			if err := d.validate(); err != nil {
				return nil, warnings, err
			}
			if d.Plugin != p {
				return nil, warnings, fmt.Errorf("%w: /%s declares plugin %s but is contributed by %s",
					ErrInvalidDescriptor, d.Name, d.Plugin, p)
			}
			if prev, dup := c.byName[d.Name]; dup {
				return nil, warnings, &DuplicateNameError{Name: d.Name, First: prev.Plugin, Second: p}
			}
			d.Options = append([]Option(nil), d.Options...)
			c.byName[d.Name] = d
			c.byPlugin[p] = append(c.byPlugin[p], d)
			c.ordered = append(c.ordered, d)
		}
	}

	sort.Slice(c.ordered, func(i, j int) bool { return c.ordered[i].Name < c.ordered[j].Name })
	return c, warnings, nil
}

// Lookup returns the descriptor with the exact name.
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// All returns every descriptor sorted by name.
func (c *Catalog) All() []Descriptor {
	return append([]Descriptor(nil), c.ordered...)
}

// ByPlugin returns the descriptors contributed by p, in contribution order.
func (c *Catalog) ByPlugin(p plugin.Plugin) []Descriptor {
	return append([]Descriptor(nil), c.byPlugin[p]...)
}

// Cooldown returns the cooldown of the named command.
func (c *Catalog) Cooldown(name string) (time.Duration, bool) {
	d, ok := c.byName[name]
	return d.Cooldown, ok
}

// Len returns the number of commands.
func (c *Catalog) Len() int { return len(c.ordered) }

// WithMiddleware returns a contribution whose descriptors have their handlers
// wrapped by mws, the first being the outermost.
func WithMiddleware(fn Contribution, mws ...cmd.Middleware) Contribution {
	return func() []Descriptor {
		descs := fn()
		out := make([]Descriptor, len(descs))
		for i, d := range descs {
			if d.Handler != nil {
				d.Handler = cmd.Apply(d.Handler, mws...)
			}
			out[i] = d
		}
		return out
	}
}

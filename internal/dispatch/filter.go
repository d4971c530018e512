package dispatch

import (
	"context"
	"slices"

	"github.com/keshon/aegistrate/internal/plugin"
)

// PluginFilter decides whether a plugin's commands may run in a guild.
type PluginFilter interface {
	Enabled(ctx context.Context, guildID string, p plugin.Plugin) (bool, error)
}

// DisabledSource lists the plugins a guild has turned off.
type DisabledSource interface {
	DisabledPlugins(ctx context.Context, guildID string) ([]plugin.Plugin, error)
}

// StoreFilter is a PluginFilter over a DisabledSource. Default plugins and
// direct messages are always enabled.
type StoreFilter struct {
	Source DisabledSource
}

func (f StoreFilter) Enabled(ctx context.Context, guildID string, p plugin.Plugin) (bool, error) {
	if guildID == "" || p.IsDefault() {
		return true, nil
	}
	disabled, err := f.Source.DisabledPlugins(ctx, guildID)
	if err != nil {
		return true, err
	}
	return !slices.Contains(disabled, p), nil
}

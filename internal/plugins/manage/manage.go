// Package manage contributes the commands that turn plugins on and off for a
// guild.
package manage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/plugin"
	"github.com/keshon/aegistrate/pkg/cmd"
)

// Settings is the per-guild plugin state.
type Settings interface {
	DisabledPlugins(ctx context.Context, guildID string) ([]plugin.Plugin, error)
	SetPluginEnabled(ctx context.Context, guildID string, p plugin.Plugin, enabled bool) error
}

// Authorizer reports whether a member may change guild settings.
type Authorizer interface {
	IsAdministrator(ctx context.Context, guildID, userID string) (bool, error)
}

// Contribution returns enable, disable and plugins.
func Contribution(settings Settings, auth Authorizer) command.Contribution {
	choices := toggleable()
	return func() []command.Descriptor {
		return []command.Descriptor{
			{
				Name:        "enable",
				Description: "Enables a plugin in this server.",
				Plugin:      plugin.Plugins,
				Cooldown:    10 * time.Second,
				Options: []command.Option{
					{Name: "plugin", Description: "The plugin to enable.", Type: command.OptionString, Required: true, Choices: choices},
				},
				Handler: toggle(settings, auth, true),
			},
			{
				Name:        "disable",
				Description: "Disables a plugin in this server.",
				Plugin:      plugin.Plugins,
				Cooldown:    10 * time.Second,
				Options: []command.Option{
					{Name: "plugin", Description: "The plugin to disable.", Type: command.OptionString, Required: true, Choices: choices},
				},
				Handler: toggle(settings, auth, false),
			},
			{
				Name:        "plugins",
				Description: "Lists the plugins and whether they are enabled here.",
				Plugin:      plugin.Plugins,
				Handler:     list(settings),
			},
		}
	}
}

func toggleable() []command.Choice {
	var out []command.Choice
	for _, p := range plugin.All() {
		if !p.IsDefault() {
			out = append(out, command.Choice{Name: p.String(), Value: p.String()})
		}
	}
	return out
}

func toggle(settings Settings, auth Authorizer, enable bool) cmd.HandlerFunc {
	verb := "disabled"
	if enable {
		verb = "enabled"
	}
	return func(ctx context.Context, inv *cmd.Invocation) error {
		admin, err := auth.IsAdministrator(ctx, inv.GuildID, inv.UserID)
		if err != nil {
			return fmt.Errorf("check permissions: %w", err)
		}
		if !admin {
			return inv.Respond(ctx, cmd.Response{
				Description: "You need the Administrator permission to change plugins.",
				Ephemeral:   true,
				Error:       true,
			})
		}

		name, _ := inv.Args.String("plugin")
		p, err := plugin.Parse(name)
		if err != nil {
			return fmt.Errorf("%w: %w", command.ErrInvalidArguments, err)
		}

		disabled, err := settings.DisabledPlugins(ctx, inv.GuildID)
		if err != nil {
			return fmt.Errorf("read plugin settings: %w", err)
		}
		if slices.Contains(disabled, p) != enable {
			return inv.Respond(ctx, cmd.Response{
				Description: fmt.Sprintf("**%s** is already %s.", p, verb),
				Ephemeral:   true,
			})
		}

		if err := settings.SetPluginEnabled(ctx, inv.GuildID, p, enable); err != nil {
			return fmt.Errorf("set plugin %s %s: %w", p, verb, err)
		}
		return inv.Respond(ctx, cmd.Response{
			Title:       "Plugins",
			Description: fmt.Sprintf("**%s** is now %s.", p, verb),
		})
	}
}

func list(settings Settings) cmd.HandlerFunc {
	return func(ctx context.Context, inv *cmd.Invocation) error {
		disabled, err := settings.DisabledPlugins(ctx, inv.GuildID)
		if err != nil {
			return fmt.Errorf("read plugin settings: %w", err)
		}

		var b strings.Builder
		for _, p := range plugin.All() {
			switch {
			case p.IsDefault():
				fmt.Fprintf(&b, "🔒 %s\n", p)
			case slices.Contains(disabled, p):
				fmt.Fprintf(&b, "❌ %s\n", p)
			default:
				fmt.Fprintf(&b, "✅ %s\n", p)
			}
		}
		return inv.Respond(ctx, cmd.Response{
			Title:       "Plugins",
			Description: strings.TrimRight(b.String(), "\n"),
			Footer:      "🔒 plugins are always enabled.",
		})
	}
}

// Package information contributes commands that describe the bot itself.
package information

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/plugin"
	"github.com/keshon/aegistrate/pkg/cmd"
)

// Pinger reports the gateway round-trip latency.
type Pinger interface {
	Latency() time.Duration
}

// Contribution returns ping and about. started is the process start time.
func Contribution(p Pinger, started time.Time) command.Contribution {
	return func() []command.Descriptor {
		return []command.Descriptor{
			{
				Name:        "ping",
				Description: "Returns the ping of the bot. Pong!",
				Plugin:      plugin.Information,
				Handler:     ping(p),
			},
			{
				Name:        "about",
				Description: "Shows what this bot is and how long it has been up.",
				Plugin:      plugin.Information,
				Cooldown:    3 * time.Second,
				Handler:     about(started),
			},
		}
	}
}

func ping(p Pinger) cmd.HandlerFunc {
	return func(ctx context.Context, inv *cmd.Invocation) error {
		latency := "Unable to retrieve latency :("
		if p != nil {
			if d := p.Latency(); d > 0 {
				latency = fmt.Sprintf("%dms", d.Milliseconds())
			}
		}
		return inv.Respond(ctx, cmd.Response{
			Title:       "Pong!",
			Description: "I'm alive!",
			Fields:      []cmd.Field{{Name: "Latency", Value: latency, Inline: true}},
		})
	}
}

func about(started time.Time) cmd.HandlerFunc {
	return func(ctx context.Context, inv *cmd.Invocation) error {
		return inv.Respond(ctx, cmd.Response{
			Title:       "Aegistrate",
			Description: "A moderation bot whose commands are grouped into plugins.",
			Fields: []cmd.Field{
				{Name: "Version", Value: version(), Inline: true},
				{Name: "Go", Value: runtime.Version(), Inline: true},
				{Name: "Uptime", Value: time.Since(started).Truncate(time.Second).String(), Inline: true},
				{Name: "Plugins", Value: strings.Join(plugin.Names(), ", ")},
			},
		})
	}
}

func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "(devel)"
	}
	return info.Main.Version
}

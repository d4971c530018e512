// Package statistics contributes usage reporting commands.
package statistics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/dispatch"
	"github.com/keshon/aegistrate/internal/plugin"
	"github.com/keshon/aegistrate/pkg/cmd"
)

const recentLimit = 5

// History reads recorded invocations.
type History interface {
	RecentInvocations(ctx context.Context, guildID string, limit int) ([]command.HistoryEntry, error)
}

// Contribution returns the stats command.
func Contribution(counters *dispatch.Counters, history History) command.Contribution {
	return func() []command.Descriptor {
		return []command.Descriptor{{
			Name:        "stats",
			Description: "Shows how the bot has been used since it started.",
			Plugin:      plugin.Statistics,
			Cooldown:    10 * time.Second,
			Options: []command.Option{
				{Name: "recent", Description: "How many recent commands to list (1-20).", Type: command.OptionInteger},
			},
			Handler: stats(counters, history),
		}}
	}
}

func stats(counters *dispatch.Counters, history History) cmd.HandlerFunc {
	return func(ctx context.Context, inv *cmd.Invocation) error {
		var s dispatch.Stats
		if counters != nil {
			s = counters.Snapshot()
		}
		resp := cmd.Response{
			Title: "Statistics",
			Fields: []cmd.Field{
				{Name: "Completed", Value: strconv.FormatInt(s.Completed, 10), Inline: true},
				{Name: "Failed", Value: strconv.FormatInt(s.Failed, 10), Inline: true},
				{Name: "On cooldown", Value: strconv.FormatInt(s.Blocked, 10), Inline: true},
			},
		}

		limit := recentLimit
		if n, ok := inv.Args.Int("recent"); ok {
			limit = int(min(max(n, 1), 20))
		}
		if history != nil && inv.GuildID != "" {
			entries, err := history.RecentInvocations(ctx, inv.GuildID, limit)
			if err != nil {
				return fmt.Errorf("read command history: %w", err)
			}
			resp.Fields = append(resp.Fields, cmd.Field{Name: "Recent commands", Value: recent(entries)})
		}
		return inv.Respond(ctx, resp)
	}
}

func recent(entries []command.HistoryEntry) string {
	if len(entries) == 0 {
		return "Nothing yet."
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "<t:%d:R> <@%s> `/%s`", e.At.Unix(), e.UserID, e.Command)
		if e.Args != "" {
			fmt.Fprintf(&b, " %s", e.Args)
		}
		if e.Failed {
			b.WriteString(" (failed)")
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

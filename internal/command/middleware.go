package command

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keshon/aegistrate/pkg/cmd"
)

// HistoryEntry is one executed invocation as recorded by WithHistory.
type HistoryEntry struct {
	GuildID       string
	ChannelID     string
	UserID        string
	Command       string
	Args          string
	CorrelationID string
	Failed        bool
	At            time.Time
}

// HistoryRecorder persists executed invocations.
type HistoryRecorder interface {
	AppendInvocation(ctx context.Context, e HistoryEntry) error
}

// WithHistory records every execution after the handler returns. Recording
// failures are logged and never change the handler's result.
func WithHistory(rec HistoryRecorder) cmd.Middleware {
	return func(next cmd.Handler) cmd.Handler {
		return cmd.HandlerFunc(func(ctx context.Context, inv *cmd.Invocation) error {
			err := next.Execute(ctx, inv)
			if inv.GuildID == "" {
				return err
			}
			entry := HistoryEntry{
				GuildID:       inv.GuildID,
				ChannelID:     inv.ChannelID,
				UserID:        inv.UserID,
				Command:       inv.Command,
				Args:          inv.Args.Describe(),
				CorrelationID: inv.CorrelationID,
				Failed:        err != nil,
				At:            time.Now().UTC(),
			}
			if e := rec.AppendInvocation(context.WithoutCancel(ctx), entry); e != nil {
				log.Warn().Err(e).Str("command", inv.Command).Msg("failed to record command history")
			}
			return err
		})
	}
}

// WithGuildOnly refuses to run the handler outside a guild.
func WithGuildOnly() cmd.Middleware {
	return func(next cmd.Handler) cmd.Handler {
		return cmd.HandlerFunc(func(ctx context.Context, inv *cmd.Invocation) error {
			if inv.GuildID == "" {
				return inv.Respond(ctx, cmd.Response{
					Description: "This command can only be used in a server.",
					Ephemeral:   true,
					Error:       true,
				})
			}
			return next.Execute(ctx, inv)
		})
	}
}

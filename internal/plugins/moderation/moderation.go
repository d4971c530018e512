// Package moderation contributes the kick, ban and timeout commands.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/plugin"
	"github.com/keshon/aegistrate/pkg/cmd"
)

const (
	defaultReason = "No reason provided."
	minReason     = 3
	maxReason     = 100
	cooldown      = 5 * time.Second
)

// Action is a moderation action.
type Action uint8

const (
	Ban Action = iota + 1
	Kick
	Timeout
)

// Verb is the imperative form, as in "failed to ban".
func (a Action) Verb() string {
	switch a {
	case Ban:
		return "ban"
	case Kick:
		return "kick"
	case Timeout:
		return "time out"
	}
	return fmt.Sprintf("Action(%d)", a)
}

// PastVerb is the participle, as in "has been banned".
func (a Action) PastVerb() string {
	switch a {
	case Ban:
		return "banned"
	case Kick:
		return "kicked"
	case Timeout:
		return "timed out"
	}
	return a.Verb()
}

// Eligibility is whether a moderator may act on a member.
type Eligibility uint8

const (
	Eligible Eligibility = iota
	SelfTarget
	BotUser
	TargetIsOwner
	HigherRole
)

func (e Eligibility) explain(a Action, moderator, target string) string {
	switch e {
	case SelfTarget:
		return fmt.Sprintf("%s, you cannot %s yourself.", mention(moderator), a.Verb())
	case BotUser:
		return fmt.Sprintf("%s is a bot and cannot be %s with this command.", mention(target), a.PastVerb())
	case TargetIsOwner:
		return fmt.Sprintf("%s owns this server and cannot be %s.", mention(target), a.PastVerb())
	case HigherRole:
		return fmt.Sprintf("%s has a role at or above yours, so %s cannot %s them.", mention(target), mention(moderator), a.Verb())
	}
	return ""
}

// Params describe one moderation request.
type Params struct {
	GuildID     string
	ModeratorID string
	TargetID    string
	Reason      string
	Duration    time.Duration // timeout length
	Cleanup     bool          // ban: delete the member's recent messages
}

// Moderator performs moderation against the chat platform.
type Moderator interface {
	Assess(ctx context.Context, guildID, moderatorID, targetID string) (Eligibility, error)
	// Notify tells the target, by direct message, what is about to happen.
	Notify(ctx context.Context, a Action, p Params) error
	Apply(ctx context.Context, a Action, p Params) error
}

// Contribution returns the moderation commands backed by m.
func Contribution(m Moderator) command.Contribution {
	member := func(verb string) command.Option {
		return command.Option{Name: "member", Description: "The member to " + verb + ".", Type: command.OptionUser, Required: true}
	}
	reason := func(verb string) command.Option {
		return command.Option{Name: "reason", Description: "The reason to " + verb + " this member.", Type: command.OptionString}
	}

	return func() []command.Descriptor {
		return []command.Descriptor{
			{
				Name:        "ban",
				Description: "Bans a member from the guild.",
				Plugin:      plugin.Moderation,
				Cooldown:    cooldown,
				Options: []command.Option{
					member("ban from the guild"),
					reason("ban"),
					{Name: "cleanup", Description: "Clean up messages from the member - yes by default.", Type: command.OptionBoolean},
				},
				Handler: handler(m, Ban),
			},
			{
				Name:        "kick",
				Description: "Kicks a member from the guild.",
				Plugin:      plugin.Moderation,
				Cooldown:    cooldown,
				Options:     []command.Option{member("kick from the guild"), reason("kick")},
				Handler:     handler(m, Kick),
			},
			{
				Name:        "timeout",
				Description: "Times out a member in the guild.",
				Plugin:      plugin.Moderation,
				Cooldown:    cooldown,
				Options: []command.Option{
					member("time out in the guild"),
					{Name: "duration", Description: "The duration of the timeout, such as 10m or 1d.", Type: command.OptionDuration, Required: true},
					reason("time out"),
				},
				Handler: handler(m, Timeout),
			},
		}
	}
}

var errBadReason = errors.New("reason must be between 3 and 100 characters")

func handler(m Moderator, a Action) cmd.Handler {
	return cmd.HandlerFunc(func(ctx context.Context, inv *cmd.Invocation) error {
		p, err := params(inv, a)
		if err != nil {
			return inv.Respond(ctx, cmd.Response{Title: "Invalid reason", Description: err.Error(), Ephemeral: true, Error: true})
		}
		return moderate(ctx, m, a, p, inv)
	})
}

func params(inv *cmd.Invocation, a Action) (Params, error) {
	target, _ := inv.Args.User("member")
	p := Params{
		GuildID:     inv.GuildID,
		ModeratorID: inv.UserID,
		TargetID:    target.ID,
		Reason:      defaultReason,
		Cleanup:     true,
	}
	if r, ok := inv.Args.String("reason"); ok {
		if n := len([]rune(r)); n < minReason || n > maxReason {
			return p, errBadReason
		}
		p.Reason = r
	}
	if c, ok := inv.Args.Bool("cleanup"); ok {
		p.Cleanup = c
	}
	if a == Timeout {
		s, _ := inv.Args.String("duration")
		d, err := command.ParseDuration(s)
		if err != nil {
			return p, err
		}
		p.Duration = d
	}
	return p, nil
}

// moderate assesses eligibility, notifies the member, then applies the action,
// reporting every step back to the moderator.
func moderate(ctx context.Context, m Moderator, a Action, p Params, inv *cmd.Invocation) error {
	eligibility, err := m.Assess(ctx, p.GuildID, p.ModeratorID, p.TargetID)
	if err != nil {
		_ = inv.Respond(ctx, cmd.Response{
			Title: "Failed to assess eligibility!",
			Description: fmt.Sprintf("The bot failed to assess the eligibility of the member for moderation: %v. "+
				"To be safe, the %s was aborted.", err, a.Verb()),
			Error: true,
		})
		return fmt.Errorf("assess moderation eligibility: %w", err)
	}
	if eligibility != Eligible {
		return inv.Respond(ctx, cmd.Response{
			Title:       "Cannot " + a.Verb() + "!",
			Description: eligibility.explain(a, p.ModeratorID, p.TargetID),
			Error:       true,
		})
	}

	if err := m.Notify(ctx, a, p); err != nil {
		_ = inv.Respond(ctx, cmd.Response{
			Title:       "Notification failed!",
			Description: fmt.Sprintf("The bot failed to send %s a DM. Please notify them manually.", mention(p.TargetID)),
			Fields:      []cmd.Field{{Name: "Failure reason", Value: err.Error()}},
		})
	} else {
		_ = inv.Respond(ctx, cmd.Response{Title: "Notified!", Description: mention(p.TargetID) + " has been notified."})
	}

	if err := m.Apply(ctx, a, p); err != nil {
		_ = inv.Respond(ctx, cmd.Response{
			Title:       fmt.Sprintf("The bot failed to %s the member.", a.Verb()),
			Description: err.Error(),
			Error:       true,
		})
		return fmt.Errorf("%s %s: %w", a.Verb(), p.TargetID, err)
	}

	duration := "Not applicable"
	if a == Timeout {
		duration = p.Duration.String()
	}
	return inv.Respond(ctx, cmd.Response{
		Title:       "Success!",
		Description: fmt.Sprintf("%s has been successfully %s.", mention(p.TargetID), a.PastVerb()),
		Fields: []cmd.Field{
			{Name: "Action", Value: a.Verb(), Inline: true},
			{Name: "Member", Value: mention(p.TargetID), Inline: true},
			{Name: "Duration", Value: duration, Inline: true},
			{Name: "Reason", Value: p.Reason},
		},
	})
}

func mention(userID string) string { return "<@" + userID + ">" }

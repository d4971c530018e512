package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/aegistrate/internal/plugins/moderation"
)

// banCleanupDays is how much message history a ban with cleanup removes.
const banCleanupDays = 7

// Moderator carries out moderation actions through the Discord API.
type Moderator struct {
	s *discordgo.Session
}

var _ moderation.Moderator = (*Moderator)(nil)

func NewModerator(s *discordgo.Session) *Moderator { return &Moderator{s: s} }

func (m *Moderator) Assess(ctx context.Context, guildID, moderatorID, targetID string) (moderation.Eligibility, error) {
	if moderatorID == targetID {
		return moderation.SelfTarget, nil
	}
	guild, err := lookupGuild(ctx, m.s, guildID)
	if err != nil {
		return 0, err
	}
	target, err := lookupMember(ctx, m.s, guildID, targetID)
	if err != nil {
		return 0, err
	}
	mod, err := lookupMember(ctx, m.s, guildID, moderatorID)
	if err != nil {
		return 0, err
	}
	return assess(guild, mod, target), nil
}

func assess(guild *discordgo.Guild, mod, target *discordgo.Member) moderation.Eligibility {
	switch {
	case mod.User.ID == target.User.ID:
		return moderation.SelfTarget
	case target.User.Bot:
		return moderation.BotUser
	case target.User.ID == guild.OwnerID:
		return moderation.TargetIsOwner
	case mod.User.ID == guild.OwnerID:
		return moderation.Eligible
	case highestPosition(guild, target) >= highestPosition(guild, mod):
		return moderation.HigherRole
	}
	return moderation.Eligible
}

// Notify sends the member a direct message before the action lands, while
// they still share a server with the bot.
func (m *Moderator) Notify(ctx context.Context, a moderation.Action, p moderation.Params) error {
	ch, err := m.s.UserChannelCreate(p.TargetID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open DM channel: %w", err)
	}
	guildName := p.GuildID
	if g, err := lookupGuild(ctx, m.s, p.GuildID); err == nil {
		guildName = g.Name
	}
	_, err = m.s.ChannelMessageSendEmbed(ch.ID, notice(a, p, guildName), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send DM: %w", err)
	}
	return nil
}

func notice(a moderation.Action, p moderation.Params, guildName string) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("You have been %s", a.PastVerb()),
		Description: fmt.Sprintf("You have been %s in **%s**.", a.PastVerb(), guildName),
		Color:       ErrorColor,
		Fields:      []*discordgo.MessageEmbedField{{Name: "Reason", Value: p.Reason}},
	}
	if a == moderation.Timeout {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Duration", Value: p.Duration.String(), Inline: true})
	}
	return e
}

func (m *Moderator) Apply(ctx context.Context, a moderation.Action, p moderation.Params) error {
	opts := []discordgo.RequestOption{discordgo.WithContext(ctx)}
	switch a {
	case moderation.Kick:
		return m.s.GuildMemberDeleteWithReason(p.GuildID, p.TargetID, p.Reason, opts...)
	case moderation.Ban:
		days := 0
		if p.Cleanup {
			days = banCleanupDays
		}
		return m.s.GuildBanCreateWithReason(p.GuildID, p.TargetID, p.Reason, days, opts...)
	case moderation.Timeout:
		until := time.Now().Add(p.Duration)
		opts = append(opts, discordgo.WithAuditLogReason(p.Reason))
		return m.s.GuildMemberTimeout(p.GuildID, p.TargetID, &until, opts...)
	}
	return fmt.Errorf("unsupported moderation action %d", a)
}

package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Permissions answers permission questions about guild members.
type Permissions struct {
	s *discordgo.Session
}

func NewPermissions(s *discordgo.Session) *Permissions { return &Permissions{s: s} }

// IsAdministrator reports whether a member owns the guild or holds a role
// with the Administrator permission.
func (p *Permissions) IsAdministrator(ctx context.Context, guildID, userID string) (bool, error) {
	guild, err := lookupGuild(ctx, p.s, guildID)
	if err != nil {
		return false, err
	}
	member, err := lookupMember(ctx, p.s, guildID, userID)
	if err != nil {
		return false, err
	}
	return isAdministrator(guild, member), nil
}

func isAdministrator(guild *discordgo.Guild, member *discordgo.Member) bool {
	if member == nil || member.User == nil {
		return false
	}
	if member.User.ID == guild.OwnerID {
		return true
	}
	roles := rolesByID(guild)
	for _, id := range member.Roles {
		if r := roles[id]; r != nil && r.Permissions&discordgo.PermissionAdministrator != 0 {
			return true
		}
	}
	return false
}

// highestPosition is the position of the member's top role, 0 for @everyone.
func highestPosition(guild *discordgo.Guild, member *discordgo.Member) int {
	roles := rolesByID(guild)
	top := 0
	for _, id := range member.Roles {
		if r := roles[id]; r != nil && r.Position > top {
			top = r.Position
		}
	}
	return top
}

func rolesByID(guild *discordgo.Guild) map[string]*discordgo.Role {
	m := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, r := range guild.Roles {
		m[r.ID] = r
	}
	return m
}

// lookupGuild prefers the state cache and falls back to the REST API.
func lookupGuild(ctx context.Context, s *discordgo.Session, guildID string) (*discordgo.Guild, error) {
	if s.State != nil {
		if g, err := s.State.Guild(guildID); err == nil && g != nil {
			return g, nil
		}
	}
	g, err := s.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch guild %s: %w", guildID, err)
	}
	return g, nil
}

func lookupMember(ctx context.Context, s *discordgo.Session, guildID, userID string) (*discordgo.Member, error) {
	if s.State != nil {
		if m, err := s.State.Member(guildID, userID); err == nil && m != nil {
			return m, nil
		}
	}
	m, err := s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch member %s: %w", userID, err)
	}
	return m, nil
}

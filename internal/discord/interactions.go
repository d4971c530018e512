package discord

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/aegistrate/pkg/cmd"
)

const (
	EmbedColor = 0xb01e66
	ErrorColor = 0xd83c3e
)

// interactionResponder answers one interaction. The first response uses the
// interaction callback, later ones become followups.
type interactionResponder struct {
	s  *discordgo.Session
	i  *discordgo.InteractionCreate
	mu sync.Mutex

	responded bool
}

func newResponder(s *discordgo.Session, i *discordgo.InteractionCreate) *interactionResponder {
	return &interactionResponder{s: s, i: i}
}

// Respond implements cmd.Responder.
func (r *interactionResponder) Respond(ctx context.Context, resp cmd.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := embed(resp)
	if r.responded {
		return FollowupEmbed(ctx, r.s, r.i, e, resp.Ephemeral)
	}
	var err error
	if resp.Ephemeral {
		err = RespondEmbedEphemeral(ctx, r.s, r.i, e)
	} else {
		err = RespondEmbed(ctx, r.s, r.i, e)
	}
	if err == nil {
		r.responded = true
	}
	return err
}

func (r *interactionResponder) Responded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.responded
}

// RespondEmbed sends a public embed response to an interaction.
func RespondEmbed(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	}, discordgo.WithContext(ctx))
}

// RespondEmbedEphemeral sends an ephemeral embed response to an interaction.
func RespondEmbedEphemeral(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:  discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	}, discordgo.WithContext(ctx))
}

// FollowupEmbed sends an embed followup message.
func FollowupEmbed(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) error {
	params := &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{embed}}
	if ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	_, err := s.FollowupMessageCreate(i.Interaction, true, params, discordgo.WithContext(ctx))
	return err
}

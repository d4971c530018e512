package discord

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/plugin"
	"github.com/keshon/aegistrate/internal/plugins/moderation"
	"github.com/keshon/aegistrate/internal/registration"
	"github.com/keshon/aegistrate/pkg/cmd"
	"github.com/keshon/aegistrate/pkg/retrylimit"
)

func sampleDefinition() registration.Definition {
	return registration.FromDescriptor(command.Descriptor{
		Name:        "roll",
		Description: "Rolls dice.",
		Plugin:      plugin.Miscellaneous,
		Options: []command.Option{
			{Name: "sides", Description: "Sides.", Type: command.OptionInteger, Choices: []command.Choice{{Name: "d6", Value: "6"}, {Name: "d20", Value: "20"}, {Name: "huge", Value: "1000000"}}},
			{Name: "for", Description: "Who rolls.", Type: command.OptionUser, Required: true},
			{Name: "after", Description: "When.", Type: command.OptionDuration},
		},
	})
}

func TestApplicationCommandPutsRequiredFirst(t *testing.T) {
	ac := applicationCommand(sampleDefinition())
	assert.Equal(t, discordgo.ChatApplicationCommand, ac.Type)
	require.Len(t, ac.Options, 3)
	assert.Equal(t, "for", ac.Options[0].Name)
	assert.Equal(t, discordgo.ApplicationCommandOptionUser, ac.Options[0].Type)
	assert.Equal(t, "sides", ac.Options[1].Name)
	assert.Equal(t, int64(6), ac.Options[1].Choices[0].Value)
	assert.Equal(t, discordgo.ApplicationCommandOptionString, ac.Options[2].Type)
}

func TestRemoteHashMatchesLocal(t *testing.T) {
	def := sampleDefinition()
	sent := applicationCommand(def)
	sent.ID = "123"

	// Listing returns the command as JSON, so integer choices come back as float64.
	data, err := json.Marshal(sent)
	require.NoError(t, err)
	var ac discordgo.ApplicationCommand
	require.NoError(t, json.Unmarshal(data, &ac))
	require.IsType(t, float64(0), ac.Options[1].Choices[2].Value)

	snap := snapshot(&ac)
	assert.Equal(t, "123", snap.ID)
	assert.Equal(t, registration.Hash(def), snap.Hash)
}

func TestChoiceValue(t *testing.T) {
	assert.Equal(t, "1000000", choiceValue(float64(1000000)))
	assert.Equal(t, "20", choiceValue(float64(20)))
	assert.Equal(t, "-3", choiceValue(int64(-3)))
	assert.Equal(t, "low", choiceValue("low"))
}

func TestEventFromInteraction(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "int-1",
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "g1",
		ChannelID: "c1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "mod"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "ban",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "member", Type: discordgo.ApplicationCommandOptionUser, Value: "u2"},
				{Name: "stranger", Type: discordgo.ApplicationCommandOptionUser, Value: "u3"},
				{Name: "reason", Type: discordgo.ApplicationCommandOptionString, Value: "spam"},
				{Name: "days", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(3)},
				{Name: "cleanup", Type: discordgo.ApplicationCommandOptionBoolean, Value: false},
			},
			Resolved: &discordgo.ApplicationCommandInteractionDataResolved{
				Users: map[string]*discordgo.User{
					"u2": {ID: "u2", Username: "spammer"},
					"u3": {ID: "u3", Username: "outsider"},
				},
				Members: map[string]*discordgo.Member{"u2": {}},
			},
		},
	}}

	ev := eventFromInteraction(i)
	assert.Equal(t, "int-1", ev.CorrelationID)
	assert.Equal(t, "mod", ev.UserID)
	assert.Equal(t, "g1", ev.GuildID)
	assert.Equal(t, "c1", ev.ChannelID)
	assert.Equal(t, "ban", ev.Command)
	assert.Equal(t, cmd.UserRef{ID: "u2", Username: "spammer", Member: true}, ev.Args["member"])
	assert.Equal(t, cmd.UserRef{ID: "u3", Username: "outsider"}, ev.Args["stranger"])
	assert.Equal(t, "spam", ev.Args["reason"])
	assert.Equal(t, int64(3), ev.Args["days"])
	assert.Equal(t, false, ev.Args["cleanup"])
}

func TestEventFromDirectMessage(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:   "int-2",
		Type: discordgo.InteractionApplicationCommand,
		User: &discordgo.User{ID: "u1"},
		Data: discordgo.ApplicationCommandInteractionData{Name: "ping"},
	}}
	ev := eventFromInteraction(i)
	assert.Equal(t, "u1", ev.UserID)
	assert.Empty(t, ev.GuildID)
	assert.Empty(t, ev.Args)
}

func restErr(code int) error {
	return &discordgo.RESTError{
		Response:     &http.Response{StatusCode: code, Status: http.StatusText(code)},
		ResponseBody: []byte("{}"),
	}
}

func TestClassify(t *testing.T) {
	var fatal *retrylimit.FatalError
	assert.Nil(t, classify(nil))

	plain := errors.New("network down")
	assert.Same(t, plain, classify(plain))

	for _, code := range []int{http.StatusBadRequest, http.StatusForbidden} {
		err := classify(restErr(code))
		assert.True(t, errors.As(err, &fatal), "%d should be fatal", code)
	}
	for _, code := range []int{http.StatusNotFound, http.StatusTooManyRequests, http.StatusBadGateway} {
		err := classify(restErr(code))
		assert.False(t, errors.As(err, &fatal), "%d should be retryable", code)
		var h retrylimit.HTTPError
		require.True(t, errors.As(err, &h))
		assert.Equal(t, code, h.StatusCode())
	}
}

func TestRetryAfter(t *testing.T) {
	re := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}}
	re.Response.Header.Set("Retry-After", "1.5")

	var ra retrylimit.RetryAfterError
	require.True(t, errors.As(classify(re), &ra))
	assert.Equal(t, 1500*time.Millisecond, ra.RetryAfter())

	re.Response.Header.Del("Retry-After")
	assert.Zero(t, ra.RetryAfter())
}

func TestEmbed(t *testing.T) {
	e := embed(cmd.Response{Title: "t", Description: "d", Footer: "f", Fields: []cmd.Field{{Name: "n", Value: "v", Inline: true}}})
	assert.Equal(t, EmbedColor, e.Color)
	assert.Equal(t, "f", e.Footer.Text)
	require.Len(t, e.Fields, 1)
	assert.True(t, e.Fields[0].Inline)

	assert.Equal(t, ErrorColor, embed(cmd.Response{Error: true}).Color)
	assert.Nil(t, embed(cmd.Response{}).Footer)
}

func TestAssess(t *testing.T) {
	guild := &discordgo.Guild{
		OwnerID: "owner",
		Roles: []*discordgo.Role{
			{ID: "admin", Position: 10, Permissions: discordgo.PermissionAdministrator},
			{ID: "mod", Position: 5},
			{ID: "member", Position: 1},
		},
	}
	member := func(id string, roles ...string) *discordgo.Member {
		return &discordgo.Member{User: &discordgo.User{ID: id}, Roles: roles}
	}
	bot := member("bot", "member")
	bot.User.Bot = true

	tests := []struct {
		name        string
		mod, target *discordgo.Member
		want        moderation.Eligibility
	}{
		{"self", member("a", "mod"), member("a", "mod"), moderation.SelfTarget},
		{"bot", member("a", "mod"), bot, moderation.BotUser},
		{"owner target", member("a", "admin"), member("owner"), moderation.TargetIsOwner},
		{"owner moderator", member("owner"), member("b", "admin"), moderation.Eligible},
		{"same rank", member("a", "mod"), member("b", "mod"), moderation.HigherRole},
		{"higher rank", member("a", "mod"), member("b", "admin"), moderation.HigherRole},
		{"lower rank", member("a", "mod"), member("b", "member"), moderation.Eligible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, assess(guild, tt.mod, tt.target))
		})
	}

	assert.True(t, isAdministrator(guild, member("x", "admin")))
	assert.True(t, isAdministrator(guild, member("owner")))
	assert.False(t, isAdministrator(guild, member("y", "mod")))
	assert.False(t, isAdministrator(guild, nil))
}

func TestNotice(t *testing.T) {
	e := notice(moderation.Timeout, moderation.Params{Reason: "spam", Duration: 10 * time.Minute}, "Guild")
	assert.Equal(t, "You have been timed out", e.Title)
	assert.Contains(t, e.Description, "**Guild**")
	require.Len(t, e.Fields, 2)
	assert.Equal(t, "10m0s", e.Fields[1].Value)
}

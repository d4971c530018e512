package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/aegistrate/internal/registration"
	"github.com/keshon/aegistrate/pkg/retrylimit"
)

// Platform is the Discord application command registry, global or scoped to
// one guild.
type Platform struct {
	s       *discordgo.Session
	guildID string
}

var _ registration.Platform = (*Platform)(nil)

// NewPlatform returns a registry view over s. An empty guildID means global
// commands.
func NewPlatform(s *discordgo.Session, guildID string) *Platform {
	return &Platform{s: s, guildID: guildID}
}

// appID returns the bot's application ID, fetching from Discord if not cached in State.
func (p *Platform) appID(ctx context.Context) (string, error) {
	if p.s.State != nil && p.s.State.User != nil && p.s.State.User.ID != "" {
		return p.s.State.User.ID, nil
	}
	u, err := p.s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return "", retrylimit.Fatal(fmt.Errorf("fetch bot user: %w", classify(err)))
	}
	return u.ID, nil
}

func (p *Platform) ListCommands(ctx context.Context) ([]registration.Snapshot, error) {
	appID, err := p.appID(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := p.s.ApplicationCommands(appID, p.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err)
	}
	out := make([]registration.Snapshot, 0, len(remote))
	for _, ac := range remote {
		if ac.Type != 0 && ac.Type != discordgo.ChatApplicationCommand {
			continue
		}
		out = append(out, snapshot(ac))
	}
	return out, nil
}

func (p *Platform) CreateCommand(ctx context.Context, def registration.Definition) (string, error) {
	appID, err := p.appID(ctx)
	if err != nil {
		return "", err
	}
	ac, err := p.s.ApplicationCommandCreate(appID, p.guildID, applicationCommand(def), discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return ac.ID, nil
}

func (p *Platform) UpdateCommand(ctx context.Context, id string, def registration.Definition) error {
	appID, err := p.appID(ctx)
	if err != nil {
		return err
	}
	_, err = p.s.ApplicationCommandEdit(appID, p.guildID, id, applicationCommand(def), discordgo.WithContext(ctx))
	return classify(err)
}

func (p *Platform) DeleteCommand(ctx context.Context, id string) error {
	appID, err := p.appID(ctx)
	if err != nil {
		return err
	}
	return classify(p.s.ApplicationCommandDelete(appID, p.guildID, id, discordgo.WithContext(ctx)))
}

// restError exposes the status and Retry-After of a discordgo REST failure
// to retrylimit.
type restError struct {
	err *discordgo.RESTError
}

func (e *restError) Error() string { return e.err.Error() }
func (e *restError) Unwrap() error { return e.err }

func (e *restError) StatusCode() int {
	if e.err.Response == nil {
		return 0
	}
	return e.err.Response.StatusCode
}

// RetryAfter reads the Retry-After header, which Discord sends in seconds.
func (e *restError) RetryAfter() time.Duration {
	if e.err.Response == nil {
		return 0
	}
	secs, err := strconv.ParseFloat(e.err.Response.Header.Get("Retry-After"), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// classify marks client errors that a retry cannot fix as fatal. 404 stays
// retryable: the retry re-reads the registry and re-targets the action.
func classify(err error) error {
	var re *discordgo.RESTError
	if err == nil || !errors.As(err, &re) {
		return err
	}
	w := &restError{err: re}
	code := w.StatusCode()
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusNotFound {
		return retrylimit.Fatal(w)
	}
	return w
}

package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/keshon/aegistrate/internal/dispatch"
	"github.com/keshon/aegistrate/pkg/cmd"
)

// ErrClosed is returned by Open after Close.
var ErrClosed = errors.New("bot is closed")

// Dispatcher runs one invocation to a terminal outcome.
type Dispatcher interface {
	Handle(ctx context.Context, ev dispatch.Event) dispatch.Outcome
}

// Bot owns the gateway session and feeds application command interactions
// to a Dispatcher.
type Bot struct {
	s *discordgo.Session

	ready     chan struct{}
	readyOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	dispatcher Dispatcher
	closed     bool
	inflight   sync.WaitGroup
}

// New creates a bot for token without connecting.
func New(token string) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{s: s, ready: make(chan struct{}), ctx: ctx, cancel: cancel}
	s.AddHandler(b.onReady)
	s.AddHandler(b.onInteractionCreate)
	return b, nil
}

// Session exposes the underlying discordgo session.
func (b *Bot) Session() *discordgo.Session { return b.s }

// Attach sets the dispatcher interactions are routed to. Interactions that
// arrive before Attach are answered as not ready.
func (b *Bot) Attach(d Dispatcher) {
	b.mu.Lock()
	b.dispatcher = d
	b.mu.Unlock()
}

// Open connects to the gateway and waits for Ready or ctx. The bot shows as
// busy until SetOnline.
func (b *Bot) Open(ctx context.Context) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if err := b.s.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	select {
	case <-b.ready:
	case <-ctx.Done():
		_ = b.s.Close()
		return fmt.Errorf("waiting for gateway ready: %w", ctx.Err())
	}

	if err := b.setPresence("dnd", discordgo.ActivityTypeGame, "the waiting game..."); err != nil {
		log.Warn().Err(err).Msg("failed to set presence")
	}
	return nil
}

// SetOnline announces that commands are being served.
func (b *Bot) SetOnline() error {
	return b.setPresence("online", discordgo.ActivityTypeWatching, "over the server")
}

func (b *Bot) setPresence(status string, kind discordgo.ActivityType, name string) error {
	return b.s.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status:     status,
		Activities: []*discordgo.Activity{{Name: name, Type: kind}},
	})
}

// Latency is the last heartbeat round trip.
func (b *Bot) Latency() time.Duration {
	return b.s.HeartbeatLatency()
}

// Close stops accepting interactions, cancels running handlers, waits for
// them and disconnects.
func (b *Bot) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.inflight.Wait()
	return b.s.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("gateway ready")
	b.readyOnce.Do(func() { close(b.ready) })
}

// onInteractionCreate dispatches chat input commands. discordgo already runs
// each handler on its own goroutine.
func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		log.Debug().Int("type", int(i.Type)).Msg("ignoring interaction")
		return
	}
	if i.ApplicationCommandData().CommandType != discordgo.ChatApplicationCommand {
		return
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	d := b.dispatcher
	b.inflight.Add(1)
	b.mu.RUnlock()
	defer b.inflight.Done()

	ev := eventFromInteraction(i)
	r := newResponder(s, i)
	ev.Reply = r

	var out dispatch.Outcome
	if d == nil {
		out = dispatch.Outcome{State: dispatch.Failed, Reason: dispatch.ReasonNotReady, Command: ev.Command}
	} else {
		out = d.Handle(b.ctx, ev)
	}
	answer(b.ctx, r, out)
}

// answer tells the user why a command did not complete.
func answer(ctx context.Context, r cmd.Responder, out dispatch.Outcome) {
	msg := out.Message()
	if msg == "" {
		return
	}
	resp := cmd.Response{Description: msg, Ephemeral: true, Error: out.State == dispatch.Failed}
	if err := r.Respond(context.WithoutCancel(ctx), resp); err != nil {
		log.Warn().Err(err).Str("correlation_id", out.CorrelationID).Msg("failed to answer interaction")
	}
}

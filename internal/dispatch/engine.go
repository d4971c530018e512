// Package dispatch routes invocation events to command handlers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/cooldown"
	"github.com/keshon/aegistrate/pkg/cmd"
)

const instrumentationName = "github.com/keshon/aegistrate/internal/dispatch"

// ErrHandlerPanic wraps a value recovered from a panicking handler.
var ErrHandlerPanic = errors.New("handler panicked")

// Event is one invocation delivered by the gateway.
type Event struct {
	CorrelationID string
	UserID        string
	GuildID       string
	ChannelID     string
	Command       string
	Args          cmd.Args
	Data          any
	Reply         cmd.Responder
}

// Catalog is the read side of command.Catalog the engine needs.
type Catalog interface {
	Lookup(name string) (command.Descriptor, bool)
}

// Stats are running totals of terminal outcomes.
type Stats struct {
	Completed int64
	Failed    int64
	Blocked   int64
	InFlight  int64
}

// Counters accumulate Stats. They can be created before the engine so that
// command handlers can report them.
type Counters struct {
	completed, failed, blocked, inFlight atomic.Int64
}

// Snapshot returns the current totals.
func (c *Counters) Snapshot() Stats {
	return Stats{
		Completed: c.completed.Load(),
		Failed:    c.failed.Load(),
		Blocked:   c.blocked.Load(),
		InFlight:  c.inFlight.Load(),
	}
}

// Engine is safe for concurrent use; every Handle call is independent.
type Engine struct {
	catalog   Catalog
	cooldowns *cooldown.Tracker
	filter    PluginFilter
	tracer    trace.Tracer
	now       func() time.Time
	counters  *Counters
	ready     atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithPluginFilter gates commands by plugin per guild.
func WithPluginFilter(f PluginFilter) Option { return func(e *Engine) { e.filter = f } }

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option { return func(e *Engine) { e.tracer = t } }

// WithCounters makes the engine report into c.
func WithCounters(c *Counters) Option { return func(e *Engine) { e.counters = c } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine returns an engine that is not ready yet.
func NewEngine(catalog Catalog, cooldowns *cooldown.Tracker, opts ...Option) *Engine {
	e := &Engine{
		catalog:   catalog,
		cooldowns: cooldowns,
		tracer:    otel.Tracer(instrumentationName),
		now:       time.Now,
		counters:  &Counters{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MarkReady lets events through. Until then every event fails with NotReady.
func (e *Engine) MarkReady() { e.ready.Store(true) }

// Ready reports whether MarkReady was called.
func (e *Engine) Ready() bool { return e.ready.Load() }

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats { return e.counters.Snapshot() }

// Handle runs one event through lookup, plugin gate, argument validation,
// cooldown and execution. It never panics and never returns a non-terminal
// state.
func (e *Engine) Handle(ctx context.Context, ev Event) (out Outcome) {
	began := time.Now()
	if ev.CorrelationID == "" {
		ev.CorrelationID = uuid.NewString()
	}
	out = Outcome{State: Received, CorrelationID: ev.CorrelationID, Command: ev.Command}

	ctx, span := e.tracer.Start(ctx, "dispatch "+ev.Command, trace.WithAttributes(
		attribute.String("command.name", ev.Command),
		attribute.String("command.correlation_id", ev.CorrelationID),
		attribute.String("user.id", ev.UserID),
		attribute.String("guild.id", ev.GuildID),
	))
	e.counters.inFlight.Add(1)
	defer func() {
		e.counters.inFlight.Add(-1)
		out.Duration = time.Since(began)
		e.finish(span, out)
	}()

	if !e.Ready() {
		return fail(out, ReasonNotReady, nil)
	}

	desc, ok := e.catalog.Lookup(ev.Command)
	if !ok {
		return fail(out, ReasonUnknownCommand, nil)
	}

	if e.filter != nil {
		enabled, err := e.filter.Enabled(ctx, ev.GuildID, desc.Plugin)
		if err != nil {
			log.Warn().Err(err).Str("guild", ev.GuildID).Stringer("plugin", desc.Plugin).
				Msg("plugin filter failed, allowing command")
		}
		if !enabled {
			return fail(out, ReasonPluginDisabled, nil)
		}
	}

	if err := desc.Validate(ev.Args); err != nil {
		return fail(out, ReasonInvalidArguments, err)
	}
	out.State = Validated

	if d := e.cooldowns.CheckAndRecord(ev.UserID, desc.Name, e.now()); !d.Eligible {
		out.State = Blocked
		out.Remaining = d.Remaining
		return out
	}
	out.State = CooldownChecked

	inv := &cmd.Invocation{
		CorrelationID: ev.CorrelationID,
		UserID:        ev.UserID,
		GuildID:       ev.GuildID,
		ChannelID:     ev.ChannelID,
		Command:       desc.Name,
		Args:          ev.Args,
		Data:          ev.Data,
		Reply:         ev.Reply,
	}
	out.State = Executing
	if err := execute(ctx, desc.Handler, inv); err != nil {
		return fail(out, ReasonHandlerFault, err)
	}
	out.State = Completed
	return out
}

func fail(out Outcome, reason Reason, err error) Outcome {
	out.State = Failed
	out.Reason = reason
	out.Err = err
	return out
}

// execute runs h, turning a panic into an error.
func execute(ctx context.Context, h cmd.Handler, inv *cmd.Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("correlation_id", inv.CorrelationID).Str("command", inv.Command).
				Bytes("stack", debug.Stack()).Msgf("handler panic: %v", r)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h.Execute(ctx, inv)
}

func (e *Engine) finish(span trace.Span, out Outcome) {
	span.SetAttributes(
		attribute.String("dispatch.state", out.State.String()),
		attribute.String("dispatch.reason", string(out.Reason)),
	)
	if out.Err != nil {
		span.RecordError(out.Err)
	}

	var ev *zerolog.Event
	switch out.State {
	case Completed:
		e.counters.completed.Add(1)
		span.SetStatus(codes.Ok, "")
		ev = log.Info()
	case Blocked:
		e.counters.blocked.Add(1)
		ev = log.Info().Dur("remaining", out.Remaining)
	default:
		e.counters.failed.Add(1)
		span.SetStatus(codes.Error, string(out.Reason))
		if out.Reason == ReasonHandlerFault {
			ev = log.Error().Err(out.Err)
		} else {
			ev = log.Warn().Err(out.Err)
		}
	}
	span.End()

	ev.Str("correlation_id", out.CorrelationID).
		Str("command", out.Command).
		Stringer("state", out.State).
		Str("reason", string(out.Reason)).
		Dur("took", out.Duration).
		Msg("dispatch")
}

// Package cmd provides a transport-agnostic handler core: a handler is
// something that executes an Invocation. How invocations are produced and
// answered (Discord interactions, tests, a CLI) is defined by adapters that
// fill the Invocation and supply a Responder.
package cmd

import "context"

// Invocation carries everything a handler may read about one command call.
// Adapters set Data to their own payload (e.g. *discordgo.InteractionCreate).
type Invocation struct {
	CorrelationID string
	UserID        string
	GuildID       string
	ChannelID     string
	Command       string
	Args          Args
	Data          any
	Reply         Responder
}

// Handler is the contract every command implementation satisfies.
type Handler interface {
	Execute(ctx context.Context, inv *Invocation) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, inv *Invocation) error

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, inv *Invocation) error {
	return f(ctx, inv)
}

// Respond sends r through the invocation's responder. It is a no-op when the
// adapter did not supply one.
func (inv *Invocation) Respond(ctx context.Context, r Response) error {
	if inv == nil || inv.Reply == nil {
		return nil
	}
	return inv.Reply.Respond(ctx, r)
}

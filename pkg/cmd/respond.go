package cmd

import "context"

// Field is a titled block inside a Response.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Response is what a handler (or the dispatcher) sends back to the user.
type Response struct {
	Title       string
	Description string
	Fields      []Field
	Footer      string
	// Ephemeral responses are visible only to the invoking user.
	Ephemeral bool
	// Error marks failure responses so adapters can style them.
	Error bool
}

// Responder lets handlers reply without importing any transport package.
type Responder interface {
	Respond(ctx context.Context, r Response) error
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, r Response) error

// Respond calls f.
func (f ResponderFunc) Respond(ctx context.Context, r Response) error {
	return f(ctx, r)
}

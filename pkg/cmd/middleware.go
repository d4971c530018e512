package cmd

// Middleware wraps a handler (e.g. history logging, guild-only checks).
type Middleware func(Handler) Handler

// Apply applies middlewares so that the first in the list is the outermost.
func Apply(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyOrder(t *testing.T) {
	var trace []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(ctx context.Context, inv *Invocation) error {
				trace = append(trace, name)
				return next.Execute(ctx, inv)
			})
		}
	}
	h := Apply(HandlerFunc(func(context.Context, *Invocation) error {
		trace = append(trace, "handler")
		return nil
	}), mw("outer"), nil, mw("inner"))

	require.NoError(t, h.Execute(context.Background(), &Invocation{}))
	assert.Equal(t, []string{"outer", "inner", "handler"}, trace)
}

func TestArgs(t *testing.T) {
	a := Args{
		"s": "text",
		"i": int64(3),
		"f": float64(4),
		"b": true,
		"u": UserRef{ID: "42", Member: true},
	}

	s, ok := a.String("s")
	assert.True(t, ok)
	assert.Equal(t, "text", s)
	_, ok = a.String("i")
	assert.False(t, ok)

	n, _ := a.Int("i")
	assert.Equal(t, int64(3), n)
	n, ok = a.Int("f")
	assert.True(t, ok)
	assert.Equal(t, int64(4), n)

	b, ok := a.Bool("b")
	assert.True(t, ok && b)

	u, ok := a.User("u")
	assert.True(t, ok)
	assert.Equal(t, "42", u.ID)

	assert.False(t, a.Has("missing"))
	assert.Equal(t, "b=true f=4 i=3 s=text u=42", a.Describe())
	assert.Empty(t, Args(nil).Describe())
}

func TestRespondWithoutResponder(t *testing.T) {
	var inv *Invocation
	assert.NoError(t, inv.Respond(context.Background(), Response{}))
	assert.NoError(t, (&Invocation{}).Respond(context.Background(), Response{}))
}

package manage

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/plugin"
	"github.com/keshon/aegistrate/pkg/cmd"
)

type memSettings struct {
	disabled []plugin.Plugin
	err      error
}

func (m *memSettings) DisabledPlugins(context.Context, string) ([]plugin.Plugin, error) {
	return m.disabled, m.err
}

func (m *memSettings) SetPluginEnabled(_ context.Context, _ string, p plugin.Plugin, enabled bool) error {
	m.disabled = slices.DeleteFunc(m.disabled, func(q plugin.Plugin) bool { return q == p })
	if !enabled {
		m.disabled = append(m.disabled, p)
	}
	return nil
}

type authFunc func() (bool, error)

func (f authFunc) IsAdministrator(context.Context, string, string) (bool, error) { return f() }

func admin() (bool, error) { return true, nil }

func lookup(t *testing.T, s Settings, a Authorizer, name string) command.Descriptor {
	t.Helper()
	for _, d := range Contribution(s, a)() {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("no /%s", name)
	return command.Descriptor{}
}

func run(t *testing.T, d command.Descriptor, args cmd.Args) ([]cmd.Response, error) {
	t.Helper()
	var got []cmd.Response
	err := d.Handler.Execute(context.Background(), &cmd.Invocation{
		GuildID: "g1", UserID: "u1", Command: d.Name, Args: args,
		Reply: cmd.ResponderFunc(func(_ context.Context, r cmd.Response) error {
			got = append(got, r)
			return nil
		}),
	})
	return got, err
}

func TestChoicesExcludeDefaults(t *testing.T) {
	d := lookup(t, &memSettings{}, authFunc(admin), "disable")
	var values []string
	for _, c := range d.Options[0].Choices {
		values = append(values, c.Value)
	}
	assert.Equal(t, []string{"Statistics", "Safety", "Miscellaneous"}, values)

	assert.Error(t, d.Validate(cmd.Args{"plugin": "Moderation"}))
	assert.NoError(t, d.Validate(cmd.Args{"plugin": "Safety"}))
}

func TestDisableThenEnable(t *testing.T) {
	s := &memSettings{}

	got, err := run(t, lookup(t, s, authFunc(admin), "disable"), cmd.Args{"plugin": "Statistics"})
	require.NoError(t, err)
	assert.Equal(t, []plugin.Plugin{plugin.Statistics}, s.disabled)
	assert.Contains(t, got[0].Description, "now disabled")

	got, err = run(t, lookup(t, s, authFunc(admin), "disable"), cmd.Args{"plugin": "Statistics"})
	require.NoError(t, err)
	assert.Contains(t, got[0].Description, "already disabled")

	got, err = run(t, lookup(t, s, authFunc(admin), "enable"), cmd.Args{"plugin": "Statistics"})
	require.NoError(t, err)
	assert.Empty(t, s.disabled)
	assert.Contains(t, got[0].Description, "now enabled")
}

func TestToggleRequiresAdministrator(t *testing.T) {
	s := &memSettings{}
	got, err := run(t, lookup(t, s, authFunc(func() (bool, error) { return false, nil }), "disable"), cmd.Args{"plugin": "Safety"})
	require.NoError(t, err)
	assert.True(t, got[0].Error)
	assert.Empty(t, s.disabled)

	boom := errors.New("boom")
	_, err = run(t, lookup(t, s, authFunc(func() (bool, error) { return false, boom }), "disable"), cmd.Args{"plugin": "Safety"})
	assert.ErrorIs(t, err, boom)
}

func TestList(t *testing.T) {
	s := &memSettings{disabled: []plugin.Plugin{plugin.Safety}}
	got, err := run(t, lookup(t, s, authFunc(admin), "plugins"), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Description, "🔒 Moderation")
	assert.Contains(t, got[0].Description, "❌ Safety")
	assert.Contains(t, got[0].Description, "✅ Statistics")

	s.err = errors.New("down")
	_, err = run(t, lookup(t, s, authFunc(admin), "plugins"), nil)
	assert.Error(t, err)
}

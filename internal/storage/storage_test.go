package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/plugin"
)

func backends(t *testing.T) map[string]string {
	dir := t.TempDir()
	return map[string]string{
		"file":      "file://" + filepath.Join(dir, "store.json"),
		"bare path": filepath.Join(dir, "bare.json"),
		"sqlite":    "sqlite://" + filepath.Join(dir, "store.db"),
	}
}

func TestStoreBackends(t *testing.T) {
	for name, uri := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, err := Open(ctx, uri)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })

			t.Run("plugin toggles", func(t *testing.T) {
				disabled, err := s.DisabledPlugins(ctx, "g1")
				require.NoError(t, err)
				assert.Empty(t, disabled)

				require.NoError(t, s.SetPluginEnabled(ctx, "g1", plugin.Safety, false))
				require.NoError(t, s.SetPluginEnabled(ctx, "g1", plugin.Miscellaneous, false))
				require.NoError(t, s.SetPluginEnabled(ctx, "g1", plugin.Safety, false))

				disabled, err = s.DisabledPlugins(ctx, "g1")
				require.NoError(t, err)
				assert.Equal(t, []plugin.Plugin{plugin.Safety, plugin.Miscellaneous}, disabled)

				other, err := s.DisabledPlugins(ctx, "g2")
				require.NoError(t, err)
				assert.Empty(t, other)

				require.NoError(t, s.SetPluginEnabled(ctx, "g1", plugin.Safety, true))
				disabled, err = s.DisabledPlugins(ctx, "g1")
				require.NoError(t, err)
				assert.Equal(t, []plugin.Plugin{plugin.Miscellaneous}, disabled)
			})

			t.Run("default plugins stay on", func(t *testing.T) {
				err := s.SetPluginEnabled(ctx, "g1", plugin.Information, false)
				assert.ErrorIs(t, err, ErrDefaultPlugin)
				assert.NoError(t, s.SetPluginEnabled(ctx, "g1", plugin.Information, true))
			})

			t.Run("history is capped and newest first", func(t *testing.T) {
				base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
				for i := range commandHistoryLimit + 5 {
					require.NoError(t, s.AppendInvocation(ctx, command.HistoryEntry{
						GuildID:       "g3",
						ChannelID:     "c",
						UserID:        "u",
						Command:       fmt.Sprintf("cmd%d", i),
						Args:          "sides=6",
						CorrelationID: fmt.Sprintf("id-%d", i),
						Failed:        i%2 == 1,
						At:            base.Add(time.Duration(i) * time.Second),
					}))
				}

				all, err := s.RecentInvocations(ctx, "g3", 0)
				require.NoError(t, err)
				require.Len(t, all, commandHistoryLimit)
				assert.Equal(t, "cmd24", all[0].Command)
				assert.Equal(t, "cmd5", all[len(all)-1].Command)
				assert.True(t, all[0].At.Equal(base.Add(24*time.Second)))
				assert.False(t, all[0].Failed)
				assert.True(t, all[1].Failed)
				assert.Equal(t, "sides=6", all[0].Args)

				few, err := s.RecentInvocations(ctx, "g3", 3)
				require.NoError(t, err)
				assert.Len(t, few, 3)
			})
		})
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	uri := "file://" + filepath.Join(t.TempDir(), "store.json")

	s, err := Open(ctx, uri)
	require.NoError(t, err)
	require.NoError(t, s.SetPluginEnabled(ctx, "g", plugin.Statistics, false))
	require.NoError(t, s.Close())

	s, err = Open(ctx, uri)
	require.NoError(t, err)
	defer s.Close()
	disabled, err := s.DisabledPlugins(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, []plugin.Plugin{plugin.Statistics}, disabled)
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	_, err := Open(context.Background(), "postgres://localhost/bot")
	assert.ErrorIs(t, err, ErrUnsupportedURI)

	_, err = Open(context.Background(), "sqlite://")
	assert.ErrorIs(t, err, ErrUnsupportedURI)
}

func TestSetPluginEnabledRejectsUnknownPlugin(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer s.Close()

	assert.ErrorIs(t, s.SetPluginEnabled(ctx, "g", plugin.Plugin(99), false), command.ErrUnknownPlugin)
}

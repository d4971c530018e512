package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupFiltersConsoleButNotFile(t *testing.T) {
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	var console bytes.Buffer
	dir := t.TempDir()
	closer, err := Setup(Options{Level: zerolog.WarnLevel, Dir: dir, Console: &console, NoColor: true})
	require.NoError(t, err)

	log.Debug().Msg("quiet detail")
	log.Warn().Msg("loud warning")
	require.NoError(t, closer.Close())

	assert.NotContains(t, console.String(), "quiet detail")
	assert.Contains(t, console.String(), "loud warning")

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "quiet detail")
	assert.Contains(t, string(data), "loud warning")
}

func TestSetupWithoutDir(t *testing.T) {
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	var console bytes.Buffer
	closer, err := Setup(Options{Level: zerolog.InfoLevel, Console: &console, NoColor: true})
	require.NoError(t, err)
	log.Info().Str("command", "ping").Msg("dispatched")
	assert.NoError(t, closer.Close())
	assert.Contains(t, console.String(), "dispatched")
	assert.Contains(t, console.String(), "command=ping")
}

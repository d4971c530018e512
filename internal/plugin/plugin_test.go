package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllIsClosedAndOrdered(t *testing.T) {
	all := All()
	require.Len(t, all, 6)
	assert.Equal(t, Moderation, all[0])
	assert.Equal(t, Plugins, all[len(all)-1])
	for _, p := range all {
		assert.True(t, p.Valid(), p.String())
	}
	assert.False(t, Plugin(0).Valid())
	assert.False(t, Plugin(42).Valid())
	assert.Equal(t, "Plugin(42)", Plugin(42).String())
}

func TestParse(t *testing.T) {
	for _, p := range All() {
		got, err := Parse(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	got, err := Parse(" statistics ")
	require.NoError(t, err)
	assert.Equal(t, Statistics, got)

	_, err = Parse("music")
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	assert.True(t, Information.IsDefault())
	assert.True(t, Plugins.IsDefault())
	assert.False(t, Statistics.IsDefault())
	assert.False(t, Safety.IsDefault())
}

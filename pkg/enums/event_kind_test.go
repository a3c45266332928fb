package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventKind(t *testing.T) {
	for _, kind := range Kinds() {
		parsed, err := ParseEventKind(string(kind))
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}

	_, err := ParseEventKind("misplaced")
	require.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, KindScanned.IsTerminal())
	assert.False(t, KindLoaded.IsTerminal())
	assert.True(t, KindDelivered.IsTerminal())
	assert.True(t, KindLost.IsTerminal())
}

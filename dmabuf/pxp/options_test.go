package pxp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMemoryType(t *testing.T) {
	for _, mt := range []MemoryType{MemoryUncached, MemoryWriteCombine} {
		got, err := ParseMemoryType(mt.String())
		require.NoError(t, err)
		assert.Equal(t, mt, got)
	}
	_, err := ParseMemoryType("cached")
	require.Error(t, err, "cached PXP memory has no sync support")
	assert.Equal(t, MemoryWriteCombine, DefaultOptions().MemoryType)
}

package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMap = `# module channel type location args
0 0 trigger 0 start
0 1 vandle:left 3
0 2 vandle:right 3
0 3 generic 7 0.3
1 4 phoswich 2 0.5 0.25
`

func TestReadMap(t *testing.T) {
	chMap := mustReadMap(t, testMap)

	assert.Equal(t, 21, chMap.Size())
	assert.Len(t, chMap.Entries(), 5)
	assert.Equal(t, []string{"generic", "phoswich", "trigger", "vandle"}, chMap.Types())

	t.Run("start channel", func(t *testing.T) {
		entry, ok := chMap.Lookup(NewChannelID(0, 0))
		require.True(t, ok)
		assert.True(t, entry.IsStart)
		assert.Equal(t, "trigger", entry.Type)
		assert.Empty(t, entry.Args)
	})

	t.Run("subtype and location", func(t *testing.T) {
		entry, ok := chMap.Lookup(NewChannelID(0, 2))
		require.True(t, ok)
		assert.Equal(t, "vandle", entry.Type)
		assert.Equal(t, VandleRight, entry.Subtype)
		assert.Equal(t, 3, entry.Location)
		assert.False(t, entry.IsStart)
	})

	t.Run("arguments", func(t *testing.T) {
		entry, ok := chMap.Lookup(NewChannelID(1, 4))
		require.True(t, ok)
		assert.Equal(t, []float64{0.5, 0.25}, entry.Args)
		arg, ok := entry.Arg(1)
		assert.True(t, ok)
		assert.Equal(t, 0.25, arg)
		_, ok = entry.Arg(2)
		assert.False(t, ok)
	})

	t.Run("unknown channels", func(t *testing.T) {
		_, ok := chMap.Lookup(NewChannelID(0, 9))
		assert.False(t, ok)
		_, ok = chMap.Lookup(NewChannelID(9, 0))
		assert.False(t, ok)
		_, ok = chMap.Lookup(-1)
		assert.False(t, ok)
	})

	t.Run("nil entry has no arguments", func(t *testing.T) {
		var entry *MapEntry
		_, ok := entry.Arg(0)
		assert.False(t, ok)
	})
}

func TestReadMapErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"too few fields", "0 1 generic\n"},
		{"bad module", "x 1 generic 0\n"},
		{"channel out of range", "0 16 generic 0\n"},
		{"bad location", "0 1 generic here\n"},
		{"bad argument", "0 1 generic 0 fast\n"},
		{"duplicate channel", "0 1 generic 0\n0 1 vandle:left 0\n"},
		{"module out of range", "256 0 generic 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadMap(strings.NewReader(tt.text))
			assert.Error(t, err)
		})
	}
}

func TestNewChannelMapBounds(t *testing.T) {
	_, err := NewChannelMap([]MapEntry{{ID: NewChannelID(MaxModules, 0), Type: "generic"}})
	assert.Error(t, err)
	_, err = NewChannelMap([]MapEntry{{ID: -1, Type: "generic"}})
	assert.Error(t, err)

	chMap, err := NewChannelMap([]MapEntry{{ID: NewChannelID(MaxModules-1, 15), Type: "generic"}})
	require.NoError(t, err)
	assert.Equal(t, MaxModules*ChannelsPerModule, chMap.Size())
}

func TestLoadMapFile(t *testing.T) {
	t.Run("from disk", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "map.txt")
		require.NoError(t, os.WriteFile(filename, []byte(testMap), 0o644))

		chMap, err := LoadMapFile(filename)
		require.NoError(t, err)
		assert.Len(t, chMap.Entries(), 5)
	})

	t.Run("missing file is a config error", func(t *testing.T) {
		_, err := LoadMapFile(filepath.Join(t.TempDir(), "missing.txt"))
		var configErr *ConfigError
		require.True(t, errors.As(err, &configErr))
		assert.Equal(t, "channel map", configErr.Resource)
	})
}

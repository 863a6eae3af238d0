package main

import (
	"os"
	"path/filepath"
	"testing"

	scanner "github.com/next-exp/scanner_go/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o644))
	return filename
}

func TestLoadConfiguration(t *testing.T) {
	filename := writeConfig(t, `{
		"file_in": ["run1.spill", "run2.spill"],
		"map_file": "map.txt",
		"event_width": 1e-6,
		"timing_mode": "curve_fit",
		"untriggered": true
	}`)

	config, err := LoadConfiguration(filename)
	require.NoError(t, err)
	assert.Equal(t, []string{"run1.spill", "run2.spill"}, config.FileIn)
	assert.Equal(t, 1e-6, config.EventWidth)
	assert.Equal(t, scanner.CurveFit, config.TimingMode)
	assert.True(t, config.Untriggered)

	defaults := scanner.DefaultConfiguration()
	assert.Equal(t, defaults.EnergyMode, config.EnergyMode)
	assert.Equal(t, defaults.OrphanPolicy, config.OrphanPolicy)
	assert.Equal(t, defaults.QdcHigh, config.QdcHigh)
	assert.Equal(t, defaults.MaxEvents, config.MaxEvents)
}

func TestLoadConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", `{"file_in": [`},
		{"timing mode", `{"file_in": ["a"], "map_file": "m", "timing_mode": "zero_crossing"}`},
		{"energy mode", `{"file_in": ["a"], "map_file": "m", "energy_mode": "peak"}`},
		{"orphan policy", `{"file_in": ["a"], "map_file": "m", "orphan_policy": "keep"}`},
		{"event width", `{"file_in": ["a"], "map_file": "m", "event_width": 0}`},
		{"qdc window", `{"file_in": ["a"], "map_file": "m", "qdc_low": -1}`},
		{"no channel map", `{"file_in": ["a"]}`},
		{"no input", `{"map_file": "m"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfiguration(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfiguration(filepath.Join(t.TempDir(), "missing.json"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("database map", func(t *testing.T) {
		_, err := LoadConfiguration(writeConfig(t, `{"file_in": ["a"], "use_db": true}`))
		assert.NoError(t, err)
	})
}

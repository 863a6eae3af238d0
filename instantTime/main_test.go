package main

import (
	"os"
	"path/filepath"
	"testing"

	scanner "github.com/next-exp/scanner_go/pkg"
	"github.com/next-exp/scanner_go/pkg/sqlout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstantTimes(t *testing.T) {
	dir := t.TempDir()
	dbFilename := filepath.Join(dir, "run.sqlite")

	store, err := sqlout.Open(dbFilename)
	require.NoError(t, err)
	require.NoError(t, store.Write(&scanner.RecordBatch{
		Flush: 1,
		Raw: []scanner.RawRecord{
			{ChannelID: 0, Timestamp: 100, IsStart: true},
			{ChannelID: 4, Timestamp: 104},
			{ChannelID: 0, Timestamp: 150, IsStart: true},
		},
	}))
	require.NoError(t, store.Write(&scanner.RecordBatch{
		Flush: 2,
		Raw:   []scanner.RawRecord{{ChannelID: 0, Timestamp: 400, IsStart: true}},
	}))
	require.NoError(t, store.WriteSummary(scanner.RunStatistics{}))
	runID := store.RunID()
	require.NoError(t, store.Close())

	output := filepath.Join(dir, "instant.txt")
	require.NoError(t, instantTimes(dbFilename, "", output, 8))
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "# time (ns)\ttdiff (ns)\n400\t400\n2400\t2000\n", string(data))

	t.Run("explicit run", func(t *testing.T) {
		require.NoError(t, instantTimes(dbFilename, runID, output, 4))
		data, err := os.ReadFile(output)
		require.NoError(t, err)
		assert.Equal(t, "# time (ns)\ttdiff (ns)\n200\t200\n1200\t1000\n", string(data))
	})

	t.Run("no database", func(t *testing.T) {
		assert.Error(t, instantTimes("", "", output, 8))
	})

	t.Run("bad clock", func(t *testing.T) {
		assert.Error(t, instantTimes(dbFilename, "", output, 0))
	})

	t.Run("run without raw records", func(t *testing.T) {
		err := instantTimes(dbFilename, "missing", output, 8)
		assert.ErrorContains(t, err, "write_raw")
	})
}

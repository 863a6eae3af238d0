package scanner

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recordingMap = `0 0 dummy 0 start
0 1 dummy 0 start
0 2 dummy 1
0 3 dummy 2
0 4 generic 3
0 5 vandle:left 4
`

// newRecordingCorrelator wires a recording processor to the "dummy" detector type.
func newRecordingCorrelator(t *testing.T, config Configuration, sink Sink) (*Correlator, *recordingProcessor) {
	t.Helper()
	useLogger(t)
	c, err := NewCorrelator(config, mustReadMap(t, recordingMap), nil, sink, nil)
	require.NoError(t, err)
	rec := newRecordingProcessor()
	c.AddProcessor("dummy", rec)
	return c, rec
}

func TestCorrelatorTriggered(t *testing.T) {
	sink := &memorySink{}
	c, rec := newRecordingCorrelator(t, DefaultConfiguration(), sink)

	for i, channel := range []uint16{0, 2, 1, 3, 4} {
		require.NoError(t, c.Ingest(validPulse(0, channel, 1000+uint64(i))))
	}
	assert.Len(t, c.window.starts, 2)
	assert.Equal(t, 2, rec.Len())
	generic := c.byType["generic"]
	assert.Equal(t, 1, generic.Len())
	assert.Equal(t, 3, rec.Len()+generic.Len())

	require.NoError(t, c.Flush())

	assert.Len(t, rec.starts, 2)
	assert.NotSame(t, rec.starts[0], rec.starts[1])
	assert.Equal(t, []int{2, 2}, rec.queued)
	assert.Equal(t, 1, rec.wrapUps)
	assert.Zero(t, rec.Len())
	assert.Zero(t, generic.Len())

	stats := c.Stats()
	assert.Equal(t, 5, stats.TotalEvents)
	assert.Equal(t, 2, stats.StartEvents)
	assert.Equal(t, 1, stats.Flushes)
	assert.Equal(t, ProcessorCounters{Total: 1, Good: 2}, stats.Processors["Generic"])

	// one generic record per start
	require.Len(t, sink.batches, 1)
	require.Len(t, sink.batches[0].Generic, 2)
	assert.True(t, sink.batches[0].Generic[0].HasStart)
	assert.Equal(t, 1, sink.batches[0].Flush)
}

func TestCorrelatorUntriggered(t *testing.T) {
	config := DefaultConfiguration()
	config.Untriggered = true
	sink := &memorySink{}
	c, rec := newRecordingCorrelator(t, config, sink)

	require.NoError(t, c.Ingest(validPulse(0, 2, 1000)))
	require.NoError(t, c.Ingest(validPulse(0, 0, 1001)))
	require.NoError(t, c.Ingest(validPulse(0, 4, 1002)))
	require.NoError(t, c.Flush())

	// the start channel is an ordinary pulse in untriggered mode
	assert.Zero(t, c.Stats().StartEvents)
	require.Len(t, rec.starts, 1)
	assert.Nil(t, rec.starts[0])
	assert.Equal(t, []int{2}, rec.queued)

	require.Len(t, sink.batches, 1)
	require.Len(t, sink.batches[0].Generic, 1)
	assert.False(t, sink.batches[0].Generic[0].HasStart)

	t.Run("empty window still processes", func(t *testing.T) {
		require.NoError(t, c.Flush())
		assert.Len(t, rec.starts, 2)
		assert.Len(t, sink.batches, 1)
	})
}

func TestCorrelatorWindow(t *testing.T) {
	config := DefaultConfiguration()
	// 500 ns at 8 ns per tick
	require.Equal(t, uint64(62), config.WidthTicks())

	t.Run("pulse past the window flushes", func(t *testing.T) {
		c, rec := newRecordingCorrelator(t, config, nil)
		require.NoError(t, c.Ingest(validPulse(0, 0, 1000)))
		require.NoError(t, c.Ingest(validPulse(0, 2, 1062)))
		assert.Zero(t, c.Stats().Flushes)

		require.NoError(t, c.Ingest(validPulse(0, 3, 1063)))
		assert.Equal(t, 1, c.Stats().Flushes)
		assert.Len(t, rec.starts, 1)
		assert.Equal(t, 1, rec.Len())
		assert.Equal(t, uint64(1063), c.window.start)
	})

	t.Run("orphans are buffered", func(t *testing.T) {
		c, rec := newRecordingCorrelator(t, config, nil)
		require.NoError(t, c.Ingest(validPulse(0, 2, 1000)))
		require.NoError(t, c.Ingest(validPulse(0, 3, 2000)))
		assert.Equal(t, 1, c.Stats().Flushes)
		assert.Equal(t, 2, rec.Len())
		assert.Empty(t, rec.starts)

		require.NoError(t, c.Ingest(validPulse(0, 0, 2001)))
		require.NoError(t, c.Flush())
		assert.Equal(t, []int{2}, rec.queued)
		assert.Zero(t, c.Stats().OrphanedPairs)
	})

	t.Run("orphans are discarded", func(t *testing.T) {
		discard := config
		discard.OrphanPolicy = OrphanDiscard
		c, rec := newRecordingCorrelator(t, discard, nil)
		require.NoError(t, c.Ingest(validPulse(0, 2, 1000)))
		require.NoError(t, c.Ingest(validPulse(0, 3, 2000)))

		assert.Equal(t, 1, rec.Len())
		assert.Equal(t, 1, c.Stats().OrphanedPairs)
		assert.Empty(t, rec.starts)
	})
}

func TestCorrelatorDrops(t *testing.T) {
	c, _ := newRecordingCorrelator(t, DefaultConfiguration(), nil)

	t.Run("unknown channel", func(t *testing.T) {
		err := c.Ingest(validPulse(3, 0, 1000))
		var lookupErr *ChannelLookupError
		require.True(t, errors.As(err, &lookupErr))
		assert.Equal(t, NewChannelID(3, 0), lookupErr.ChannelID)
	})

	t.Run("channel out of range", func(t *testing.T) {
		err := c.Ingest(validPulse(0, 17, 1000))
		var lookupErr *ChannelLookupError
		assert.True(t, errors.As(err, &lookupErr))
	})

	t.Run("detector type without processor", func(t *testing.T) {
		useLogger(t)
		bare, err := NewCorrelator(DefaultConfiguration(), mustReadMap(t, "0 0 unknown 0\n"), nil, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, bare.Processors())
		assert.NoError(t, bare.Ingest(validPulse(0, 0, 1000)))
		assert.Equal(t, 1, bare.Stats().Dropped)
	})

	stats := c.Stats()
	assert.Equal(t, 2, stats.TotalEvents)
	assert.Equal(t, 2, stats.Dropped)
	assert.Zero(t, stats.Flushes)
}

func TestCorrelatorInvalidPulses(t *testing.T) {
	c, rec := newRecordingCorrelator(t, DefaultConfiguration(), nil)

	require.NoError(t, c.Ingest(RawPulse{Module: 0, Channel: 2, Timestamp: 1000}))
	require.NoError(t, c.Ingest(RawPulse{Module: 0, Channel: 3, Timestamp: 1001, Trace: []uint16{5, 5, 5}}))
	require.NoError(t, c.Ingest(RawPulse{Module: 0, Channel: 0, Timestamp: 1002}))

	stats := c.Stats()
	assert.Equal(t, map[string]int{"empty trace": 2, "no peak found": 1}, stats.Invalid)
	assert.Equal(t, 3, stats.InvalidEvents())
	// invalid pulses are still queued and an invalid start still counts
	assert.Equal(t, 2, rec.Len())
	assert.Equal(t, 1, stats.StartEvents)
	assert.InDelta(t, 1002*8e-9, stats.FirstEventTime, 1e-15)
}

func TestCorrelatorStartTimes(t *testing.T) {
	c, _ := newRecordingCorrelator(t, DefaultConfiguration(), nil)
	require.NoError(t, c.Ingest(validPulse(0, 0, 1000)))
	require.NoError(t, c.Ingest(validPulse(0, 1, 126000)))

	stats := c.Stats()
	assert.Equal(t, 2, stats.StartEvents)
	assert.InDelta(t, 125000*8e-9, stats.DeltaEventTime, 1e-12)
}

func TestCorrelatorRun(t *testing.T) {
	t.Run("flushes at every spill", func(t *testing.T) {
		sink := &memorySink{}
		c, rec := newRecordingCorrelator(t, DefaultConfiguration(), sink)
		source := NewMemorySource(
			[]RawPulse{validPulse(0, 0, 100), validPulse(0, 2, 101), validPulse(7, 0, 102)},
			[]RawPulse{validPulse(0, 1, 5000), validPulse(0, 4, 5001)},
		)

		require.NoError(t, c.Run(context.Background(), source))
		stats := c.Stats()
		assert.Equal(t, 5, stats.TotalEvents)
		assert.Equal(t, 1, stats.Dropped)
		assert.Equal(t, 2, stats.Flushes)
		assert.Len(t, rec.starts, 2)
		assert.Len(t, sink.batches, 1)

		require.NoError(t, c.Close())
		assert.Equal(t, 1, sink.closed)
		require.Len(t, sink.summaries, 1)
		assert.Equal(t, stats.TotalEvents, sink.summaries[0].TotalEvents)
	})

	t.Run("flushes pending pulses at the end", func(t *testing.T) {
		c, rec := newRecordingCorrelator(t, DefaultConfiguration(), nil)
		source := &sliceSource{pulses: []RawPulse{validPulse(0, 0, 100), validPulse(0, 2, 101)}}

		require.NoError(t, c.Run(context.Background(), source))
		assert.Equal(t, 1, c.Stats().Flushes)
		assert.Len(t, rec.starts, 1)
	})

	t.Run("cancelled", func(t *testing.T) {
		c, _ := newRecordingCorrelator(t, DefaultConfiguration(), nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := c.Run(ctx, NewMemorySource([]RawPulse{validPulse(0, 0, 100)}))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, c.Stats().TotalEvents)
	})

	t.Run("source error", func(t *testing.T) {
		c, _ := newRecordingCorrelator(t, DefaultConfiguration(), nil)
		source := &sliceSource{err: io.ErrUnexpectedEOF}
		err := c.Run(context.Background(), source)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestCorrelatorClose(t *testing.T) {
	sink := &memorySink{}
	c, rec := newRecordingCorrelator(t, DefaultConfiguration(), sink)

	require.NoError(t, c.Ingest(validPulse(0, 2, 100)))
	require.NoError(t, c.Close())

	// nothing started the window, the pulse is orphaned
	assert.Empty(t, rec.starts)
	assert.Zero(t, rec.Len())
	require.Len(t, sink.summaries, 1)
	assert.Equal(t, 1, sink.summaries[0].OrphanedPairs)

	require.NoError(t, c.Close())
	assert.Equal(t, 1, sink.closed)
	assert.ErrorIs(t, c.Ingest(validPulse(0, 2, 200)), ErrCorrelatorClosed)
	assert.ErrorIs(t, c.Flush(), ErrCorrelatorClosed)
}

func TestCorrelatorChannelHistograms(t *testing.T) {
	c, _ := newRecordingCorrelator(t, DefaultConfiguration(), nil)
	pulse := validPulse(0, 4, 1000)
	pulse.Energy = 700
	require.NoError(t, c.Ingest(pulse))
	require.NoError(t, c.Ingest(validPulse(0, 4, 1001)))
	require.NoError(t, c.Ingest(RawPulse{Module: 0, Channel: 2, Timestamp: 1002}))

	histograms := c.Histograms()
	require.NotEmpty(t, histograms)
	counts := histograms[0]
	assert.Equal(t, "chan_counts", counts.Name)
	assert.Equal(t, 16, counts.Bins())
	assert.Equal(t, 2.0, counts.Counts[4])
	assert.Equal(t, 1.0, counts.Counts[2])

	maps := c.ChannelHistograms()
	require.Len(t, maps, 2)
	maxADC, energy := maps[0], maps[1]
	// the invalid pulse has no maximum
	assert.Equal(t, 2.0, maxADC.Integral())
	assert.Equal(t, 2.0, maxADC.ProjectX()[4])
	assert.Zero(t, maxADC.ProjectX()[2])

	assert.Equal(t, 3.0, energy.Integral())
	assert.Equal(t, 1.0, energy.At(4, 0))
	assert.Equal(t, 1.0, energy.At(4, 700*adcBins/65536))
	assert.Equal(t, 1.0, energy.At(2, 0))
}

func TestCorrelatorDiagnostics(t *testing.T) {
	config := DefaultConfiguration()
	config.WriteRaw = true
	config.WriteTraces = true
	config.WriteStats = true

	t.Run("raw traces and window stats", func(t *testing.T) {
		sink := &memorySink{}
		c, _ := newRecordingCorrelator(t, config, sink)
		start := validPulse(0, 0, 1000)
		start.Energy = 30
		require.NoError(t, c.Ingest(start))
		require.NoError(t, c.Ingest(validPulse(0, 4, 1010)))
		require.NoError(t, c.Ingest(RawPulse{Module: 0, Channel: 4, Timestamp: 1005}))
		require.NoError(t, c.Flush())

		require.Len(t, sink.batches, 1)
		batch := sink.batches[0]
		require.Len(t, batch.Raw, 3)
		assert.Equal(t, RawRecord{ChannelID: 0, Timestamp: 1000, RawEnergy: 30, IsStart: true, Valid: true,
			Time: batch.Raw[0].Time}, batch.Raw[0])
		assert.Greater(t, batch.Raw[0].Time, 0.0)
		assert.False(t, batch.Raw[2].Valid)
		require.Len(t, batch.Traces, 3)
		assert.Equal(t, start.Trace, batch.Traces[0].Trace)
		assert.Equal(t, []WindowRecord{{Flush: 1, Start: 1000, Length: 10, Pulses: 3, Starts: 1}}, batch.Windows)
		// diagnostics are not detector records
		assert.Equal(t, 1, batch.Len())
	})

	t.Run("window without start keeps its raw pulses", func(t *testing.T) {
		sink := &memorySink{}
		c, _ := newRecordingCorrelator(t, config, sink)
		require.NoError(t, c.Ingest(validPulse(0, 2, 1000)))
		require.NoError(t, c.Ingest(validPulse(0, 3, 2000)))

		require.Len(t, sink.batches, 1)
		assert.Equal(t, 1, sink.batches[0].Flush)
		assert.Len(t, sink.batches[0].Raw, 1)
		assert.Len(t, sink.batches[0].Windows, 1)
		assert.Zero(t, sink.batches[0].Len())

		require.NoError(t, c.Close())
		require.Len(t, sink.batches, 2)
		assert.Equal(t, uint64(2000), sink.batches[1].Raw[0].Timestamp)
		assert.Equal(t, []WindowRecord{{Flush: 2, Start: 2000, Pulses: 1}}, sink.batches[1].Windows)
	})

	t.Run("disabled", func(t *testing.T) {
		sink := &memorySink{}
		c, _ := newRecordingCorrelator(t, DefaultConfiguration(), sink)
		require.NoError(t, c.Ingest(validPulse(0, 2, 1000)))
		require.NoError(t, c.Close())
		assert.Empty(t, sink.batches)
	})
}

func TestCorrelatorMetrics(t *testing.T) {
	metrics, err := NewMetrics()
	require.NoError(t, err)
	useLogger(t)
	c, err := NewCorrelator(DefaultConfiguration(), mustReadMap(t, recordingMap), nil, nil, metrics)
	require.NoError(t, err)

	source := NewMemorySource([]RawPulse{
		validPulse(0, 0, 100),
		validPulse(0, 4, 101),
		validPulse(0, 5, 102),
		{Module: 0, Channel: 4, Timestamp: 103},
		validPulse(9, 0, 104),
	})
	require.NoError(t, c.Run(context.Background(), source))
	require.NoError(t, c.Close())

	assertMetrics(t, metrics, c.Stats())
}

// sliceSource yields its pulses as a single spill without an end of spill
// marker, then err or io.EOF.
type sliceSource struct {
	pulses []RawPulse
	err    error
}

func (s *sliceSource) Next() (RawPulse, error) {
	if len(s.pulses) == 0 {
		if s.err != nil {
			return RawPulse{}, s.err
		}
		return RawPulse{}, io.EOF
	}
	pulse := s.pulses[0]
	s.pulses = s.pulses[1:]
	return pulse, nil
}

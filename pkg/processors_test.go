package scanner

import (
	"math"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timedPair(entry *MapEntry, t float64, energy float64) *ChannelEventPair {
	return &ChannelEventPair{
		Pulse: RawPulse{Module: uint16(entry.ID.Module()), Channel: uint16(entry.ID.Channel())},
		Event: ChannelEvent{Valid: true, HiResTime: t, HiResEnergy: energy},
		Entry: entry,
	}
}

func TestProcessorRegistry(t *testing.T) {
	assert.Subset(t, RegisteredTypes(), []string{"generic", "phoswich", "trigger", "vandle"})

	proc, err := NewProcessor("vandle", DefaultConfiguration())
	require.NoError(t, err)
	assert.Equal(t, "Vandle", proc.Name())

	_, err = NewProcessor("nonexistent", DefaultConfiguration())
	assert.Error(t, err)
}

func TestVandleProcessor(t *testing.T) {
	left := &MapEntry{ID: 1, Type: "vandle", Subtype: VandleLeft, Location: 3}
	right := &MapEntry{ID: 2, Type: "vandle", Subtype: VandleRight, Location: 3}

	t.Run("matched bar", func(t *testing.T) {
		p := NewVandleProcessor(DefaultConfiguration())
		p.Enqueue(timedPair(left, 100, 400))
		p.Enqueue(timedPair(right, 101, 900))

		batch := &RecordBatch{}
		p.Process(nil, batch)
		p.WrapUp()

		require.Len(t, batch.Vandle, 1)
		record := batch.Vandle[0]
		assert.Equal(t, 3, record.Location)
		assert.InDelta(t, 1.0, record.Tdiff, 1e-12)
		assert.InDelta(t, 13.5/2, record.Position, 1e-12)
		assert.InDelta(t, 600.0, record.Qdc, 1e-9)
		assert.False(t, record.HasStart)
		assert.Equal(t, ProcessorCounters{Total: 2, Good: 1}, p.Counters())
		assert.Zero(t, p.Len())
	})

	t.Run("time of flight to the start", func(t *testing.T) {
		p := NewVandleProcessor(DefaultConfiguration())
		p.Enqueue(timedPair(left, 100, 1))
		p.Enqueue(timedPair(right, 104, 1))
		start := timedPair(&MapEntry{ID: 0, Type: "trigger", IsStart: true}, 90, 0)

		batch := &RecordBatch{}
		p.Process(start, batch)
		require.Len(t, batch.Vandle, 1)
		assert.True(t, batch.Vandle[0].HasStart)
		assert.InDelta(t, 12.0, batch.Vandle[0].Tof, 1e-12)
	})

	t.Run("left end only", func(t *testing.T) {
		p := NewVandleProcessor(DefaultConfiguration())
		p.Enqueue(timedPair(left, 100, 400))

		batch := &RecordBatch{}
		p.Process(nil, batch)
		p.WrapUp()

		assert.Empty(t, batch.Vandle)
		assert.Equal(t, ProcessorCounters{Total: 1, Incomplete: 1}, p.Counters())
	})

	t.Run("ends too far apart", func(t *testing.T) {
		p := NewVandleProcessor(DefaultConfiguration())
		p.Enqueue(timedPair(left, 100, 400))
		p.Enqueue(timedPair(right, 500, 400))

		batch := &RecordBatch{}
		p.Process(nil, batch)
		p.WrapUp()

		assert.Empty(t, batch.Vandle)
		// each end waits alone for a partner
		assert.Equal(t, 2, p.Counters().Incomplete)
	})

	t.Run("stray end next to a matched pair", func(t *testing.T) {
		p := NewVandleProcessor(DefaultConfiguration())
		p.Enqueue(timedPair(left, 100, 400))
		p.Enqueue(timedPair(right, 101, 400))
		p.Enqueue(timedPair(left, 5000, 400))

		batch := &RecordBatch{}
		p.Process(nil, batch)
		p.WrapUp()

		assert.Len(t, batch.Vandle, 1)
		assert.Equal(t, ProcessorCounters{Total: 3, Good: 1, Incomplete: 1}, p.Counters())
	})

	t.Run("close unmatched ends form one group", func(t *testing.T) {
		p := NewVandleProcessor(DefaultConfiguration())
		p.Enqueue(timedPair(left, 100, 400))
		p.Enqueue(timedPair(left, 150, 400))
		p.Enqueue(timedPair(left, 900, 400))

		p.WrapUp()
		assert.Equal(t, 2, p.Counters().Incomplete)
	})

	t.Run("wrap up twice", func(t *testing.T) {
		p := NewVandleProcessor(DefaultConfiguration())
		p.Enqueue(timedPair(left, 100, 400))

		p.WrapUp()
		assert.Zero(t, p.Len())
		p.WrapUp()
		assert.Zero(t, p.Len())
		assert.Equal(t, ProcessorCounters{Total: 1, Incomplete: 1}, p.Counters())
	})

	t.Run("several bars", func(t *testing.T) {
		otherLeft := &MapEntry{ID: 5, Type: "vandle", Subtype: VandleLeft, Location: 1}
		otherRight := &MapEntry{ID: 6, Type: "vandle", Subtype: VandleRight, Location: 1}
		p := NewVandleProcessor(DefaultConfiguration())
		p.Enqueue(timedPair(left, 100, 1))
		p.Enqueue(timedPair(otherLeft, 200, 1))
		p.Enqueue(timedPair(right, 98, 1))
		p.Enqueue(timedPair(otherRight, 210, 1))

		batch := &RecordBatch{}
		p.Process(nil, batch)

		locations := []int{batch.Vandle[0].Location, batch.Vandle[1].Location}
		assert.Equal(t, []int{1, 3}, locations)
		assert.InDelta(t, 10.0, batch.Vandle[0].Tdiff, 1e-12)
		assert.InDelta(t, -2.0, batch.Vandle[1].Tdiff, 1e-12)
	})
}

func TestGenericProcessor(t *testing.T) {
	entry := &MapEntry{ID: 3, Type: "generic", Location: 7}
	start := timedPair(&MapEntry{ID: 0, Type: "trigger", IsStart: true}, 1000, 0)

	p := NewGenericProcessor(DefaultConfiguration())
	p.Enqueue(timedPair(entry, 1025, 300))
	invalid := timedPair(entry, 1030, 0)
	invalid.Event.Valid = false
	p.Enqueue(invalid)

	batch := &RecordBatch{}
	p.Process(start, batch)
	p.Process(nil, batch)
	p.WrapUp()

	expected := []GenericRecord{
		{ChannelID: 3, Location: 7, Energy: 300, Time: 1025, Tof: 25, HasStart: true},
		{ChannelID: 3, Location: 7, Energy: 300, Time: 1025},
	}
	if diff := cmp.Diff(expected, batch.Generic); diff != "" {
		t.Errorf("generic records mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, ProcessorCounters{Total: 2, Good: 2}, p.Counters())
	assert.Equal(t, 1, p.tof.Entries)
}

func TestTriggerProcessor(t *testing.T) {
	entry := &MapEntry{ID: 0, Type: "trigger"}
	pair := timedPair(entry, 0, 1500)
	pair.Pulse.Timestamp = 4242
	pair.Event.Phase = 12.5

	p := NewTriggerProcessor(DefaultConfiguration())
	p.Enqueue(pair)
	batch := &RecordBatch{}
	p.Process(nil, batch)

	expected := []TriggerRecord{{ChannelID: 0, Energy: 1500, RawTime: 4242, Phase: 12.5}}
	if diff := cmp.Diff(expected, batch.Trigger); diff != "" {
		t.Errorf("trigger records mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, p.Histograms(), 2)
	assert.Equal(t, 1.0, p.energy.Integral())
}

func moyalPair(entry *MapEntry, a float64, mpv float64, sigma float64) *ChannelEventPair {
	corrected := make([]float64, 80)
	maxIndex := 0
	for i := range corrected {
		corrected[i] = moyal([]float64{a, mpv, sigma}, float64(i))
		if corrected[i] > corrected[maxIndex] {
			maxIndex = i
		}
	}
	return &ChannelEventPair{
		Event: ChannelEvent{
			Valid:        true,
			Corrected:    corrected,
			MaxIndex:     maxIndex,
			MaxAmplitude: corrected[maxIndex],
		},
		Entry: entry,
	}
}

func TestPhoswichProcessor(t *testing.T) {
	entry := &MapEntry{ID: 20, Type: "phoswich", Location: 2}

	t.Run("fast and slow components", func(t *testing.T) {
		pair := moyalPair(entry, 1000, 20, 2)
		p := NewPhoswichProcessor(DefaultConfiguration())
		p.Enqueue(pair)
		batch := &RecordBatch{}
		p.Process(nil, batch)

		require.Len(t, batch.Phoswich, 1)
		record := batch.Phoswich[0]
		assert.Equal(t, 2, record.Location)
		assert.InDelta(t, Integrate(pair.Event.Corrected, 15, 28), record.FastQdc, 1e-9)
		assert.InDelta(t, Integrate(pair.Event.Corrected, 35, 120), record.SlowQdc, 1e-9)
		assert.False(t, record.Fitted)
	})

	t.Run("fits the fast component", func(t *testing.T) {
		config := DefaultConfiguration()
		config.TimingMode = CurveFit
		p := NewPhoswichProcessor(config)
		p.Enqueue(moyalPair(entry, 1000, 20, 2))
		batch := &RecordBatch{}
		p.Process(nil, batch)

		require.Len(t, batch.Phoswich, 1)
		record := batch.Phoswich[0]
		require.True(t, record.Fitted)
		assert.InDelta(t, 1000, record.FitA, 1)
		assert.InDelta(t, 20, record.FitMPV, 0.05)
		assert.InDelta(t, 2, record.FitSigma, 0.05)
		assert.InDelta(t, record.FitMPV-phoswichHWHM*record.FitSigma, record.FitPhase, 1e-12)
		assert.Equal(t, 1.0, p.mpv.Integral())
	})
}

func TestMoyal(t *testing.T) {
	params := []float64{10, 5, 1}
	assert.InDelta(t, 10*math.Exp(-0.5), moyal(params, 5), 1e-12)
	assert.Zero(t, moyal([]float64{10, 5, 0}, 5))

	// the maximum sits at the most probable value
	values := make([]float64, 0)
	for x := 0.0; x < 10; x += 0.5 {
		values = append(values, moyal(params, x))
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	assert.Equal(t, sorted[len(sorted)-1], values[10])
}

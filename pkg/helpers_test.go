package scanner

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (l *recordingLogger) Info(message string, module string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, module+": "+message)
}

func (l *recordingLogger) Error(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, message)
}

// useLogger installs a recording logger for the duration of the test.
func useLogger(t *testing.T) *recordingLogger {
	t.Helper()
	l := &recordingLogger{}
	SetLogger(l)
	t.Cleanup(func() { SetLogger(nil) })
	return l
}

// peakTrace returns a flat trace with a short pulse of the given amplitude
// peaking at index peak.
func peakTrace(length int, baseline uint16, peak int, amplitude uint16) []uint16 {
	trace := make([]uint16, length)
	for i := range trace {
		trace[i] = baseline
	}
	trace[peak-1] = baseline + amplitude/2
	trace[peak] = baseline + amplitude
	if peak+1 < length {
		trace[peak+1] = baseline + amplitude/2
	}
	if peak+2 < length {
		trace[peak+2] = baseline + amplitude/4
	}
	return trace
}

func validPulse(module uint16, channel uint16, timestamp uint64) RawPulse {
	return RawPulse{
		Module:    module,
		Channel:   channel,
		Timestamp: timestamp,
		Trace:     peakTrace(40, 100, 15, 1000),
	}
}

func mustReadMap(t *testing.T, text string) *ChannelMap {
	t.Helper()
	chMap, err := ReadMap(strings.NewReader(text))
	require.NoError(t, err)
	return chMap
}

// memorySink keeps everything written to it.
type memorySink struct {
	batches   []*RecordBatch
	summaries []RunStatistics
	closed    int
}

func (s *memorySink) Write(batch *RecordBatch) error {
	s.batches = append(s.batches, batch)
	return nil
}

func (s *memorySink) WriteSummary(stats RunStatistics) error {
	s.summaries = append(s.summaries, stats)
	return nil
}

func (s *memorySink) Close() error {
	s.closed++
	return nil
}

// recordingProcessor records how the correlator drives it.
type recordingProcessor struct {
	baseProcessor
	starts  []*ChannelEventPair
	queued  []int
	wrapUps int
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{baseProcessor: newBaseProcessor("Recording", DefaultConfiguration())}
}

func (p *recordingProcessor) Process(start *ChannelEventPair, batch *RecordBatch) {
	p.starts = append(p.starts, start)
	p.queued = append(p.queued, len(p.queue))
}

func (p *recordingProcessor) WrapUp() {
	p.wrapUps++
	p.baseProcessor.WrapUp()
}

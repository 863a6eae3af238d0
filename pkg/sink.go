package scanner

import (
	"errors"
	"fmt"
)

// Sink persists the records of each flush and the run summary.
type Sink interface {
	Write(batch *RecordBatch) error
	WriteSummary(stats RunStatistics) error
	Close() error
}

// MultiSink fans every call out to all its sinks. Errors are joined, a
// failing sink does not stop the others.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Add(sink Sink) {
	m.sinks = append(m.sinks, sink)
}

func (m *MultiSink) Len() int {
	return len(m.sinks)
}

func (m *MultiSink) Write(batch *RecordBatch) error {
	var errs []error
	for i, sink := range m.sinks {
		if err := sink.Write(batch); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) WriteSummary(stats RunStatistics) error {
	var errs []error
	for i, sink := range m.sinks {
		if err := sink.WriteSummary(stats); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for i, sink := range m.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// DiscardSink drops everything. Used when no output is configured.
type DiscardSink struct{}

func (DiscardSink) Write(*RecordBatch) error         { return nil }
func (DiscardSink) WriteSummary(RunStatistics) error { return nil }
func (DiscardSink) Close() error                     { return nil }

package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var ErrCorrelatorClosed = errors.New("correlator closed")

// correlationWindow is the coincidence window being filled. Its width is
// fixed for the run.
type correlationWindow struct {
	open   bool
	start  uint64 // ticks
	width  uint64 // ticks, 0 disables time based flushing
	last   uint64 // ticks of the latest pulse
	pulses int
	starts []*ChannelEventPair
}

func (w *correlationWindow) expired(timestamp uint64) bool {
	return w.open && w.width > 0 && timestamp > w.start && timestamp-w.start > w.width
}

func (w *correlationWindow) reset() {
	clear(w.starts)
	w.starts = w.starts[:0]
	w.open = false
	w.last = 0
	w.pulses = 0
}

// Correlator groups analyzed pulses into coincidence windows and hands them
// to the detector processors. It is not safe for concurrent use.
type Correlator struct {
	config     Configuration
	chanMap    *ChannelMap
	calib      *CalibrationStore
	analyzer   *PulseAnalyzer
	sink       Sink
	metrics    *Metrics
	processors []Processor
	byType     map[string]Processor
	window     correlationWindow
	stats      RunStatistics
	seenStart  bool
	closed     bool

	// Raw and trace records waiting for the next flush
	diagnostics *RecordBatch

	chanCounts *Histogram
	chanMaxADC *Histogram2D
	chanEnergy *Histogram2D
}

// Bins of the per-channel ADC histograms, over the 16 bit range
const adcBins = 256

// NewCorrelator creates one processor per detector type in the channel map.
// Types without a registered processor are logged and their pulses dropped.
// calib, sink and metrics may be nil.
func NewCorrelator(config Configuration, chanMap *ChannelMap, calib *CalibrationStore,
	sink Sink, metrics *Metrics) (*Correlator, error) {
	if chanMap == nil {
		return nil, &ConfigError{Resource: "channel map", Err: errors.New("no channel map")}
	}
	if sink == nil {
		sink = DiscardSink{}
	}
	c := &Correlator{
		config:   config,
		chanMap:  chanMap,
		calib:    calib,
		analyzer: NewPulseAnalyzer(config.Analyzer()),
		sink:     sink,
		metrics:  metrics,
		byType:   make(map[string]Processor),
		window:   correlationWindow{width: config.WidthTicks()},
		stats:    newRunStatistics(),

		diagnostics: &RecordBatch{},
	}
	size := chanMap.Size()
	c.chanCounts = NewHistogram("chan_counts", "Channel Counts", "Channel ID", size, 0, float64(size))
	c.chanMaxADC = NewHistogram2D("chan_max_adc", "Channel Max ADC", "Channel ID", "Max ADC",
		size, 0, float64(size), adcBins, 0, 65536)
	c.chanEnergy = NewHistogram2D("chan_energy", "Channel Filter Energy", "Channel ID", "Filter energy",
		size, 0, float64(size), adcBins, 0, 65536)
	for _, detectorType := range chanMap.Types() {
		proc, err := NewProcessor(detectorType, config)
		if err != nil {
			logger.Error(fmt.Sprintf("%v, its pulses will be dropped", err))
			continue
		}
		c.AddProcessor(detectorType, proc)
	}
	return c, nil
}

// AddProcessor attaches a processor to a detector type, replacing any
// previous one.
func (c *Correlator) AddProcessor(detectorType string, proc Processor) {
	if old, ok := c.byType[detectorType]; ok {
		for i, p := range c.processors {
			if p == old {
				c.processors[i] = proc
			}
		}
	} else {
		c.processors = append(c.processors, proc)
	}
	c.byType[detectorType] = proc
	c.stats.Processors[proc.Name()] = proc.Counters()
	if c.config.Verbosity > 0 {
		message := fmt.Sprintf("Added %s processor for detector type %s", proc.Name(), detectorType)
		logger.Info(message, "correlator")
	}
}

func (c *Correlator) Processors() []Processor {
	return c.processors
}

// Ingest analyzes one pulse and queues it. An unknown channel returns a
// *ChannelLookupError, the pulse is counted and dropped.
func (c *Correlator) Ingest(pulse RawPulse) error {
	if c.closed {
		return ErrCorrelatorClosed
	}
	c.stats.TotalEvents++
	c.metrics.pulse()

	id := pulse.ChannelID()
	var entry *MapEntry
	var ok bool
	if pulse.Channel < ChannelsPerModule {
		entry, ok = c.chanMap.Lookup(id)
	}
	if !ok {
		c.stats.Dropped++
		c.metrics.dropped()
		return &ChannelLookupError{ChannelID: id}
	}

	if c.window.expired(pulse.Timestamp) {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	if !c.window.open {
		c.window.open = true
		c.window.start = pulse.Timestamp
	}
	c.window.pulses++
	c.window.last = max(c.window.last, pulse.Timestamp)

	pair := &ChannelEventPair{
		Pulse: pulse,
		Entry: entry,
		Calib: c.calib.Entry(id),
	}
	pair.Event = c.analyzer.Analyze(pulse, entry, pair.Calib)
	if !pair.Event.Valid {
		c.countInvalid(pair.Event.Err)
	}
	c.fillChannelHistograms(pair)
	c.recordPulse(pair)

	if entry.IsStart && !c.config.Untriggered {
		c.addStart(pair)
		return nil
	}

	proc, ok := c.byType[entry.Type]
	if !ok {
		c.stats.Dropped++
		c.metrics.dropped()
		if c.config.Verbosity > 1 {
			message := fmt.Sprintf("No processor for detector type %s, dropping pulse on channel %d", entry.Type, id)
			logger.Info(message, "correlator")
		}
		return nil
	}
	proc.Enqueue(pair)
	return nil
}

func (c *Correlator) fillChannelHistograms(pair *ChannelEventPair) {
	id := float64(pair.Pulse.ChannelID())
	c.chanCounts.Fill(id)
	c.chanEnergy.Fill(id, float64(pair.Pulse.Energy))
	if pair.Event.Valid {
		c.chanMaxADC.Fill(id, pair.Event.MaxAmplitude)
	}
}

// recordPulse keeps the raw view of the pulse when raw or trace output is
// enabled.
func (c *Correlator) recordPulse(pair *ChannelEventPair) {
	id := int(pair.Pulse.ChannelID())
	if c.config.WriteRaw {
		c.diagnostics.Raw = append(c.diagnostics.Raw, RawRecord{
			ChannelID: id,
			Timestamp: pair.Pulse.Timestamp,
			RawEnergy: int(pair.Pulse.Energy),
			IsStart:   pair.Entry.IsStart,
			Valid:     pair.Event.Valid,
			Time:      pair.Event.HiResTime,
		})
	}
	if c.config.WriteTraces {
		c.diagnostics.Traces = append(c.diagnostics.Traces, TraceRecord{
			ChannelID: id,
			Timestamp: pair.Pulse.Timestamp,
			Trace:     pair.Pulse.Trace,
		})
	}
}

func (c *Correlator) addStart(pair *ChannelEventPair) {
	c.window.starts = append(c.window.starts, pair)
	c.stats.StartEvents++
	c.metrics.start()

	t := pair.Time(c.config.ClockPeriod) * 1e-9
	if !c.seenStart {
		c.seenStart = true
		c.stats.FirstEventTime = t
	}
	c.stats.DeltaEventTime = t - c.stats.FirstEventTime
}

func (c *Correlator) countInvalid(err error) {
	var analysisErr *AnalysisError
	if !errors.As(err, &analysisErr) {
		return
	}
	c.stats.Invalid[analysisErr.Kind.String()]++
	c.metrics.invalid(analysisErr.Kind)
}

// Flush closes the current window. Every start pulse triggers one pass over
// every processor, in untriggered mode there is a single pass without
// start. In triggered mode a window without starts follows the orphan
// policy. The records produced are written to the sink as one batch.
func (c *Correlator) Flush() error {
	if c.closed {
		return ErrCorrelatorClosed
	}
	defer c.window.reset()
	c.stats.Flushes++
	c.metrics.flush()

	batch := c.diagnostics
	batch.Flush = c.stats.Flushes
	c.diagnostics = &RecordBatch{}
	if c.config.WriteStats && c.window.open {
		batch.Windows = append(batch.Windows, WindowRecord{
			Flush:  c.stats.Flushes,
			Start:  c.window.start,
			Length: c.window.last - c.window.start,
			Pulses: c.window.pulses,
			Starts: len(c.window.starts),
		})
	}

	if !c.config.Untriggered && len(c.window.starts) == 0 {
		if c.config.OrphanPolicy == OrphanDiscard {
			c.discardQueued()
		}
		return c.write(batch)
	}

	before := c.snapshotCounters()
	if c.config.Untriggered {
		for _, proc := range c.processors {
			proc.Process(nil, batch)
		}
	} else {
		for _, start := range c.window.starts {
			for _, proc := range c.processors {
				proc.Process(start, batch)
			}
		}
	}
	for _, proc := range c.processors {
		proc.WrapUp()
	}
	c.updateCounters(before)

	if c.config.Verbosity > 1 {
		message := fmt.Sprintf("Flush %d: %d starts, %d records", c.stats.Flushes, len(c.window.starts), batch.Len())
		logger.Info(message, "correlator")
	}
	return c.write(batch)
}

func (c *Correlator) write(batch *RecordBatch) error {
	if batch.Empty() {
		return nil
	}
	if err := c.sink.Write(batch); err != nil {
		return fmt.Errorf("error writing flush %d: %w", batch.Flush, err)
	}
	return nil
}

// discardQueued releases every queued pair without processing it.
func (c *Correlator) discardQueued() {
	before := c.snapshotCounters()
	orphans := 0
	for _, proc := range c.processors {
		orphans += proc.Len()
		proc.WrapUp()
	}
	c.updateCounters(before)
	c.stats.OrphanedPairs += orphans
	c.metrics.orphaned(orphans)
	if orphans > 0 && c.config.Verbosity > 1 {
		message := fmt.Sprintf("Discarded %d pulses from a window without start", orphans)
		logger.Info(message, "correlator")
	}
}

func (c *Correlator) snapshotCounters() []ProcessorCounters {
	counters := make([]ProcessorCounters, len(c.processors))
	for i, proc := range c.processors {
		counters[i] = proc.Counters()
	}
	return counters
}

func (c *Correlator) updateCounters(before []ProcessorCounters) {
	for i, proc := range c.processors {
		after := proc.Counters()
		c.stats.Processors[proc.Name()] = after
		c.metrics.processor(proc.Name(), before[i], after)
	}
}

func (c *Correlator) pending() int {
	n := len(c.window.starts) + len(c.diagnostics.Raw) + len(c.diagnostics.Traces)
	for _, proc := range c.processors {
		n += proc.Len()
	}
	return n
}

// Run ingests the source until io.EOF, flushing at every end of spill. The
// context is checked between pulses.
func (c *Correlator) Run(ctx context.Context, source Source) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pulse, err := source.Next()
		if errors.Is(err, ErrEndOfSpill) {
			if err := c.Flush(); err != nil {
				return err
			}
			continue
		}
		if err == io.EOF {
			if c.pending() > 0 {
				return c.Flush()
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading pulse: %w", err)
		}

		err = c.Ingest(pulse)
		var lookupErr *ChannelLookupError
		if errors.As(err, &lookupErr) {
			if c.config.Verbosity > 1 {
				logger.Info(lookupErr.Error(), "correlator")
			}
			continue
		}
		if err != nil {
			return err
		}
	}
}

// Close flushes what is left, discards pulses still waiting for a start,
// writes the run summary and closes the sink. Calling it again does nothing.
func (c *Correlator) Close() error {
	if c.closed {
		return nil
	}
	var errs []error
	keepWindow := c.config.WriteStats && c.window.open
	if len(c.window.starts) > 0 || (c.config.Untriggered && c.pending() > 0) || !c.diagnostics.Empty() || keepWindow {
		if err := c.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	c.discardQueued()
	c.closed = true

	if err := c.sink.WriteSummary(c.Stats()); err != nil {
		errs = append(errs, fmt.Errorf("error writing run summary: %w", err))
	}
	if err := c.sink.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Correlator) Stats() RunStatistics {
	return c.stats.clone()
}

// Histograms returns the per-channel count histogram and the diagnostic
// histograms of every processor.
func (c *Correlator) Histograms() []*Histogram {
	histograms := []*Histogram{c.chanCounts}
	for _, proc := range c.processors {
		histograms = append(histograms, proc.Histograms()...)
	}
	return histograms
}

// ChannelHistograms returns the per-channel maximum ADC and filter energy
// histograms.
func (c *Correlator) ChannelHistograms() []*Histogram2D {
	return []*Histogram2D{c.chanMaxADC, c.chanEnergy}
}

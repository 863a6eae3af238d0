package hdf5out

import (
	"errors"
	"fmt"
	"sort"

	hdf5 "github.com/jmbenlloch/go-hdf5"
	scanner "github.com/next-exp/scanner_go/pkg"
)

// Writer stores records in an HDF5 file laid out as
//
//	/Records/{generic,trigger,vandle,phoswich,raw,traces,trace_samples}
//	/Run/{summary,processors,invalid,windows}
//
// The traces table indexes trace_samples, a flat table of uint16 samples.
type Writer struct {
	File          *hdf5.File
	Filename      string
	RecordsGroup  *hdf5.Group
	RunGroup      *hdf5.Group
	GenericTable  *table
	TriggerTable  *table
	VandleTable   *table
	PhoswichTable *table
	RawTable      *table
	TraceTable    *table
	SampleTable   *table
	WindowTable   *table
	SummaryTable  *table
	CounterTable  *table
	InvalidTable  *table
	logger        scanner.Logger
}

func NewWriter(filename string, compression int, logger scanner.Logger) (*Writer, error) {
	hdf5.SetStringLength(STRLEN)

	writer := &Writer{Filename: filename, logger: logger}
	logger.Info(fmt.Sprintf("Creating file: %s", filename), "hdf5writer")

	var err error
	if writer.File, err = openFile(filename); err != nil {
		return nil, err
	}
	if writer.RecordsGroup, err = createGroup(writer.File, "Records"); err != nil {
		return nil, errors.Join(err, writer.Close())
	}
	if writer.RunGroup, err = createGroup(writer.File, "Run"); err != nil {
		return nil, errors.Join(err, writer.Close())
	}

	tables := []struct {
		dst      **table
		group    *hdf5.Group
		name     string
		datatype interface{}
	}{
		{&writer.GenericTable, writer.RecordsGroup, "generic", GenericHDF5{}},
		{&writer.TriggerTable, writer.RecordsGroup, "trigger", TriggerHDF5{}},
		{&writer.VandleTable, writer.RecordsGroup, "vandle", VandleHDF5{}},
		{&writer.PhoswichTable, writer.RecordsGroup, "phoswich", PhoswichHDF5{}},
		{&writer.RawTable, writer.RecordsGroup, "raw", RawHDF5{}},
		{&writer.TraceTable, writer.RecordsGroup, "traces", TraceHDF5{}},
		{&writer.SampleTable, writer.RecordsGroup, "trace_samples", uint16(0)},
		{&writer.WindowTable, writer.RunGroup, "windows", WindowHDF5{}},
		{&writer.SummaryTable, writer.RunGroup, "summary", RunSummaryHDF5{}},
		{&writer.CounterTable, writer.RunGroup, "processors", CounterHDF5{}},
		{&writer.InvalidTable, writer.RunGroup, "invalid", CounterHDF5{}},
	}
	for _, t := range tables {
		created, err := newTable(t.group, t.name, t.datatype, compression)
		if err != nil {
			return nil, errors.Join(err, writer.Close())
		}
		*t.dst = created
	}
	return writer, nil
}

func (w *Writer) Write(batch *scanner.RecordBatch) error {
	flush := int32(batch.Flush)

	generic := make([]GenericHDF5, len(batch.Generic))
	for i, r := range batch.Generic {
		generic[i] = GenericHDF5{
			flush:     flush,
			channelID: int32(r.ChannelID),
			location:  int32(r.Location),
			energy:    r.Energy,
			time:      r.Time,
			phase:     r.Phase,
			tof:       r.Tof,
			hasStart:  boolToInt8(r.HasStart),
		}
	}
	trigger := make([]TriggerHDF5, len(batch.Trigger))
	for i, r := range batch.Trigger {
		trigger[i] = TriggerHDF5{
			flush:     flush,
			channelID: int32(r.ChannelID),
			energy:    r.Energy,
			rawTime:   r.RawTime,
			phase:     r.Phase,
		}
	}
	vandle := make([]VandleHDF5, len(batch.Vandle))
	for i, r := range batch.Vandle {
		vandle[i] = VandleHDF5{
			flush:       flush,
			location:    int32(r.Location),
			tdiff:       r.Tdiff,
			position:    r.Position,
			leftEnergy:  r.LeftEnergy,
			rightEnergy: r.RightEnergy,
			qdc:         r.Qdc,
			tof:         r.Tof,
			hasStart:    boolToInt8(r.HasStart),
		}
	}
	phoswich := make([]PhoswichHDF5, len(batch.Phoswich))
	for i, r := range batch.Phoswich {
		phoswich[i] = PhoswichHDF5{
			flush:     flush,
			channelID: int32(r.ChannelID),
			location:  int32(r.Location),
			time:      r.Time,
			fastQdc:   r.FastQdc,
			slowQdc:   r.SlowQdc,
			fitted:    boolToInt8(r.Fitted),
			fitA:      r.FitA,
			fitMPV:    r.FitMPV,
			fitSigma:  r.FitSigma,
			fitChi2:   r.FitChi2,
			fitPhase:  r.FitPhase,
		}
	}

	raw := make([]RawHDF5, len(batch.Raw))
	for i, r := range batch.Raw {
		raw[i] = RawHDF5{
			flush:     flush,
			channelID: int32(r.ChannelID),
			timestamp: r.Timestamp,
			rawEnergy: int32(r.RawEnergy),
			isStart:   boolToInt8(r.IsStart),
			valid:     boolToInt8(r.Valid),
			time:      r.Time,
		}
	}
	traces := make([]TraceHDF5, len(batch.Traces))
	samples := make([]uint16, 0)
	offset := int64(w.SampleTable.rows)
	for i, r := range batch.Traces {
		traces[i] = TraceHDF5{
			flush:     flush,
			channelID: int32(r.ChannelID),
			timestamp: r.Timestamp,
			offset:    offset + int64(len(samples)),
			length:    int32(len(r.Trace)),
		}
		samples = append(samples, r.Trace...)
	}
	windows := make([]WindowHDF5, len(batch.Windows))
	for i, r := range batch.Windows {
		windows[i] = WindowHDF5{
			flush:  int32(r.Flush),
			start:  r.Start,
			length: r.Length,
			pulses: int32(r.Pulses),
			starts: int32(r.Starts),
		}
	}

	return errors.Join(
		appendRows(w.GenericTable, generic),
		appendRows(w.TriggerTable, trigger),
		appendRows(w.VandleTable, vandle),
		appendRows(w.PhoswichTable, phoswich),
		appendRows(w.RawTable, raw),
		appendRows(w.SampleTable, samples),
		appendRows(w.TraceTable, traces),
		appendRows(w.WindowTable, windows),
	)
}

func (w *Writer) WriteSummary(stats scanner.RunStatistics) error {
	summary := []RunSummaryHDF5{{
		totalEvents:    int64(stats.TotalEvents),
		startEvents:    int64(stats.StartEvents),
		firstEventTime: stats.FirstEventTime,
		deltaEventTime: stats.DeltaEventTime,
		dropped:        int64(stats.Dropped),
		flushes:        int64(stats.Flushes),
		orphanedPairs:  int64(stats.OrphanedPairs),
	}}

	names := make([]string, 0, len(stats.Processors))
	for name := range stats.Processors {
		names = append(names, name)
	}
	sort.Strings(names)
	counters := make([]CounterHDF5, len(names))
	for i, name := range names {
		c := stats.Processors[name]
		counters[i] = CounterHDF5{
			name:       convertToHdf5String(name),
			total:      int64(c.Total),
			good:       int64(c.Good),
			incomplete: int64(c.Incomplete),
		}
	}

	kinds := make([]string, 0, len(stats.Invalid))
	for kind := range stats.Invalid {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	invalid := make([]CounterHDF5, len(kinds))
	for i, kind := range kinds {
		invalid[i] = CounterHDF5{
			name:  convertToHdf5String(kind),
			total: int64(stats.Invalid[kind]),
		}
	}

	return errors.Join(
		appendRows(w.SummaryTable, summary),
		appendRows(w.CounterTable, counters),
		appendRows(w.InvalidTable, invalid),
	)
}

func (w *Writer) Close() error {
	w.logger.Info(fmt.Sprintf("Closing file %s", w.Filename), "hdf5writer")
	var errs []error

	tables := []*table{
		w.GenericTable,
		w.TriggerTable,
		w.VandleTable,
		w.PhoswichTable,
		w.RawTable,
		w.TraceTable,
		w.SampleTable,
		w.WindowTable,
		w.SummaryTable,
		w.CounterTable,
		w.InvalidTable,
	}
	for _, t := range tables {
		if t == nil {
			continue
		}
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s table: %w", t.name, err))
		}
	}
	if w.RecordsGroup != nil {
		if err := w.RecordsGroup.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing records group: %w", err))
		}
	}
	if w.RunGroup != nil {
		if err := w.RunGroup.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing run group: %w", err))
		}
	}
	if w.File != nil {
		if err := w.File.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing file: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

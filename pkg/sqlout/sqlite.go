package sqlout

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	sqlx "github.com/jmoiron/sqlx"
	scanner "github.com/next-exp/scanner_go/pkg"
	_ "modernc.org/sqlite"
)

// Rows per INSERT statement, below the SQLite bound variable limit
const insertChunk = 500

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id            TEXT PRIMARY KEY,
		started_at        BIGINT,
		total_events      BIGINT,
		start_events      BIGINT,
		first_event_time  DOUBLE,
		delta_event_time  DOUBLE,
		dropped           BIGINT,
		flushes           BIGINT,
		orphaned_pairs    BIGINT
	);
	CREATE TABLE IF NOT EXISTS generic_records (
		run_id            TEXT,
		flush             BIGINT,
		channel_id        INTEGER,
		location          INTEGER,
		energy            DOUBLE,
		time              DOUBLE,
		phase             DOUBLE,
		tof               DOUBLE,
		has_start         BOOLEAN
	);
	CREATE TABLE IF NOT EXISTS trigger_records (
		run_id            TEXT,
		flush             BIGINT,
		channel_id        INTEGER,
		energy            DOUBLE,
		raw_time          BIGINT,
		phase             DOUBLE
	);
	CREATE TABLE IF NOT EXISTS vandle_records (
		run_id            TEXT,
		flush             BIGINT,
		location          INTEGER,
		tdiff             DOUBLE,
		position          DOUBLE,
		left_energy       DOUBLE,
		right_energy      DOUBLE,
		qdc               DOUBLE,
		tof               DOUBLE,
		has_start         BOOLEAN
	);
	CREATE TABLE IF NOT EXISTS phoswich_records (
		run_id            TEXT,
		flush             BIGINT,
		channel_id        INTEGER,
		location          INTEGER,
		time              DOUBLE,
		fast_qdc          DOUBLE,
		slow_qdc          DOUBLE,
		fitted            BOOLEAN,
		fit_a             DOUBLE,
		fit_mpv           DOUBLE,
		fit_sigma         DOUBLE,
		fit_chi2          DOUBLE,
		fit_phase         DOUBLE
	);
	CREATE TABLE IF NOT EXISTS raw_records (
		run_id            TEXT,
		flush             BIGINT,
		channel_id        INTEGER,
		timestamp         BIGINT,
		raw_energy        INTEGER,
		is_start          BOOLEAN,
		valid             BOOLEAN,
		time              DOUBLE
	);
	CREATE TABLE IF NOT EXISTS trace_records (
		run_id            TEXT,
		flush             BIGINT,
		channel_id        INTEGER,
		timestamp         BIGINT,
		samples           BLOB
	);
	CREATE TABLE IF NOT EXISTS window_records (
		run_id            TEXT,
		flush             BIGINT,
		start             BIGINT,
		length            BIGINT,
		pulses            INTEGER,
		starts            INTEGER
	);
	CREATE TABLE IF NOT EXISTS processor_counters (
		run_id            TEXT,
		processor         TEXT,
		total             BIGINT,
		good              BIGINT,
		incomplete        BIGINT
	);
	CREATE TABLE IF NOT EXISTS invalid_counts (
		run_id            TEXT,
		reason            TEXT,
		count             BIGINT
	);
`

type recordKey struct {
	RunID string `db:"run_id"`
	Flush int    `db:"flush"`
}

type genericRow struct {
	recordKey
	scanner.GenericRecord
}

type triggerRow struct {
	recordKey
	scanner.TriggerRecord
}

type vandleRow struct {
	recordKey
	scanner.VandleRecord
}

type phoswichRow struct {
	recordKey
	scanner.PhoswichRecord
}

type rawRow struct {
	recordKey
	scanner.RawRecord
}

// traceRow stores the samples as little-endian uint16.
type traceRow struct {
	recordKey
	ChannelID int    `db:"channel_id"`
	Timestamp uint64 `db:"timestamp"`
	Samples   []byte `db:"samples"`
}

type windowRow struct {
	RunID string `db:"run_id"`
	scanner.WindowRecord
}

func encodeTrace(trace []uint16) []byte {
	samples := make([]byte, 0, 2*len(trace))
	for _, sample := range trace {
		samples = binary.LittleEndian.AppendUint16(samples, sample)
	}
	return samples
}

func decodeTrace(samples []byte) []uint16 {
	trace := make([]uint16, len(samples)/2)
	for i := range trace {
		trace[i] = binary.LittleEndian.Uint16(samples[2*i:])
	}
	return trace
}

type RunRow struct {
	RunID          string  `db:"run_id"`
	StartedAt      int64   `db:"started_at"` // unix ns
	TotalEvents    int     `db:"total_events"`
	StartEvents    int     `db:"start_events"`
	FirstEventTime float64 `db:"first_event_time"`
	DeltaEventTime float64 `db:"delta_event_time"`
	Dropped        int     `db:"dropped"`
	Flushes        int     `db:"flushes"`
	OrphanedPairs  int     `db:"orphaned_pairs"`
}

type counterRow struct {
	RunID     string `db:"run_id"`
	Processor string `db:"processor"`
	scanner.ProcessorCounters
}

type invalidRow struct {
	RunID  string `db:"run_id"`
	Reason string `db:"reason"`
	Count  int    `db:"count"`
}

// Store writes every run into a SQLite database, each run under its own id.
type Store struct {
	db        *sqlx.DB
	runID     string
	startedAt time.Time
}

func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite database %s: %w", path, err)
	}
	// One connection, so ":memory:" databases are shared by every query
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating schema: %w", err)
	}
	return &Store{
		db:        db,
		runID:     uuid.New().String(),
		startedAt: time.Now(),
	}, nil
}

func (s *Store) RunID() string {
	return s.runID
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Write(batch *scanner.RecordBatch) error {
	key := recordKey{RunID: s.runID, Flush: batch.Flush}
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}

	generic := make([]genericRow, len(batch.Generic))
	for i, r := range batch.Generic {
		generic[i] = genericRow{key, r}
	}
	trigger := make([]triggerRow, len(batch.Trigger))
	for i, r := range batch.Trigger {
		trigger[i] = triggerRow{key, r}
	}
	vandle := make([]vandleRow, len(batch.Vandle))
	for i, r := range batch.Vandle {
		vandle[i] = vandleRow{key, r}
	}
	phoswich := make([]phoswichRow, len(batch.Phoswich))
	for i, r := range batch.Phoswich {
		phoswich[i] = phoswichRow{key, r}
	}

	raw := make([]rawRow, len(batch.Raw))
	for i, r := range batch.Raw {
		raw[i] = rawRow{key, r}
	}
	traces := make([]traceRow, len(batch.Traces))
	for i, r := range batch.Traces {
		traces[i] = traceRow{recordKey: key, ChannelID: r.ChannelID, Timestamp: r.Timestamp, Samples: encodeTrace(r.Trace)}
	}
	windows := make([]windowRow, len(batch.Windows))
	for i, r := range batch.Windows {
		windows[i] = windowRow{RunID: s.runID, WindowRecord: r}
	}

	if err := insertRows(tx, `INSERT INTO generic_records (run_id, flush, channel_id, location, energy, time, phase, tof, has_start)
		VALUES (:run_id, :flush, :channel_id, :location, :energy, :time, :phase, :tof, :has_start)`, generic); err != nil {
		tx.Rollback()
		return fmt.Errorf("error inserting generic records: %w", err)
	}
	if err := insertRows(tx, `INSERT INTO trigger_records (run_id, flush, channel_id, energy, raw_time, phase)
		VALUES (:run_id, :flush, :channel_id, :energy, :raw_time, :phase)`, trigger); err != nil {
		tx.Rollback()
		return fmt.Errorf("error inserting trigger records: %w", err)
	}
	if err := insertRows(tx, `INSERT INTO vandle_records (run_id, flush, location, tdiff, position, left_energy, right_energy, qdc, tof, has_start)
		VALUES (:run_id, :flush, :location, :tdiff, :position, :left_energy, :right_energy, :qdc, :tof, :has_start)`, vandle); err != nil {
		tx.Rollback()
		return fmt.Errorf("error inserting vandle records: %w", err)
	}
	if err := insertRows(tx, `INSERT INTO phoswich_records (run_id, flush, channel_id, location, time, fast_qdc, slow_qdc, fitted, fit_a, fit_mpv, fit_sigma, fit_chi2, fit_phase)
		VALUES (:run_id, :flush, :channel_id, :location, :time, :fast_qdc, :slow_qdc, :fitted, :fit_a, :fit_mpv, :fit_sigma, :fit_chi2, :fit_phase)`, phoswich); err != nil {
		tx.Rollback()
		return fmt.Errorf("error inserting phoswich records: %w", err)
	}
	if err := insertRows(tx, `INSERT INTO raw_records (run_id, flush, channel_id, timestamp, raw_energy, is_start, valid, time)
		VALUES (:run_id, :flush, :channel_id, :timestamp, :raw_energy, :is_start, :valid, :time)`, raw); err != nil {
		tx.Rollback()
		return fmt.Errorf("error inserting raw records: %w", err)
	}
	if err := insertRows(tx, `INSERT INTO trace_records (run_id, flush, channel_id, timestamp, samples)
		VALUES (:run_id, :flush, :channel_id, :timestamp, :samples)`, traces); err != nil {
		tx.Rollback()
		return fmt.Errorf("error inserting traces: %w", err)
	}
	if err := insertRows(tx, `INSERT INTO window_records (run_id, flush, start, length, pulses, starts)
		VALUES (:run_id, :flush, :start, :length, :pulses, :starts)`, windows); err != nil {
		tx.Rollback()
		return fmt.Errorf("error inserting window records: %w", err)
	}
	return tx.Commit()
}

func insertRows[T any](tx *sqlx.Tx, query string, rows []T) error {
	for start := 0; start < len(rows); start += insertChunk {
		end := min(start+insertChunk, len(rows))
		if _, err := tx.NamedExec(query, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) WriteSummary(stats scanner.RunStatistics) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	run := RunRow{
		RunID:          s.runID,
		StartedAt:      s.startedAt.UnixNano(),
		TotalEvents:    stats.TotalEvents,
		StartEvents:    stats.StartEvents,
		FirstEventTime: stats.FirstEventTime,
		DeltaEventTime: stats.DeltaEventTime,
		Dropped:        stats.Dropped,
		Flushes:        stats.Flushes,
		OrphanedPairs:  stats.OrphanedPairs,
	}
	_, err = tx.NamedExec(`INSERT INTO runs (run_id, started_at, total_events, start_events, first_event_time, delta_event_time, dropped, flushes, orphaned_pairs)
		VALUES (:run_id, :started_at, :total_events, :start_events, :first_event_time, :delta_event_time, :dropped, :flushes, :orphaned_pairs)`, run)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error inserting run summary: %w", err)
	}

	names := make([]string, 0, len(stats.Processors))
	for name := range stats.Processors {
		names = append(names, name)
	}
	sort.Strings(names)
	counters := make([]counterRow, len(names))
	for i, name := range names {
		counters[i] = counterRow{RunID: s.runID, Processor: name, ProcessorCounters: stats.Processors[name]}
	}
	if err := insertRows(tx, `INSERT INTO processor_counters (run_id, processor, total, good, incomplete)
		VALUES (:run_id, :processor, :total, :good, :incomplete)`, counters); err != nil {
		tx.Rollback()
		return fmt.Errorf("error inserting processor counters: %w", err)
	}

	invalid := make([]invalidRow, 0, len(stats.Invalid))
	for reason, count := range stats.Invalid {
		invalid = append(invalid, invalidRow{RunID: s.runID, Reason: reason, Count: count})
	}
	if err := insertRows(tx, `INSERT INTO invalid_counts (run_id, reason, count)
		VALUES (:run_id, :reason, :count)`, invalid); err != nil {
		tx.Rollback()
		return fmt.Errorf("error inserting invalid counts: %w", err)
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Run returns the summary stored for a run.
func (s *Store) Run(runID string) (RunRow, error) {
	var run RunRow
	err := s.db.Get(&run, "SELECT * FROM runs WHERE run_id = ?", runID)
	if err != nil {
		return run, fmt.Errorf("error reading run %s: %w", runID, err)
	}
	return run, nil
}

// LatestRunID returns the id of the most recent run in the database.
func (s *Store) LatestRunID() (string, error) {
	var runID string
	err := s.db.Get(&runID, "SELECT run_id FROM runs ORDER BY started_at DESC LIMIT 1")
	if err != nil {
		return "", fmt.Errorf("error reading latest run: %w", err)
	}
	return runID, nil
}

func (s *Store) GenericRecords(runID string) ([]scanner.GenericRecord, error) {
	records := make([]scanner.GenericRecord, 0)
	err := s.db.Select(&records, `SELECT channel_id, location, energy, time, phase, tof, has_start
		FROM generic_records WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("error reading generic records: %w", err)
	}
	return records, nil
}

// StartRelativeTimes groups the time of flight of generic records by
// channel, for the records that had a start pulse.
func (s *Store) StartRelativeTimes(runID string) (map[scanner.ChannelID][]float64, error) {
	records, err := s.GenericRecords(runID)
	if err != nil {
		return nil, err
	}
	samples := make(map[scanner.ChannelID][]float64)
	for _, r := range records {
		if !r.HasStart {
			continue
		}
		id := scanner.ChannelID(r.ChannelID)
		samples[id] = append(samples[id], r.Tof)
	}
	return samples, nil
}

func (s *Store) RawRecords(runID string) ([]scanner.RawRecord, error) {
	records := make([]scanner.RawRecord, 0)
	err := s.db.Select(&records, `SELECT channel_id, timestamp, raw_energy, is_start, valid, time
		FROM raw_records WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("error reading raw records: %w", err)
	}
	return records, nil
}

// StartTimestamps returns the clock ticks of every start pulse of a run in
// arrival order. The run must have been written with raw records.
func (s *Store) StartTimestamps(runID string) ([]uint64, error) {
	timestamps := make([]uint64, 0)
	err := s.db.Select(&timestamps, `SELECT timestamp FROM raw_records
		WHERE run_id = ? AND is_start ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("error reading start timestamps: %w", err)
	}
	return timestamps, nil
}

func (s *Store) TraceRecords(runID string) ([]scanner.TraceRecord, error) {
	rows := make([]traceRow, 0)
	err := s.db.Select(&rows, `SELECT run_id, flush, channel_id, timestamp, samples
		FROM trace_records WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("error reading traces: %w", err)
	}
	records := make([]scanner.TraceRecord, len(rows))
	for i, row := range rows {
		records[i] = scanner.TraceRecord{ChannelID: row.ChannelID, Timestamp: row.Timestamp, Trace: decodeTrace(row.Samples)}
	}
	return records, nil
}

func (s *Store) WindowRecords(runID string) ([]scanner.WindowRecord, error) {
	records := make([]scanner.WindowRecord, 0)
	err := s.db.Select(&records, `SELECT flush, start, length, pulses, starts
		FROM window_records WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("error reading window records: %w", err)
	}
	return records, nil
}

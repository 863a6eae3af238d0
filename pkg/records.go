package scanner

type GenericRecord struct {
	ChannelID int     `json:"channel_id" db:"channel_id"`
	Location  int     `json:"location" db:"location"`
	Energy    float64 `json:"energy" db:"energy"`
	Time      float64 `json:"time" db:"time"`
	Phase     float64 `json:"phase" db:"phase"`
	Tof       float64 `json:"tof" db:"tof"`
	HasStart  bool    `json:"has_start" db:"has_start"`
}

type TriggerRecord struct {
	ChannelID int     `json:"channel_id" db:"channel_id"`
	Energy    float64 `json:"energy" db:"energy"`
	RawTime   uint64  `json:"raw_time" db:"raw_time"`
	Phase     float64 `json:"phase" db:"phase"`
}

type VandleRecord struct {
	Location    int     `json:"location" db:"location"`
	Tdiff       float64 `json:"tdiff" db:"tdiff"`
	Position    float64 `json:"position" db:"position"`
	LeftEnergy  float64 `json:"left_energy" db:"left_energy"`
	RightEnergy float64 `json:"right_energy" db:"right_energy"`
	Qdc         float64 `json:"qdc" db:"qdc"`
	Tof         float64 `json:"tof" db:"tof"`
	HasStart    bool    `json:"has_start" db:"has_start"`
}

type PhoswichRecord struct {
	ChannelID int     `json:"channel_id" db:"channel_id"`
	Location  int     `json:"location" db:"location"`
	Time      float64 `json:"time" db:"time"`
	FastQdc   float64 `json:"fast_qdc" db:"fast_qdc"`
	SlowQdc   float64 `json:"slow_qdc" db:"slow_qdc"`
	Fitted    bool    `json:"fitted" db:"fitted"`
	FitA      float64 `json:"fit_a" db:"fit_a"`
	FitMPV    float64 `json:"fit_mpv" db:"fit_mpv"`
	FitSigma  float64 `json:"fit_sigma" db:"fit_sigma"`
	FitChi2   float64 `json:"fit_chi2" db:"fit_chi2"`
	FitPhase  float64 `json:"fit_phase" db:"fit_phase"`
}

// RawRecord is the digitizer view of one mapped pulse, before any
// coincidence.
type RawRecord struct {
	ChannelID int     `json:"channel_id" db:"channel_id"`
	Timestamp uint64  `json:"timestamp" db:"timestamp"`
	RawEnergy int     `json:"raw_energy" db:"raw_energy"`
	IsStart   bool    `json:"is_start" db:"is_start"`
	Valid     bool    `json:"valid" db:"valid"`
	Time      float64 `json:"time" db:"time"` // ns, 0 when not valid
}

// TraceRecord keeps the raw ADC samples of one mapped pulse.
type TraceRecord struct {
	ChannelID int      `json:"channel_id"`
	Timestamp uint64   `json:"timestamp"`
	Trace     []uint16 `json:"trace"`
}

// WindowRecord describes one closed coincidence window.
type WindowRecord struct {
	Flush  int    `json:"flush" db:"flush"`
	Start  uint64 `json:"start" db:"start"`   // ticks
	Length uint64 `json:"length" db:"length"` // ticks between first and last pulse
	Pulses int    `json:"pulses" db:"pulses"`
	Starts int    `json:"starts" db:"starts"`
}

// RecordBatch holds every record produced by one flush.
type RecordBatch struct {
	Flush    int              `json:"flush"`
	Generic  []GenericRecord  `json:"generic,omitempty"`
	Trigger  []TriggerRecord  `json:"trigger,omitempty"`
	Vandle   []VandleRecord   `json:"vandle,omitempty"`
	Phoswich []PhoswichRecord `json:"phoswich,omitempty"`
	Raw      []RawRecord      `json:"raw,omitempty"`
	Traces   []TraceRecord    `json:"traces,omitempty"`
	Windows  []WindowRecord   `json:"windows,omitempty"`
}

// Len is the number of detector records, diagnostic records not included.
func (b *RecordBatch) Len() int {
	return len(b.Generic) + len(b.Trigger) + len(b.Vandle) + len(b.Phoswich)
}

func (b *RecordBatch) Empty() bool {
	return b.Len() == 0 && len(b.Raw) == 0 && len(b.Traces) == 0 && len(b.Windows) == 0
}

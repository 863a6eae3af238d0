package scanner

import "math"

type TimingMode string

const (
	ConstantFraction TimingMode = "constant_fraction"
	CurveFit         TimingMode = "curve_fit"
)

type EnergyMode string

const (
	Integration EnergyMode = "integration"
	Amplitude   EnergyMode = "amplitude"
)

// OrphanPolicy decides what happens to ordinary pulses queued in triggered
// mode when a window closes without any start pulse.
type OrphanPolicy string

const (
	OrphanBuffer  OrphanPolicy = "buffer"
	OrphanDiscard OrphanPolicy = "discard"
)

type Configuration struct {
	// Correlation
	EventWidth       float64      `json:"event_width"`
	Untriggered      bool         `json:"untriggered"`
	OrphanPolicy     OrphanPolicy `json:"orphan_policy"`
	RecordIncomplete bool         `json:"record_incomplete"`

	// Pulse analysis
	NoiseThreshold    float64    `json:"noise_threshold"`
	BaselineSamples   int        `json:"baseline_samples"`
	QdcLow            int        `json:"qdc_low"`
	QdcHigh           int        `json:"qdc_high"`
	CfdFraction       float64    `json:"cfd_fraction"`
	TimingMode        TimingMode `json:"timing_mode"`
	EnergyMode        EnergyMode `json:"energy_mode"`
	ClockPeriod       float64    `json:"clock_period"`
	SampleClockPeriod float64    `json:"sample_clock_period"`

	// Detector processors
	VandleMaxTdiff   float64 `json:"vandle_max_tdiff"`
	VandleLightSpeed float64 `json:"vandle_light_speed"`
	PhoswichFastLow  int     `json:"phoswich_fast_low"`
	PhoswichFastHigh int     `json:"phoswich_fast_high"`
	PhoswichSlowLow  int     `json:"phoswich_slow_low"`
	PhoswichSlowHigh int     `json:"phoswich_slow_high"`

	// Channel map and calibration
	MapFile       string `json:"map_file"`
	UseDB         bool   `json:"use_db"`
	Host          string `json:"host"`
	User          string `json:"user"`
	Passwd        string `json:"pass"`
	DBName        string `json:"dbname"`
	RunNumber     int    `json:"run_number"`
	TimeCalib     string `json:"time_calib"`
	EnergyCalib   string `json:"energy_calib"`
	PositionCalib string `json:"position_calib"`

	// Input and output
	FileIn           []string `json:"file_in"`
	FileOut          string   `json:"file_out"`
	SqliteOut        string   `json:"sqlite_out"`
	Publish          bool     `json:"publish"`
	TopicPrefix      string   `json:"topic_prefix"`
	PlotsDir         string   `json:"plots_dir"`
	MetricsFile      string   `json:"metrics_file"`
	WriteRaw         bool     `json:"write_raw"`
	WriteTraces      bool     `json:"write_traces"`
	WriteStats       bool     `json:"write_stats"`
	CompressionLevel int      `json:"compression_level"`
	MaxEvents        int      `json:"max_events"`
	Skip             int      `json:"skip"`
	Verbosity        int      `json:"verbosity"`
	NumWorkers       int      `json:"num_workers"`
}

// configuration holds run-wide settings used outside a correlator, such as
// the log verbosity and the output compression level.
var configuration = DefaultConfiguration()

func GetConfiguration() Configuration {
	return configuration
}

func SetConfiguration(config Configuration) {
	configuration = config
}

func DefaultConfiguration() Configuration {
	return Configuration{
		EventWidth:        500e-9,
		OrphanPolicy:      OrphanBuffer,
		NoiseThreshold:    3.0,
		BaselineSamples:   10,
		QdcLow:            5,
		QdcHigh:           10,
		CfdFraction:       0.5,
		TimingMode:        ConstantFraction,
		EnergyMode:        Integration,
		ClockPeriod:       8,
		SampleClockPeriod: 4,
		VandleMaxTdiff:    100,
		VandleLightSpeed:  13.5,
		PhoswichFastLow:   5,
		PhoswichFastHigh:  8,
		PhoswichSlowLow:   15,
		PhoswichSlowHigh:  100,
		Host:              "localhost",
		User:              "scanreader",
		Passwd:            "readonly",
		DBName:            "SCANNER",
		TopicPrefix:       "scanner",
		CompressionLevel:  4,
		MaxEvents:         1000000000,
		NumWorkers:        1,
	}
}

// Analyzer returns the subset of the configuration used by the pulse analyzer.
func (c Configuration) Analyzer() AnalyzerConfig {
	return AnalyzerConfig{
		NoiseThreshold:    c.NoiseThreshold,
		BaselineSamples:   c.BaselineSamples,
		QdcLow:            c.QdcLow,
		QdcHigh:           c.QdcHigh,
		CfdFraction:       c.CfdFraction,
		TimingMode:        c.TimingMode,
		EnergyMode:        c.EnergyMode,
		ClockPeriod:       c.ClockPeriod,
		SampleClockPeriod: c.SampleClockPeriod,
	}
}

// WidthTicks converts the coincidence window width to whole clock ticks,
// rounding down. Widths that are a multiple of the clock period but land a
// rounding error below it in floating point still give the exact count.
func (c Configuration) WidthTicks() uint64 {
	if c.ClockPeriod <= 0 || c.EventWidth <= 0 {
		return 0
	}
	return uint64(math.Floor(c.EventWidth*1e9/c.ClockPeriod + 1e-6))
}

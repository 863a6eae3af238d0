package scanner

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

type AnalyzerConfig struct {
	NoiseThreshold    float64
	BaselineSamples   int
	QdcLow            int
	QdcHigh           int
	CfdFraction       float64
	TimingMode        TimingMode
	EnergyMode        EnergyMode
	ClockPeriod       float64 // ns per timestamp tick
	SampleClockPeriod float64 // ns per trace sample
}

// PulseAnalyzer turns a raw trace into calibrated observables. It holds no
// state between pulses.
type PulseAnalyzer struct {
	config AnalyzerConfig
}

func NewPulseAnalyzer(config AnalyzerConfig) *PulseAnalyzer {
	return &PulseAnalyzer{config: config}
}

func (a *PulseAnalyzer) Config() AnalyzerConfig {
	return a.config
}

// Analyze runs baseline correction, noise gate, peak finding, energy and
// timing extraction and calibration in a single pass. Any failure leaves
// the event invalid with Err set and no calibrated values.
func (a *PulseAnalyzer) Analyze(pulse RawPulse, entry *MapEntry, calib *CalibEntry) ChannelEvent {
	event := ChannelEvent{}
	if err := a.extract(pulse, entry, &event); err != nil {
		event.Err = err
		if configuration.Verbosity > 2 {
			message := fmt.Sprintf("Pulse on channel %d at %d rejected: %v", pulse.ChannelID(), pulse.Timestamp, err)
			logger.Info(message, "analyzer")
		}
		return event
	}
	event.Valid = true

	event.HiResTime = float64(pulse.Timestamp)*a.config.ClockPeriod +
		event.Phase*a.config.SampleClockPeriod - calib.TimeOffset()
	energy := event.Qdc
	if a.config.EnergyMode == Amplitude {
		energy = event.MaxAmplitude
	}
	event.HiResEnergy = calib.CalEnergy(energy)
	return event
}

func (a *PulseAnalyzer) extract(pulse RawPulse, entry *MapEntry, event *ChannelEvent) error {
	if len(pulse.Trace) == 0 {
		return ErrEmptyTrace
	}
	a.correctBaseline(pulse.Trace, event)

	if event.StdDev > a.config.NoiseThreshold {
		return ErrNoiseTooHigh
	}

	findPeak(event)
	if event.MaxAmplitude <= 0 {
		return ErrNoPeakFound
	}

	event.Qdc = Integrate(event.Corrected, event.MaxIndex-a.config.QdcLow, event.MaxIndex+a.config.QdcHigh)

	switch a.config.TimingMode {
	case CurveFit:
		phase, err := fitPulse(NewPulseShape(entry), event.Corrected, event.MaxIndex,
			event.MaxIndex-a.config.QdcLow, event.MaxIndex+a.config.QdcHigh)
		if err != nil {
			if configuration.Verbosity > 2 {
				logger.Info(err.Error(), "analyzer")
			}
			return ErrFitDidNotConverge
		}
		event.Phase = phase
	default:
		fraction := a.config.CfdFraction
		if arg, ok := entry.Arg(0); ok {
			fraction = arg
		}
		phase, ok := cfdPhase(event.Corrected, event.MaxIndex, a.config.QdcLow, fraction*event.MaxAmplitude)
		if !ok {
			return ErrThresholdCrossingNotFound
		}
		event.Phase = phase
	}
	return nil
}

// correctBaseline estimates the baseline over the samples preceding the raw
// maximum, at most BaselineSamples of them, and subtracts it.
func (a *PulseAnalyzer) correctBaseline(trace []uint16, event *ChannelEvent) {
	values := toFloats(trace)
	rawMax := 0
	for i, value := range values {
		if value > values[rawMax] {
			rawMax = i
		}
	}
	region := min(a.config.BaselineSamples, rawMax)
	if region <= 1 {
		event.Baseline = values[0]
		event.StdDev = 0
	} else {
		event.Baseline, event.StdDev = stat.MeanStdDev(values[:region], nil)
	}
	for i := range values {
		values[i] -= event.Baseline
	}
	event.Corrected = values
}

func findPeak(event *ChannelEvent) {
	event.MaxIndex = 0
	event.MaxAmplitude = event.Corrected[0]
	for i, value := range event.Corrected {
		if value > event.MaxAmplitude {
			event.MaxAmplitude = value
			event.MaxIndex = i
		}
	}
}

// cfdPhase looks for the first pair of samples (i, i+1) between
// maxIndex-low and the peak that straddles the threshold and interpolates
// the crossing linearly.
func cfdPhase(trace []float64, maxIndex int, low int, threshold float64) (float64, bool) {
	for i := max(maxIndex-low, 0); i < maxIndex; i++ {
		if trace[i] <= threshold && threshold <= trace[i+1] {
			if trace[i+1] == trace[i] {
				return float64(i), true
			}
			return float64(i) + (threshold-trace[i])/(trace[i+1]-trace[i]), true
		}
	}
	return 0, false
}

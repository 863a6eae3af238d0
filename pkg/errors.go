package scanner

import "fmt"

// ConfigError represents a failure loading a static run resource (channel
// map, calibration files, database). It is fatal for the run.
type ConfigError struct {
	Resource string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("error loading %s: %v", e.Resource, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ChannelLookupError is returned for pulses whose channel is not in the map.
type ChannelLookupError struct {
	ChannelID ChannelID
}

func (e *ChannelLookupError) Error() string {
	return fmt.Sprintf("channel %d (module %d, channel %d) not found in channel map",
		e.ChannelID, e.ChannelID.Module(), e.ChannelID.Channel())
}

type AnalysisErrorKind int

const (
	EmptyTrace AnalysisErrorKind = iota
	NoiseTooHigh
	NoPeakFound
	FitDidNotConverge
	ThresholdCrossingNotFound
)

var analysisErrorStrings = []string{
	"empty trace",
	"noise too high",
	"no peak found",
	"fit did not converge",
	"threshold crossing not found",
}

func (k AnalysisErrorKind) String() string {
	if k < EmptyTrace || k > ThresholdCrossingNotFound {
		return "unknown"
	}
	return analysisErrorStrings[k]
}

// AnalysisError marks a pulse as invalid. Two analysis errors are the same
// for errors.Is when their kinds match.
type AnalysisError struct {
	Kind AnalysisErrorKind
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("pulse analysis failed: %v", e.Kind)
}

func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	return ok && t.Kind == e.Kind
}

var (
	ErrEmptyTrace                = &AnalysisError{Kind: EmptyTrace}
	ErrNoiseTooHigh              = &AnalysisError{Kind: NoiseTooHigh}
	ErrNoPeakFound               = &AnalysisError{Kind: NoPeakFound}
	ErrFitDidNotConverge         = &AnalysisError{Kind: FitDidNotConverge}
	ErrThresholdCrossingNotFound = &AnalysisError{Kind: ThresholdCrossingNotFound}
)

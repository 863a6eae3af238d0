package scanner

// ChannelsPerModule is the number of digitizer channels in one module.
const ChannelsPerModule = 16

// MaxModules bounds the module numbers a channel map may use.
const MaxModules = 256

// ChannelID is the linear channel index, 16*module + channel.
type ChannelID int

func NewChannelID(module int, channel int) ChannelID {
	return ChannelID(ChannelsPerModule*module + channel)
}

func (id ChannelID) Module() int {
	return int(id) / ChannelsPerModule
}

func (id ChannelID) Channel() int {
	return int(id) % ChannelsPerModule
}

// RawPulse is one digitized channel record as delivered by the DAQ.
type RawPulse struct {
	Module    uint16
	Channel   uint16
	Timestamp uint64 // clock ticks
	Energy    uint16 // onboard filter energy
	Trace     []uint16
}

func (p RawPulse) ChannelID() ChannelID {
	return NewChannelID(int(p.Module), int(p.Channel))
}

type ChannelEvent struct {
	Baseline     float64
	StdDev       float64
	MaxAmplitude float64
	MaxIndex     int
	Qdc          float64
	Phase        float64 // samples
	HiResEnergy  float64
	HiResTime    float64 // ns
	Valid        bool
	// Baseline-corrected trace
	Corrected []float64
	// Reason the event is not valid, nil otherwise
	Err error
}

// ChannelEventPair binds a raw pulse to its analysis result and static
// descriptors. A pair sits in exactly one queue at a time.
type ChannelEventPair struct {
	Pulse RawPulse
	Event ChannelEvent
	Entry *MapEntry
	Calib *CalibEntry
}

// Time returns the high resolution time of the pair, or the raw clock
// time when the pulse analysis failed.
func (p *ChannelEventPair) Time(clockPeriod float64) float64 {
	if p.Event.Valid {
		return p.Event.HiResTime
	}
	return float64(p.Pulse.Timestamp) * clockPeriod
}

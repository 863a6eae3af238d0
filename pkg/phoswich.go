package scanner

import (
	"fmt"
	"math"
)

// Half width at half maximum of the Moyal shape, in units of sigma
const phoswichHWHM = 1.17741

func init() {
	RegisterProcessor("phoswich", func(config Configuration) Processor {
		return NewPhoswichProcessor(config)
	})
}

// PhoswichProcessor separates the fast and slow scintillation components
// of each pulse for pulse shape discrimination.
type PhoswichProcessor struct {
	baseProcessor
	fast *Histogram
	slow *Histogram
	mpv  *Histogram
}

func NewPhoswichProcessor(config Configuration) *PhoswichProcessor {
	fast := NewHistogram("phoswich_h1", "Phoswich Fast LR", "Light Response (a.u.)", 200, 0, 20000)
	slow := NewHistogram("phoswich_h2", "Phoswich Slow LR", "Light Response (a.u.)", 200, 0, 20000)
	mpv := NewHistogram("phoswich_h4", "Phoswich Most-Probable Value", "MPV (samples)", 100, 0, 100)
	return &PhoswichProcessor{
		baseProcessor: newBaseProcessor("Phoswich", config, fast, slow, mpv),
		fast:          fast,
		slow:          slow,
		mpv:           mpv,
	}
}

func (p *PhoswichProcessor) Process(start *ChannelEventPair, batch *RecordBatch) {
	for _, pair := range p.queue {
		event := &pair.Event
		if !event.Valid {
			continue
		}
		maxIndex := event.MaxIndex
		record := PhoswichRecord{
			ChannelID: int(pair.Pulse.ChannelID()),
			Time:      pair.Time(p.config.ClockPeriod),
			FastQdc:   Integrate(event.Corrected, maxIndex-p.config.PhoswichFastLow, maxIndex+p.config.PhoswichFastHigh),
			SlowQdc:   Integrate(event.Corrected, maxIndex+p.config.PhoswichSlowLow, maxIndex+p.config.PhoswichSlowHigh),
		}
		if pair.Entry != nil {
			record.Location = pair.Entry.Location
		}
		if p.config.TimingMode == CurveFit {
			p.fitFast(event, &record)
		}
		p.fast.Fill(record.FastQdc)
		p.slow.Fill(record.SlowQdc)
		batch.Phoswich = append(batch.Phoswich, record)
		p.counters.Good++
	}
}

// fitFast fits a Moyal shape to the fast component. A failed fit keeps the
// record with Fitted unset.
func (p *PhoswichProcessor) fitFast(event *ChannelEvent, record *PhoswichRecord) {
	low := max(event.MaxIndex-p.config.PhoswichFastLow, 0)
	high := min(event.MaxIndex+p.config.PhoswichFastHigh, len(event.Corrected)-1)
	xs := make([]float64, 0, high-low+1)
	ys := make([]float64, 0, high-low+1)
	for i := low; i <= high; i++ {
		xs = append(xs, float64(i))
		ys = append(ys, event.Corrected[i])
	}
	init := []float64{event.MaxAmplitude / math.Exp(-0.5), float64(event.MaxIndex), 1.65}
	result, err := fitLeastSquares(moyal, xs, ys, init)
	if err != nil {
		if p.config.Verbosity > 2 {
			message := fmt.Sprintf("Fast component fit failed: %v", err)
			logger.Info(message, "phoswich")
		}
		return
	}
	record.Fitted = true
	record.FitA = result.Params[0]
	record.FitMPV = result.Params[1]
	record.FitSigma = math.Abs(result.Params[2])
	record.FitChi2 = result.Chi2
	record.FitPhase = record.FitMPV - phoswichHWHM*record.FitSigma
	p.mpv.Fill(record.FitMPV)
}

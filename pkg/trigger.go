package scanner

import (
	"fmt"
)

func init() {
	RegisterProcessor("trigger", func(config Configuration) Processor {
		return NewTriggerProcessor(config)
	})
}

type TriggerProcessor struct {
	baseProcessor
	energy *Histogram
	phase  *Histogram
}

func NewTriggerProcessor(config Configuration) *TriggerProcessor {
	energy := NewHistogram("trigger_h1", "Trigger Energy", "Energy (a.u.)", 200, 0, 20000)
	phase := NewHistogram("trigger_h2", "Trigger Phase", "Phase (samples)", 100, 0, 100)
	return &TriggerProcessor{
		baseProcessor: newBaseProcessor("Trigger", config, energy, phase),
		energy:        energy,
		phase:         phase,
	}
}

func (p *TriggerProcessor) Process(start *ChannelEventPair, batch *RecordBatch) {
	for _, pair := range p.queue {
		event := &pair.Event
		if !event.Valid {
			continue
		}
		p.energy.Fill(event.HiResEnergy)
		p.phase.Fill(event.Phase)

		record := TriggerRecord{
			ChannelID: int(pair.Pulse.ChannelID()),
			Energy:    event.HiResEnergy,
			RawTime:   pair.Pulse.Timestamp,
			Phase:     event.Phase,
		}
		if p.config.Verbosity > 2 {
			message := fmt.Sprintf("Energy: %f, raw time: %d, phase: %f", record.Energy, record.RawTime, record.Phase)
			logger.Info(message, "trigger")
		}
		batch.Trigger = append(batch.Trigger, record)
		p.counters.Good++
	}
}

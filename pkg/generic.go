package scanner

func init() {
	RegisterProcessor("generic", func(config Configuration) Processor {
		return NewGenericProcessor(config)
	})
}

// GenericProcessor emits one record per valid pulse, with the time of
// flight to the start pulse when there is one.
type GenericProcessor struct {
	baseProcessor
	energy *Histogram
	tof    *Histogram
}

func NewGenericProcessor(config Configuration) *GenericProcessor {
	energy := NewHistogram("generic_h1", "Generic Energy", "Energy (a.u.)", 200, 0, 20000)
	tof := NewHistogram("generic_h2", "Generic Time of Flight", "TOF (ns)", 200, -100, 100)
	return &GenericProcessor{
		baseProcessor: newBaseProcessor("Generic", config, energy, tof),
		energy:        energy,
		tof:           tof,
	}
}

func (p *GenericProcessor) Process(start *ChannelEventPair, batch *RecordBatch) {
	t0, hasStart := p.startTime(start)
	for _, pair := range p.queue {
		if !pair.Event.Valid {
			continue
		}
		record := GenericRecord{
			ChannelID: int(pair.Pulse.ChannelID()),
			Energy:    pair.Event.HiResEnergy,
			Time:      pair.Event.HiResTime,
			Phase:     pair.Event.Phase,
			HasStart:  hasStart,
		}
		if pair.Entry != nil {
			record.Location = pair.Entry.Location
		}
		if hasStart {
			record.Tof = record.Time - t0
			p.tof.Fill(record.Tof)
		}
		p.energy.Fill(record.Energy)
		batch.Generic = append(batch.Generic, record)
		p.counters.Good++
	}
}

package scanner

import (
	"fmt"
	"sort"
)

// Processor consumes the queue of analyzed pulses of one detector type.
//
// Enqueue takes ownership of the pair. Process walks the queue in arrival
// order without consuming it, so it may run once per start pulse in the same
// window. WrapUp releases every queued pair and must be idempotent.
type Processor interface {
	Name() string
	Enqueue(pair *ChannelEventPair)
	Process(start *ChannelEventPair, batch *RecordBatch)
	WrapUp()
	Len() int
	Counters() ProcessorCounters
	Histograms() []*Histogram
}

type ProcessorCounters struct {
	Total      int `json:"total" db:"total"`
	Good       int `json:"good" db:"good"`
	Incomplete int `json:"incomplete" db:"incomplete"`
}

type ProcessorFactory func(config Configuration) Processor

var processorRegistry = make(map[string]ProcessorFactory)

// RegisterProcessor makes a processor available for a detector type. A
// second registration for the same type replaces the first.
func RegisterProcessor(detectorType string, factory ProcessorFactory) {
	processorRegistry[detectorType] = factory
}

func NewProcessor(detectorType string, config Configuration) (Processor, error) {
	factory, ok := processorRegistry[detectorType]
	if !ok {
		return nil, fmt.Errorf("no processor registered for detector type %q", detectorType)
	}
	return factory(config), nil
}

func RegisteredTypes() []string {
	types := make([]string, 0, len(processorRegistry))
	for detectorType := range processorRegistry {
		types = append(types, detectorType)
	}
	sort.Strings(types)
	return types
}

// baseProcessor carries the queue and counters shared by every processor.
type baseProcessor struct {
	name       string
	config     Configuration
	queue      []*ChannelEventPair
	counters   ProcessorCounters
	histograms []*Histogram
}

func newBaseProcessor(name string, config Configuration, histograms ...*Histogram) baseProcessor {
	return baseProcessor{
		name:       name,
		config:     config,
		queue:      make([]*ChannelEventPair, 0),
		histograms: histograms,
	}
}

func (p *baseProcessor) Name() string {
	return p.name
}

func (p *baseProcessor) Enqueue(pair *ChannelEventPair) {
	p.queue = append(p.queue, pair)
	p.counters.Total++
}

func (p *baseProcessor) WrapUp() {
	clear(p.queue)
	p.queue = p.queue[:0]
}

func (p *baseProcessor) Len() int {
	return len(p.queue)
}

func (p *baseProcessor) Counters() ProcessorCounters {
	return p.counters
}

func (p *baseProcessor) Histograms() []*Histogram {
	return p.histograms
}

// startTime returns the time of the start pulse, if there is one.
func (p *baseProcessor) startTime(start *ChannelEventPair) (float64, bool) {
	if start == nil {
		return 0, false
	}
	return start.Time(p.config.ClockPeriod), true
}

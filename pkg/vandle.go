package scanner

import (
	"fmt"
	"math"
	"sort"
)

const (
	VandleLeft  = "left"
	VandleRight = "right"
)

func init() {
	RegisterProcessor("vandle", func(config Configuration) Processor {
		return NewVandleProcessor(config)
	})
}

// VandleProcessor pairs the left and right ends of each bar. Only bars
// with both ends inside VandleMaxTdiff produce records.
type VandleProcessor struct {
	baseProcessor
	location *Histogram
	tdiff    *Histogram
	position *Histogram
}

func NewVandleProcessor(config Configuration) *VandleProcessor {
	location := NewHistogram("vandle_h1", "Vandle Location", "Location", 100, 0, 100)
	tdiff := NewHistogram("vandle_h2", "Vandle Time Difference", "Tdiff (ns)", 200, -100, 100)
	position := NewHistogram("vandle_h3", "Vandle Position", "Position (cm)", 200, -200, 200)
	return &VandleProcessor{
		baseProcessor: newBaseProcessor("Vandle", config, location, tdiff, position),
		location:      location,
		tdiff:         tdiff,
		position:      position,
	}
}

type vandleBar struct {
	location int
	left     []*ChannelEventPair
	right    []*ChannelEventPair
}

type vandleMatch struct {
	location    int
	left, right *ChannelEventPair
}

// groupBars collects the valid pulses of each bar, in location order.
func (p *VandleProcessor) groupBars() []*vandleBar {
	bars := make(map[int]*vandleBar)
	for _, pair := range p.queue {
		if !pair.Event.Valid || pair.Entry == nil {
			continue
		}
		bar, ok := bars[pair.Entry.Location]
		if !ok {
			bar = &vandleBar{location: pair.Entry.Location}
			bars[pair.Entry.Location] = bar
		}
		switch pair.Entry.Subtype {
		case VandleLeft:
			bar.left = append(bar.left, pair)
		case VandleRight:
			bar.right = append(bar.right, pair)
		}
	}
	sorted := make([]*vandleBar, 0, len(bars))
	for _, bar := range bars {
		sorted = append(sorted, bar)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].location < sorted[j].location
	})
	return sorted
}

// match pairs every left pulse with the first unused right pulse of the
// same bar within the maximum time difference. It also returns the pulses
// left without a partner.
func (p *VandleProcessor) match(bar *vandleBar) ([]vandleMatch, []*ChannelEventPair) {
	matches := make([]vandleMatch, 0)
	unmatched := make([]*ChannelEventPair, 0)
	used := make([]bool, len(bar.right))
	clock := p.config.ClockPeriod
	for _, left := range bar.left {
		matched := false
		for j, right := range bar.right {
			if used[j] {
				continue
			}
			if math.Abs(right.Time(clock)-left.Time(clock)) <= p.config.VandleMaxTdiff {
				used[j] = true
				matched = true
				matches = append(matches, vandleMatch{location: bar.location, left: left, right: right})
				break
			}
		}
		if !matched {
			unmatched = append(unmatched, left)
		}
	}
	for j, right := range bar.right {
		if !used[j] {
			unmatched = append(unmatched, right)
		}
	}
	return matches, unmatched
}

// incompleteGroups clusters unmatched pulses of a bar in time. Pulses within
// VandleMaxTdiff of the first pulse of a cluster belong to it.
func (p *VandleProcessor) incompleteGroups(unmatched []*ChannelEventPair) int {
	if len(unmatched) == 0 {
		return 0
	}
	clock := p.config.ClockPeriod
	times := make([]float64, len(unmatched))
	for i, pair := range unmatched {
		times[i] = pair.Time(clock)
	}
	sort.Float64s(times)
	groups := 1
	first := times[0]
	for _, t := range times[1:] {
		if t-first > p.config.VandleMaxTdiff {
			groups++
			first = t
		}
	}
	return groups
}

func (p *VandleProcessor) Process(start *ChannelEventPair, batch *RecordBatch) {
	t0, hasStart := p.startTime(start)
	clock := p.config.ClockPeriod
	for _, bar := range p.groupBars() {
		matches, _ := p.match(bar)
		for _, m := range matches {
			tLeft := m.left.Time(clock)
			tRight := m.right.Time(clock)
			leftEnergy := m.left.Event.HiResEnergy
			rightEnergy := m.right.Event.HiResEnergy
			record := VandleRecord{
				Location:    m.location,
				Tdiff:       tRight - tLeft,
				LeftEnergy:  leftEnergy,
				RightEnergy: rightEnergy,
				Qdc:         math.Sqrt(math.Abs(leftEnergy * rightEnergy)),
				HasStart:    hasStart,
			}
			record.Position = record.Tdiff * p.config.VandleLightSpeed / 2
			if hasStart {
				record.Tof = (tLeft+tRight)/2 - t0
			}
			p.location.Fill(float64(record.Location))
			p.tdiff.Fill(record.Tdiff)
			p.position.Fill(record.Position)
			batch.Vandle = append(batch.Vandle, record)
			p.counters.Good++
		}
	}
}

// WrapUp counts the groups of pulses left without a partner in each bar
// before releasing the queue. Calling it on an empty queue does nothing.
func (p *VandleProcessor) WrapUp() {
	if len(p.queue) == 0 {
		return
	}
	for _, bar := range p.groupBars() {
		_, unmatched := p.match(bar)
		groups := p.incompleteGroups(unmatched)
		if groups == 0 {
			continue
		}
		p.counters.Incomplete += groups
		if p.config.RecordIncomplete {
			message := fmt.Sprintf("Incomplete bar at location %d: %d unmatched pulses in %d groups",
				bar.location, len(unmatched), groups)
			logger.Info(message, "vandle")
		}
	}
	p.baseProcessor.WrapUp()
}

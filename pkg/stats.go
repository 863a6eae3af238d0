package scanner

// RunStatistics is the explicit summary of a run. The correlator owns one
// and hands out copies.
type RunStatistics struct {
	TotalEvents    int     `json:"total_events"`
	StartEvents    int     `json:"start_events"`
	FirstEventTime float64 `json:"first_event_time"` // s
	DeltaEventTime float64 `json:"delta_event_time"` // s
	Dropped        int     `json:"dropped"`
	Flushes        int     `json:"flushes"`
	OrphanedPairs  int     `json:"orphaned_pairs"`
	// Invalid pulses per analysis failure kind
	Invalid    map[string]int               `json:"invalid"`
	Processors map[string]ProcessorCounters `json:"processors"`
}

func newRunStatistics() RunStatistics {
	return RunStatistics{
		Invalid:    make(map[string]int),
		Processors: make(map[string]ProcessorCounters),
	}
}

func (s RunStatistics) InvalidEvents() int {
	total := 0
	for _, count := range s.Invalid {
		total += count
	}
	return total
}

func (s RunStatistics) clone() RunStatistics {
	c := s
	c.Invalid = make(map[string]int, len(s.Invalid))
	for kind, count := range s.Invalid {
		c.Invalid[kind] = count
	}
	c.Processors = make(map[string]ProcessorCounters, len(s.Processors))
	for name, counters := range s.Processors {
		c.Processors[name] = counters
	}
	return c
}

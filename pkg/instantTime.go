package scanner

import (
	"fmt"
	"io"
)

// InstantTime is one start pulse relative to the first start of the run.
// Both values are in ns.
type InstantTime struct {
	Time  float64
	Tdiff float64
}

// InstantTimes converts start timestamps, in clock ticks and arrival order,
// into times since the first start and the gap to the previous start. The
// first start only sets the origin and gets no entry.
func InstantTimes(ticks []uint64, clockPeriod float64) []InstantTime {
	if len(ticks) < 2 {
		return nil
	}
	first := ticks[0]
	times := make([]InstantTime, 0, len(ticks)-1)
	prev := 0.0
	for _, tick := range ticks[1:] {
		current := float64(int64(tick-first)) * clockPeriod
		times = append(times, InstantTime{Time: current, Tdiff: current - prev})
		prev = current
	}
	return times
}

func WriteInstantTimes(w io.Writer, times []InstantTime) error {
	if _, err := fmt.Fprintln(w, "# time (ns)\ttdiff (ns)"); err != nil {
		return err
	}
	for _, t := range times {
		if _, err := fmt.Fprintf(w, "%g\t%g\n", t.Time, t.Tdiff); err != nil {
			return err
		}
	}
	return nil
}

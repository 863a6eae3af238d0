package scanner

import (
	"fmt"
	"io"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// AlignTimes computes a time offset per channel as the mean of its times
// relative to the start detector. Channels with fewer than minEntries
// samples are left out. The result is sorted by channel.
func AlignTimes(samples map[ChannelID][]float64, minEntries int) []TimeCal {
	ids := make([]ChannelID, 0, len(samples))
	for id, values := range samples {
		if len(values) >= max(minEntries, 1) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	cals := make([]TimeCal, 0, len(ids))
	for _, id := range ids {
		offset := stat.Mean(samples[id], nil)
		cals = append(cals, TimeCal{ID: id, Offset: offset})
		if configuration.Verbosity > 1 {
			message := fmt.Sprintf("Channel %d: %d entries, t0 = %f ns", id, len(samples[id]), offset)
			logger.Info(message, "timeAlign")
		}
	}
	return cals
}

// WriteTimeCalibration writes offsets in the format read by
// ReadTimeCalibration.
func WriteTimeCalibration(w io.Writer, cals []TimeCal) error {
	if _, err := fmt.Fprintln(w, "# id\tt0 (ns)"); err != nil {
		return err
	}
	for _, cal := range cals {
		if _, err := fmt.Fprintf(w, "%d\t%g\n", cal.ID, cal.Offset); err != nil {
			return err
		}
	}
	return nil
}

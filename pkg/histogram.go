package scanner

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Histogram is a fixed binning 1D histogram filled incrementally during the
// run. Values outside [Low, High) go to the under/overflow counters.
type Histogram struct {
	Name      string
	Title     string
	XLabel    string
	Low       float64
	High      float64
	Counts    []float64
	Underflow float64
	Overflow  float64
	Entries   int
	dividers  []float64
}

func NewHistogram(name string, title string, xlabel string, bins int, low float64, high float64) *Histogram {
	return &Histogram{
		Name:     name,
		Title:    title,
		XLabel:   xlabel,
		Low:      low,
		High:     high,
		Counts:   make([]float64, bins),
		dividers: floats.Span(make([]float64, bins+1), low, high),
	}
}

func (h *Histogram) Fill(x float64) {
	h.Entries++
	switch {
	case x < h.Low:
		h.Underflow++
	case x >= h.High:
		h.Overflow++
	default:
		bin := sort.SearchFloat64s(h.dividers, x)
		// SearchFloat64s returns the first divider >= x
		if bin == len(h.dividers) || h.dividers[bin] > x {
			bin--
		}
		bin = min(bin, len(h.Counts)-1)
		h.Counts[bin]++
	}
}

func (h *Histogram) Bins() int {
	return len(h.Counts)
}

func (h *Histogram) BinWidth() float64 {
	return (h.High - h.Low) / float64(len(h.Counts))
}

func (h *Histogram) BinCenter(i int) float64 {
	return h.Low + (float64(i)+0.5)*h.BinWidth()
}

// Integral returns the number of in-range entries.
func (h *Histogram) Integral() float64 {
	return floats.Sum(h.Counts)
}

// Histogram2D is a fixed binning 2D histogram. Entries outside the ranges
// are only counted in Outside.
type Histogram2D struct {
	Name    string
	Title   string
	XLabel  string
	YLabel  string
	XBins   int
	XLow    float64
	XHigh   float64
	YBins   int
	YLow    float64
	YHigh   float64
	Counts  []float64 // XBins*YBins, x major
	Outside float64
	Entries int
}

func NewHistogram2D(name string, title string, xlabel string, ylabel string,
	xbins int, xlow float64, xhigh float64, ybins int, ylow float64, yhigh float64) *Histogram2D {
	return &Histogram2D{
		Name:   name,
		Title:  title,
		XLabel: xlabel,
		YLabel: ylabel,
		XBins:  xbins,
		XLow:   xlow,
		XHigh:  xhigh,
		YBins:  ybins,
		YLow:   ylow,
		YHigh:  yhigh,
		Counts: make([]float64, xbins*ybins),
	}
}

func binIndex(v float64, low float64, high float64, bins int) (int, bool) {
	if bins <= 0 || v < low || v >= high {
		return 0, false
	}
	bin := int((v - low) / (high - low) * float64(bins))
	return min(bin, bins-1), true
}

func (h *Histogram2D) Fill(x float64, y float64) {
	h.Entries++
	i, okX := binIndex(x, h.XLow, h.XHigh, h.XBins)
	j, okY := binIndex(y, h.YLow, h.YHigh, h.YBins)
	if !okX || !okY {
		h.Outside++
		return
	}
	h.Counts[i*h.YBins+j]++
}

// At returns the content of bin (i, j).
func (h *Histogram2D) At(i int, j int) float64 {
	return h.Counts[i*h.YBins+j]
}

// ProjectX sums the bins of every x column.
func (h *Histogram2D) ProjectX() []float64 {
	projection := make([]float64, h.XBins)
	for i := range projection {
		projection[i] = floats.Sum(h.Counts[i*h.YBins : (i+1)*h.YBins])
	}
	return projection
}

func (h *Histogram2D) Integral() float64 {
	return floats.Sum(h.Counts)
}

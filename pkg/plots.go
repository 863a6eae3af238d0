package scanner

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WriteHistograms renders every non empty histogram to dir/<name>.png and
// returns the files written.
func WriteHistograms(dir string, histograms []*Histogram) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating plots directory: %w", err)
	}
	files := make([]string, 0, len(histograms))
	for _, h := range histograms {
		if h.Integral() == 0 {
			continue
		}
		filename := filepath.Join(dir, h.Name+".png")
		if err := plotHistogram(h, filename); err != nil {
			return files, fmt.Errorf("error plotting %s: %w", h.Name, err)
		}
		files = append(files, filename)
		if configuration.Verbosity > 0 {
			message := fmt.Sprintf("Histogram %s written to %s", h.Name, filename)
			logger.Info(message, "plots")
		}
	}
	return files, nil
}

func plotHistogram(h *Histogram, filename string) error {
	p := plot.New()
	p.Title.Text = h.Title
	p.X.Label.Text = h.XLabel
	p.Y.Label.Text = "Counts"

	points := make(plotter.XYs, h.Bins())
	for i, count := range h.Counts {
		points[i] = plotter.XY{X: h.BinCenter(i), Y: count}
	}
	hist, err := plotter.NewHistogram(points, h.Bins())
	if err != nil {
		return err
	}
	// Keep the fixed binning instead of the one derived from the points
	width := h.BinWidth()
	for i := range hist.Bins {
		hist.Bins[i].Min = h.Low + float64(i)*width
		hist.Bins[i].Max = h.Low + float64(i+1)*width
		hist.Bins[i].Weight = h.Counts[i]
	}
	hist.Width = width
	p.Add(hist)
	p.X.Min = h.Low
	p.X.Max = h.High

	return p.Save(8*vg.Inch, 5*vg.Inch, filename)
}

// WriteHistograms2D renders every non empty 2D histogram as a heat map to
// dir/<name>.png and returns the files written.
func WriteHistograms2D(dir string, histograms []*Histogram2D) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating plots directory: %w", err)
	}
	files := make([]string, 0, len(histograms))
	for _, h := range histograms {
		if h.Integral() == 0 {
			continue
		}
		filename := filepath.Join(dir, h.Name+".png")
		if err := plotHeatMap(h, filename); err != nil {
			return files, fmt.Errorf("error plotting %s: %w", h.Name, err)
		}
		files = append(files, filename)
	}
	return files, nil
}

// histogramGrid exposes a Histogram2D as a plotter.GridXYZ.
type histogramGrid struct {
	h *Histogram2D
}

func (g histogramGrid) Dims() (int, int) {
	return g.h.XBins, g.h.YBins
}

func (g histogramGrid) Z(c int, r int) float64 {
	return g.h.At(c, r)
}

func (g histogramGrid) X(c int) float64 {
	return g.h.XLow + (float64(c)+0.5)*(g.h.XHigh-g.h.XLow)/float64(g.h.XBins)
}

func (g histogramGrid) Y(r int) float64 {
	return g.h.YLow + (float64(r)+0.5)*(g.h.YHigh-g.h.YLow)/float64(g.h.YBins)
}

func plotHeatMap(h *Histogram2D, filename string) error {
	p := plot.New()
	p.Title.Text = h.Title
	p.X.Label.Text = h.XLabel
	p.Y.Label.Text = h.YLabel

	p.Add(plotter.NewHeatMap(histogramGrid{h}, palette.Heat(64, 1)))
	p.X.Min = h.XLow
	p.X.Max = h.XHigh
	p.Y.Min = h.YLow
	p.Y.Max = h.YHigh

	return p.Save(8*vg.Inch, 6*vg.Inch, filename)
}

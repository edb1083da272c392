package monitor

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/calo.report/internal/calo/towers"
)

// Axes maps tower indices to tower-centre coordinates. *towers.Mapper
// satisfies it.
type Axes interface {
	Eta(i int) float64
	Phi(i int) float64
}

// towerGrid adapts a tower grid to plotter.GridXYZ with phi on the x
// axis and eta on the y axis.
type towerGrid struct {
	grid *towers.Grid
	axes Axes
}

func (t towerGrid) Dims() (c, r int)   { return t.grid.NPhi, t.grid.NEta }
func (t towerGrid) Z(c, r int) float64 { return t.grid.At(r, c) }
func (t towerGrid) X(c int) float64    { return t.axes.Phi(c) }
func (t towerGrid) Y(r int) float64    { return t.axes.Eta(r) }

// bounds returns the colour range of the heatmap.
func (t towerGrid) bounds() (lo, hi float64) {
	if len(t.grid.Energy) == 0 {
		return 0, 1
	}
	lo, hi = t.grid.Energy[0], t.grid.Energy[0]
	for _, e := range t.grid.Energy {
		if e < lo {
			lo = e
		}
		if e > hi {
			hi = e
		}
	}
	// A flat grid still needs a non-empty colour range.
	if hi == lo {
		hi = lo + 1
	}
	return lo, hi
}

var _ plotter.GridXYZ = towerGrid{}

// SavePNG writes a heatmap of the grid's transverse energy.
func SavePNG(path, title string, grid *towers.Grid, axes Axes) error {
	if grid == nil || axes == nil {
		return fmt.Errorf("nothing to plot")
	}
	if grid.NEta == 0 || grid.NPhi == 0 {
		return fmt.Errorf("grid is empty (%dx%d)", grid.NEta, grid.NPhi)
	}
	tg := towerGrid{grid: grid, axes: axes}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "phi (rad)"
	p.Y.Label.Text = "eta"

	hm := plotter.NewHeatMap(tg, moreland.SmoothBlueRed().Palette(64))
	hm.Min, hm.Max = tg.bounds()
	p.Add(hm)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create plot directory: %w", err)
	}
	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	diagf("wrote tower heatmap %s (%dx%d)", path, grid.NEta, grid.NPhi)
	return nil
}

// viridis is the colour ramp of the HTML heatmaps.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// RenderHTML writes an interactive heatmap of the occupied towers.
func RenderHTML(w io.Writer, title string, grid *towers.Grid, axes Axes) error {
	if grid == nil || axes == nil {
		return fmt.Errorf("nothing to plot")
	}
	etaMax, phiMax := 0.0, 0.0
	if grid.NEta > 0 {
		etaMax = -axes.Eta(0)
	}
	if grid.NPhi > 0 {
		phiMax = -axes.Phi(0)
	}

	data := make([]opts.ScatterData, 0, grid.Occupied())
	peak := 0.0
	for iEta := 0; iEta < grid.NEta; iEta++ {
		for iPhi := 0; iPhi < grid.NPhi; iPhi++ {
			e := grid.At(iEta, iPhi)
			if e == 0 {
				continue
			}
			if e > peak {
				peak = e
			}
			data = append(data, opts.ScatterData{Value: []interface{}{axes.Phi(iPhi), axes.Eta(iEta), e}})
		}
	}
	if peak == 0 {
		peak = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "1000px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("towers=%dx%d occupied=%d total=%.4g GeV", grid.NEta, grid.NPhi, len(data), grid.Total())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -phiMax, Max: phiMax, Name: "phi (rad)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -etaMax, Max: etaMax, Name: "eta", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(peak),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("towers", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// SaveHTML writes RenderHTML output to path.
func SaveHTML(path, title string, grid *towers.Grid, axes Axes) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create plot directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := RenderHTML(f, title, grid, axes); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	diagf("wrote tower chart %s", path)
	return nil
}

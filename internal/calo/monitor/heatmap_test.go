package monitor

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/calo.report/internal/calo/towers"
)

// linearAxes puts tower i at i - n/2 + 0.5 on both axes.
type linearAxes struct{ nEta, nPhi int }

func (a linearAxes) Eta(i int) float64 { return float64(i) - float64(a.nEta)/2 + 0.5 }
func (a linearAxes) Phi(i int) float64 { return float64(i) - float64(a.nPhi)/2 + 0.5 }

func testGrid() (*towers.Grid, linearAxes) {
	g := towers.NewGrid(4, 6)
	g.Add(1, 2, 3.5)
	g.Add(3, 5, 1.25)
	return g, linearAxes{nEta: 4, nPhi: 6}
}

func TestTowerGrid(t *testing.T) {
	g, axes := testGrid()
	tg := towerGrid{grid: g, axes: axes}

	c, r := tg.Dims()
	assert.Equal(t, 6, c, "phi on x")
	assert.Equal(t, 4, r, "eta on y")
	assert.Equal(t, 3.5, tg.Z(2, 1))
	assert.Equal(t, 1.25, tg.Z(5, 3))
	assert.Equal(t, -2.5, tg.X(0))
	assert.Equal(t, 1.5, tg.Y(3))

	lo, hi := tg.bounds()
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 3.5, hi)

	lo, hi = towerGrid{grid: towers.NewGrid(2, 2), axes: axes}.bounds()
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi, "flat grid gets a unit range")
}

func TestSavePNG(t *testing.T) {
	g, axes := testGrid()
	path := filepath.Join(t.TempDir(), "plots", "towers.png")

	require.NoError(t, SavePNG(path, "event 0", g, axes))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "file is a PNG")

	empty := filepath.Join(t.TempDir(), "empty.png")
	require.NoError(t, SavePNG(empty, "empty", towers.NewGrid(4, 6), axes))

	assert.Error(t, SavePNG(path, "none", towers.NewGrid(0, 0), axes))
	assert.Error(t, SavePNG(path, "nil", nil, axes))
}

func TestRenderHTML(t *testing.T) {
	g, axes := testGrid()
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, "event 7 towers", g, axes))

	html := buf.String()
	assert.Contains(t, html, "event 7 towers")
	assert.Contains(t, html, "echarts")

	assert.Error(t, RenderHTML(&buf, "nil", nil, axes))
}

func TestSaveHTML(t *testing.T) {
	g, axes := testGrid()
	path := filepath.Join(t.TempDir(), "towers.html")
	require.NoError(t, SaveHTML(path, "towers", g, axes))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

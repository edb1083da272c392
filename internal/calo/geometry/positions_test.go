package geometry

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/calo.report/internal/calo"
)

func TestKinematics(t *testing.T) {
	p := CylinderPoint(1500, 0.7, 0.3)
	assert.InDelta(t, 0.7, PseudoRapidity(p), 1e-12)
	assert.InDelta(t, 0.3, Azimuth(p), 1e-12)
	assert.InDelta(t, 1500, math.Hypot(p.X, p.Y), 1e-9)

	assert.InDelta(t, -0.2, DeltaPhi(math.Pi-0.1, -math.Pi+0.1), 1e-12)
	assert.InDelta(t, 0.2, DeltaPhi(-math.Pi+0.1, math.Pi-0.1), 1e-12)
	assert.InDelta(t, 0.5, DeltaPhi(1.0, 0.5), 1e-12)

	a := CylinderPoint(1, 0.5, 3.1)
	b := CylinderPoint(2, 0.5, -3.1)
	assert.InDelta(t, 2*math.Pi-6.2, DeltaR(a, b), 1e-9)

	assert.Equal(t, 0.0, PseudoRapidity(r3.Vec{}))
	assert.True(t, math.IsInf(PseudoRapidity(r3.Vec{Z: 1}), 1))
	assert.True(t, math.IsInf(PseudoRapidity(r3.Vec{Z: -1}), -1))
}

func TestCylinderPositions(t *testing.T) {
	coder := MustBitFieldCoder(testDescriptor)
	g, err := NewPhiEtaGrid("ecal", coder, 0.1, 0, 4, 0)
	require.NoError(t, err)

	p, err := NewCylinderPositions(g, 1000)
	require.NoError(t, err)
	pos := p.Position(g.CellID(0, 0, 0))
	assert.InDelta(t, 1000, pos.X, 1e-9)
	assert.InDelta(t, 0, pos.Y, 1e-9)
	assert.InDelta(t, 0, pos.Z, 1e-9)

	// Quarter turn in phi.
	pos = p.Position(g.CellID(0, 0, 1))
	assert.InDelta(t, 0, pos.X, 1e-9)
	assert.InDelta(t, 1000, pos.Y, 1e-9)

	layered, err := NewCylinderPositions(g, 1000, 1100, 1200)
	require.NoError(t, err)
	id, _ := coder.Set(g.CellID(0, 0, 0), "layer", 1)
	assert.InDelta(t, 1200, layered.Position(id).X, 1e-9)
	id, _ = coder.Set(id, "layer", 9)
	assert.InDelta(t, 1000, layered.Position(id).X, 1e-9, "layers outside the table use the base radius")

	_, err = NewCylinderPositions(InvalidSegmentation{ReadoutName: "x"}, 1000)
	assert.ErrorIs(t, err, ErrInvalidSegmentation)
	_, err = NewCylinderPositions(g, 0)
	assert.Error(t, err)

	noLayer, err := NewPhiEtaGrid("nolayer", MustBitFieldCoder("eta:-8,phi:8"), 0.1, 0, 4, 0)
	require.NoError(t, err)
	_, err = NewCylinderPositions(noLayer, 1000, 1100)
	assert.ErrorIs(t, err, ErrUnknownField)
}

type fixedPosition r3.Vec

func (f fixedPosition) Position(calo.CellID) r3.Vec { return r3.Vec(f) }

type countingPositions struct {
	calls int
}

func (c *countingPositions) Position(id calo.CellID) r3.Vec {
	c.calls++
	return r3.Vec{X: float64(id)}
}

func TestSystemPositions(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	defer SetLogWriters(nil, nil, nil)

	coder := MustBitFieldCoder(testDescriptor)
	s, err := NewSystemPositions(coder)
	require.NoError(t, err)
	s.Register(5, fixedPosition{X: 1})
	s.Register(8, fixedPosition{X: 2})

	ecal, _ := coder.Set(0, "system", 5)
	hcal, _ := coder.Set(0, "system", 8)
	muon, _ := coder.Set(0, "system", 12)

	assert.Equal(t, r3.Vec{X: 1}, s.Position(ecal))
	assert.Equal(t, r3.Vec{X: 2}, s.Position(hcal))
	assert.Equal(t, r3.Vec{}, s.Position(muon))
	assert.True(t, strings.Contains(ops.String(), "system 12"), "unknown system should warn: %q", ops.String())

	_, err = NewSystemPositions(MustBitFieldCoder("eta:-8,phi:8"))
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestCachedPositions(t *testing.T) {
	inner := &countingPositions{}
	c := NewCachedPositions(inner)

	assert.Equal(t, r3.Vec{X: 7}, c.Position(7))
	assert.Equal(t, r3.Vec{X: 7}, c.Position(7))
	assert.Equal(t, r3.Vec{X: 8}, c.Position(8))

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
	assert.Equal(t, 2, inner.calls)
}

package towers

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/calo.report/internal/calo"
	"github.com/banshee-data/calo.report/internal/calo/geometry"
)

// WindowShape selects which towers around a centre belong to a window.
type WindowShape int

const (
	// WindowRectangle takes every tower within the half sizes.
	WindowRectangle WindowShape = iota
	// WindowEllipse takes towers with (dEta/(hEta+0.5))² + (dPhi/(hPhi+0.5))² < 1.
	WindowEllipse
)

func (s WindowShape) String() string {
	switch s {
	case WindowRectangle:
		return "rectangle"
	case WindowEllipse:
		return "ellipse"
	default:
		return fmt.Sprintf("WindowShape(%d)", int(s))
	}
}

// ParseWindowShape accepts "rectangle" and "ellipse".
func ParseWindowShape(name string) (WindowShape, error) {
	switch name {
	case "rectangle", "":
		return WindowRectangle, nil
	case "ellipse":
		return WindowEllipse, nil
	default:
		return 0, fmt.Errorf("unknown window shape %q", name)
	}
}

// Window is a block of towers centred on (Eta, Phi), in tower indices.
type Window struct {
	Eta, Phi         int
	HalfEta, HalfPhi int
	Shape            WindowShape
}

// Contains reports whether the offset (dEta, dPhi) from the centre is
// inside the window.
func (w Window) Contains(dEta, dPhi int) bool {
	if dEta < -w.HalfEta || dEta > w.HalfEta || dPhi < -w.HalfPhi || dPhi > w.HalfPhi {
		return false
	}
	if w.Shape != WindowEllipse {
		return true
	}
	a := float64(dEta) / (float64(w.HalfEta) + 0.5)
	b := float64(dPhi) / (float64(w.HalfPhi) + 0.5)
	return a*a+b*b < 1
}

// AttachCells pulls every cell that contributed to a tower of the window
// from the index of the last build. Each cell is attached once even when
// it spans several towers of the window: a clone is appended to out and
// to the cluster's hits. The extended out is returned.
func (m *Mapper) AttachCells(w Window, cluster *calo.Cluster, out []calo.Cell) []calo.Cell {
	seen := make(map[calo.CellID]struct{})
	for dEta := -w.HalfEta; dEta <= w.HalfEta; dEta++ {
		for dPhi := -w.HalfPhi; dPhi <= w.HalfPhi; dPhi++ {
			if !w.Contains(dEta, dPhi) {
				continue
			}
			key := TowerKey{Eta: w.Eta + dEta, Phi: m.PhiNeighbour(w.Phi + dPhi)}
			for _, cell := range m.index.Cells(key) {
				if _, dup := seen[cell.ID]; dup {
					continue
				}
				seen[cell.ID] = struct{}{}
				out = append(out, cell.Clone())
				if cluster != nil {
					cluster.AddHit(cell)
				}
			}
		}
	}
	tracef("window (%d, %d) attached %d cells", w.Eta, w.Phi, len(seen))
	return out
}

// AttachCellsByScan selects cells straight from the event collections by
// the tower holding each cell centre, with no index needed. Phi offsets
// are taken the short way round.
func (m *Mapper) AttachCellsByScan(w Window, collections calo.Collections, cluster *calo.Cluster, out []calo.Cell) []calo.Cell {
	seen := make(map[calo.CellID]struct{})
	for _, src := range m.sources {
		if src.seg == nil {
			continue
		}
		for _, cell := range collections[src.Name] {
			if src.layer != nil && !src.Depth.Accept(src.layer.Value(cell.ID)) {
				continue
			}
			if _, dup := seen[cell.ID]; dup {
				continue
			}
			g, err := src.seg.Grid(cell.ID)
			if err != nil {
				opsf("source %s: %v", src.Name, err)
				continue
			}
			dEta := m.IDEta(g.Eta(cell.ID)) - w.Eta
			dPhi := m.phiOffset(m.PhiNeighbour(m.IDPhi(g.Phi(cell.ID))), w.Phi)
			if !w.Contains(dEta, dPhi) {
				continue
			}
			seen[cell.ID] = struct{}{}
			out = append(out, cell.Clone())
			if cluster != nil {
				cluster.AddHit(cell)
			}
		}
	}
	return out
}

// phiOffset returns the signed index distance from centre to i, wrapped
// into [-nPhi/2, nPhi/2].
func (m *Mapper) phiOffset(i, centre int) int {
	d := m.PhiNeighbour(i - centre)
	if d > m.nPhi/2 {
		d -= m.nPhi
	}
	return d
}

// TowerPosition returns the point at RadiusForPosition in the direction of
// the centre of tower (iEta, iPhi).
func (m *Mapper) TowerPosition(iEta, iPhi int) r3.Vec {
	return geometry.CylinderPoint(m.cfg.RadiusForPosition, m.Eta(iEta), m.Phi(m.PhiNeighbour(iPhi)))
}

// WindowEnergy sums the tower energies inside the window.
func (m *Mapper) WindowEnergy(grid *Grid, w Window) float64 {
	var sum float64
	for dEta := -w.HalfEta; dEta <= w.HalfEta; dEta++ {
		for dPhi := -w.HalfPhi; dPhi <= w.HalfPhi; dPhi++ {
			if w.Contains(dEta, dPhi) {
				sum += grid.At(w.Eta+dEta, m.PhiNeighbour(w.Phi+dPhi))
			}
		}
	}
	return sum
}

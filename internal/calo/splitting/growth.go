package splitting

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/calo.report/internal/calo"
	"github.com/banshee-data/calo.report/internal/calo/geometry"
)

// subCluster is a cluster being grown from one seed. Its centroid is kept
// as the energy-weighted position sum and the summed energy.
type subCluster struct {
	seed     calo.CellID
	weighted r3.Vec
	energy   float64
}

func (c *subCluster) add(e float64, p r3.Vec) {
	c.weighted = r3.Add(c.weighted, r3.Scale(e, p))
	c.energy += e
}

func (c *subCluster) remove(e float64, p r3.Vec) {
	c.weighted = r3.Sub(c.weighted, r3.Scale(e, p))
	c.energy -= e
}

func (c *subCluster) centroid() r3.Vec {
	if c.energy == 0 {
		return c.weighted
	}
	return r3.Scale(1/c.energy, c.weighted)
}

// growth holds the tables of one splitting pass: the cells of the input
// cluster, the sub-cluster owning each assigned cell, and the sub-cluster
// centroids. Sub-cluster IDs are indices into subs.
type growth struct {
	nb  geometry.NeighbourLookup
	pos geometry.PositionLookup

	cells     map[calo.CellID]calo.Cell
	owner     map[calo.CellID]int
	seeds     map[calo.CellID]bool
	positions map[calo.CellID]r3.Vec
	subs      []*subCluster
}

func newGrowth(cells map[calo.CellID]calo.Cell, seeds []calo.CellID, nb geometry.NeighbourLookup, pos geometry.PositionLookup) *growth {
	g := &growth{
		nb:        nb,
		pos:       pos,
		cells:     cells,
		owner:     make(map[calo.CellID]int, len(cells)),
		seeds:     make(map[calo.CellID]bool, len(seeds)),
		positions: make(map[calo.CellID]r3.Vec, len(cells)),
	}
	for _, id := range seeds {
		g.seeds[id] = true
		g.subs = append(g.subs, &subCluster{seed: id})
		g.assign(id, len(g.subs)-1)
	}
	return g
}

func (g *growth) position(id calo.CellID) r3.Vec {
	p, ok := g.positions[id]
	if !ok {
		p = g.pos.Position(id)
		g.positions[id] = p
	}
	return p
}

func (g *growth) assign(id calo.CellID, sub int) {
	g.owner[id] = sub
	g.subs[sub].add(g.cells[id].Energy, g.position(id))
}

func (g *growth) move(id calo.CellID, from, to int) {
	e, p := g.cells[id].Energy, g.position(id)
	g.subs[from].remove(e, p)
	g.subs[to].add(e, p)
	g.owner[id] = to
}

// contest reports whether the challenger should take the cell from its
// current owner. Seeds stay with their own sub-cluster.
func (g *growth) contest(id calo.CellID, challenger int) bool {
	if g.seeds[id] {
		return false
	}
	owner := g.owner[id]
	p := g.position(id)
	return closer(p, g.subs[challenger].centroid(), g.subs[owner].centroid())
}

// closer reports whether the cell at p is strictly nearer in ΔR to the
// challenger centroid than to the owner centroid. Ties keep the owner.
func closer(p, challenger, owner r3.Vec) bool {
	return geometry.DeltaR(p, challenger) < geometry.DeltaR(p, owner)
}

// run grows every sub-cluster in synchronous rounds. In each round a
// sub-cluster expands from the cells it gained in the previous round and
// still owns; cells gained from another sub-cluster join the next
// frontier too. Growth stops after a round that assigns no new cell,
// which bounds the number of rounds by the cluster size.
func (g *growth) run() (int, error) {
	frontier := make([][]calo.CellID, len(g.subs))
	for i, sub := range g.subs {
		frontier[i] = []calo.CellID{sub.seed}
	}

	rounds := 0
	for {
		next := make([][]calo.CellID, len(g.subs))
		added, moved := 0, 0
		for i := range g.subs {
			for _, id := range frontier[i] {
				if g.owner[id] != i {
					continue
				}
				neighbours := g.nb.Neighbours(id)
				if len(neighbours) == 0 {
					return rounds, fmt.Errorf("%w: cell %d", ErrNoNeighbours, id)
				}
				for _, n := range neighbours {
					if _, ok := g.cells[n]; !ok {
						continue
					}
					owner, assigned := g.owner[n]
					switch {
					case !assigned:
						g.assign(n, i)
						next[i] = append(next[i], n)
						added++
					case owner != i && g.contest(n, i):
						g.move(n, owner, i)
						next[i] = append(next[i], n)
						moved++
					}
				}
			}
		}
		rounds++
		tracef("round %d: %d cells assigned, %d reassigned", rounds, added, moved)
		if added == 0 {
			return rounds, nil
		}
		frontier = next
	}
}

// clusters builds the output: one Split cluster per sub-cluster, then a
// Leftover cluster for unassigned cells if there are any. Cells keep the
// order of hits; split cells keep their type, leftover cells are retyped.
func (g *growth) clusters(hits []calo.Cell) ([]calo.Cluster, int) {
	out := make([]calo.Cluster, len(g.subs))
	for i := range out {
		out[i].Type = calo.ClusterSplit
	}
	leftover := calo.Cluster{Type: calo.ClusterLeftover}
	for _, h := range hits {
		if sub, ok := g.owner[h.ID]; ok {
			out[sub].AddHit(h)
			continue
		}
		leftover.AddHit(h.WithType(calo.CellLeftover))
	}
	if len(leftover.Hits) > 0 {
		out = append(out, leftover)
	}
	for i := range out {
		out[i].Energy = out[i].HitEnergy()
		out[i].Position = WeightedPosition(out[i].Hits, posFunc(g.position))
	}
	return out, len(leftover.Hits)
}

// posFunc adapts a function to geometry.PositionLookup.
type posFunc func(calo.CellID) r3.Vec

func (f posFunc) Position(id calo.CellID) r3.Vec { return f(id) }

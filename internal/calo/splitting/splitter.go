package splitting

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/calo.report/internal/calo"
	"github.com/banshee-data/calo.report/internal/calo/geometry"
)

// ErrNoNeighbours is returned when the neighbour lookup has nothing for a
// cell of the cluster being split. The cluster cannot be processed.
var ErrNoNeighbours = errors.New("no neighbours for cell")

// Conservation compares a cluster (or an event) before and after
// splitting.
type Conservation struct {
	CellsBefore  int
	CellsAfter   int
	EnergyBefore float64
	EnergyAfter  float64
	EnergyOK     bool
}

// CellsOK reports whether every input cell was emitted exactly once.
func (c Conservation) CellsOK() bool { return c.CellsBefore == c.CellsAfter }

// OK reports whether both cell count and energy are conserved.
func (c Conservation) OK() bool { return c.CellsOK() && c.EnergyOK }

func (c *Conservation) add(o Conservation) {
	c.CellsBefore += o.CellsBefore
	c.CellsAfter += o.CellsAfter
	c.EnergyBefore += o.EnergyBefore
	c.EnergyAfter += o.EnergyAfter
}

// Result is the outcome of splitting one cluster.
type Result struct {
	// Clusters holds one Split cluster per confirmed seed followed by an
	// optional Leftover cluster, or the input as a single Unsplit cluster.
	Clusters []calo.Cluster
	// Seeds are the confirmed seeds in ascending energy order.
	Seeds []calo.CellID
	// Rounds is the number of growth rounds run, 0 when not split.
	Rounds int
	// Leftover is the number of cells no sub-cluster reached.
	Leftover     int
	Conservation Conservation
}

// Split reports whether the cluster was decomposed.
func (r Result) Split() bool { return len(r.Seeds) > 1 }

// Splitter decomposes clusters with several local maxima. It keeps no
// state between calls but is not meant to be shared between goroutines
// when its lookups are not.
type Splitter struct {
	cfg Config
	nb  geometry.NeighbourLookup
	pos geometry.PositionLookup
}

// NewSplitter validates cfg and binds the neighbour and position lookups.
func NewSplitter(cfg *Config, nb geometry.NeighbourLookup, pos geometry.PositionLookup) (*Splitter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil splitting config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid splitting config: %w", err)
	}
	if nb == nil {
		return nil, fmt.Errorf("no neighbour lookup configured")
	}
	if pos == nil {
		return nil, fmt.Errorf("no position lookup configured")
	}
	return &Splitter{cfg: *cfg, nb: nb, pos: pos}, nil
}

// Split classifies seeds in the cluster and, with two or more confirmed
// seeds, partitions its cells among sub-clusters grown from them. With
// fewer seeds the cluster is returned unchanged and marked Unsplit.
// Conservation mismatches are logged and flagged in the result, never
// returned as errors.
func (s *Splitter) Split(cluster calo.Cluster) (Result, error) {
	res := Result{Conservation: Conservation{
		CellsBefore:  len(cluster.Hits),
		EnergyBefore: cluster.Energy,
	}}

	cells := make(map[calo.CellID]calo.Cell, len(cluster.Hits))
	for _, h := range cluster.Hits {
		if _, dup := cells[h.ID]; dup {
			opsf("cell %d listed twice in cluster", h.ID)
		}
		cells[h.ID] = h
	}

	seeds, err := s.findSeeds(cluster.Hits, cells)
	if err != nil {
		return res, err
	}
	res.Seeds = seeds

	if len(seeds) < 2 {
		out := cluster.Clone()
		out.Type = calo.ClusterUnsplit
		res.Clusters = []calo.Cluster{out}
		s.check(&res)
		return res, nil
	}

	g := newGrowth(cells, seeds, s.nb, s.pos)
	if res.Rounds, err = g.run(); err != nil {
		return res, err
	}
	res.Clusters, res.Leftover = g.clusters(cluster.Hits)
	diagf("split cluster of %d cells (%.4g GeV) into %d in %d rounds, %d leftover cells",
		len(cluster.Hits), cluster.Energy, len(seeds), res.Rounds, res.Leftover)
	s.check(&res)
	return res, nil
}

// findSeeds returns confirmed seeds in ascending energy order. A seed
// candidate is a seed-type cell above threshold; it is confirmed when
// enough of its in-cluster neighbours are neighbour-type cells or seeds
// of no higher energy. A more energetic neighbouring seed rejects it.
func (s *Splitter) findSeeds(hits []calo.Cell, cells map[calo.CellID]calo.Cell) ([]calo.CellID, error) {
	var candidates []calo.Cell
	for _, h := range hits {
		if h.Type == calo.CellSeed && h.Energy > s.cfg.EnergyThreshold {
			candidates = append(candidates, h)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Energy != candidates[j].Energy {
			return candidates[i].Energy < candidates[j].Energy
		}
		return candidates[i].ID < candidates[j].ID
	})

	var seeds []calo.CellID
	for _, c := range candidates {
		neighbours := s.nb.Neighbours(c.ID)
		if len(neighbours) == 0 {
			return nil, fmt.Errorf("%w: seed candidate %d", ErrNoNeighbours, c.ID)
		}
		count, rejected := 0, false
		for _, id := range neighbours {
			n, ok := cells[id]
			if !ok {
				continue
			}
			switch n.Type {
			case calo.CellNeighbour:
				count++
			case calo.CellSeed:
				if n.Energy > c.Energy {
					rejected = true
				} else {
					count++
				}
			}
			if rejected {
				break
			}
		}
		if rejected {
			tracef("seed candidate %d (%.4g GeV) has a more energetic neighbouring seed", c.ID, c.Energy)
			continue
		}
		if count >= s.cfg.MinSeedNeighbours {
			seeds = append(seeds, c.ID)
		} else {
			tracef("seed candidate %d has %d supporting neighbours, need %d", c.ID, count, s.cfg.MinSeedNeighbours)
		}
	}
	return seeds, nil
}

func (s *Splitter) check(res *Result) {
	energies := make([]float64, len(res.Clusters))
	cells := 0
	for i, c := range res.Clusters {
		energies[i] = c.Energy
		cells += len(c.Hits)
	}
	res.Conservation.CellsAfter = cells
	res.Conservation.EnergyAfter = floats.Sum(energies)
	res.Conservation.EnergyOK = s.cfg.energyMatches(res.Conservation.EnergyBefore, res.Conservation.EnergyAfter)

	if !res.Conservation.CellsOK() {
		opsf("cell count changed by splitting: %d before, %d after",
			res.Conservation.CellsBefore, res.Conservation.CellsAfter)
	}
	if !res.Conservation.EnergyOK {
		opsf("energy changed by splitting: %.6g GeV before, %.6g GeV after",
			res.Conservation.EnergyBefore, res.Conservation.EnergyAfter)
	}
}

// Failure records a cluster the splitter could not process.
type Failure struct {
	Index int // position in the input slice
	Err   error
}

// EventResult is the outcome of splitting every cluster of one event.
type EventResult struct {
	Clusters []calo.Cluster
	Failures []Failure

	Split    int // input clusters that were decomposed
	Unsplit  int
	Leftover int // cells emitted in leftover clusters

	Conservation Conservation
}

// SplitEvent splits each cluster in turn. A cluster that fails is left out
// of the output and recorded in Failures; the rest of the event is still
// processed. Conservation covers the clusters that were processed.
func (s *Splitter) SplitEvent(clusters []calo.Cluster) EventResult {
	var ev EventResult
	for i, c := range clusters {
		res, err := s.Split(c)
		if err != nil {
			opsf("cluster %d: %v", i, err)
			ev.Failures = append(ev.Failures, Failure{Index: i, Err: err})
			continue
		}
		ev.Clusters = append(ev.Clusters, res.Clusters...)
		if res.Split() {
			ev.Split++
		} else {
			ev.Unsplit++
		}
		ev.Leftover += res.Leftover
		ev.Conservation.add(res.Conservation)
	}
	ev.Conservation.EnergyOK = s.cfg.energyMatches(ev.Conservation.EnergyBefore, ev.Conservation.EnergyAfter)
	return ev
}

// WeightedPosition returns Σ E·x / Σ E over cells, or the origin when the
// summed energy is zero.
func WeightedPosition(cells []calo.Cell, pos geometry.PositionLookup) r3.Vec {
	var sum r3.Vec
	var energy float64
	for _, c := range cells {
		sum = r3.Add(sum, r3.Scale(c.Energy, pos.Position(c.ID)))
		energy += c.Energy
	}
	if energy == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/energy, sum)
}

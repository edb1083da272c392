package synth

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/calo.report/internal/calo"
	"github.com/banshee-data/calo.report/internal/calo/pipeline"
	"github.com/banshee-data/calo.report/internal/calo/splitting"
	"github.com/banshee-data/calo.report/internal/calo/towers"
	"github.com/banshee-data/calo.report/internal/config"
)

// Config controls the synthetic event generator.
type Config struct {
	Seed               int64
	ShowersPerEvent    int
	ShowerEnergy       float64 // mean shower energy, GeV
	ShowerWidth        float64 // transverse spread in eta and phi
	SeedThreshold      float64 // GeV, cells above start a cluster
	NeighbourThreshold float64 // GeV, cells above grow a cluster
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Seed:               cfg.GetSynthSeed(),
		ShowersPerEvent:    cfg.GetSynthShowersPerEvent(),
		ShowerEnergy:       cfg.GetSynthShowerEnergy(),
		ShowerWidth:        cfg.GetSynthShowerWidth(),
		SeedThreshold:      cfg.GetSynthSeedThreshold(),
		NeighbourThreshold: cfg.GetSynthNeighbourThreshold(),
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.ShowersPerEvent < 0 {
		return fmt.Errorf("ShowersPerEvent must be non-negative, got %d", c.ShowersPerEvent)
	}
	if c.ShowerEnergy <= 0 {
		return fmt.Errorf("ShowerEnergy must be positive, got %f", c.ShowerEnergy)
	}
	if c.ShowerWidth <= 0 {
		return fmt.Errorf("ShowerWidth must be positive, got %f", c.ShowerWidth)
	}
	if c.NeighbourThreshold < 0 || c.NeighbourThreshold > c.SeedThreshold {
		return fmt.Errorf("thresholds must satisfy 0 <= neighbour (%f) <= seed (%f)", c.NeighbourThreshold, c.SeedThreshold)
	}
	return nil
}

// Shower is the true origin of one generated energy deposit.
type Shower struct {
	Eta    float64 `json:"eta"`
	Phi    float64 `json:"phi"`
	Energy float64 `json:"energy"`
}

// Event is one generated event: the cells of every collection, the
// showers that made them and the clusters formed from them.
type Event struct {
	Number      int
	Showers     []Shower
	Collections calo.Collections
	Clusters    []calo.Cluster
}

const (
	depositsPerShower = 400
	ecalFraction      = 0.7
	showerEtaRange    = 0.35
)

// Generator produces reproducible events on a Detector. It is not safe
// for concurrent use.
type Generator struct {
	det    *Detector
	cfg    Config
	rng    *rand.Rand
	energy distuv.Normal
	spread distuv.Normal
	eta    distuv.Uniform
	phi    distuv.Uniform
	next   int
}

// NewGenerator seeds every distribution from cfg.Seed.
func NewGenerator(det *Detector, cfg Config) (*Generator, error) {
	if det == nil {
		return nil, fmt.Errorf("nil detector")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generator config: %w", err)
	}
	src := rand.NewPCG(uint64(cfg.Seed), 0x9e3779b97f4a7c15)
	return &Generator{
		det:    det,
		cfg:    cfg,
		rng:    rand.New(src),
		energy: distuv.Normal{Mu: cfg.ShowerEnergy, Sigma: cfg.ShowerEnergy / 4, Src: src},
		spread: distuv.Normal{Mu: 0, Sigma: cfg.ShowerWidth, Src: src},
		eta:    distuv.Uniform{Min: -showerEtaRange, Max: showerEtaRange, Src: src},
		phi:    distuv.Uniform{Min: -math.Pi, Max: math.Pi, Src: src},
	}, nil
}

// Next generates the next event.
func (g *Generator) Next() *Event {
	ev := &Event{Number: g.next, Collections: calo.Collections{}}
	g.next++

	deposits := map[string]map[calo.CellID]float64{
		CollectionECal: {},
		CollectionHCal: {},
	}
	for i := 0; i < g.cfg.ShowersPerEvent; i++ {
		s := Shower{Eta: g.eta.Rand(), Phi: g.phi.Rand(), Energy: math.Max(g.energy.Rand(), 1)}
		ev.Showers = append(ev.Showers, s)
		g.deposit(s, deposits)
	}

	for _, name := range []string{CollectionECal, CollectionHCal} {
		cells := make([]calo.Cell, 0, len(deposits[name]))
		for id, e := range deposits[name] {
			cells = append(cells, calo.Cell{ID: id, Energy: e})
		}
		sort.Slice(cells, func(i, j int) bool { return cells[i].ID < cells[j].ID })
		ev.Collections[name] = cells
	}
	ev.Clusters = g.det.TopoClusters(ev.Collections, g.cfg.SeedThreshold, g.cfg.NeighbourThreshold)
	tracef("event %d: %d showers, %d cells, %d clusters", ev.Number, len(ev.Showers), ev.Collections.Size(), len(ev.Clusters))
	return ev
}

// deposit spreads the shower energy over cells: the ECal share with the
// nominal width, the HCal share twice as wide.
func (g *Generator) deposit(s Shower, into map[string]map[calo.CellID]float64) {
	e := s.Energy / depositsPerShower
	for i := 0; i < depositsPerShower; i++ {
		name, layers, width := CollectionECal, g.det.ECalLayers, 1.0
		if g.rng.Float64() >= ecalFraction {
			name, layers, width = CollectionHCal, g.det.HCalLayers, 2.0
		}
		l := layers[g.rng.IntN(len(layers))]
		id, ok := l.CellAt(s.Eta+width*g.spread.Rand(), s.Phi+width*g.spread.Rand())
		if !ok {
			continue
		}
		into[name][id] += e
	}
}

// PipelineEvent converts a generated event into pipeline input with one
// centre per shower, located on the mapper's tower grid. Showers outside
// the grid in eta get no centre.
func (e *Event) PipelineEvent(m *towers.Mapper) pipeline.Event {
	nEta, _ := m.TowersNumber()
	out := pipeline.Event{Number: e.Number, Collections: e.Collections, Clusters: e.Clusters}
	for _, s := range e.Showers {
		c := pipeline.Centre{Eta: m.IDEta(s.Eta), Phi: m.PhiNeighbour(m.IDPhi(s.Phi))}
		if c.Eta < 0 || c.Eta >= nEta {
			continue
		}
		out.Centres = append(out.Centres, c)
	}
	return out
}

// TopoClusters groups cells into connected islands: every cell above the
// seed threshold starts an island, which grows through linked cells above
// the neighbour threshold. Cells above the seed threshold are typed seed,
// the rest neighbour. Seeds are visited in descending energy.
func (d *Detector) TopoClusters(collections calo.Collections, seedThreshold, neighbourThreshold float64) []calo.Cluster {
	cells := make(map[calo.CellID]calo.Cell)
	var seeds []calo.Cell
	for _, name := range []string{CollectionECal, CollectionHCal} {
		for _, c := range collections[name] {
			if c.Energy <= neighbourThreshold {
				continue
			}
			c.Type = calo.CellNeighbour
			if c.Energy > seedThreshold {
				c.Type = calo.CellSeed
				seeds = append(seeds, c)
			}
			cells[c.ID] = c
		}
	}
	sort.Slice(seeds, func(i, j int) bool {
		if seeds[i].Energy != seeds[j].Energy {
			return seeds[i].Energy > seeds[j].Energy
		}
		return seeds[i].ID < seeds[j].ID
	})

	used := make(map[calo.CellID]bool, len(cells))
	var clusters []calo.Cluster
	for _, s := range seeds {
		if used[s.ID] {
			continue
		}
		var cl calo.Cluster
		queue := []calo.CellID{s.ID}
		used[s.ID] = true
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			cl.AddHit(cells[id])
			for _, n := range d.Neighbours.Neighbours(id) {
				if _, ok := cells[n]; ok && !used[n] {
					used[n] = true
					queue = append(queue, n)
				}
			}
		}
		cl.Energy = cl.HitEnergy()
		cl.Position = splitting.WeightedPosition(cl.Hits, d.Positions)
		clusters = append(clusters, cl)
	}
	return clusters
}

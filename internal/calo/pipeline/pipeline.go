package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/calo.report/internal/calo"
	"github.com/banshee-data/calo.report/internal/calo/geometry"
	"github.com/banshee-data/calo.report/internal/calo/splitting"
	"github.com/banshee-data/calo.report/internal/calo/towers"
)

// Geometry bundles the detector lookups shared by every pipeline of a
// run. Implementations must be safe for concurrent reads when used with
// RunEvents.
type Geometry struct {
	Readouts   geometry.ReadoutRegistry
	Neighbours geometry.NeighbourLookup
	Positions  geometry.PositionLookup
}

// Centre is a cluster centre in tower indices, as chosen by an upstream
// peak finder.
type Centre struct {
	Eta int `json:"eta"`
	Phi int `json:"phi"`
}

// Event is the input of one pipeline pass.
type Event struct {
	Number      int
	Collections calo.Collections
	// Centres select the windows whose cells are attached to new clusters.
	Centres []Centre
	// Clusters are pre-formed clusters handed to the splitter.
	Clusters []calo.Cluster
}

// AttachedSummary describes the cluster built around one centre.
type AttachedSummary struct {
	Centre      Centre  `json:"centre"`
	Cells       int     `json:"cells"`
	Energy      float64 `json:"energy"`
	TowerEnergy float64 `json:"tower_energy"`
}

// Summary is the per-event report of a pipeline pass.
type Summary struct {
	RunID string `json:"run_id"`
	Event int    `json:"event"`

	Cells          int     `json:"cells"`
	TowerEnergy    float64 `json:"tower_energy"`
	DroppedEnergy  float64 `json:"dropped_energy"`
	OccupiedTowers int     `json:"occupied_towers"`
	PeakEnergy     float64 `json:"peak_energy"`
	Peak           Centre  `json:"peak"`

	Attached []AttachedSummary `json:"attached"`

	InputClusters  int  `json:"input_clusters"`
	OutputClusters int  `json:"output_clusters"`
	SplitClusters  int  `json:"split_clusters"`
	Unsplit        int  `json:"unsplit_clusters"`
	LeftoverCells  int  `json:"leftover_cells"`
	Failures       int  `json:"failures"`
	Conserved      bool `json:"conserved"`
}

// Output is everything one pass produces. Grid belongs to the pipeline
// and is overwritten by the next call to Process.
type Output struct {
	Summary  Summary
	Grid     *towers.Grid
	Attached []calo.Cluster
	Split    splitting.EventResult
}

// Pipeline runs the tower mapper, the attacher and the splitter over one
// event at a time. It owns its mapper, splitter and grid and is not safe
// for concurrent use.
type Pipeline struct {
	runID    string
	cfg      Config
	mapper   *towers.Mapper
	splitter *splitting.Splitter
	grid     *towers.Grid
}

// NewRunID returns a fresh identifier for a batch of events.
func NewRunID() string { return uuid.New().String() }

// New builds a pipeline for the given run. An empty runID gets a new one.
func New(runID string, geo Geometry, cfg *Config) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil pipeline config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if runID == "" {
		runID = NewRunID()
	}
	mapper, err := towers.NewMapper(geo.Readouts, cfg.Towers)
	if err != nil {
		return nil, fmt.Errorf("tower mapper: %w", err)
	}
	splitter, err := splitting.NewSplitter(cfg.Splitting, geo.Neighbours, geo.Positions)
	if err != nil {
		return nil, fmt.Errorf("cluster splitter: %w", err)
	}
	return &Pipeline{
		runID:    runID,
		cfg:      *cfg,
		mapper:   mapper,
		splitter: splitter,
		grid:     mapper.NewGrid(),
	}, nil
}

// RunID returns the run this pipeline reports under.
func (p *Pipeline) RunID() string { return p.runID }

// Mapper returns the pipeline's tower mapper.
func (p *Pipeline) Mapper() *towers.Mapper { return p.mapper }

// Process builds the tower grid of the event, attaches cells around each
// centre, and splits the event's pre-formed clusters. Clusters the
// splitter cannot handle are counted in Summary.Failures and logged.
func (p *Pipeline) Process(ev Event) (*Output, error) {
	fillCells := len(ev.Centres) > 0
	n, err := p.mapper.BuildTowers(p.grid, ev.Collections, fillCells)
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", ev.Number, err)
	}

	out := &Output{Grid: p.grid}
	sum := &out.Summary
	sum.RunID = p.runID
	sum.Event = ev.Number
	sum.Cells = n
	sum.TowerEnergy = p.grid.Total()
	sum.DroppedEnergy = p.grid.Dropped
	sum.OccupiedTowers = p.grid.Occupied()
	var iEta, iPhi int
	sum.PeakEnergy, iEta, iPhi = p.grid.Max()
	sum.Peak = Centre{Eta: iEta, Phi: iPhi}

	for _, c := range ev.Centres {
		w := p.cfg.Window(c)
		cluster := calo.Cluster{Position: p.mapper.TowerPosition(c.Eta, c.Phi)}
		p.mapper.AttachCells(w, &cluster, nil)
		cluster.Energy = cluster.HitEnergy()
		out.Attached = append(out.Attached, cluster)
		sum.Attached = append(sum.Attached, AttachedSummary{
			Centre:      c,
			Cells:       len(cluster.Hits),
			Energy:      cluster.Energy,
			TowerEnergy: p.mapper.WindowEnergy(p.grid, w),
		})
		tracef("event %d centre (%d, %d): %d cells, %.4g GeV", ev.Number, c.Eta, c.Phi, len(cluster.Hits), cluster.Energy)
	}

	out.Split = p.splitter.SplitEvent(ev.Clusters)
	sum.InputClusters = len(ev.Clusters)
	sum.OutputClusters = len(out.Split.Clusters)
	sum.SplitClusters = out.Split.Split
	sum.Unsplit = out.Split.Unsplit
	sum.LeftoverCells = out.Split.Leftover
	sum.Failures = len(out.Split.Failures)
	sum.Conserved = out.Split.Conservation.OK()

	for _, f := range out.Split.Failures {
		opsf("run %s event %d cluster %d: %v", p.runID, ev.Number, f.Index, f.Err)
	}
	diagf("event %d: %d cells, %.4g GeV in %d towers, %d clusters -> %d",
		ev.Number, n, sum.TowerEnergy, sum.OccupiedTowers, sum.InputClusters, sum.OutputClusters)
	return out, nil
}

// RunEvents processes events with up to workers pipelines in parallel,
// each owned by one goroutine. Summaries are returned in input order. The
// first error, or cancellation of ctx, stops dispatch of further events.
func RunEvents(ctx context.Context, runID string, geo Geometry, cfg *Config, events []Event, workers int) ([]Summary, error) {
	if workers < 1 {
		workers = 1
	}
	if workers > len(events) {
		workers = len(events)
	}
	if runID == "" {
		runID = NewRunID()
	}
	diagf("run %s: %d events on %d workers", runID, len(events), workers)

	summaries := make([]Summary, len(events))
	var next atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			p, err := New(runID, geo, cfg)
			if err != nil {
				return err
			}
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				i := int(next.Add(1) - 1)
				if i >= len(events) {
					return nil
				}
				out, err := p.Process(events[i])
				if err != nil {
					return err
				}
				summaries[i] = out.Summary
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// Totals aggregates a run's summaries.
type Totals struct {
	RunID          string  `json:"run_id"`
	Events         int     `json:"events"`
	TowerEnergy    float64 `json:"tower_energy"`
	InputClusters  int     `json:"input_clusters"`
	OutputClusters int     `json:"output_clusters"`
	SplitClusters  int     `json:"split_clusters"`
	LeftoverCells  int     `json:"leftover_cells"`
	Failures       int     `json:"failures"`
	Conserved      bool    `json:"conserved"`
}

// Summarise folds per-event summaries into run totals.
func Summarise(runID string, summaries []Summary) Totals {
	t := Totals{RunID: runID, Events: len(summaries), Conserved: true}
	energies := make([]float64, len(summaries))
	for i, s := range summaries {
		energies[i] = s.TowerEnergy
		t.InputClusters += s.InputClusters
		t.OutputClusters += s.OutputClusters
		t.SplitClusters += s.SplitClusters
		t.LeftoverCells += s.LeftoverCells
		t.Failures += s.Failures
		t.Conserved = t.Conserved && s.Conserved
	}
	t.TowerEnergy = floats.Sum(energies)
	return t
}

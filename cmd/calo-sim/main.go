// Command calo-sim generates synthetic calorimeter events, maps their
// cells onto a tower grid, attaches cells to tower windows and splits
// multi-seed clusters, then prints a JSON report of the run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/calo.report/internal/calo/monitor"
	"github.com/banshee-data/calo.report/internal/calo/pipeline"
	"github.com/banshee-data/calo.report/internal/calo/synth"
	"github.com/banshee-data/calo.report/internal/config"
	"github.com/banshee-data/calo.report/internal/monitoring"
	"github.com/banshee-data/calo.report/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the tuning config JSON")
	numEvents   = flag.Int("events", 10, "Number of events to generate")
	workers     = flag.Int("workers", 0, "Worker goroutines (0 uses the tuning config)")
	plotDir     = flag.String("plots", "", "Directory for tower heatmaps of the first event (empty disables)")
	runID       = flag.String("run-id", "", "Run identifier (empty generates a UUID)")
	withEndcap  = flag.Bool("endcap", false, "Include the endcap readout as an optional tower source")
	verbose     = flag.Bool("v", false, "Enable diagnostic logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

type options struct {
	ConfigPath string
	Events     int
	Workers    int
	PlotDir    string
	RunID      string
	Endcap     bool
	Verbose    bool
}

// report is the JSON document written to stdout.
type report struct {
	Totals pipeline.Totals    `json:"totals"`
	Events []pipeline.Summary `json:"events"`
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("calo-sim"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		ConfigPath: *configPath,
		Events:     *numEvents,
		Workers:    *workers,
		PlotDir:    *plotDir,
		RunID:      *runID,
		Endcap:     *withEndcap,
		Verbose:    *verbose,
	}
	if err := run(ctx, opts, os.Stdout, os.Stderr); err != nil {
		log.Fatalf("calo-sim: %v", err)
	}
}

func run(ctx context.Context, o options, stdout, stderr io.Writer) error {
	var diag io.Writer
	if o.Verbose {
		diag = stderr
	}
	monitoring.SetLogWriters(stderr, diag, nil)
	monitoring.SetLogger(log.New(stderr, "[calo-sim] ", log.LstdFlags).Printf)

	if o.Events < 0 {
		return fmt.Errorf("events must be non-negative, got %d", o.Events)
	}
	cfg, err := config.LoadTuningConfig(o.ConfigPath)
	if err != nil {
		return err
	}
	det, err := synth.NewDetector()
	if err != nil {
		return fmt.Errorf("build detector: %w", err)
	}
	pcfg, err := pipeline.ConfigFromTuning(cfg, det.Sources(o.Endcap)...)
	if err != nil {
		return err
	}
	gen, err := synth.NewGenerator(det, synth.ConfigFromTuning(cfg))
	if err != nil {
		return err
	}

	id := o.RunID
	if id == "" {
		id = pipeline.NewRunID()
	}
	p, err := pipeline.New(id, det.Geometry(), pcfg)
	if err != nil {
		return err
	}

	events := make([]pipeline.Event, o.Events)
	for i := range events {
		events[i] = gen.Next().PipelineEvent(p.Mapper())
	}

	n := o.Workers
	if n <= 0 {
		n = cfg.GetWorkers()
	}
	start := time.Now()
	summaries, err := pipeline.RunEvents(ctx, id, det.Geometry(), pcfg, events, n)
	if err != nil {
		return err
	}
	monitoring.Logf("run %s: %d events on %d workers in %s", id, len(events), n, time.Since(start).Round(time.Millisecond))

	if o.PlotDir != "" && len(events) > 0 {
		if err := plotEvent(p, events[0], o.PlotDir); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report{Totals: pipeline.Summarise(id, summaries), Events: summaries})
}

// plotEvent writes the tower grid of ev as a PNG heatmap and an HTML chart.
func plotEvent(p *pipeline.Pipeline, ev pipeline.Event, dir string) error {
	out, err := p.Process(ev)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("run %s event %d", p.RunID(), ev.Number)
	if err := monitor.SavePNG(filepath.Join(dir, "towers.png"), title, out.Grid, p.Mapper()); err != nil {
		return err
	}
	if err := monitor.SaveHTML(filepath.Join(dir, "towers.html"), title, out.Grid, p.Mapper()); err != nil {
		return err
	}
	monitoring.Logf("wrote tower plots for event %d to %s", ev.Number, dir)
	return nil
}

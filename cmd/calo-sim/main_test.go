package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/calo.report/internal/calo/geometry"
	"github.com/banshee-data/calo.report/internal/config"
	"github.com/banshee-data/calo.report/internal/monitoring"
)

var defaultsPath = filepath.Join("..", "..", config.DefaultConfigPath)

func runReport(t *testing.T, o options) (report, string) {
	t.Helper()
	origLogf := monitoring.Logf
	t.Cleanup(func() {
		monitoring.SetLogWriters(nil, nil, nil)
		monitoring.Logf = origLogf
	})

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), o, &stdout, &stderr))
	var r report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &r))
	return r, stderr.String()
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	r, logs := runReport(t, options{ConfigPath: defaultsPath, Events: 3, Workers: 2, RunID: "run-1", PlotDir: dir})

	assert.Equal(t, "run-1", r.Totals.RunID)
	assert.Equal(t, 3, r.Totals.Events)
	assert.True(t, r.Totals.Conserved)
	require.Len(t, r.Events, 3)
	for i, s := range r.Events {
		assert.Equal(t, i, s.Event)
		assert.Equal(t, "run-1", s.RunID)
		assert.Positive(t, s.Cells)
	}
	assert.Contains(t, logs, "[calo-sim]")

	for _, name := range []string{"towers.png", "towers.html"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestRunIsReproducible(t *testing.T) {
	a, _ := runReport(t, options{ConfigPath: defaultsPath, Events: 4, Workers: 1, RunID: "same"})
	b, _ := runReport(t, options{ConfigPath: defaultsPath, Events: 4, Workers: 3, RunID: "same"})
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("reports differ (-serial +parallel):\n%s", diff)
	}
}

func TestRunVerboseLogsDiagnostics(t *testing.T) {
	_, logs := runReport(t, options{ConfigPath: defaultsPath, Events: 1, RunID: "v", Verbose: true})
	assert.Contains(t, logs, "[towers]")
	assert.Contains(t, logs, "[synth]")
}

func TestRunErrors(t *testing.T) {
	t.Cleanup(func() { monitoring.SetLogWriters(nil, nil, nil) })
	var out bytes.Buffer

	err := run(context.Background(), options{ConfigPath: "missing.json", Events: 1}, &out, &out)
	assert.Error(t, err)

	err = run(context.Background(), options{ConfigPath: defaultsPath, Events: -1}, &out, &out)
	assert.Error(t, err)

	err = run(context.Background(), options{ConfigPath: defaultsPath, Events: 1, Endcap: true}, &out, &out)
	assert.True(t, errors.Is(err, geometry.ErrInvalidSegmentation), "got %v", err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = run(ctx, options{ConfigPath: defaultsPath, Events: 2}, &out, &out)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, config.DefaultConfigPath, *configPath)
	assert.Equal(t, 10, *numEvents)
	assert.Zero(t, *workers)
	assert.Empty(t, *plotDir)
	assert.False(t, *withEndcap)
	assert.False(t, *showVersion)
}

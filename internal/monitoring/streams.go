package monitoring

import (
	"io"

	"github.com/banshee-data/calo.report/internal/calo/geometry"
	"github.com/banshee-data/calo.report/internal/calo/monitor"
	"github.com/banshee-data/calo.report/internal/calo/pipeline"
	"github.com/banshee-data/calo.report/internal/calo/splitting"
	"github.com/banshee-data/calo.report/internal/calo/synth"
	"github.com/banshee-data/calo.report/internal/calo/towers"
)

// SetLogWriters routes the ops, diag and trace streams of every calo
// package. Pass nil for any writer to disable that stream everywhere.
func SetLogWriters(ops, diag, trace io.Writer) {
	geometry.SetLogWriters(ops, diag, trace)
	towers.SetLogWriters(ops, diag, trace)
	splitting.SetLogWriters(ops, diag, trace)
	pipeline.SetLogWriters(ops, diag, trace)
	synth.SetLogWriters(ops, diag, trace)
	monitor.SetLogWriters(ops, diag, trace)
}

// SetLegacyLogger routes all three streams of every calo package to a
// single writer. Pass nil to disable all logging.
func SetLegacyLogger(w io.Writer) {
	SetLogWriters(w, w, w)
}

// Package testutil provides shared test helpers for the calorimeter
// packages.
//
// The helpers take testing.TB and report with Errorf, so a failed check
// does not stop the calling test.
package testutil

import (
	"bytes"
	"io"
	"math"
	"sort"
	"testing"

	"github.com/banshee-data/calo.report/internal/calo"
)

// EnergyTolerance is the relative tolerance used when comparing summed
// energies in tests.
const EnergyTolerance = 1e-9

// ClusterEnergy sums Energy over clusters.
func ClusterEnergy(clusters []calo.Cluster) float64 {
	var sum float64
	for _, c := range clusters {
		sum += c.Energy
	}
	return sum
}

// AssertEnergyClose checks that got is within EnergyTolerance of want,
// relative to |want|, with an absolute floor of EnergyTolerance.
func AssertEnergyClose(t testing.TB, want, got float64) bool {
	t.Helper()
	limit := math.Max(EnergyTolerance*math.Abs(want), EnergyTolerance)
	if math.Abs(want-got) > limit {
		t.Errorf("energy = %.12g, want %.12g (diff %.3g > %.3g)", got, want, math.Abs(want-got), limit)
		return false
	}
	return true
}

// AssertPartition checks that the hits of out are exactly the hits of in,
// each cell once, compared by ID.
func AssertPartition(t testing.TB, in calo.Cluster, out []calo.Cluster) bool {
	t.Helper()
	want := make(map[calo.CellID]int, len(in.Hits))
	for _, h := range in.Hits {
		want[h.ID]++
	}
	got := make(map[calo.CellID]int, len(in.Hits))
	for _, c := range out {
		for _, h := range c.Hits {
			got[h.ID]++
		}
	}

	var bad []calo.CellID
	for id, n := range want {
		if got[id] != n {
			bad = append(bad, id)
		}
	}
	for id := range got {
		if _, ok := want[id]; !ok {
			bad = append(bad, id)
		}
	}
	if len(bad) == 0 {
		return true
	}
	sort.Slice(bad, func(i, j int) bool { return bad[i] < bad[j] })
	t.Errorf("%d cells not partitioned exactly once, first %d: in %d times, out %d times",
		len(bad), bad[0], want[bad[0]], got[bad[0]])
	return false
}

// LogBuffer routes the ops stream of a package to a buffer through the
// package's SetLogWriters, and disables logging again when the test ends.
func LogBuffer(t testing.TB, set func(ops, diag, trace io.Writer)) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	set(&buf, nil, nil)
	t.Cleanup(func() { set(nil, nil, nil) })
	return &buf
}

// Package splitting decomposes calorimeter clusters that contain several
// local energy maxima.
//
// A seed cell is confirmed when it has enough supporting neighbours and no
// more energetic seed next to it. With two or more confirmed seeds the
// cluster's cells are shared out by growing one sub-cluster per seed in
// synchronous breadth-first rounds; a cell reached by two sub-clusters
// goes to the one whose energy-weighted centroid is strictly closer in ΔR.
// Cells no sub-cluster reaches form a leftover cluster.
//
// Key types: Config, Splitter, Result, EventResult.
//
// Dependency rule: splitting depends on calo and geometry.
package splitting

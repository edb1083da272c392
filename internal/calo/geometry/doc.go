// Package geometry adapts detector readouts for the tower and splitting
// layers.
//
// Responsibilities: decode bit-packed cell IDs, map cells to (eta, phi)
// bins through a segmentation, resolve readout names, answer neighbour and
// position queries.
//
// Key types: BitFieldCoder, Segmentation (PhiEtaGrid, MultiSegmentation,
// InvalidSegmentation), Detector, NeighbourGraph, CylinderPositions,
// SystemPositions, CachedPositions.
//
// Dependency rule: geometry depends on calo only. Building a full detector
// description is outside this package; callers register readouts and
// neighbour links themselves (see package synth for a worked example).
package geometry

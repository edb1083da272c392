// Package synth builds a small synthetic calorimeter barrel and generates
// reproducible events on it for tests, demos and the calo-sim command.
//
// The ECal is a single phi-eta grid; the HCal is a multi-segmentation
// whose outer layers are coarser. Showers are sampled with gonum's
// distuv and grouped into topological clusters whose cells carry seed and
// neighbour types, ready for splitting.
package synth

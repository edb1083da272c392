// Package pipeline drives the calorimeter reconstruction for one event:
// build the tower grid, attach cells around each supplied cluster centre,
// and split the event's pre-formed clusters.
//
// This package is the composition root: it imports geometry, towers and
// splitting, and none of those import pipeline. Choosing the cluster
// centres is left to the caller.
package pipeline

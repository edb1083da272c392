// Package calo holds the value types shared by the calorimeter
// reconstruction layers: cells, cell collections and clusters.
//
// Responsibilities: identity and ownership rules for cells and clusters.
// Key types: Cell, CellID, Collections, Cluster.
//
// Dependency rule: calo depends on nothing else in this module. The
// geometry, towers and splitting packages all build on it.
package calo

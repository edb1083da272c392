// Package towers re-bins calorimeter cells into a uniform (eta, phi) tower
// grid and pulls cells back out of it around cluster centres.
//
// Responsibilities: size the tower grid from the segmentation extrema of
// every source, apportion each cell's transverse energy over the towers it
// overlaps, apply per-source depth filters, keep the tower-to-cells index,
// and attach indexed cells to clusters through rectangular or elliptical
// windows.
//
// Key types: Config, Mapper, Grid, CellIndex, Window.
//
// Dependency rule: towers depends on calo and geometry. Choosing which
// towers become cluster centres is left to the caller.
package towers

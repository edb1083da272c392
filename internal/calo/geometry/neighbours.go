package geometry

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/banshee-data/calo.report/internal/calo"
)

// NeighbourLookup returns the cells adjacent to a cell, ordered by ID.
// An empty result means the cell is unknown to the lookup.
type NeighbourLookup interface {
	Neighbours(id calo.CellID) []calo.CellID
}

// NeighbourGraph is an undirected adjacency graph over cell IDs. Cell IDs
// are stored as graph node IDs by bit reinterpretation.
type NeighbourGraph struct {
	g *simple.UndirectedGraph
}

// NewNeighbourGraph returns an empty graph.
func NewNeighbourGraph() *NeighbourGraph {
	return &NeighbourGraph{g: simple.NewUndirectedGraph()}
}

func nodeID(id calo.CellID) int64 { return int64(id) }

// Link records a and b as neighbours. Self links are ignored.
func (n *NeighbourGraph) Link(a, b calo.CellID) {
	if a == b {
		return
	}
	if n.g.HasEdgeBetween(nodeID(a), nodeID(b)) {
		return
	}
	n.g.SetEdge(n.g.NewEdge(n.node(a), n.node(b)))
}

func (n *NeighbourGraph) node(id calo.CellID) graph.Node {
	if existing := n.g.Node(nodeID(id)); existing != nil {
		return existing
	}
	node := simple.Node(nodeID(id))
	n.g.AddNode(node)
	return node
}

// Neighbours implements NeighbourLookup.
func (n *NeighbourGraph) Neighbours(id calo.CellID) []calo.CellID {
	if n.g.Node(nodeID(id)) == nil {
		return nil
	}
	nodes := graph.NodesOf(n.g.From(nodeID(id)))
	out := make([]calo.CellID, len(nodes))
	for i, node := range nodes {
		out[i] = calo.CellID(node.ID())
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Cells returns the number of cells in the graph.
func (n *NeighbourGraph) Cells() int { return n.g.Nodes().Len() }

// Links returns the number of neighbour pairs.
func (n *NeighbourGraph) Links() int { return n.g.Edges().Len() }

// LinkGrid links every cell of a phi-eta grid with eta index in
// [etaMin, etaMax] to its adjacent cells, wrapping in phi. With diagonal
// set, corner-sharing cells are linked too. base carries the fields other
// than eta and phi.
func (n *NeighbourGraph) LinkGrid(grid *PhiEtaGrid, base calo.CellID, etaMin, etaMax int64, diagonal bool) error {
	if grid == nil {
		return fmt.Errorf("nil grid")
	}
	if etaMin > etaMax {
		return fmt.Errorf("empty eta index range [%d, %d]", etaMin, etaMax)
	}
	bins := int64(grid.PhiBins)
	for eta := etaMin; eta <= etaMax; eta++ {
		for phi := int64(0); phi < bins; phi++ {
			id := grid.CellID(base, eta, phi)
			n.node(id)
			for dEta := int64(-1); dEta <= 1; dEta++ {
				for dPhi := int64(-1); dPhi <= 1; dPhi++ {
					if dEta == 0 && dPhi == 0 {
						continue
					}
					if !diagonal && dEta != 0 && dPhi != 0 {
						continue
					}
					e := eta + dEta
					if e < etaMin || e > etaMax {
						continue
					}
					p := ((phi+dPhi)%bins + bins) % bins
					n.Link(id, grid.CellID(base, e, p))
				}
			}
		}
	}
	diagf("linked grid %s eta [%d, %d] x %d phi bins: %d cells, %d links", grid.Name(), etaMin, etaMax, bins, n.Cells(), n.Links())
	return nil
}

var _ NeighbourLookup = (*NeighbourGraph)(nil)

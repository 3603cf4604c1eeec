// Package render draws trees for people: a static SVG dendrogram and an
// interactive viewer page.
package render

import (
	"github.com/banshee-data/phylo.report/internal/newick"
)

// Point is a position in tree coordinates. X grows with distance from the
// root, Y with leaf order.
type Point struct {
	X, Y float64
}

// Segment is one straight edge of the drawing.
type Segment struct {
	From, To Point
}

// LeafLabel places a leaf name.
type LeafLabel struct {
	Point
	Name string
}

// Layout is a rectangular dendrogram.
type Layout struct {
	Segments []Segment
	Leaves   []LeafLabel
	// Depth is the largest X of any node.
	Depth float64
	// Scaled reports whether X is branch length rather than node depth.
	Scaled bool
}

// NewLayout lays out root as a rectangular dendrogram. Leaves sit at
// consecutive integer Y values in tree order and every internal node is
// centred between its first and last child. When the tree carries no
// positive branch length, every edge is drawn with unit length.
func NewLayout(root *newick.JSONNode) *Layout {
	l := &Layout{Scaled: hasLengths(root)}
	l.place(root, 0, true)
	return l
}

func hasLengths(n *newick.JSONNode) bool {
	if n.BranchLength != nil && *n.BranchLength > 0 {
		return true
	}
	for _, c := range n.Children {
		if hasLengths(c) {
			return true
		}
	}
	return false
}

func (l *Layout) edge(n *newick.JSONNode) float64 {
	if !l.Scaled {
		return 1
	}
	if n.BranchLength == nil {
		return 0
	}
	return *n.BranchLength
}

// place positions n with its parent at parentX and returns n's Y.
func (l *Layout) place(n *newick.JSONNode, parentX float64, isRoot bool) float64 {
	x := parentX
	if !isRoot {
		x += l.edge(n)
	}
	if x > l.Depth {
		l.Depth = x
	}

	var y float64
	if len(n.Children) == 0 {
		y = float64(len(l.Leaves))
		l.Leaves = append(l.Leaves, LeafLabel{Point: Point{X: x, Y: y}, Name: n.Name})
	} else {
		first := l.place(n.Children[0], x, false)
		last := first
		for _, c := range n.Children[1:] {
			last = l.place(c, x, false)
		}
		y = (first + last) / 2
		l.Segments = append(l.Segments, Segment{From: Point{X: x, Y: first}, To: Point{X: x, Y: last}})
	}

	if !isRoot {
		l.Segments = append(l.Segments, Segment{From: Point{X: parentX, Y: y}, To: Point{X: x, Y: y}})
	}
	return y
}

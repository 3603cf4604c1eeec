package newick

// Node is one clade of a rooted tree. A node with no children is a leaf.
type Node struct {
	Name string

	// BranchLength is nil when the source gave no ":length".
	BranchLength *float64

	// Confidence holds a numeric internal label (bootstrap or other
	// support value). Name is empty when it is set.
	Confidence *float64

	Children []*Node
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Walk visits n and its descendants depth first in child order. depth is 0
// for n. Returning false from fn skips the node's children.
func (n *Node) Walk(fn func(node *Node, depth int) bool) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// Leaves returns the leaves of the tree rooted at n in left-to-right order.
func (n *Node) Leaves() []*Node {
	var leaves []*Node
	n.Walk(func(node *Node, _ int) bool {
		if node.IsLeaf() {
			leaves = append(leaves, node)
		}
		return true
	})
	return leaves
}

func float64Ptr(v float64) *float64 { return &v }

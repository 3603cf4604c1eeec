package newick

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the size and branch length distribution of a tree.
type Summary struct {
	Leaves             int     `json:"leaves"`
	InternalNodes      int     `json:"internal_nodes"`
	TotalLength        float64 `json:"total_length"`
	MeanBranchLength   float64 `json:"mean_branch_length"`
	StdDevBranchLength float64 `json:"stddev_branch_length"`
	MaxRootToTip       float64 `json:"max_root_to_tip"`
}

// Summarize computes a Summary for the tree rooted at root. The root's own
// branch length is excluded; absent lengths count as 0 toward root-to-tip
// distances and are left out of the mean and standard deviation.
func Summarize(root *Node) Summary {
	var s Summary
	var lengths []float64

	var visit func(n *Node, dist float64, isRoot bool)
	visit = func(n *Node, dist float64, isRoot bool) {
		if !isRoot && n.BranchLength != nil {
			lengths = append(lengths, *n.BranchLength)
			dist += *n.BranchLength
		}
		if n.IsLeaf() {
			s.Leaves++
			if dist > s.MaxRootToTip {
				s.MaxRootToTip = dist
			}
			return
		}
		s.InternalNodes++
		for _, c := range n.Children {
			visit(c, dist, false)
		}
	}
	visit(root, 0, true)

	switch len(lengths) {
	case 0:
	case 1:
		s.TotalLength = lengths[0]
		s.MeanBranchLength = lengths[0]
	default:
		s.TotalLength = floats.Sum(lengths)
		s.MeanBranchLength, s.StdDevBranchLength = stat.MeanStdDev(lengths, nil)
	}

	return s
}

package newick

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// placeholderLabel stands in for an unnamed clade, the way the tree parser
// describes clades it had to name itself.
const placeholderLabel = "Clade"

// suppressedPrefixes mark parser-generated labels that are never shown.
var suppressedPrefixes = []string{"Node", "Clade"}

// JSONNode is the viewer representation of a Node.
type JSONNode struct {
	Name         string      `json:"name"`
	BranchLength *float64    `json:"branch_length,omitempty"`
	Children     []*JSONNode `json:"children,omitempty"`
}

// EffectiveLabel returns the node's name, or the placeholder for unnamed nodes.
func EffectiveLabel(n *Node) string {
	if n.Name != "" {
		return n.Name
	}
	return placeholderLabel
}

// DisplayName is the name the viewer shows: the effective label, or "" when
// it starts with "Node" or "Clade". Matching is literal and case-sensitive.
func DisplayName(n *Node) string {
	label := EffectiveLabel(n)
	for _, prefix := range suppressedPrefixes {
		if strings.HasPrefix(label, prefix) {
			return ""
		}
	}
	return label
}

// Encode converts the tree rooted at n into its viewer form.
//
// A branch length of exactly 0 is dropped along with absent ones. Viewers
// written against earlier output expect that, so it is kept.
func Encode(n *Node) *JSONNode {
	out := &JSONNode{Name: DisplayName(n)}

	if n.BranchLength != nil && *n.BranchLength != 0 {
		out.BranchLength = float64Ptr(*n.BranchLength)
	}

	if len(n.Children) > 0 {
		out.Children = make([]*JSONNode, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = Encode(c)
		}
	}

	return out
}

// MarshalJSON encodes the tree rooted at n and returns the JSON bytes.
func MarshalJSON(n *Node) ([]byte, error) {
	return json.Marshal(Encode(n))
}

// WriteJSON encodes the tree rooted at n to w.
func WriteJSON(w io.Writer, n *Node) error {
	if err := json.NewEncoder(w).Encode(Encode(n)); err != nil {
		return fmt.Errorf("encode tree json: %w", err)
	}
	return nil
}

// DecodeJSON reads a tree previously written by WriteJSON or MarshalJSON.
func DecodeJSON(data []byte) (*JSONNode, error) {
	var root JSONNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode tree json: %w", err)
	}
	return &root, nil
}

// Counts returns the number of leaves and internal nodes under j.
func (j *JSONNode) Counts() (leaves, internal int) {
	if len(j.Children) == 0 {
		return 1, 0
	}
	internal = 1
	for _, c := range j.Children {
		l, i := c.Counts()
		leaves += l
		internal += i
	}
	return leaves, internal
}

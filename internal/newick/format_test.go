package newick

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		node *Node
		want string
	}{
		{
			name: "leaf",
			node: &Node{Name: "A"},
			want: "A;",
		},
		{
			name: "support and lengths",
			node: &Node{Children: []*Node{
				leaf("A", 0.1),
				{Confidence: float64Ptr(95), BranchLength: float64Ptr(0.05), Children: []*Node{leaf("B", 0.2), leaf("C", 0.3)}},
			}},
			want: "(A:0.1,(B:0.2,C:0.3)95:0.05);",
		},
		{
			name: "quoted labels",
			node: &Node{Name: "42", Children: []*Node{{Name: "Homo sapiens"}, {Name: "O'Brien"}}},
			want: "('Homo sapiens','O''Brien')'42';",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.node); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

const labelAlphabet = "ABCxyz019_. ':(),[];-"

func randomLabel(r *rand.Rand) string {
	n := r.Intn(6)
	b := make([]byte, n)
	for i := range b {
		b[i] = labelAlphabet[r.Intn(len(labelAlphabet))]
	}
	return string(b)
}

func randomTree(r *rand.Rand, depth int) *Node {
	n := &Node{}
	if r.Intn(3) > 0 {
		n.BranchLength = float64Ptr(float64(r.Intn(10000)) / 1000)
	}

	if depth > 0 && r.Intn(3) > 0 {
		kids := 2 + r.Intn(3)
		for i := 0; i < kids; i++ {
			n.Children = append(n.Children, randomTree(r, depth-1))
		}
		if r.Intn(2) == 0 {
			n.Confidence = float64Ptr(float64(r.Intn(101)))
		} else {
			n.Name = randomLabel(r)
		}
		return n
	}

	n.Name = randomLabel(r)
	return n
}

func TestFormat_RoundTrip(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		tree := randomTree(r, 5)
		text := Format(tree)

		got, err := ParseString(text)
		if err != nil {
			t.Fatalf("round %d: ParseString(%q) error: %v", i, text, err)
		}
		if diff := cmp.Diff(tree, got); diff != "" {
			t.Fatalf("round %d: %q did not round trip (-want +got):\n%s", i, text, diff)
		}
	}
}

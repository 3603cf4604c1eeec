package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/banshee-data/phylo.report/internal/newick"
)

func mustTree(t *testing.T, text string) *newick.JSONNode {
	t.Helper()
	root, err := newick.ParseString(text)
	if err != nil {
		t.Fatalf("ParseString(%q): %v", text, err)
	}
	return newick.Encode(root)
}

func TestNewLayout_Scaled(t *testing.T) {
	t.Parallel()

	l := NewLayout(mustTree(t, "(A:0.1,(B:0.2,C:0.3):0.05);"))

	if !l.Scaled {
		t.Fatal("expected a scaled layout")
	}

	wantLeaves := []LeafLabel{
		{Point: Point{X: 0.1, Y: 0}, Name: "A"},
		{Point: Point{X: 0.25, Y: 1}, Name: "B"},
		{Point: Point{X: 0.35, Y: 2}, Name: "C"},
	}
	wantSegments := []Segment{
		{From: Point{0, 0}, To: Point{0.1, 0}},
		{From: Point{0.05, 1}, To: Point{0.25, 1}},
		{From: Point{0.05, 2}, To: Point{0.35, 2}},
		{From: Point{0.05, 1}, To: Point{0.05, 2}},
		{From: Point{0, 1.5}, To: Point{0.05, 1.5}},
		{From: Point{0, 0}, To: Point{0, 1.5}},
	}

	approx := cmpopts.EquateApprox(0, 1e-12)
	if diff := cmp.Diff(wantLeaves, l.Leaves, approx); diff != "" {
		t.Errorf("leaves mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantSegments, l.Segments, approx); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(0.35, l.Depth, approx); diff != "" {
		t.Errorf("depth mismatch: %s", diff)
	}
}

func TestNewLayout_Unscaled(t *testing.T) {
	t.Parallel()

	l := NewLayout(mustTree(t, "((A,B),C);"))

	if l.Scaled {
		t.Fatal("expected an unscaled layout")
	}
	if l.Depth != 2 {
		t.Errorf("Depth = %v, want 2", l.Depth)
	}
	if l.Leaves[2].X != 1 || l.Leaves[0].X != 2 {
		t.Errorf("unexpected leaf depths: %+v", l.Leaves)
	}
}

func TestNewLayout_SingleLeaf(t *testing.T) {
	t.Parallel()

	l := NewLayout(mustTree(t, "A;"))
	if len(l.Leaves) != 1 || len(l.Segments) != 0 {
		t.Errorf("single leaf layout = %+v", l)
	}
}

func TestWriteSVG(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteSVG(&buf, mustTree(t, "(Human:0.1,(Chimp:0.2,Gorilla:0.3):0.05);"), "request 42"); err != nil {
		t.Fatalf("WriteSVG() error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<svg") {
		t.Fatalf("output is not SVG: %.80s", out)
	}
	for _, name := range []string{"Human", "Chimp", "Gorilla", "request 42"} {
		if !strings.Contains(out, name) {
			t.Errorf("SVG missing %q", name)
		}
	}
}

func TestWriteSVG_SingleLeaf(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteSVG(&buf, mustTree(t, "A;"), ""); err != nil {
		t.Fatalf("WriteSVG() error: %v", err)
	}
}

func TestTreeData(t *testing.T) {
	t.Parallel()

	d := TreeData(mustTree(t, "(A:0.1,(B:0.2,C):0.05);"))

	if d.Name != "" || d.Value != nil {
		t.Errorf("root = %+v", d)
	}
	if len(d.Children) != 2 {
		t.Fatalf("root children = %d, want 2", len(d.Children))
	}
	if d.Children[0].Name != "A" || d.Children[0].Value != "0.1" {
		t.Errorf("leaf A = %+v", d.Children[0])
	}
	inner := d.Children[1]
	if inner.Value != "0.05" || len(inner.Children) != 2 {
		t.Errorf("inner = %+v", inner)
	}
	if inner.Children[1].Value != nil || inner.Children[1].Children != nil {
		t.Errorf("leaf C = %+v", inner.Children[1])
	}
}

func TestWriteViewer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteViewer(&buf, mustTree(t, "(Human:0.1,(Chimp:0.2,Gorilla:0.3):0.05);"), "Phylogenetic tree", "abc"); err != nil {
		t.Fatalf("WriteViewer() error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"<html", "echarts", "Human", "Gorilla", "leaves=3 internal=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("viewer page missing %q", want)
		}
	}
}

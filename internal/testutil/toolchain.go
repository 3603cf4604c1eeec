package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/banshee-data/phylo.report/internal/stage"
)

// FakeToolchain stands in for clustalo and iqtree. By default the aligner
// copies its input to its output and the inferrer writes a caterpillar tree
// over the FASTA headers of the alignment. SetAlign and SetInfer change what
// a run does.
type FakeToolchain struct {
	Builder *stage.MockCommandBuilder

	mu    sync.Mutex
	align func(input, output string) ([]byte, error)
	infer func(aligned string) ([]byte, error)
}

// NewFakeToolchain returns a FakeToolchain whose Builder dispatches on the
// executable name.
func NewFakeToolchain() *FakeToolchain {
	ft := &FakeToolchain{Builder: stage.NewMockCommandBuilder()}
	ft.Builder.ExecutorFactory = func(_ context.Context, name string, args []string) *stage.MockCommandExecutor {
		return &stage.MockCommandExecutor{RunFunc: func() ([]byte, error) {
			return ft.run(name, args)
		}}
	}
	return ft
}

// SetAlign replaces the aligner behaviour.
func (ft *FakeToolchain) SetAlign(fn func(input, output string) ([]byte, error)) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.align = fn
}

// SetInfer replaces the inferrer behaviour.
func (ft *FakeToolchain) SetInfer(fn func(aligned string) ([]byte, error)) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.infer = fn
}

func (ft *FakeToolchain) run(name string, args []string) ([]byte, error) {
	ft.mu.Lock()
	align, infer := ft.align, ft.infer
	ft.mu.Unlock()

	switch {
	case strings.Contains(name, "clustalo"):
		input, output := argAfter(args, "-i"), argAfter(args, "-o")
		if align != nil {
			return align(input, output)
		}
		return CopyAlign(input, output)
	case strings.Contains(name, "iqtree"):
		aligned := argAfter(args, "-s")
		if infer != nil {
			return infer(aligned)
		}
		return WriteTreefile(aligned, "")
	}
	return nil, fmt.Errorf("%s: command not found", name)
}

// CopyAlign copies input to output the way a no-op aligner would.
func CopyAlign(input, output string) ([]byte, error) {
	data, err := os.ReadFile(input)
	if err != nil {
		return []byte("Cannot open sequence file " + input), err
	}
	return []byte("Alignment complete"), os.WriteFile(output, data, 0644)
}

// WriteTreefile writes aligned.treefile. An empty tree is replaced by a
// caterpillar tree over the alignment's headers.
func WriteTreefile(aligned, tree string) ([]byte, error) {
	if tree == "" {
		data, err := os.ReadFile(aligned)
		if err != nil {
			return []byte("ERROR: file not found " + aligned), err
		}
		tree = CaterpillarNewick(FASTAHeaders(data))
	}
	return []byte("Analysis results written to " + aligned + ".treefile"), os.WriteFile(aligned+".treefile", []byte(tree+"\n"), 0644)
}

// CaterpillarNewick builds a fully unbalanced tree over names, so three
// names give (A:0.1,(B:0.2,C:0.3):0.05);
func CaterpillarNewick(names []string) string {
	if len(names) == 0 {
		return ";"
	}
	return caterpillar(names, 1) + ";"
}

func caterpillar(names []string, depth int) string {
	if len(names) == 1 {
		return fmt.Sprintf("%s:%g", names[0], float64(depth)/10)
	}
	if len(names) == 2 {
		return fmt.Sprintf("(%s:%g,%s:%g)", names[0], float64(depth)/10, names[1], float64(depth+1)/10)
	}
	return fmt.Sprintf("(%s:%g,%s:0.05)", names[0], float64(depth)/10, caterpillar(names[1:], depth+1))
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

package stage

import (
	"context"
	"time"
)

// Aligner runs Clustal Omega.
type Aligner struct {
	Runner  *Runner
	Path    string
	Timeout time.Duration
}

// Align writes a multiple sequence alignment of input to output.
func (a *Aligner) Align(ctx context.Context, input, output string) (string, error) {
	return a.Runner.Run(ctx, AlignInvocation(a.Path, input, output, a.Timeout))
}

// AlignInvocation builds the clustalo invocation. --force lets a re-run overwrite.
func AlignInvocation(path, input, output string, timeout time.Duration) Invocation {
	return Invocation{
		Name:    "align",
		Path:    path,
		Args:    []string{"-i", input, "-o", output, "--force"},
		Output:  output,
		Timeout: timeout,
	}
}

// Inferrer runs IQ-TREE.
type Inferrer struct {
	Runner  *Runner
	Path    string
	Threads string
	Timeout time.Duration
}

// Infer builds a maximum-likelihood tree from aligned and moves it to output.
func (i *Inferrer) Infer(ctx context.Context, aligned, output string) (string, error) {
	return i.Runner.Run(ctx, InferInvocation(i.Path, i.Threads, aligned, output, i.Timeout))
}

// InferInvocation builds the iqtree invocation. IQ-TREE names its result after the
// alignment with a .treefile suffix.
func InferInvocation(path, threads, aligned, output string, timeout time.Duration) Invocation {
	if threads == "" {
		threads = "AUTO"
	}
	return Invocation{
		Name:     "infer",
		Path:     path,
		Args:     []string{"-s", aligned, "-nt", threads, "-redo"},
		Output:   output,
		Produced: aligned + ".treefile",
		Timeout:  timeout,
	}
}

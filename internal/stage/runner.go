package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/phylo.report/internal/fsutil"
	"github.com/banshee-data/phylo.report/internal/monitoring"
)

// diagnosticLimit caps how much tool output is carried in an Error.
const diagnosticLimit = 4096

var logf = monitoring.Prefixed("stage")

// Kind classifies a stage failure.
type Kind int

const (
	// ExecutionFailed means the tool could not start or exited non-zero.
	ExecutionFailed Kind = iota
	// OutputMissing means the tool exited cleanly but produced no output file.
	OutputMissing
	// TimedOut means the tool exceeded its deadline and was killed.
	TimedOut
)

func (k Kind) String() string {
	switch k {
	case ExecutionFailed:
		return "execution failed"
	case OutputMissing:
		return "output missing"
	case TimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error describes a failed stage. Diagnostic holds the tail of the tool's
// combined output, or the process error when the tool printed nothing.
type Error struct {
	Stage      string
	Kind       Kind
	Diagnostic string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Stage, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Invocation describes one run of an external tool.
type Invocation struct {
	// Name identifies the stage in logs and errors ("align", "infer").
	Name string
	// Path is the executable, resolved through PATH when not absolute.
	Path string
	Args []string
	// Output is where the stage's result must end up.
	Output string
	// Produced is the file the tool actually writes when it picks its own
	// name. Empty means the tool writes Output directly.
	Produced string
	// Timeout kills the tool when exceeded. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// Runner executes invocations and checks their outputs. Tools are never retried.
type Runner struct {
	builder CommandBuilder
	fs      fsutil.FileSystem
}

// NewRunner creates a Runner. A nil builder or fs selects the real ones.
func NewRunner(builder CommandBuilder, fs fsutil.FileSystem) *Runner {
	if builder == nil {
		builder = NewRealCommandBuilder()
	}
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &Runner{builder: builder, fs: fs}
}

// Run executes inv and returns inv.Output once the file is in place.
// Failures are returned as *Error.
func (r *Runner) Run(ctx context.Context, inv Invocation) (string, error) {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	logf("%s: running %s %s", inv.Name, inv.Path, strings.Join(inv.Args, " "))
	start := time.Now()

	out, err := r.builder.BuildCommand(ctx, inv.Path, inv.Args...).Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		logf("%s: killed after %s", inv.Name, time.Since(start).Round(time.Millisecond))
		return "", &Error{
			Stage:      inv.Name,
			Kind:       TimedOut,
			Diagnostic: diagnostic(out, ctx.Err()),
			Err:        ctx.Err(),
		}
	}
	if err != nil {
		logf("%s: failed after %s: %v", inv.Name, time.Since(start).Round(time.Millisecond), err)
		return "", &Error{
			Stage:      inv.Name,
			Kind:       ExecutionFailed,
			Diagnostic: diagnostic(out, err),
			Err:        err,
		}
	}

	produced := inv.Produced
	if produced == "" {
		produced = inv.Output
	}
	if !r.fs.Exists(produced) {
		return "", &Error{
			Stage:      inv.Name,
			Kind:       OutputMissing,
			Diagnostic: diagnostic(out, fmt.Errorf("%s was not created", produced)),
		}
	}
	if produced != inv.Output {
		if err := r.fs.Rename(produced, inv.Output); err != nil {
			return "", &Error{
				Stage:      inv.Name,
				Kind:       OutputMissing,
				Diagnostic: err.Error(),
				Err:        err,
			}
		}
	}

	logf("%s: finished in %s", inv.Name, time.Since(start).Round(time.Millisecond))
	return inv.Output, nil
}

func diagnostic(out []byte, err error) string {
	text := strings.TrimSpace(string(out))
	if text == "" {
		if err != nil {
			return err.Error()
		}
		return ""
	}
	if len(text) > diagnosticLimit {
		text = "..." + text[len(text)-diagnosticLimit:]
	}
	return text
}

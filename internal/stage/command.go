// Package stage runs the external alignment and inference tools.
package stage

import (
	"context"
	"os/exec"
	"sync"
	"time"
)

// waitDelay bounds how long Run waits for output pipes after the process
// group has been killed.
const waitDelay = 5 * time.Second

// CommandExecutor defines an interface for executing external commands.
// This abstraction enables unit testing without spawning real tools.
type CommandExecutor interface {
	// Run executes the command and returns the combined output (stdout+stderr).
	Run() ([]byte, error)
}

// CommandBuilder defines an interface for building external commands.
type CommandBuilder interface {
	// BuildCommand creates a CommandExecutor bound to ctx. Cancelling ctx
	// terminates the command and everything it spawned.
	BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor
}

// RealCommandExecutor wraps exec.Cmd to implement CommandExecutor.
type RealCommandExecutor struct {
	cmd *exec.Cmd
}

// Run executes the command and returns combined output.
func (r *RealCommandExecutor) Run() ([]byte, error) {
	return r.cmd.CombinedOutput()
}

// RealCommandBuilder implements CommandBuilder using exec.CommandContext.
type RealCommandBuilder struct{}

// NewRealCommandBuilder creates a new RealCommandBuilder.
func NewRealCommandBuilder() *RealCommandBuilder {
	return &RealCommandBuilder{}
}

// BuildCommand creates a CommandExecutor for the given command and arguments.
// The command runs in its own process group so a timeout also stops any
// helpers the tool forked.
func (b *RealCommandBuilder) BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor {
	cmd := exec.CommandContext(ctx, name, args...)
	configureCommandProcess(cmd)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}
	cmd.WaitDelay = waitDelay
	return &RealCommandExecutor{cmd: cmd}
}

// MockCommandExecutor implements CommandExecutor for testing.
type MockCommandExecutor struct {
	// Output is the output to return from Run.
	Output []byte
	// Err is the error to return from Run.
	Err error
	// RunFunc, when set, replaces Output and Err. Tests use it to create the
	// files a real tool would produce.
	RunFunc func() ([]byte, error)
	// RunCalled indicates whether Run was called.
	RunCalled bool
}

// Run returns the configured output and error.
func (m *MockCommandExecutor) Run() ([]byte, error) {
	m.RunCalled = true
	if m.RunFunc != nil {
		return m.RunFunc()
	}
	return m.Output, m.Err
}

// MockCommandBuilder implements CommandBuilder for testing.
type MockCommandBuilder struct {
	mu sync.Mutex

	// Commands records all commands that were built.
	Commands []MockBuiltCommand
	// NextExecutor is the next executor to return. If nil, creates a default MockCommandExecutor.
	NextExecutor *MockCommandExecutor
	// ExecutorFactory allows creating executors dynamically based on command.
	ExecutorFactory func(ctx context.Context, name string, args []string) *MockCommandExecutor
}

// MockBuiltCommand records details of a built command.
type MockBuiltCommand struct {
	Name string
	Args []string
}

// NewMockCommandBuilder creates a new MockCommandBuilder.
func NewMockCommandBuilder() *MockCommandBuilder {
	return &MockCommandBuilder{}
}

// BuildCommand creates a MockCommandExecutor and records the command details.
func (b *MockCommandBuilder) BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Commands = append(b.Commands, MockBuiltCommand{Name: name, Args: args})

	if b.ExecutorFactory != nil {
		return b.ExecutorFactory(ctx, name, args)
	}
	if b.NextExecutor != nil {
		executor := b.NextExecutor
		b.NextExecutor = nil
		return executor
	}
	return &MockCommandExecutor{}
}

// SetNextExecutor sets the executor to return for the next BuildCommand call.
func (b *MockCommandBuilder) SetNextExecutor(executor *MockCommandExecutor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.NextExecutor = executor
}

// LastCommand returns the most recently built command, or nil if none.
func (b *MockCommandBuilder) LastCommand() *MockBuiltCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Commands) == 0 {
		return nil
	}
	c := b.Commands[len(b.Commands)-1]
	return &c
}

// Reset clears all recorded commands.
func (b *MockCommandBuilder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Commands = nil
	b.NextExecutor = nil
}

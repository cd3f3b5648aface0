// Package sandbox delegates a research session to an isolated execution
// environment and translates its line-oriented stdout protocol back into
// pipeline events.
package sandbox

import (
	"context"
	"fmt"
	"time"
)

// Spec describes the environment to provision. Cmd is the program the
// environment exists to run; it is held until Release so setup commands
// can be executed first. OnLine receives each of the program's output
// lines as it is produced.
type Spec struct {
	Image   string
	Env     map[string]string
	WorkDir string
	Cmd     []string
	OnLine  func(line string)
}

// ExecResult is the outcome of one setup command run inside the sandbox.
type ExecResult struct {
	ExitCode int
	Output   string
}

// Handle is one provisioned environment, exclusively owned by a single
// session and never reused.
type Handle interface {
	// WriteFiles places files into the environment's working directory.
	WriteFiles(ctx context.Context, files map[string][]byte) error
	// Exec runs a setup command bounded by timeout, returning its buffered
	// output. The main program stays held.
	Exec(ctx context.Context, cmd []string, timeout time.Duration) (ExecResult, error)
	// Release starts the held main program. Its output flows to OnLine.
	Release(ctx context.Context) error
	// Wait blocks until the main program exits, bounded by timeout, and
	// returns its exit code.
	Wait(ctx context.Context, timeout time.Duration) (int, error)
	// Stop tears the environment down. Safe to call more than once.
	Stop(ctx context.Context) error
}

// Provider provisions isolated execution environments.
type Provider interface {
	Provision(ctx context.Context, spec Spec) (Handle, error)
}

// ExitError reports a sandboxed command finishing with a non-zero code.
type ExitError struct {
	Cmd      string
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Cmd, e.ExitCode)
}

package command

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// CmdResult is the structured result of an external command invocation.
// Control-flow decisions are made on ExitCode, never by parsing output.
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external commands. The production implementation wraps
// os/exec; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (CmdResult, error)
}

type execRunner struct{}

// NewExecRunner returns a Runner backed by os/exec
func NewExecRunner() Runner {
	return execRunner{}
}

// Run executes the command and captures its output. A non-zero exit is
// reported through CmdResult.ExitCode with a nil error; the error return
// is reserved for the command failing to run at all.
func (execRunner) Run(ctx context.Context, name string, args ...string) (CmdResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CmdResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}

	return result, nil
}

package metadata

import (
	"bytes"
	"context"
	"os/exec"
)

// Command is one external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
}

// Output holds a finished process's captured streams.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes a command to completion.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// ExecRunner runs commands with os/exec. Cancelling ctx kills the process.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) (Output, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, err
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, cmd Command) (Output, error)

func (f RunnerFunc) Run(ctx context.Context, cmd Command) (Output, error) {
	return f(ctx, cmd)
}

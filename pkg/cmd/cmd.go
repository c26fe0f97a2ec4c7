// cmd is a package for running the external tools khost drives
// (systemctl, journalctl, nginx)
package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	logging "github.com/tim-beatham/khost/pkg/log"
)

// Result is the outcome of a command that ran to completion
type Result struct {
	// Output is the combined stdout and stderr
	Output   string
	ExitCode int
}

// ExitError: the command started but exited with a non-zero status
type ExitError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	output := strings.TrimSpace(e.Output)

	if output == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	}

	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.ExitCode, output)
}

type CmdRunner interface {
	// Run runs the command to completion. A non-zero exit status is
	// returned as *ExitError together with the result
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

type UnixCmdRunner struct {
	// Verbose streams the command output to Stream as it runs
	Verbose bool
	Stream  io.Writer
}

func commandLine(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

// Run: runs the unix command capturing its combined output
func (l *UnixCmdRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	line := commandLine(name, args)
	logging.Log.WriteDebugf("running %s", line)

	var output bytes.Buffer
	var sink io.Writer = &output

	if l.Verbose && l.Stream != nil {
		sink = io.MultiWriter(&output, l.Stream)
	}

	c := exec.CommandContext(ctx, name, args...)
	c.Stdout = sink
	c.Stderr = sink

	err := c.Run()
	result := &Result{Output: output.String()}

	var exitErr *exec.ExitError

	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, &ExitError{Command: line, ExitCode: result.ExitCode, Output: result.Output}
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", line, err)
	}

	return result, nil
}

// RunCommands: runs each command in order, stopping on the first failure
func RunCommands(ctx context.Context, runner CmdRunner, commands ...[]string) error {
	for _, command := range commands {
		if len(command) == 0 {
			continue
		}

		_, err := runner.Run(ctx, command[0], command[1:]...)

		if err != nil {
			return err
		}
	}

	return nil
}

package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// CommandResult captures one shell command run.
type CommandResult struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Output renders the result the way it is fed back to the model.
func (r CommandResult) Output() string {
	return fmt.Sprintf("Command output:\nSTDOUT:\n%s\nSTDERR:\n%s\nReturn Code: %d", r.Stdout, r.Stderr, r.ExitCode)
}

// Feedback frames the result for appending to the working instruction in
// mission mode.
func (r CommandResult) Feedback() string {
	return fmt.Sprintf("Command results for `%s`:\n%s", r.Command, r.Output())
}

// RunCommand executes a shell command with captured output. A non-zero exit
// status is reported through ExitCode, not as an error; the returned error
// covers failures to start the command at all.
func RunCommand(ctx context.Context, command string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{
		Command: command,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, fmt.Errorf("run %q: %w", command, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

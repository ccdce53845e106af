// Package runner executes external commands with line-streamed output
package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/apkforge/apkforge/pkg/interfaces"
	"github.com/apkforge/apkforge/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// ExitError reports a command that spawned but did not exit cleanly, or
// could not be spawned at all. ExitCode is -1 for spawn-level failures.
type ExitError struct {
	Command  string
	ExitCode int
	Err      error
}

// Error implements the error interface
func (e *ExitError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("command failed with exit code %d: %s", e.ExitCode, e.Command)
	}
	return fmt.Sprintf("command could not be started: %s: %v", e.Command, e.Err)
}

// Unwrap exposes the underlying exec error
func (e *ExitError) Unwrap() error { return e.Err }

// ExecRunner runs commands via os/exec. stdout and stderr are captured
// independently and split into lines; ordering is preserved within each
// stream but not between the two.
type ExecRunner struct {
	logger logger.Logger
}

// NewExecRunner creates a runner backed by os/exec
func NewExecRunner(log logger.Logger) *ExecRunner {
	return &ExecRunner{logger: log}
}

// Run executes the command in workDir and streams its output through onLine.
// It returns nil only for exit code 0.
func (r *ExecRunner) Run(ctx context.Context, command string, args []string, workDir string, onLine interfaces.LineCallback) error {
	display := commandString(command, args)
	if r.logger != nil {
		r.logger.Debug("Executing command", logger.WithField("command", display), logger.WithField("dir", workDir))
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = workDir
	cmd.Env = nonInteractiveEnv()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ExitError{Command: display, ExitCode: -1, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &ExitError{Command: display, ExitCode: -1, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return &ExitError{Command: display, ExitCode: -1, Err: err}
	}

	// The callback is serialized so callers never see concurrent invocations
	var mu sync.Mutex
	emit := func(line string, stream interfaces.StreamKind) {
		if onLine == nil || strings.TrimSpace(line) == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		onLine(line, stream)
	}

	var g errgroup.Group
	g.Go(func() error { return scanLines(stdout, interfaces.StreamStdout, emit) })
	g.Go(func() error { return scanLines(stderr, interfaces.StreamStderr, emit) })

	scanErr := g.Wait()
	waitErr := cmd.Wait()

	if waitErr != nil {
		code := -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		return &ExitError{Command: display, ExitCode: code, Err: waitErr}
	}
	if scanErr != nil {
		return &ExitError{Command: display, ExitCode: -1, Err: scanErr}
	}

	return nil
}

// scanLines reads a stream line by line and forwards non-blank lines
func scanLines(r io.Reader, stream interfaces.StreamKind, emit func(string, interfaces.StreamKind)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		emit(scanner.Text(), stream)
	}
	return scanner.Err()
}

// nonInteractiveEnv forces child tools into plain, prompt-free output
func nonInteractiveEnv() []string {
	env := os.Environ()
	env = append(env,
		"CI=1",
		"NO_COLOR=1",
		"TERM=dumb",
		"npm_config_yes=true",
		"npm_config_fund=false",
		"npm_config_audit=false",
	)
	return env
}

// commandString renders the command the way it would be typed in a shell
func commandString(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + strings.Join(args, " ")
}

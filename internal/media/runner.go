package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// stderrTailBytes bounds how much encoder stderr is kept in error messages.
const stderrTailBytes = 2048

// Runner executes an external command and returns its stdout.
// Cancelling ctx kills the subprocess.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandRunner implements Runner with os/exec.
type CommandRunner struct {
	// WaitDelay bounds how long to wait for I/O after the process is killed.
	WaitDelay time.Duration
}

var _ Runner = (*CommandRunner)(nil)

func NewCommandRunner() *CommandRunner {
	return &CommandRunner{WaitDelay: 5 * time.Second}
}

func (r *CommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = r.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s cancelled: %w", name, ctx.Err())
		}
		return nil, fmt.Errorf("%s failed: %w - %s", name, err, tail(stderr.String()))
	}

	return stdout.Bytes(), nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTailBytes {
		s = s[len(s)-stderrTailBytes:]
	}
	return s
}

package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Runner executes an external command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec. A non-zero exit is reported
// with the command's trimmed stderr.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err == nil {
		return out, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return nil, fmt.Errorf("%w: %s: %v: %s",
			ErrCommandFailed, name, err, bytes.TrimSpace(exitErr.Stderr))
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrCommandFailed, name, err)
}

package wasmenc

import (
	"bytes"
	"context"
	"os/exec"
)

// run executes the fetched encoder module with the built argument list,
// capturing stderr for error context.
func (s *Session) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, s.modulePath, args...)
	cmd.Dir = s.root

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &CommandError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

package wasmenc

import (
	"fmt"
	"strings"
)

// InitError wraps any failure while fetching or instantiating the
// encoder artifacts. The session stays uninitialized afterward, so a
// later Acquire retries from scratch; nothing retries automatically
// within one call.
type InitError struct {
	Stage string // "fetch" or "instantiate"
	Err   error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("wasmenc: encoder %s failed: %v", e.Stage, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// EncodeError wraps any failure after the session was ready: scratch
// I/O or the encode command itself. Callers treat it identically to a
// deadline miss and fall back to the original bytes.
type EncodeError struct {
	Op  string // "write-input", "encode", "read-output"
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("wasmenc: %s: %v", e.Op, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// CommandError carries the failed encoder invocation's context.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	tail := strings.Join(lines, "\n")
	if tail != "" {
		return fmt.Sprintf("encoder: %v: %s", e.Err, tail)
	}
	return fmt.Sprintf("encoder: %v", e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

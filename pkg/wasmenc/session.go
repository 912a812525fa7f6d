// Package wasmenc owns the lifecycle of the shared software encoder:
// lazy fetch of the pinned encoder build, a private scratch filesystem
// for per-call input/output buffers, command execution, and best-effort
// scratch cleanup.
package wasmenc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"greenside.systems/swinglab/pkg/media"
)

const (
	// The encoder build ships as two artifacts: the executable module
	// and its binary payload. Both must land before the session is
	// usable.
	moduleArtifact  = "swingenc"
	payloadArtifact = "swingenc.dat"

	// OutputName is the canonical output scratch-file name.
	OutputName = "output.mp4"
	// OutputMIME is the canonical MIME type of normalized assets.
	OutputMIME = "video/mp4"

	artifactFetchTimeout = 60 * time.Second
)

// Manager hands out the process-wide encoder session. At most one
// initialization is in flight; concurrent first callers converge on it
// instead of racing separate fetches. A failed initialization leaves
// the manager uninitialized so the next Acquire retries from scratch.
type Manager struct {
	baseURL string
	client  *http.Client

	mu      sync.Mutex
	session *Session
	attempt *initAttempt
}

type initAttempt struct {
	done    chan struct{}
	session *Session
	err     error
}

// NewManager creates a manager fetching encoder artifacts from
// baseURL. An empty baseURL disables the encoder entirely; Acquire
// then fails fast and Enabled reports false.
func NewManager(baseURL string, client *http.Client) *Manager {
	if client == nil {
		client = &http.Client{Timeout: artifactFetchTimeout}
	}
	return &Manager{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  client,
	}
}

// Enabled reports whether the environment supports the encoder at all.
func (m *Manager) Enabled() bool {
	return m.baseURL != ""
}

// Acquire returns the ready session, starting or joining an
// initialization as needed. ctx bounds only this caller's wait: the
// fetch itself runs on its own budget so one impatient caller cannot
// poison the shared init for everyone else.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	if !m.Enabled() {
		return nil, &InitError{Stage: "fetch", Err: fmt.Errorf("encoder disabled: no artifact base URL")}
	}

	m.mu.Lock()
	if m.session != nil {
		s := m.session
		m.mu.Unlock()
		return s, nil
	}
	if m.attempt == nil {
		att := &initAttempt{done: make(chan struct{})}
		m.attempt = att
		go m.initialize(att)
	}
	att := m.attempt
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-att.done:
	}
	if att.err != nil {
		return nil, att.err
	}
	return att.session, nil
}

func (m *Manager) initialize(att *initAttempt) {
	start := time.Now()
	sess, err := m.load()

	m.mu.Lock()
	if err != nil {
		att.err = err
		slog.Warn("encoder initialization failed", "error", err)
	} else {
		att.session = sess
		m.session = sess
		slog.Info("encoder session ready", "elapsed", time.Since(start).Round(time.Millisecond))
	}
	// Clear the slot either way; on failure the next Acquire starts a
	// fresh attempt rather than replaying this one's error forever.
	m.attempt = nil
	m.mu.Unlock()

	close(att.done)
}

// load fetches both artifacts into a private scratch root and marks the
// module executable.
func (m *Manager) load() (*Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), artifactFetchTimeout)
	defer cancel()

	root, err := os.MkdirTemp("", "swingenc-")
	if err != nil {
		return nil, &InitError{Stage: "instantiate", Err: err}
	}
	fs := afero.NewBasePathFs(afero.NewOsFs(), root)

	for _, name := range []string{moduleArtifact, payloadArtifact} {
		n, err := m.fetchArtifact(ctx, fs, name)
		if err != nil {
			// Failure of either artifact short-circuits; leave nothing
			// half-ready behind.
			_ = os.RemoveAll(root)
			return nil, &InitError{Stage: "fetch", Err: fmt.Errorf("%s: %w", name, err)}
		}
		slog.Debug("fetched encoder artifact", "artifact", name, "size", humanize.Bytes(uint64(n)))
	}

	modulePath := filepath.Join(root, moduleArtifact)
	if err := os.Chmod(modulePath, 0o755); err != nil {
		_ = os.RemoveAll(root)
		return nil, &InitError{Stage: "instantiate", Err: err}
	}

	return &Session{
		fs:         fs,
		root:       root,
		modulePath: modulePath,
	}, nil
}

func (m *Manager) fetchArtifact(ctx context.Context, fs afero.Fs, name string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/"+name, nil)
	if err != nil {
		return 0, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	f, err := fs.Create(name)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// Session is the ready encoder handle. It is reused for every
// transcode in the process's lifetime; there is no per-call teardown of
// the encoder itself, only per-call scratch cleanup.
type Session struct {
	fs         afero.Fs
	root       string
	modulePath string
}

// Transcode re-encodes the asset with the fixed recipe and returns a
// new asset carrying the canonical output MIME type. Scratch files are
// deleted on every exit path; deletion failures are logged, never
// propagated, so cleanup can never turn a successful transcode into a
// reported failure.
func (s *Session) Transcode(ctx context.Context, asset media.Asset, recipe Recipe) (media.Asset, error) {
	// Per-call scratch namespace. Unique names mean an abandoned encode
	// from a previous call cannot collide with this one.
	job := "job-" + uuid.NewString()
	if err := s.fs.MkdirAll(job, 0o755); err != nil {
		return media.Asset{}, &EncodeError{Op: "write-input", Err: err}
	}
	defer s.cleanup(job)

	ext := asset.Ext()
	if ext == "" {
		ext = ".bin"
	}
	inputName := filepath.Join(job, "input"+ext)
	outputName := filepath.Join(job, OutputName)

	if err := afero.WriteFile(s.fs, inputName, asset.Data, 0o644); err != nil {
		return media.Asset{}, &EncodeError{Op: "write-input", Err: err}
	}

	cmd := NewCommand(
		filepath.Join(s.root, inputName),
		filepath.Join(s.root, outputName),
		recipe.Options()...,
	)
	if err := s.run(ctx, cmd.Build()); err != nil {
		return media.Asset{}, &EncodeError{Op: "encode", Err: err}
	}

	out, err := afero.ReadFile(s.fs, outputName)
	if err != nil {
		return media.Asset{}, &EncodeError{Op: "read-output", Err: err}
	}
	if len(out) == 0 {
		return media.Asset{}, &EncodeError{Op: "read-output", Err: fmt.Errorf("empty output")}
	}

	return media.NewAsset(OutputName, OutputMIME, out), nil
}

func (s *Session) cleanup(job string) {
	if err := s.fs.RemoveAll(job); err != nil {
		slog.Warn("scratch cleanup failed", "job", job, "error", err)
	}
}

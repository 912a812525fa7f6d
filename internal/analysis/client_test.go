package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"greenside.systems/swinglab/internal/fallback"
)

type fakeService struct {
	mux *http.ServeMux

	pollsUntilReady int64
	rateLimits      int64

	polls     atomic.Int64
	generates atomic.Int64
	deletes   atomic.Int64
}

func newFakeService(t *testing.T, objectBody []byte, objectMIME string) (*fakeService, *httptest.Server) {
	t.Helper()
	f := &fakeService{mux: http.NewServeMux(), pollsUntilReady: 2}

	f.mux.HandleFunc("GET /object", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", objectMIME)
		_, _ = w.Write(objectBody)
	})
	f.mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]FileHandle{"file": {
			Name: "files/abc123", URI: "uri://files/abc123", State: StateProcessing,
		}})
	})
	f.mux.HandleFunc("GET /files/files/abc123", func(w http.ResponseWriter, r *http.Request) {
		state := StateProcessing
		if f.polls.Add(1) >= f.pollsUntilReady {
			state = StateReady
		}
		_ = json.NewEncoder(w).Encode(map[string]FileHandle{"file": {
			Name: "files/abc123", URI: "uri://files/abc123", State: state,
		}})
	})
	f.mux.HandleFunc("POST /models/swing-analyst-1:generate", func(w http.ResponseWriter, r *http.Request) {
		if f.generates.Add(1) <= f.rateLimits {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(Report{
			OverallScore: 74,
			Summary:      "solid tempo, early extension",
			Categories: []CategoryScore{
				{Name: "tempo", Score: 82, Comment: "smooth transition"},
				{Name: "posture", Score: 61, Comment: "loses spine angle"},
			},
		})
	})
	f.mux.HandleFunc("DELETE /files/files/abc123", func(w http.ResponseWriter, r *http.Request) {
		f.deletes.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestClient(t *testing.T, srv *httptest.Server, conv *fallback.Client) *Client {
	t.Helper()
	c, err := NewClient(Options{
		APIKey:    "test-key",
		BaseURL:   srv.URL,
		Converter: conv,
	})
	require.NoError(t, err)
	return c.WithPollPolicy(5*time.Millisecond, 30).WithBackoffBase(time.Millisecond)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Options{})
	require.ErrorContains(t, err, "API key is required")
}

func TestAnalyzeHappyPath(t *testing.T) {
	f, srv := newFakeService(t, []byte("mp4 clip"), "video/mp4")
	c := newTestClient(t, srv, nil)

	report, err := c.Analyze(context.Background(), srv.URL+"/object")
	require.NoError(t, err)
	require.Equal(t, 74, report.OverallScore)
	require.Len(t, report.Categories, 2)
	require.GreaterOrEqual(t, f.polls.Load(), int64(2), "must poll until the handle leaves processing")
	require.Equal(t, int64(1), f.deletes.Load(), "handle deleted after use")
}

func TestAnalyzeRetriesRateLimit(t *testing.T) {
	f, srv := newFakeService(t, []byte("mp4 clip"), "video/mp4")
	f.rateLimits = 2
	c := newTestClient(t, srv, nil)

	report, err := c.Analyze(context.Background(), srv.URL+"/object")
	require.NoError(t, err)
	require.Equal(t, 74, report.OverallScore)
	require.Equal(t, int64(3), f.generates.Load(), "two 429s then success")
}

func TestAnalyzeRateLimitExhaustionFatal(t *testing.T) {
	f, srv := newFakeService(t, []byte("mp4 clip"), "video/mp4")
	f.rateLimits = 100
	c := newTestClient(t, srv, nil)

	_, err := c.Analyze(context.Background(), srv.URL+"/object")
	require.ErrorContains(t, err, "rate limited")
	require.Equal(t, int64(5), f.generates.Load(), "initial attempt plus four backoff retries")
	require.Equal(t, int64(1), f.deletes.Load(), "cleanup still runs on failure")
}

func TestAnalyzeProcessingFailureFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /object", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("clip"))
	})
	mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]FileHandle{"file": {Name: "files/x", URI: "uri://x", State: StateProcessing}})
	})
	mux.HandleFunc("GET /files/files/x", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]FileHandle{"file": {Name: "files/x", URI: "uri://x", State: StateFailed}})
	})
	mux.HandleFunc("DELETE /files/files/x", func(w http.ResponseWriter, r *http.Request) {})
	srv2 := httptest.NewServer(mux)
	defer srv2.Close()

	c := newTestClient(t, srv2, nil)
	_, err := c.Analyze(context.Background(), srv2.URL+"/object")
	require.ErrorContains(t, err, "failed to process")
}

func TestAnalyzeRoutesNonStandardContainerThroughFallback(t *testing.T) {
	// A QuickTime ftyp prefix should trip the signature gate.
	movBytes := append([]byte{0, 0, 0, 0x14}, []byte("ftypqt  ....")...)

	var converted atomic.Bool
	convSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		converted.Store(true)
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("converted mp4"))
	}))
	defer convSrv.Close()

	_, srv := newFakeService(t, movBytes, "video/quicktime")
	c := newTestClient(t, srv, fallback.NewClient(convSrv.URL, "key", nil))

	report, err := c.Analyze(context.Background(), srv.URL+"/object")
	require.NoError(t, err)
	require.NotNil(t, report)
	require.True(t, converted.Load(), "non-standard container must hit the converter")
}

func TestAnalyzeUnconfiguredFallbackPassesThrough(t *testing.T) {
	movBytes := append([]byte{0, 0, 0, 0x14}, []byte("ftypqt  ....")...)
	_, srv := newFakeService(t, movBytes, "video/quicktime")

	c := newTestClient(t, srv, fallback.NewClient("", "", nil))
	report, err := c.Analyze(context.Background(), srv.URL+"/object")
	require.NoError(t, err)
	require.NotNil(t, report)
}

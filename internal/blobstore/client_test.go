package blobstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"greenside.systems/swinglab/pkg/media"
)

// newContractServer wires a Store behind the upload contract the client
// speaks: authorize, token-gated put, and a Range-aware read path.
func newContractServer(t *testing.T, store *Store) *httptest.Server {
	t.Helper()

	var srv *httptest.Server
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/uploads/authorize", func(w http.ResponseWriter, r *http.Request) {
		var req AuthorizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		token, err := store.Authorize(req.Path, req.ContentType, req.SizeBytes)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		allowed, maxBytes := store.Policy()
		_ = json.NewEncoder(w).Encode(AuthorizeResponse{
			AllowedContentTypes: allowed,
			MaximumSizeInBytes:  maxBytes,
			Token:               token,
			UploadURL:           srv.URL + "/blob/" + req.Path,
			PublicURL:           srv.URL + "/blob/" + req.Path,
		})
	})

	mux.HandleFunc("PUT /blob/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/blob/")
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		data, _ := io.ReadAll(r.Body)
		if err := store.Put(path, r.Header.Get("Content-Type"), token, data); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("GET /blob/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/blob/")
		data, contentType, ok := store.Get(path)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		if r.Header.Get("Range") != "" && len(data) > 0 {
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write(data[:1])
			return
		}
		_, _ = w.Write(data)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func mp4Asset() media.Asset {
	return media.NewAsset("swing-1700000000.mp4", "video/mp4", []byte("normalized clip bytes"))
}

func TestUploadAndConfirm(t *testing.T) {
	store := NewStore([]byte("secret"), 0)
	srv := newContractServer(t, store)

	c := NewClient(srv.URL, nil).WithConfirmPolicy(10*time.Millisecond, 30)
	ref, err := c.UploadAndConfirm(context.Background(), mp4Asset())
	require.NoError(t, err)
	require.Contains(t, ref.Key, "swing-1700000000.mp4")
	require.Contains(t, ref.URL, "/blob/"+ref.Key)

	data, _, ok := store.Get(ref.Key)
	require.True(t, ok)
	require.Equal(t, []byte("normalized clip bytes"), data)
}

func TestUploadAndConfirmWaitsOutVisibilityLag(t *testing.T) {
	store := NewStore([]byte("secret"), 120*time.Millisecond)
	srv := newContractServer(t, store)

	c := NewClient(srv.URL, nil).WithConfirmPolicy(20*time.Millisecond, 30)
	ref, err := c.UploadAndConfirm(context.Background(), mp4Asset())
	require.NoError(t, err)

	// The reference is only handed out once the read path serves it.
	resp, err := http.Get(ref.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadRejectedBeforeTransfer(t *testing.T) {
	store := NewStore([]byte("secret"), 0)
	srv := newContractServer(t, store)

	c := NewClient(srv.URL, nil).WithConfirmPolicy(10*time.Millisecond, 3)
	_, err := c.UploadAndConfirm(context.Background(), media.NewAsset("notes.txt", "text/plain", []byte("hi")))

	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	require.Equal(t, "authorize", upErr.Stage)
	require.Empty(t, store.objects, "no bytes may move after a rejected authorization")
}

func TestConfirmTimesOutAfterExactBudget(t *testing.T) {
	var polls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/uploads/authorize", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(AuthorizeResponse{
			Token:     "t",
			UploadURL: "http://" + r.Host + "/put",
			PublicURL: "http://" + r.Host + "/object",
		})
	})
	mux.HandleFunc("PUT /put", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /object", func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, nil).WithConfirmPolicy(5*time.Millisecond, 30)
	_, err := c.UploadAndConfirm(context.Background(), mp4Asset())

	var timeoutErr *AvailabilityTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, 30, timeoutErr.Attempts)
	require.Equal(t, int64(30), polls.Load(), "budget is exactly 30 probes, then stop")
}

func TestTransferFailureIsUploadError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/uploads/authorize", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(AuthorizeResponse{
			Token:     "t",
			UploadURL: "http://" + r.Host + "/put",
			PublicURL: "http://" + r.Host + "/object",
		})
	})
	mux.HandleFunc("PUT /put", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk full", http.StatusInsufficientStorage)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.UploadAndConfirm(context.Background(), mp4Asset())

	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	require.Equal(t, "transfer", upErr.Stage)
}

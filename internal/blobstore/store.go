// Package blobstore bridges normalized clips to object storage: a
// two-phase authorize-then-put upload client with read-path
// confirmation, plus the trusted authorizer and the storage endpoints
// this service hosts itself.
package blobstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultMaxSizeBytes caps accepted uploads at 100 MiB.
const DefaultMaxSizeBytes = 100 << 20

// DefaultAllowedContentTypes is the upload allow-list.
var DefaultAllowedContentTypes = []string{
	"video/mp4",
	"video/quicktime",
	"video/webm",
}

type object struct {
	data        []byte
	contentType string
	storedAt    time.Time
}

// Store is the in-process object store behind the blob endpoints. A
// configurable visibility lag keeps the read path behind the write
// path, mirroring the eventual consistency of a CDN-fronted store: a
// freshly written object 404s until the lag elapses, which is exactly
// the window the availability poll exists to cover.
type Store struct {
	secret       []byte
	allowedTypes []string
	maxBytes     int64
	lag          time.Duration
	now          func() time.Time

	mu      sync.RWMutex
	objects map[string]object
}

// NewStore creates a store with the default upload policy.
func NewStore(secret []byte, visibilityLag time.Duration) *Store {
	return &Store{
		secret:       secret,
		allowedTypes: DefaultAllowedContentTypes,
		maxBytes:     DefaultMaxSizeBytes,
		lag:          visibilityLag,
		now:          time.Now,
		objects:      make(map[string]object),
	}
}

// Policy returns the allow-list and size cap the authorizer advertises.
func (s *Store) Policy() ([]string, int64) {
	return s.allowedTypes, s.maxBytes
}

// Authorize validates the declared content type and size against the
// upload policy and mints a token bound to the destination path. The
// check happens here, before any byte moves; an out-of-policy request
// never gets a token.
func (s *Store) Authorize(path, contentType string, sizeBytes int64) (string, error) {
	if !s.typeAllowed(contentType) {
		return "", fmt.Errorf("content type %q not allowed", contentType)
	}
	if sizeBytes > s.maxBytes {
		return "", fmt.Errorf("size %s exceeds maximum %s",
			humanize.Bytes(uint64(sizeBytes)), humanize.Bytes(uint64(s.maxBytes)))
	}
	return mintToken(s.secret, path, contentType, s.now()), nil
}

func (s *Store) typeAllowed(contentType string) bool {
	for _, t := range s.allowedTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

// Put verifies the token and stores the object. Size is enforced again
// here: the token authorized a declared size, not a blank check.
func (s *Store) Put(path, contentType, token string, data []byte) error {
	if err := verifyToken(s.secret, path, contentType, token, s.now()); err != nil {
		return err
	}
	if int64(len(data)) > s.maxBytes {
		return fmt.Errorf("object exceeds maximum size")
	}
	s.mu.Lock()
	s.objects[path] = object{data: data, contentType: contentType, storedAt: s.now()}
	s.mu.Unlock()
	return nil
}

// Get returns the object if it exists and has become visible on the
// read path. The bool is false for both "never written" and "written
// but not yet visible"; readers cannot tell the difference, which is
// the point.
func (s *Store) Get(path string) ([]byte, string, bool) {
	s.mu.RLock()
	obj, ok := s.objects[path]
	s.mu.RUnlock()
	if !ok {
		return nil, "", false
	}
	if s.now().Sub(obj.storedAt) < s.lag {
		return nil, "", false
	}
	return obj.data, obj.contentType, true
}

// Delete removes the object. Missing objects are not an error; cleanup
// is best-effort by contract.
func (s *Store) Delete(path string) {
	s.mu.Lock()
	delete(s.objects, path)
	s.mu.Unlock()
}

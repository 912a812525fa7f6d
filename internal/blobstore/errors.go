package blobstore

import "fmt"

// UploadError means the file never reached storage: either the
// authorization step rejected the declared type/size, or the transfer
// itself failed. There is no fallback for this; it is fatal to the
// current attempt and surfaced as retryable.
type UploadError struct {
	Stage string // "authorize" or "transfer"
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("blobstore: %s failed: %v", e.Stage, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// AvailabilityTimeoutError means the upload succeeded but the object
// never became servable within the polling budget. Kept distinct from
// UploadError because the remediation advice differs: the bytes are in
// storage, the read path just never caught up.
type AvailabilityTimeoutError struct {
	URL      string
	Attempts int
}

func (e *AvailabilityTimeoutError) Error() string {
	return fmt.Sprintf("blobstore: object at %s not servable after %d availability polls", e.URL, e.Attempts)
}

package analysis

// Report is the structured swing breakdown returned by the remote
// analysis service. The scoring policy itself is the service's
// business; this side only decodes and relays it.
type Report struct {
	OverallScore int             `json:"overallScore"`
	Categories   []CategoryScore `json:"categories"`
	Summary      string          `json:"summary"`
}

// CategoryScore is one scored aspect of the swing.
type CategoryScore struct {
	Name    string `json:"name"`
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

// File handle processing states, as reported by the remote service.
const (
	StateUploading  = "UPLOADING"
	StateProcessing = "PROCESSING"
	StateReady      = "READY"
	StateFailed     = "FAILED"
)

// FileHandle identifies an uploaded file on the remote service and its
// processing state.
type FileHandle struct {
	Name  string `json:"name"`
	URI   string `json:"uri"`
	State string `json:"state"`
}

// Package media defines the asset value type passed between the intake
// pipeline stages.
package media

import (
	"path/filepath"
	"strings"
)

// Asset is an immutable byte buffer plus the name and MIME type the
// uploader declared for it. Stages never mutate an Asset in place; a
// transcode produces a new Asset and the original is dropped only after
// the new one exists.
type Asset struct {
	Name string
	MIME string
	Data []byte
}

// NewAsset builds an Asset from declared metadata and raw bytes.
func NewAsset(name, mime string, data []byte) Asset {
	return Asset{
		Name: strings.TrimSpace(name),
		MIME: strings.ToLower(strings.TrimSpace(mime)),
		Data: data,
	}
}

// Ext returns the lowercased filename extension including the dot, or
// "" when the name carries none.
func (a Asset) Ext() string {
	return strings.ToLower(filepath.Ext(a.Name))
}

// Size returns the payload length in bytes.
func (a Asset) Size() int64 {
	return int64(len(a.Data))
}

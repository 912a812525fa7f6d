// Package fallback wraps the third-party cloud transcoding service as
// an opaque codec-conversion step: raw bytes in, MP4 bytes out. It is
// the second line of defense for clips the client-side normalization
// did not (or could not) convert.
package fallback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the conversion service. A zero-credential client is
// valid but unconfigured; callers degrade to passthrough with a logged
// warning rather than failing.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a converter client. Empty baseURL or apiKey leaves
// the client unconfigured.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 3 * time.Minute}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		http:    httpClient,
	}
}

// Configured reports whether conversion credentials are present.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// Convert uploads the bytes for transformation and returns the
// converted stream with its MIME type.
func (c *Client) Convert(ctx context.Context, data []byte, mime string) ([]byte, string, error) {
	if !c.Configured() {
		return nil, "", fmt.Errorf("fallback: converter not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/convert?format=mp4", bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", mime)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("fallback: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	outMIME := resp.Header.Get("Content-Type")
	if outMIME == "" {
		outMIME = "video/mp4"
	}
	return out, outMIME, nil
}

// Package analysis adapts the remote generative analysis service:
// upload file bytes, poll the handle out of its processing state,
// request a structured report, and clean up.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"greenside.systems/swinglab/internal/fallback"
	"greenside.systems/swinglab/pkg/sniff"
)

const (
	statePollInterval = 2 * time.Second
	statePollAttempts = 30

	generateBackoffBase = 2 * time.Second
	generateMaxRetries  = 4
)

// Options configures the analysis client.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	// Converter is the server-side transcode fallback; nil degrades the
	// fallback to a passthrough.
	Converter *fallback.Client
}

// Client talks to the remote analysis service.
type Client struct {
	apiKey    string
	baseURL   string
	model     string
	http      *http.Client
	converter *fallback.Client

	pollInterval time.Duration
	pollAttempts int
	backoffBase  time.Duration
}

// NewClient constructs an analysis client. The API key is required:
// without it the analysis path cannot function at all.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("analysis: API key is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	model := opts.Model
	if model == "" {
		model = "swing-analyst-1"
	}

	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		model:        model,
		http:         httpClient,
		converter:    opts.Converter,
		pollInterval: statePollInterval,
		pollAttempts: statePollAttempts,
		backoffBase:  generateBackoffBase,
	}, nil
}

// WithPollPolicy overrides the processing-state polling budget.
func (c *Client) WithPollPolicy(interval time.Duration, attempts int) *Client {
	c.pollInterval = interval
	c.pollAttempts = attempts
	return c
}

// WithBackoffBase overrides the 429 backoff base.
func (c *Client) WithBackoffBase(d time.Duration) *Client {
	c.backoffBase = d
	return c
}

// Analyze downloads the confirmed object, routes it through the
// transcode fallback when the container signature calls for it, and
// runs the upload/poll/generate/delete sequence.
func (c *Client) Analyze(ctx context.Context, objectURL string) (*Report, error) {
	data, mime, err := c.download(ctx, objectURL)
	if err != nil {
		return nil, fmt.Errorf("download object: %w", err)
	}

	// Second line of defense: the client's normalization may have been
	// skipped or timed out, leaving a container the service cannot read.
	if sniff.NonStandardContainer(data) {
		converted, convertedMIME, convErr := c.convert(ctx, data, mime)
		if convErr != nil {
			slog.Warn("server-side transcode fallback failed, sending original", "error", convErr)
		} else {
			data, mime = converted, convertedMIME
		}
	}

	handle, err := c.uploadFile(ctx, data, mime)
	if err != nil {
		return nil, fmt.Errorf("upload to analysis service: %w", err)
	}
	defer c.deleteFile(handle)

	handle, err = c.awaitReady(ctx, handle)
	if err != nil {
		return nil, err
	}

	report, err := c.generate(ctx, handle, mime)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (c *Client) convert(ctx context.Context, data []byte, mime string) ([]byte, string, error) {
	if c.converter == nil || !c.converter.Configured() {
		slog.Warn("transcode fallback not configured, passing bytes through unconverted")
		return data, mime, nil
	}
	return c.converter.Convert(ctx, data, mime)
}

func (c *Client) download(ctx context.Context, objectURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, objectURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "video/mp4"
	}
	return data, mime, nil
}

func (c *Client) uploadFile(ctx context.Context, data []byte, mime string) (*FileHandle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/files"), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mime)

	var out struct {
		File FileHandle `json:"file"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out.File.Name == "" {
		return nil, fmt.Errorf("upload response missing file name")
	}
	return &out.File, nil
}

// awaitReady polls the handle until it leaves the processing state.
func (c *Client) awaitReady(ctx context.Context, handle *FileHandle) (*FileHandle, error) {
	current := handle
	backoff := retry.WithMaxRetries(uint64(c.pollAttempts-1), retry.NewConstant(c.pollInterval))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/files/"+current.Name), nil)
		if err != nil {
			return err
		}
		var out struct {
			File FileHandle `json:"file"`
		}
		if err := c.do(req, &out); err != nil {
			return retry.RetryableError(err)
		}
		current = &out.File
		switch current.State {
		case StateReady:
			return nil
		case StateFailed:
			return fmt.Errorf("analysis service failed to process file %s", current.Name)
		default:
			return retry.RetryableError(fmt.Errorf("file %s still %s", current.Name, current.State))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("await processing: %w", err)
	}
	return current, nil
}

// generate requests the structured report. Rate-limit responses are
// retried with exponential backoff a small fixed number of times before
// the error surfaces.
func (c *Client) generate(ctx context.Context, handle *FileHandle, mime string) (*Report, error) {
	payload, err := json.Marshal(map[string]string{
		"fileUri":  handle.URI,
		"mimeType": mime,
	})
	if err != nil {
		return nil, err
	}

	var report *Report
	backoff := retry.WithMaxRetries(generateMaxRetries, retry.NewExponential(c.backoffBase))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.endpoint("/models/"+c.model+":generate"), bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		var out Report
		if err := c.do(req, &out); err != nil {
			var rateErr *rateLimitError
			if errors.As(err, &rateErr) {
				slog.Warn("analysis generation rate limited, backing off")
				return retry.RetryableError(err)
			}
			return err
		}
		report = &out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate report: %w", err)
	}
	return report, nil
}

// deleteFile removes the uploaded handle. Best-effort: a failed delete
// is logged and forgotten.
func (c *Client) deleteFile(handle *FileHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("/files/"+handle.Name), nil)
	if err != nil {
		return
	}
	if err := c.do(req, nil); err != nil {
		slog.Warn("failed to delete analysis file", "file", handle.Name, "error", err)
	}
}

type rateLimitError struct{ msg string }

func (e *rateLimitError) Error() string { return e.msg }

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + path + "?key=" + c.apiKey
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &rateLimitError{msg: "analysis service rate limited (429)"}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var envelope errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error.Message != "" {
			return fmt.Errorf("analysis status %d: %s", resp.StatusCode, envelope.Error.Message)
		}
		return fmt.Errorf("analysis status %d", resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

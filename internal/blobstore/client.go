package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"greenside.systems/swinglab/pkg/media"
)

const (
	confirmInterval = time.Second
	confirmAttempts = 30
)

// Reference points at a confirmed-servable remote object. It is only
// ever handed out after at least one successful availability probe.
type Reference struct {
	Key string
	URL string
}

// AuthorizeRequest is the payload sent to the authorization endpoint.
type AuthorizeRequest struct {
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

// AuthorizeResponse is the short-lived upload handle. The token is
// consumed exactly once by the subsequent put.
type AuthorizeResponse struct {
	AllowedContentTypes []string `json:"allowedContentTypes"`
	MaximumSizeInBytes  int64    `json:"maximumSizeInBytes"`
	Token               string   `json:"token"`
	UploadURL           string   `json:"uploadUrl"`
	PublicURL           string   `json:"publicUrl"`
}

// Client implements the authorize-then-put upload protocol. The split
// exists so bytes go straight to storage rather than through the
// size-limited API layer that later runs the analysis.
type Client struct {
	baseURL  string
	http     *http.Client
	interval time.Duration
	attempts int
}

// NewClient creates an upload client against the given authorization
// endpoint base URL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:     httpClient,
		interval: confirmInterval,
		attempts: confirmAttempts,
	}
}

// WithConfirmPolicy overrides the availability polling budget.
func (c *Client) WithConfirmPolicy(interval time.Duration, attempts int) *Client {
	c.interval = interval
	c.attempts = attempts
	return c
}

// UploadAndConfirm authorizes, transfers, and then polls the public URL
// until the object is confirmed servable. It never returns a reference
// for an object that has not answered at least one probe with a 2xx:
// handing an unconfirmed URL downstream is a correctness bug, not a
// slow path.
func (c *Client) UploadAndConfirm(ctx context.Context, asset media.Asset) (Reference, error) {
	key := "swings/" + uuid.NewString() + "/" + asset.Name

	grant, err := c.authorize(ctx, key, asset)
	if err != nil {
		return Reference{}, &UploadError{Stage: "authorize", Err: err}
	}

	if err := c.transfer(ctx, grant, asset); err != nil {
		return Reference{}, &UploadError{Stage: "transfer", Err: err}
	}

	if err := c.confirm(ctx, grant.PublicURL); err != nil {
		return Reference{}, err
	}

	return Reference{Key: key, URL: grant.PublicURL}, nil
}

func (c *Client) authorize(ctx context.Context, key string, asset media.Asset) (*AuthorizeResponse, error) {
	body, err := json.Marshal(AuthorizeRequest{
		Path:        key,
		ContentType: asset.MIME,
		SizeBytes:   asset.Size(),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/uploads/authorize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("authorization rejected (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var grant AuthorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, err
	}
	if grant.Token == "" || grant.UploadURL == "" {
		return nil, fmt.Errorf("authorization response missing token or upload URL")
	}
	return &grant, nil
}

func (c *Client) transfer(ctx context.Context, grant *AuthorizeResponse, asset media.Asset) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, grant.UploadURL, bytes.NewReader(asset.Data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", asset.MIME)
	req.Header.Set("Authorization", "Bearer "+grant.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("storage put failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// confirm polls the public URL with a minimal partial-content request
// until the read path serves it. Any 2xx counts as confirmation.
func (c *Client) confirm(ctx context.Context, publicURL string) error {
	backoff := retry.WithMaxRetries(uint64(c.attempts-1), retry.NewConstant(c.interval))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, publicURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Range", "bytes=0-0")

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return retry.RetryableError(fmt.Errorf("status %d", resp.StatusCode))
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &AvailabilityTimeoutError{URL: publicURL, Attempts: c.attempts}
	}
	return nil
}

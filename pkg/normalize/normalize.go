// Package normalize composes the codec sniffer and the encoder session
// behind a bounded-time policy. Normalization is an optimization, not a
// requirement: every failure mode degrades to passing the original
// bytes through, never to a caller-visible error.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"greenside.systems/swinglab/pkg/media"
	"greenside.systems/swinglab/pkg/sniff"
	"greenside.systems/swinglab/pkg/wasmenc"
)

// DefaultDeadline bounds how long a transcode may run before the
// original bytes win. Long enough for typical short clips, short
// enough that a degraded encoder (stuck CDN, starved network) does not
// leave the user waiting. A tunable constant, not a derived value.
const DefaultDeadline = 25 * time.Second

// Normalizer drives one asset through sniff and, when needed, the
// shared encoder session.
type Normalizer struct {
	manager  *wasmenc.Manager
	recipe   wasmenc.Recipe
	deadline time.Duration
	now      func() time.Time
}

// New creates a Normalizer around the shared encoder manager.
func New(manager *wasmenc.Manager) *Normalizer {
	return &Normalizer{
		manager:  manager,
		recipe:   wasmenc.DefaultRecipe,
		deadline: DefaultDeadline,
		now:      time.Now,
	}
}

// WithDeadline overrides the transcode deadline.
func (n *Normalizer) WithDeadline(d time.Duration) *Normalizer {
	n.deadline = d
	return n
}

// Normalize returns a usable asset, always. Compatible containers pass
// through untouched; incompatible ones are re-encoded unless the
// encoder is unavailable or too slow, in which case the original passes
// through and the remote fallback becomes the second line of defense.
func (n *Normalizer) Normalize(ctx context.Context, asset media.Asset) media.Asset {
	verdict := sniff.Classify(asset)
	if !verdict.NeedsNormalization() {
		return asset
	}

	if !n.manager.Enabled() {
		slog.Info("encoder unavailable, passing original through", "name", asset.Name)
		return asset
	}

	type result struct {
		asset media.Asset
		err   error
	}
	// Buffered so the abandoned branch's late completion parks here and
	// is discarded, instead of leaking a goroutine or reaching a caller.
	done := make(chan result, 1)

	go func() {
		out, err := n.transcode(ctx, asset)
		done <- result{asset: out, err: err}
	}()

	timer := time.NewTimer(n.deadline)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			slog.Warn("normalization failed, passing original through",
				"name", asset.Name, "error", res.err)
			return asset
		}
		slog.Info("normalized clip",
			"name", asset.Name,
			"in", humanize.Bytes(uint64(asset.Size())),
			"out", humanize.Bytes(uint64(res.asset.Size())))
		return n.rename(res.asset)
	case <-timer.C:
		slog.Warn("normalization deadline exceeded, passing original through",
			"name", asset.Name, "deadline", n.deadline)
		return asset
	case <-ctx.Done():
		return asset
	}
}

func (n *Normalizer) transcode(ctx context.Context, asset media.Asset) (media.Asset, error) {
	sess, err := n.manager.Acquire(ctx)
	if err != nil {
		return media.Asset{}, err
	}
	return sess.Transcode(ctx, asset, n.recipe)
}

// rename stamps the canonical pipeline filename onto a freshly
// transcoded asset.
func (n *Normalizer) rename(asset media.Asset) media.Asset {
	name := fmt.Sprintf("swing-%d.mp4", n.now().Unix())
	return media.NewAsset(name, asset.MIME, asset.Data)
}

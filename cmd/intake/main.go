package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"greenside.systems/swinglab/internal/analysis"
	"greenside.systems/swinglab/internal/blobstore"
	"greenside.systems/swinglab/pkg/media"
	"greenside.systems/swinglab/pkg/normalize"
	"greenside.systems/swinglab/pkg/wasmenc"
)

// intake runs the full client-side journey for one clip: sniff and
// normalize locally, hand the result to storage, wait until it is
// confirmed servable, then ask the web service for the analysis.
func main() {
	var (
		filePath   = flag.String("file", "", "clip to analyze")
		serverURL  = flag.String("server", "http://localhost:8080", "web service base URL")
		encoderURL = flag.String("encoder", os.Getenv("ENCODER_BASE_URL"), "encoder artifact base URL (empty disables normalization)")
	)
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: intake -file <clip> [-server URL] [-encoder URL]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *filePath, *serverURL, *encoderURL); err != nil {
		slog.Error("intake failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, filePath, serverURL, encoderURL string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read clip: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(filePath))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	asset := media.NewAsset(filepath.Base(filePath), mimeType, data)
	sourceName := asset.Name

	slog.Info("clip loaded", "name", asset.Name, "mime", asset.MIME, "size", humanize.Bytes(uint64(asset.Size())))

	manager := wasmenc.NewManager(encoderURL, nil)
	normalized := normalize.New(manager).Normalize(ctx, asset)
	wasNormalized := normalized.Name != asset.Name

	uploader := blobstore.NewClient(serverURL, nil)
	ref, err := uploader.UploadAndConfirm(ctx, normalized)
	if err != nil {
		return fmt.Errorf("upload clip: %w", err)
	}
	slog.Info("clip confirmed servable", "key", ref.Key, "url", ref.URL)

	report, err := requestAnalysis(ctx, serverURL, ref.URL, sourceName, wasNormalized)
	if err != nil {
		return fmt.Errorf("analyze clip: %w", err)
	}

	fmt.Printf("Overall score: %d\n", report.OverallScore)
	for _, cat := range report.Categories {
		fmt.Printf("  %-12s %3d  %s\n", cat.Name, cat.Score, cat.Comment)
	}
	fmt.Println(report.Summary)
	return nil
}

func requestAnalysis(ctx context.Context, serverURL, objectURL, sourceName string, normalized bool) (*analysis.Report, error) {
	payload, err := json.Marshal(map[string]any{
		"url":        objectURL,
		"sourceName": sourceName,
		"normalized": normalized,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/api/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("analyze returned status %d: %s", resp.StatusCode, body)
	}

	var report analysis.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, err
	}
	return &report, nil
}

package analyze_api

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	"greenside.systems/swinglab/cmd/web/handlers/common"
	"greenside.systems/swinglab/internal/analysis"
	"greenside.systems/swinglab/internal/blobstore"
	"greenside.systems/swinglab/internal/db"
)

// AnalyzeRequest points the analyzer at a confirmed object. Callers may
// attach intake metadata for the report history.
type AnalyzeRequest struct {
	URL        string `json:"url"`
	SourceName string `json:"sourceName,omitempty"`
	Normalized bool   `json:"normalized,omitempty"`
}

// HandleAnalyze runs the full analysis sequence against an uploaded
// clip and returns the structured report. The backing object is removed
// afterwards whether or not the analysis succeeded; reports, not clips,
// are what this service keeps. A nil dbc skips history recording.
func HandleAnalyze(client *analysis.Client, store *blobstore.Store, dbc *db.DatabaseConnection) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req AnalyzeRequest
		if err := c.Bind(&req); err != nil {
			return common.ErrBadRequest("invalid analyze payload")
		}
		if strings.TrimSpace(req.URL) == "" {
			return common.ErrBadRequest("url is required")
		}

		ctx := c.Request().Context()

		report, err := client.Analyze(ctx, req.URL)
		if key, ok := storedKey(req.URL); ok {
			store.Delete(key)
		}
		if err != nil {
			slog.Error("analysis failed", "url", req.URL, "error", err)
			return common.ErrInternal("analysis failed: " + err.Error())
		}

		if dbc != nil {
			recordRun(c, dbc, req, report)
		}

		return c.JSON(200, report)
	}
}

func recordRun(c echo.Context, dbc *db.DatabaseConnection, req AnalyzeRequest, report *analysis.Report) {
	raw, err := json.Marshal(report)
	if err != nil {
		slog.Error("failed to encode report for history", "error", err)
		return
	}

	key, _ := storedKey(req.URL)
	source := req.SourceName
	if source == "" {
		source = path.Base(key)
	}

	_, err = dbc.InsertReportRun(c.Request().Context(), db.NewReportRunParams{
		SourceName:   source,
		ObjectKey:    key,
		ObjectURL:    req.URL,
		Normalized:   req.Normalized,
		OverallScore: report.OverallScore,
		Summary:      report.Summary,
		Report:       raw,
	})
	if err != nil {
		// History is a convenience; the report still goes back to the caller.
		if db.IsMissingSchemaErr(err) {
			slog.Warn("report schema not migrated; run not recorded", "key", key)
			return
		}
		slog.Error("failed to record report run", "key", key, "error", err)
	}
}

// storedKey extracts the store key when the URL points at this
// service's own blob endpoint. External URLs have nothing to delete.
func storedKey(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	const prefix = "/api/uploads/blob/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", false
	}
	return strings.TrimPrefix(u.Path, prefix), true
}

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ReportRun is one completed analysis: where the clip ended up and
// what the analysis service said about it.
type ReportRun struct {
	ID           uuid.UUID
	SourceName   string
	ObjectKey    string
	ObjectURL    string
	Normalized   bool
	OverallScore int
	Summary      string
	Report       json.RawMessage
	CreatedAt    time.Time
}

// NewReportRunParams contains the parameters for recording a completed run
type NewReportRunParams struct {
	SourceName   string
	ObjectKey    string
	ObjectURL    string
	Normalized   bool
	OverallScore int
	Summary      string
	Report       json.RawMessage
}

// InsertReportRun records a completed analysis run
func (db *DatabaseConnection) InsertReportRun(ctx context.Context, params NewReportRunParams) (*ReportRun, error) {
	runID := uuid.New()
	pgUUID := pgtype.UUID{
		Bytes: runID,
		Valid: true,
	}

	row := db.Pool.QueryRow(ctx, `
		INSERT INTO report_runs (id, source_name, object_key, object_url, normalized, overall_score, summary, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		pgUUID, params.SourceName, params.ObjectKey, params.ObjectURL,
		params.Normalized, params.OverallScore, params.Summary, params.Report,
	)

	var createdAt pgtype.Timestamptz
	if err := row.Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("failed to insert report run: %w", err)
	}

	return &ReportRun{
		ID:           runID,
		SourceName:   params.SourceName,
		ObjectKey:    params.ObjectKey,
		ObjectURL:    params.ObjectURL,
		Normalized:   params.Normalized,
		OverallScore: params.OverallScore,
		Summary:      params.Summary,
		Report:       params.Report,
		CreatedAt:    createdAt.Time,
	}, nil
}

// RecentReportRuns returns the newest runs first, capped at limit
func (db *DatabaseConnection) RecentReportRuns(ctx context.Context, limit int) ([]ReportRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, source_name, object_key, object_url, normalized, overall_score, summary, report, created_at
		FROM report_runs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query report runs: %w", err)
	}
	defer rows.Close()

	var runs []ReportRun
	for rows.Next() {
		var run ReportRun
		var id pgtype.UUID
		var createdAt pgtype.Timestamptz

		if err := rows.Scan(&id, &run.SourceName, &run.ObjectKey, &run.ObjectURL,
			&run.Normalized, &run.OverallScore, &run.Summary, &run.Report, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan report run: %w", err)
		}
		run.ID = uuid.UUID(id.Bytes)
		run.CreatedAt = createdAt.Time
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

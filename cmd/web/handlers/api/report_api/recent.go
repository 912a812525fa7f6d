package report_api

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"greenside.systems/swinglab/cmd/web/handlers/common"
	"greenside.systems/swinglab/internal/db"
)

const recentLimit = 20

// HandleRecent returns the newest recorded analysis runs. Without a
// database the history surface is simply not available.
func HandleRecent(dbc *db.DatabaseConnection) echo.HandlerFunc {
	return func(c echo.Context) error {
		if dbc == nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "report history is not configured")
		}

		runs, err := dbc.RecentReportRuns(c.Request().Context(), recentLimit)
		if err != nil {
			if db.IsMissingSchemaErr(err) {
				slog.Warn("report schema not migrated; history unavailable", "error", err)
				return echo.NewHTTPError(http.StatusServiceUnavailable, "report history is not configured")
			}
			slog.Error("failed to fetch recent report runs", "error", err)
			return common.ErrInternal("failed to fetch recent reports")
		}
		if runs == nil {
			runs = []db.ReportRun{}
		}

		return c.JSON(200, runs)
	}
}

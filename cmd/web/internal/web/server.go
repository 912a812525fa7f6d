package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"greenside.systems/swinglab/cmd/web/handlers/api/analyze_api"
	"greenside.systems/swinglab/cmd/web/handlers/api/report_api"
	"greenside.systems/swinglab/cmd/web/handlers/api/upload_api"
	"greenside.systems/swinglab/internal/analysis"
	"greenside.systems/swinglab/internal/blobstore"
	"greenside.systems/swinglab/internal/config"
	"greenside.systems/swinglab/internal/db"
)

type Webserver struct {
	*echo.Echo
	conf     *config.Config
	store    *blobstore.Store
	analyzer *analysis.Client
	dbc      *db.DatabaseConnection
}

// NewWebserver wires the upload intake and analysis endpoints. dbc may
// be nil; the history surface degrades to 503 and everything else runs.
func NewWebserver(ctx context.Context, conf *config.Config, store *blobstore.Store, analyzer *analysis.Client, dbc *db.DatabaseConnection) (*Webserver, error) {
	e := echo.New()

	webserver := &Webserver{
		Echo:     e,
		conf:     conf,
		store:    store,
		analyzer: analyzer,
		dbc:      dbc,
	}

	webserver.registerRoutes()

	if err := webserver.setupMiddleware(); err != nil {
		return nil, err
	}

	return webserver, nil
}

func (s *Webserver) registerRoutes() {
	s.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	s.POST("/api/uploads/authorize", upload_api.HandleAuthorize(s.store, s.conf.PublicBaseURL))
	s.PUT("/api/uploads/blob/*", upload_api.HandleBlobPut(s.store))
	s.GET("/api/uploads/blob/*", upload_api.HandleBlobGet(s.store))
	s.DELETE("/api/uploads/blob/*", upload_api.HandleBlobDelete(s.store))

	s.POST("/api/analyze", analyze_api.HandleAnalyze(s.analyzer, s.store, s.dbc))
	s.GET("/api/reports/recent", report_api.HandleRecent(s.dbc))
}

func (s *Webserver) setupMiddleware() error {
	s.HideBanner = true
	s.HidePort = true
	s.Use(middleware.BodyLimit("120M"))
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
	}))
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			// The availability probe polls the read path once a second;
			// logging every probe buries everything else.
			return c.Path() == "/api/uploads/blob/*" && c.Request().Method == http.MethodGet
		},
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			slog.Info("request", fields...)
			return nil
		},
	}))

	return nil
}

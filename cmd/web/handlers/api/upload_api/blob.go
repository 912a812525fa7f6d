package upload_api

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"greenside.systems/swinglab/cmd/web/handlers/common"
	"greenside.systems/swinglab/internal/blobstore"
)

// HandleBlobPut is the token-gated storage write path. The grant from
// the authorize step travels as a bearer token and is re-verified
// against the exact destination key and content type.
func HandleBlobPut(store *blobstore.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Param("*")
		if key == "" {
			return common.ErrBadRequest("missing object key")
		}

		token := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
		if token == "" {
			return common.ErrForbidden("missing upload token")
		}

		data, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return common.ErrBadRequest("failed to read body")
		}

		contentType := c.Request().Header.Get("Content-Type")
		if err := store.Put(key, contentType, token, data); err != nil {
			slog.Info("blob write rejected", "key", key, "error", err)
			return common.ErrForbidden(err.Error())
		}

		slog.Info("blob stored", "key", key, "size", humanize.Bytes(uint64(len(data))))
		return c.NoContent(http.StatusCreated)
	}
}

// HandleBlobGet is the Range-aware read path used by the availability
// probe and the analysis download. An object that has not yet crossed
// the visibility lag answers 404 exactly like one that was never
// written.
func HandleBlobGet(store *blobstore.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Param("*")
		data, contentType, ok := store.Get(key)
		if !ok {
			return common.ErrNotFound("object not found")
		}

		c.Response().Header().Set("Content-Type", contentType)
		http.ServeContent(c.Response(), c.Request(), path.Base(key), time.Time{}, bytes.NewReader(data))
		return nil
	}
}

// HandleBlobDelete removes an object. Deleting a missing object
// succeeds; cleanup callers retry blindly.
func HandleBlobDelete(store *blobstore.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		store.Delete(c.Param("*"))
		return c.NoContent(http.StatusNoContent)
	}
}

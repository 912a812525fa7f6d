package upload_api

import (
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"greenside.systems/swinglab/cmd/web/handlers/common"
	"greenside.systems/swinglab/internal/blobstore"
)

// HandleAuthorize validates a declared upload against the store policy
// and mints a single-use upload grant. Policy rejections happen here,
// before any clip byte reaches the server.
func HandleAuthorize(store *blobstore.Store, publicBaseURL string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req blobstore.AuthorizeRequest
		if err := c.Bind(&req); err != nil {
			return common.ErrBadRequest("invalid authorize payload")
		}
		key := strings.TrimLeft(strings.TrimSpace(req.Path), "/")
		if key == "" {
			return common.ErrBadRequest("path is required")
		}

		token, err := store.Authorize(key, req.ContentType, req.SizeBytes)
		if err != nil {
			slog.Info("upload authorization rejected", "path", key, "content_type", req.ContentType, "error", err)
			if strings.Contains(err.Error(), "not allowed") {
				return common.ErrUnsupportedMedia(err.Error())
			}
			return common.ErrTooLarge(err.Error())
		}

		allowed, maxBytes := store.Policy()
		blobURL := strings.TrimRight(publicBaseURL, "/") + "/api/uploads/blob/" + key

		return c.JSON(200, blobstore.AuthorizeResponse{
			AllowedContentTypes: allowed,
			MaximumSizeInBytes:  maxBytes,
			Token:               token,
			UploadURL:           blobURL,
			PublicURL:           blobURL,
		})
	}
}

// AngelaMos | 2026
// handler.go

package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carterperez-dev/eternal-vault/internal/core"
	"github.com/carterperez-dev/eternal-vault/internal/middleware"
)

const (
	formField     = "file"
	maxFormMemory = 8 << 20
	maxExtLength  = 10
	sniffLength   = 512
)

type Handler struct {
	store    ObjectStore
	maxBytes int64
}

func NewHandler(store ObjectStore, maxBytes int64) *Handler {
	return &Handler{store: store, maxBytes: maxBytes}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.With(authenticator).Post("/media", h.Upload)
}

type UploadResponse struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Upload stores one multipart file and returns the key to reference from a
// capsule's media list.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetUserID(r.Context())
	if accountID == "" {
		core.Unauthorized(w, "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		if isTooLarge(err) {
			core.JSONError(w, core.NewAppError(
				err,
				fmt.Sprintf("file exceeds %d bytes", h.maxBytes),
				http.StatusRequestEntityTooLarge,
				"PAYLOAD_TOO_LARGE",
			))
			return
		}
		core.BadRequest(w, "expected a multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp file cleanup

	file, header, err := r.FormFile(formField)
	if err != nil {
		core.BadRequest(w, "file is required")
		return
	}
	defer file.Close() //nolint:errcheck // read-only

	contentType, err := detectContentType(file, header)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	key := accountID + "/" + uuid.New().String() + extension(header.Filename)
	if err := h.store.Put(r.Context(), key, contentType, file, header.Size); err != nil {
		core.InternalServerError(w, err)
		return
	}

	slog.InfoContext(r.Context(), "media uploaded",
		"account_id", accountID,
		"key", key,
		"size", header.Size,
	)

	core.Created(w, UploadResponse{
		Key:         key,
		ContentType: contentType,
		Size:        header.Size,
	})
}

func detectContentType(file multipart.File, header *multipart.FileHeader) (string, error) {
	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct, nil
	}

	buf := make([]byte, sniffLength)
	n, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	return http.DetectContentType(buf[:n]), nil
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

// extension keeps a short, alphanumeric suffix of the client filename.
func extension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) < 2 || len(ext) > maxExtLength {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

package handlers

import (
	"bufio"
	"errors"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"

	"github.com/vidshare/backend/internal/logging"
	"github.com/vidshare/backend/internal/storage"
	"github.com/vidshare/backend/internal/uploader"
	"github.com/vidshare/backend/internal/uploads"
)

// multipartOverhead is the slack allowed on top of the file limit for form framing.
const multipartOverhead = 1 << 20

// UploadHandler issues direct-upload credentials and relays uploads to object storage.
type UploadHandler struct {
	Issuer         CredentialIssuer
	Sessions       SessionReader
	RequireSession bool
	Store          ObjectStore
	MaxSizeBytes   int64
}

// Credentials handles GET /api/auth/imagekit-auth.
func (h UploadHandler) Credentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if h.RequireSession {
		if _, ok := currentSession(r, h.Sessions); !ok {
			respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			return
		}
	}

	if h.Issuer == nil {
		respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "uploads are not configured"})
		return
	}

	query := r.URL.Query()
	cred, err := h.Issuer.Issue(ctx, uploads.Request{
		FileName:    query.Get("fileName"),
		ContentType: query.Get("contentType"),
		Folder:      query.Get("folder"),
	})
	if err != nil {
		if errors.Is(err, uploads.ErrNotConfigured) {
			respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "uploads are not configured"})
			return
		}
		logging.FromContext(ctx).Error("issue upload credential failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "authentication for upload failed"})
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	respondJSON(ctx, w, http.StatusOK, cred)
}

// Relay handles POST /api/uploads?type=image|video with a multipart "file"
// field, streaming the body into object storage.
func (h UploadHandler) Relay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Store == nil {
		respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "object storage is not configured"})
		return
	}

	fileType, err := uploader.ParseFileType(r.URL.Query().Get("type"))
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "type must be image or video"})
		return
	}
	policy := uploader.Policy{FileType: fileType, MaxSizeBytes: h.MaxSizeBytes}

	r.Body = http.MaxBytesReader(w, r.Body, policy.Limit()+multipartOverhead)
	reader, err := r.MultipartReader()
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "expected multipart form data"})
		return
	}

	for {
		part, err := reader.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "file field is required"})
				return
			}
			if isTooLarge(err) {
				respondJSON(ctx, w, http.StatusRequestEntityTooLarge, map[string]string{"error": errFileTooLarge.Error()})
				return
			}
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "malformed multipart body"})
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		buffered := bufio.NewReaderSize(part, 3072)
		head, _ := buffered.Peek(3072)
		contentType := mimetype.Detect(head).String()
		if err := policy.CheckContentType(contentType); err != nil {
			var uerr *uploader.Error
			errors.As(err, &uerr)
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": uerr.Message})
			return
		}

		limited := &countingReader{r: buffered, limit: policy.Limit()}
		key := storage.NewKey(string(fileType)+"s", part.FileName())
		location, err := h.Store.Save(ctx, key, contentType, limited)
		if err != nil {
			if isTooLarge(err) || limited.n > limited.limit {
				respondJSON(ctx, w, http.StatusRequestEntityTooLarge, map[string]string{"error": errFileTooLarge.Error()})
				return
			}
			logger.Error("relay upload failed", "error", err, "key", key)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to store upload"})
			return
		}

		logger.Info("upload relayed", "key", key, "bytes", limited.n)
		respondJSON(ctx, w, http.StatusCreated, map[string]any{
			"url":         location,
			"key":         key,
			"contentType": contentType,
			"size":        limited.n,
		})
		return
	}
}

var errFileTooLarge = errors.New("file exceeds the upload limit")

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, errFileTooLarge)
}

// countingReader fails once more than limit bytes have been read.
type countingReader struct {
	r     io.Reader
	n     int64
	limit int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.n > c.limit {
		return n, errFileTooLarge
	}
	return n, err
}

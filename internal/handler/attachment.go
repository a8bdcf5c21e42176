// Package handler contains the JSON HTTP handlers of the coaching API.
//
// This file implements attachment uploads and local file serving.
//
// Routes:
//   - POST /api/messages/attachments -> Upload
//   - GET  /files/{key...}           -> Serve (local storage only)
package handler

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coachly/coachly/internal/domain"
	"github.com/coachly/coachly/internal/metrics"
	"github.com/coachly/coachly/internal/storage"
)

// multipartOverhead is allowed on top of the file size for form boundaries
// and headers.
const multipartOverhead = 1 << 20

// AttachmentHandler stores files that are later referenced by chat messages.
// Usage is counted when a message carrying the file is sent, not here.
type AttachmentHandler struct {
	storage  storage.Storage
	maxBytes int64 // deployment-wide cap, 0 for none
	logger   *slog.Logger
	now      func() time.Time
}

// NewAttachmentHandler creates a new AttachmentHandler.
func NewAttachmentHandler(store storage.Storage, maxBytes int64, logger *slog.Logger) *AttachmentHandler {
	return &AttachmentHandler{
		storage:  store,
		maxBytes: maxBytes,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterRoutes registers attachment routes. requireAttachment is the quota
// guard for the attachment capability. serveFiles mounts GET /files/ for
// providers without their own public URLs.
func (h *AttachmentHandler) RegisterRoutes(mux *http.ServeMux, requireUser, requireAttachment func(http.Handler) http.Handler, serveFiles bool) {
	mux.Handle("POST /api/messages/attachments", requireUser(requireAttachment(http.HandlerFunc(h.Upload))))
	if serveFiles {
		mux.Handle("GET /files/{key...}", requireUser(http.HandlerFunc(h.Serve)))
	}
}

// AttachmentResponse describes a stored attachment. URL and AttachmentType
// go into the message the client sends next.
type AttachmentResponse struct {
	Success        bool   `json:"success"`
	URL            string `json:"url"`
	ThumbnailURL   string `json:"thumbnailUrl,omitempty"`
	AttachmentType string `json:"attachmentType"`
	ContentType    string `json:"contentType"`
	Size           int64  `json:"size"`
}

// Upload stores the multipart "file" field.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	const op = "attachment.upload"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}
	tier := tierOf(user)

	limit := domain.LimitsFor(*tier).MaxAttachmentBytes
	if h.maxBytes > 0 && (limit == 0 || h.maxBytes < limit) {
		limit = h.maxBytes
	}
	if limit <= 0 {
		ErrorResponse(w, r, h.logger, domain.UpgradeRequired(op, domain.ReasonAttachmentsPremium))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(w, r, h.logger, tooLargeError(op, limit))
			return
		}
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "A file is required"))
		return
	}
	defer file.Close()

	if header.Size > limit {
		ErrorResponse(w, r, h.logger, tooLargeError(op, limit))
		return
	}

	head, body, err := storage.SniffReader(file)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Failed to read file"))
		return
	}
	contentType := storage.DetectContentType(header.Filename, head)
	kind := storage.AttachmentKind(contentType)
	if kind == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Unsupported attachment type"))
		return
	}

	// Images are kept in memory on the way through for the thumbnail.
	var image *bytes.Buffer
	if storage.CanThumbnail(contentType) {
		image = &bytes.Buffer{}
		body = io.TeeReader(body, image)
	}

	key := storage.AttachmentKey(user.ID, contentType, h.now())
	err = h.storage.Put(r.Context(), key, body, storage.PutOptions{ContentType: contentType, MaxSize: limit})
	if err != nil {
		if storage.IsTooLarge(err) {
			ErrorResponse(w, r, h.logger, tooLargeError(op, limit))
			return
		}
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to store attachment"))
		return
	}

	url, err := h.storage.URL(r.Context(), key, 0)
	if err != nil {
		h.discard(r, key)
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to resolve attachment URL"))
		return
	}

	var thumbURL string
	if image != nil {
		thumbURL = h.storeThumbnail(r, key, image)
	}

	metrics.AttachmentStored(kind, thumbURL != "")
	h.logger.Info("attachment uploaded",
		"user_id", user.ID,
		"key", key,
		"attachment_type", kind,
		"size", header.Size,
		"thumbnail", thumbURL != "",
	)

	JSON(w, http.StatusCreated, AttachmentResponse{
		Success:        true,
		URL:            url,
		ThumbnailURL:   thumbURL,
		AttachmentType: kind,
		ContentType:    contentType,
		Size:           header.Size,
	})
}

// storeThumbnail writes a thumbnail next to key and returns its URL. Failures
// are logged and leave the attachment without one.
func (h *AttachmentHandler) storeThumbnail(r *http.Request, key string, image *bytes.Buffer) string {
	thumb, err := storage.Thumbnail(image, storage.ThumbnailMaxWidth, storage.ThumbnailMaxHeight)
	if err != nil {
		h.logger.Debug("thumbnail skipped", "key", key, "error", err)
		return ""
	}

	thumbKey := storage.ThumbnailKey(key)
	err = h.storage.Put(r.Context(), thumbKey, bytes.NewReader(thumb), storage.PutOptions{ContentType: "image/jpeg"})
	if err != nil {
		h.logger.Warn("failed to store thumbnail", "key", thumbKey, "error", err)
		return ""
	}

	url, err := h.storage.URL(r.Context(), thumbKey, 0)
	if err != nil {
		h.logger.Warn("failed to resolve thumbnail URL", "key", thumbKey, "error", err)
		return ""
	}
	return url
}

func (h *AttachmentHandler) discard(r *http.Request, key string) {
	if err := h.storage.Delete(r.Context(), key); err != nil {
		h.logger.Warn("failed to delete orphaned attachment", "key", key, "error", err)
	}
}

func tooLargeError(op string, limit int64) error {
	return domain.Errorf(domain.ETOOLARGE, op, "Attachment exceeds the %d MB limit", limit>>20)
}

// Serve streams a stored file to an authenticated user.
func (h *AttachmentHandler) Serve(w http.ResponseWriter, r *http.Request) {
	const op = "attachment.serve"

	key := r.PathValue("key")
	rc, info, err := h.storage.Get(r.Context(), key)
	if err != nil {
		if storage.IsNotFound(err) || storage.IsInvalidKey(err) {
			NotFoundResponse(w, r, h.logger)
			return
		}
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to read attachment"))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Debug("attachment stream interrupted", "key", key, "error", err)
	}
}

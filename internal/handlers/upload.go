package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/maneesh/tagdrop/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// MaxUploadSize caps the request body of an upload (2 GiB)
	MaxUploadSize = 2 << 30

	// multipart parts beyond this are spooled to disk
	uploadMemory = 32 << 20
)

// UploadHandler handles admin media uploads
type UploadHandler struct {
	bot    Bot
	logger *zap.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(b Bot, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{bot: b, logger: logger}
}

// ServeHTTP handles POST /events/upload (multipart form)
func (uh *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handle_upload",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	up, err := parseUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid file part")
		return
	default:
		defer file.Close()
		up.Payload = &models.Payload{
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		}
		if up.FileName == "" {
			up.FileName = header.Filename
		}
	}

	if up.Payload == nil && up.PayloadID == "" {
		writeError(w, http.StatusBadRequest, "either a file part or payload_id is required")
		return
	}

	span.SetAttributes(
		attribute.Int64("user_id", up.UserID),
		attribute.String("media_kind", string(up.Kind)),
		attribute.Bool("has_payload", up.Payload != nil),
	)

	resp, err := uh.bot.HandleUpload(ctx, up)
	if err != nil {
		span.RecordError(err)
	}
	writeResponse(w, uh.logger, "upload", resp, err)
}

func parseUpload(r *http.Request) (models.Upload, error) {
	userID, err := strconv.ParseInt(r.FormValue("user_id"), 10, 64)
	if err != nil || userID == 0 {
		return models.Upload{}, errors.New("invalid user_id")
	}
	chatID, err := strconv.ParseInt(r.FormValue("chat_id"), 10, 64)
	if err != nil || chatID == 0 {
		return models.Upload{}, errors.New("invalid chat_id")
	}

	kind := models.MediaKind(r.FormValue("kind"))
	if !kind.Valid() {
		return models.Upload{}, errors.New("kind must be one of document, photo, video, audio")
	}

	return models.Upload{
		UserID:    userID,
		ChatID:    chatID,
		Kind:      kind,
		FileName:  r.FormValue("file_name"),
		Caption:   r.FormValue("caption"),
		PayloadID: r.FormValue("payload_id"),
	}, nil
}

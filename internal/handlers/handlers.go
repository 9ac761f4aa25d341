// Package handlers exposes the bot over HTTP. A front-end (chat gateway,
// webhook relay) posts normalized events and renders the returned replies.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/maneesh/tagdrop/internal/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("tagdrop-handlers")

// Bot handles one event of each kind
type Bot interface {
	HandleText(ctx context.Context, msg models.Message) (models.Response, error)
	HandleSelect(ctx context.Context, sel models.Selection) (models.Response, error)
	HandleUpload(ctx context.Context, up models.Upload) (models.Response, error)
	HandleCommand(ctx context.Context, cmd models.Command) (models.Response, error)
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewRouter wires every route of the service
func NewRouter(b Bot, outbox Outbox, checks map[string]Pinger, logger *zap.Logger) *mux.Router {
	logger = logger.Named("http")

	router := mux.NewRouter()

	// Health and metrics (no tracing needed)
	router.Handle("/health", NewHealthHandler(checks, logger)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Events with tracing
	router.Handle("/events/message",
		otelhttp.NewHandler(NewMessageHandler(b, logger), "POST /events/message")).Methods(http.MethodPost)
	router.Handle("/events/select",
		otelhttp.NewHandler(NewSelectHandler(b, logger), "POST /events/select")).Methods(http.MethodPost)
	router.Handle("/events/upload",
		otelhttp.NewHandler(NewUploadHandler(b, logger), "POST /events/upload")).Methods(http.MethodPost)
	router.Handle("/chats/{chat_id}/outbox",
		otelhttp.NewHandler(NewOutboxHandler(outbox, logger), "GET /chats/{chat_id}/outbox")).Methods(http.MethodGet)

	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeResponse renders an orchestrator result. Storage failures are logged
// and reported without detail.
func writeResponse(w http.ResponseWriter, logger *zap.Logger, event string, resp models.Response, err error) {
	if err != nil {
		logger.Error("Failed to handle event", zap.String("event", event), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error, please try again later")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

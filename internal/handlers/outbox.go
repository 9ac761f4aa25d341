package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/maneesh/tagdrop/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Outbox hands out the deliveries queued for a chat
type Outbox interface {
	DrainOutbox(ctx context.Context, chatID int64) ([]models.OutboxMessage, error)
}

// OutboxResponse lists the deliveries drained for a chat
type OutboxResponse struct {
	ChatID   int64                  `json:"chat_id"`
	Messages []models.OutboxMessage `json:"messages"`
}

// OutboxHandler serves pending deliveries
type OutboxHandler struct {
	outbox Outbox
	logger *zap.Logger
}

// NewOutboxHandler creates a new outbox handler
func NewOutboxHandler(outbox Outbox, logger *zap.Logger) *OutboxHandler {
	return &OutboxHandler{outbox: outbox, logger: logger}
}

// ServeHTTP handles GET /chats/{chat_id}/outbox
func (oh *OutboxHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "drain_outbox",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	chatID, err := strconv.ParseInt(mux.Vars(r)["chat_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat_id in path")
		return
	}

	span.SetAttributes(attribute.Int64("chat_id", chatID))

	messages, err := oh.outbox.DrainOutbox(ctx, chatID)
	if err != nil {
		span.RecordError(err)
		oh.logger.Error("Failed to drain outbox", zap.Int64("chat_id", chatID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error, please try again later")
		return
	}

	writeJSON(w, http.StatusOK, OutboxResponse{ChatID: chatID, Messages: messages})
}

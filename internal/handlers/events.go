package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/maneesh/tagdrop/internal/bot"
	"github.com/maneesh/tagdrop/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MessageHandler handles free-text and command messages
type MessageHandler struct {
	bot    Bot
	logger *zap.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(b Bot, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{bot: b, logger: logger}
}

// ServeHTTP handles POST /events/message
func (mh *MessageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handle_message",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	var msg models.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg.UserID == 0 || msg.ChatID == 0 {
		writeError(w, http.StatusBadRequest, "user_id and chat_id are required")
		return
	}

	span.SetAttributes(attribute.Int64("user_id", msg.UserID))

	if cmd, ok := bot.ParseCommand(msg); ok {
		span.SetAttributes(attribute.String("command", cmd.Name))
		resp, err := mh.bot.HandleCommand(ctx, cmd)
		if err != nil {
			span.RecordError(err)
		}
		writeResponse(w, mh.logger, "command", resp, err)
		return
	}

	resp, err := mh.bot.HandleText(ctx, msg)
	if err != nil {
		span.RecordError(err)
	}
	writeResponse(w, mh.logger, "message", resp, err)
}

// SelectHandler handles inline button clicks
type SelectHandler struct {
	bot    Bot
	logger *zap.Logger
}

// NewSelectHandler creates a new select handler
func NewSelectHandler(b Bot, logger *zap.Logger) *SelectHandler {
	return &SelectHandler{bot: b, logger: logger}
}

// ServeHTTP handles POST /events/select
func (sh *SelectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handle_select",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	var sel models.Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if sel.UserID == 0 || sel.ChatID == 0 {
		writeError(w, http.StatusBadRequest, "user_id and chat_id are required")
		return
	}

	span.SetAttributes(
		attribute.Int64("user_id", sel.UserID),
		attribute.String("data", sel.Data),
	)

	resp, err := sh.bot.HandleSelect(ctx, sel)
	if err != nil {
		span.RecordError(err)
	}
	writeResponse(w, sh.logger, "select", resp, err)
}

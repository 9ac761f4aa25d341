// Package delivery hands resolved files to chats.
//
// Payload bytes live in MinIO under payloads/<id>. Delivering a file pushes
// an OutboxMessage with a presigned download link onto the chat's Redis
// outbox, where the front-end picks it up.
package delivery

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/maneesh/tagdrop/internal/common"
	"github.com/maneesh/tagdrop/internal/metrics"
	"github.com/maneesh/tagdrop/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("tagdrop-delivery")

const payloadPrefix = "payloads/"

// PayloadStore is the object storage holding payload bytes
type PayloadStore interface {
	PutPayload(ctx context.Context, objectKey string, body io.Reader, size int64, contentType string, meta map[string]string) error
	PayloadExists(ctx context.Context, objectKey string) (bool, error)
	PresignPayload(ctx context.Context, objectKey, fileName string, expiry time.Duration) (*url.URL, error)
	RemovePayload(ctx context.Context, objectKey string) error
}

// Outbox queues messages for a chat
type Outbox interface {
	PushOutbox(ctx context.Context, msg *models.OutboxMessage, ttl time.Duration) error
}

// OutboxTransport delivers files through presigned links and a per-chat outbox
type OutboxTransport struct {
	payloads  PayloadStore
	outbox    Outbox
	linkTTL   time.Duration
	outboxTTL time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewOutboxTransport creates a transport. linkTTL bounds presigned URLs and
// outboxTTL bounds how long undelivered messages are kept.
func NewOutboxTransport(payloads PayloadStore, outbox Outbox, linkTTL, outboxTTL time.Duration, logger *zap.Logger) *OutboxTransport {
	return &OutboxTransport{
		payloads:  payloads,
		outbox:    outbox,
		linkTTL:   linkTTL,
		outboxTTL: outboxTTL,
		logger:    logger.Named("delivery"),
		now:       time.Now,
	}
}

// SendMethod maps a media kind to the front-end method that renders it
func SendMethod(kind models.MediaKind) (string, error) {
	switch kind {
	case models.KindDocument:
		return "sendDocument", nil
	case models.KindPhoto:
		return "sendPhoto", nil
	case models.KindVideo:
		return "sendVideo", nil
	case models.KindAudio:
		return "sendAudio", nil
	default:
		return "", fmt.Errorf("%w: %q", common.ErrUnknownMediaKind, kind)
	}
}

// Store uploads payload bytes and returns the generated payload id
func (t *OutboxTransport) Store(ctx context.Context, kind models.MediaKind, fileName, contentType string, body io.Reader, size int64) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", common.ErrUnknownMediaKind, kind)
	}

	payloadID := uuid.New().String()

	ctx, span := tracer.Start(ctx, "delivery.store",
		trace.WithAttributes(
			attribute.String("payload_id", payloadID),
			attribute.String("media_kind", string(kind)),
			attribute.Int64("size_bytes", size),
		),
	)
	defer span.End()

	meta := map[string]string{
		"media-kind": string(kind),
	}
	if fileName != "" {
		meta["file-name"] = fileName
	}

	if err := t.payloads.PutPayload(ctx, payloadKey(payloadID), body, size, contentType, meta); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to store payload: %w", err)
	}

	t.logger.Info("Payload stored",
		zap.String("payload_id", payloadID),
		zap.String("media_kind", string(kind)),
		zap.Int64("size", size),
	)
	return payloadID, nil
}

// Discard removes a payload created by Store
func (t *OutboxTransport) Discard(ctx context.Context, payloadID string) error {
	if err := t.payloads.RemovePayload(ctx, payloadKey(payloadID)); err != nil {
		return fmt.Errorf("failed to discard payload %s: %w", payloadID, err)
	}
	return nil
}

// Deliver queues d for its chat. Payload ids not assigned by Store are passed
// through as opaque references without a download link; a missing payload
// that Store did assign is an error.
func (t *OutboxTransport) Deliver(ctx context.Context, d models.Delivery) error {
	ctx, span := tracer.Start(ctx, "delivery.deliver",
		trace.WithAttributes(
			attribute.Int64("chat_id", d.ChatID),
			attribute.String("payload_id", d.PayloadID),
			attribute.String("media_kind", string(d.Kind)),
		),
	)
	defer span.End()

	err := t.deliver(ctx, d)
	if err != nil {
		span.RecordError(err)
		metrics.Deliveries.WithLabelValues(string(d.Kind), "failed").Inc()
		return err
	}

	metrics.Deliveries.WithLabelValues(string(d.Kind), "queued").Inc()
	return nil
}

func (t *OutboxTransport) deliver(ctx context.Context, d models.Delivery) error {
	method, err := SendMethod(d.Kind)
	if err != nil {
		return err
	}

	msg := &models.OutboxMessage{
		Method:    method,
		ChatID:    d.ChatID,
		Kind:      d.Kind,
		PayloadID: d.PayloadID,
		Caption:   d.Caption,
		CreatedAt: t.now().UTC(),
	}

	key := payloadKey(d.PayloadID)
	exists, err := t.payloads.PayloadExists(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check payload %s: %w", d.PayloadID, err)
	}

	if exists {
		u, err := t.payloads.PresignPayload(ctx, key, "", t.linkTTL)
		if err != nil {
			return fmt.Errorf("failed to create download link: %w", err)
		}
		msg.URL = u.String()
	} else if isStoredPayloadID(d.PayloadID) {
		return fmt.Errorf("payload %s: %w", d.PayloadID, common.ErrNotFound)
	} else {
		t.logger.Debug("Payload not in object store, sending reference only",
			zap.String("payload_id", d.PayloadID),
		)
	}

	if err := t.outbox.PushOutbox(ctx, msg, t.outboxTTL); err != nil {
		return fmt.Errorf("failed to queue delivery: %w", err)
	}
	return nil
}

func payloadKey(payloadID string) string {
	return payloadPrefix + payloadID
}

// isStoredPayloadID reports whether payloadID has the canonical form Store
// assigns, so its object must exist
func isStoredPayloadID(payloadID string) bool {
	id, err := uuid.Parse(payloadID)
	return err == nil && id.String() == payloadID
}

// Package bot composes search, quota, selection and delivery into the
// user-facing flows. Each inbound event kind has one entry point returning
// the replies to render; an error is returned only when storage fails.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/maneesh/tagdrop/internal/common"
	"github.com/maneesh/tagdrop/internal/metrics"
	"github.com/maneesh/tagdrop/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("tagdrop-bot")

// SearchCallbackPrefix marks button data that starts a new search
const SearchCallbackPrefix = "search:"

const (
	flowSearch  = "search"
	flowSelect  = "select"
	flowUpload  = "upload"
	flowCommand = "command"
)

// Searcher resolves queries to file records
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.FileRecord, error)
	Lookup(ctx context.Context, fragment string) ([]models.FileRecord, error)
}

// QuotaTracker counts deliveries per user per day
type QuotaTracker interface {
	Today() string
	Peek(ctx context.Context, userID int64) (int, error)
	IncrementAndGet(ctx context.Context, userID int64) (int, error)
}

// SelectionCache remembers each user's last result page
type SelectionCache interface {
	Put(userID int64, results []models.FileRecord)
	Get(userID int64, index int) (models.FileRecord, error)
}

// FileStore persists file records
type FileStore interface {
	CreateFile(ctx context.Context, file *models.FileRecord) error
	DeleteFile(ctx context.Context, fileID string) (int64, error)
	GetFile(ctx context.Context, fileID string) (*models.FileRecord, error)
}

// RecordCache is a read-through cache of file records
type RecordCache interface {
	GetFileRecord(ctx context.Context, fileID string) (*models.FileRecord, error)
	SetFileRecord(ctx context.Context, file *models.FileRecord) error
	InvalidateFileRecord(ctx context.Context, fileID string) error
}

// Transport stores payloads and delivers them to chats
type Transport interface {
	Store(ctx context.Context, kind models.MediaKind, fileName, contentType string, body io.Reader, size int64) (string, error)
	Discard(ctx context.Context, payloadID string) error
	Deliver(ctx context.Context, d models.Delivery) error
}

// Deps are the collaborators of an Orchestrator
type Deps struct {
	Search     Searcher
	Quota      QuotaTracker
	Selections SelectionCache
	Files      FileStore
	Cache      RecordCache
	Transport  Transport
}

// Settings are the behavioural limits of an Orchestrator
type Settings struct {
	DailyLimit int
	PageSize   int
	AdminIDs   []int64
}

// Orchestrator handles inbound chat events
type Orchestrator struct {
	deps   Deps
	limit  int
	page   int
	admins map[int64]struct{}
	logger *zap.Logger
}

// NewOrchestrator creates an orchestrator over deps
func NewOrchestrator(deps Deps, settings Settings, logger *zap.Logger) *Orchestrator {
	admins := make(map[int64]struct{}, len(settings.AdminIDs))
	for _, id := range settings.AdminIDs {
		admins[id] = struct{}{}
	}

	return &Orchestrator{
		deps:   deps,
		limit:  settings.DailyLimit,
		page:   settings.PageSize,
		admins: admins,
		logger: logger.Named("bot"),
	}
}

// IsAdmin reports whether userID may upload and manage files
func (o *Orchestrator) IsAdmin(userID int64) bool {
	_, ok := o.admins[userID]
	return ok
}

// HandleText runs the search flow for a free-text message
func (o *Orchestrator) HandleText(ctx context.Context, msg models.Message) (models.Response, error) {
	ctx, span := tracer.Start(ctx, "bot.handle_text",
		trace.WithAttributes(
			attribute.Int64("user_id", msg.UserID),
			attribute.Int64("chat_id", msg.ChatID),
		),
	)
	defer span.End()

	resp, err := o.search(ctx, msg.UserID, strings.TrimSpace(msg.Text))
	if err != nil {
		span.RecordError(err)
		return models.Response{}, err
	}
	return o.finish(flowSearch, resp), nil
}

func (o *Orchestrator) search(ctx context.Context, userID int64, query string) (models.Response, error) {
	used, err := o.deps.Quota.Peek(ctx, userID)
	if err != nil {
		return models.Response{}, err
	}
	if used >= o.limit {
		return o.quotaExceeded(), nil
	}

	resp := models.Respond("", fmt.Sprintf("🔎 Searching for %q...", query))

	files, err := o.deps.Search.Search(ctx, query)
	if err != nil {
		return models.Response{}, err
	}

	if len(files) == 0 {
		resp.Outcome = models.OutcomeNoResults
		return resp.Add(models.Reply{Text: "❌ No files found."}), nil
	}

	total := len(files)
	if total > o.page {
		files = files[:o.page]
	}
	o.deps.Selections.Put(userID, files)

	buttons := make([]models.Button, 0, len(files))
	for i, f := range files {
		buttons = append(buttons, models.Button{Label: f.DisplayName, Data: strconv.Itoa(i)})
	}

	text := fmt.Sprintf("Found %d file(s). Select one:", total)
	if total > len(files) {
		text = fmt.Sprintf("Found %d file(s), showing the first %d. Select one:", total, len(files))
	}

	resp.Outcome = models.OutcomeResults
	return resp.Add(models.Reply{Text: text, Buttons: buttons}), nil
}

// HandleSelect runs the selection flow for a button click
func (o *Orchestrator) HandleSelect(ctx context.Context, sel models.Selection) (models.Response, error) {
	ctx, span := tracer.Start(ctx, "bot.handle_select",
		trace.WithAttributes(
			attribute.Int64("user_id", sel.UserID),
			attribute.Int64("chat_id", sel.ChatID),
			attribute.String("data", sel.Data),
		),
	)
	defer span.End()

	if query, ok := strings.CutPrefix(sel.Data, SearchCallbackPrefix); ok {
		resp, err := o.search(ctx, sel.UserID, query)
		if err != nil {
			span.RecordError(err)
			return models.Response{}, err
		}
		return o.finish(flowSearch, resp), nil
	}

	resp, err := o.selectFile(ctx, sel)
	if err != nil {
		span.RecordError(err)
		return models.Response{}, err
	}
	return o.finish(flowSelect, resp), nil
}

func (o *Orchestrator) selectFile(ctx context.Context, sel models.Selection) (models.Response, error) {
	expired := models.Respond(models.OutcomeExpired, "❌ File not found or expired.")

	index, err := strconv.Atoi(strings.TrimSpace(sel.Data))
	if err != nil {
		o.logger.Debug("Malformed selection", zap.Int64("user_id", sel.UserID), zap.String("data", sel.Data))
		return expired, nil
	}

	file, err := o.deps.Selections.Get(sel.UserID, index)
	if errors.Is(err, common.ErrNotFound) {
		o.logger.Debug("Selection not resolved", zap.Int64("user_id", sel.UserID), zap.Error(err))
		return expired, nil
	} else if err != nil {
		return models.Response{}, err
	}

	// the charge stands even when it is the one that overshoots
	count, err := o.deps.Quota.IncrementAndGet(ctx, sel.UserID)
	if err != nil {
		return models.Response{}, err
	}
	if count > o.limit {
		return o.quotaExceeded(), nil
	}

	resp := models.Respond(models.OutcomeDelivered, "📤 Sending your file...")

	err = o.deps.Transport.Deliver(ctx, models.Delivery{
		ChatID:    sel.ChatID,
		Kind:      file.Kind,
		PayloadID: file.ID,
		Caption:   file.DeliveryCaption(),
	})
	if err != nil {
		o.logger.Warn("Failed to deliver file",
			zap.String("file_id", file.ID),
			zap.Int64("chat_id", sel.ChatID),
			zap.Error(err),
		)
		resp.Outcome = models.OutcomeDeliveryFailed
		return resp.Add(models.Reply{Text: "❌ Failed to send file."}), nil
	}

	o.logger.Info("File delivered",
		zap.String("file_id", file.ID),
		zap.Int64("user_id", sel.UserID),
		zap.Int("daily_count", count),
	)
	return resp, nil
}

func (o *Orchestrator) quotaExceeded() models.Response {
	return models.Respond(models.OutcomeQuotaExceeded,
		fmt.Sprintf("⚠️ You reached your daily limit of %d files.", o.limit))
}

func (o *Orchestrator) finish(flow string, resp models.Response) models.Response {
	metrics.Outcomes.WithLabelValues(flow, string(resp.Outcome)).Inc()
	return resp
}

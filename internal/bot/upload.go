package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maneesh/tagdrop/internal/common"
	"github.com/maneesh/tagdrop/internal/keywords"
	"github.com/maneesh/tagdrop/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultDisplayName = "file"

// HandleUpload runs the admin upload flow
func (o *Orchestrator) HandleUpload(ctx context.Context, up models.Upload) (models.Response, error) {
	ctx, span := tracer.Start(ctx, "bot.handle_upload",
		trace.WithAttributes(
			attribute.Int64("user_id", up.UserID),
			attribute.String("media_kind", string(up.Kind)),
		),
	)
	defer span.End()

	resp, err := o.upload(ctx, up)
	if err != nil {
		span.RecordError(err)
		return models.Response{}, err
	}
	return o.finish(flowUpload, resp), nil
}

func (o *Orchestrator) upload(ctx context.Context, up models.Upload) (models.Response, error) {
	if !o.IsAdmin(up.UserID) {
		return models.Respond(models.OutcomeForbidden,
			"🙏 Thank you for sharing, but only admins can upload files here.\nYou can search and download files using keywords."), nil
	}

	if !up.Kind.Valid() {
		return models.Respond(models.OutcomeRejected,
			"⚠️ Unsupported media type. Send a document, photo, video or audio file."), nil
	}

	kws := keywords.Parse(up.Caption)
	if len(kws) == 0 {
		return models.Respond(models.OutcomeRejected,
			"⚠️ Please add keywords in the caption separated by spaces or commas."), nil
	}
	if _, found := keywords.Oversized(kws); found {
		return models.Respond(models.OutcomeRejected,
			fmt.Sprintf("⚠️ Keywords can be at most %d characters long.", keywords.MaxLength)), nil
	}

	if up.Payload == nil && up.PayloadID == "" {
		return models.Respond(models.OutcomeRejected, "⚠️ Please attach a file to save."), nil
	}

	fileID := up.PayloadID
	stored := false
	if up.Payload != nil {
		id, err := o.deps.Transport.Store(ctx, up.Kind, up.FileName, up.Payload.ContentType, up.Payload.Body, up.Payload.Size)
		if err != nil {
			return models.Response{}, err
		}
		fileID = id
		stored = true
	}

	name := up.FileName
	if name == "" {
		name = defaultDisplayName
	}

	record := &models.FileRecord{
		ID:          fileID,
		DisplayName: name,
		Keywords:    kws,
		Caption:     up.Caption,
		Kind:        up.Kind,
		AddedBy:     up.UserID,
		AddedAt:     time.Now().UTC(),
	}

	if err := o.deps.Files.CreateFile(ctx, record); err != nil {
		if stored {
			if derr := o.deps.Transport.Discard(ctx, fileID); derr != nil {
				o.logger.Error("Failed to discard payload after failed save",
					zap.String("file_id", fileID),
					zap.Error(derr),
				)
			}
		}
		if errors.Is(err, common.ErrAlreadyExists) {
			return models.Respond(models.OutcomeRejected,
				fmt.Sprintf("⚠️ File %s is already registered.", fileID)), nil
		}
		return models.Response{}, err
	}

	o.logger.Info("File saved",
		zap.String("file_id", fileID),
		zap.Strings("keywords", kws),
		zap.Int64("added_by", up.UserID),
	)
	return models.Respond(models.OutcomeSaved,
		fmt.Sprintf("✅ File saved!\nFile ID: %s\nKeywords: %s", fileID, strings.Join(kws, ", "))), nil
}

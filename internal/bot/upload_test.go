package bot

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/maneesh/tagdrop/internal/keywords"
	"github.com/maneesh/tagdrop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload_NonAdminRefused(t *testing.T) {
	h := newHarness(t, 10, testPage)

	resp, err := h.orch.HandleUpload(context.Background(), models.Upload{
		UserID: userID, ChatID: chatID, Kind: models.KindVideo, Caption: "war", PayloadID: "x",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeForbidden, resp.Outcome)
	assert.Contains(t, lastReply(t, resp).Text, "only admins can upload files")
	assert.Empty(t, h.files.files)
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name string
		up   models.Upload
		want string
	}{
		{
			name: "empty caption",
			up:   models.Upload{Kind: models.KindVideo, Caption: "", PayloadID: "x"},
			want: "⚠️ Please add keywords in the caption separated by spaces or commas.",
		},
		{
			name: "separators only",
			up:   models.Upload{Kind: models.KindVideo, Caption: " , ,", PayloadID: "x"},
			want: "⚠️ Please add keywords in the caption separated by spaces or commas.",
		},
		{
			name: "keyword too long",
			up:   models.Upload{Kind: models.KindVideo, Caption: "war " + strings.Repeat("x", keywords.MaxLength+1), PayloadID: "x"},
			want: "⚠️ Keywords can be at most 255 characters long.",
		},
		{
			name: "unknown kind",
			up:   models.Upload{Kind: "sticker", Caption: "war", PayloadID: "x"},
			want: "⚠️ Unsupported media type. Send a document, photo, video or audio file.",
		},
		{
			name: "no payload",
			up:   models.Upload{Kind: models.KindVideo, Caption: "war"},
			want: "⚠️ Please attach a file to save.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 10, testPage)
			tt.up.UserID = adminID

			resp, err := h.orch.HandleUpload(context.Background(), tt.up)
			require.NoError(t, err)
			assert.Equal(t, models.OutcomeRejected, resp.Outcome)
			assert.Equal(t, tt.want, lastReply(t, resp).Text)
			assert.Empty(t, h.files.files)
		})
	}
}

func TestUpload_WithReferenceNormalizesKeywords(t *testing.T) {
	h := newHarness(t, 10, testPage)

	resp, err := h.orch.HandleUpload(context.Background(), models.Upload{
		UserID:    adminID,
		ChatID:    chatID,
		Kind:      models.KindVideo,
		FileName:  "war.mp4",
		Caption:   "war, Action ",
		PayloadID: "BAACAgQAAxkBAAIC",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSaved, resp.Outcome)
	assert.Equal(t, "✅ File saved!\nFile ID: BAACAgQAAxkBAAIC\nKeywords: war, action", lastReply(t, resp).Text)

	require.Len(t, h.files.files, 1)
	rec := h.files.files[0]
	assert.Equal(t, []string{"war", "action"}, rec.Keywords)
	assert.Equal(t, "war, Action ", rec.Caption)
	assert.Equal(t, "war.mp4", rec.DisplayName)
	assert.Equal(t, adminID, rec.AddedBy)
	assert.False(t, rec.AddedAt.IsZero())
	assert.Empty(t, h.transport.stored, "references are not re-uploaded")
}

func TestUpload_StoresPayloadBytes(t *testing.T) {
	h := newHarness(t, 10, testPage)

	resp, err := h.orch.HandleUpload(context.Background(), models.Upload{
		UserID:  adminID,
		Kind:    models.KindDocument,
		Caption: "manual",
		Payload: &models.Payload{ContentType: "application/pdf", Size: 3, Body: bytes.NewReader([]byte("pdf"))},
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSaved, resp.Outcome)

	require.Len(t, h.files.files, 1)
	rec := h.files.files[0]
	assert.Equal(t, "payload-1", rec.ID)
	assert.Equal(t, "file", rec.DisplayName)
	assert.Equal(t, []byte("pdf"), h.transport.stored["payload-1"])

	// the saved file is searchable
	search, err := h.orch.HandleText(context.Background(), models.Message{UserID: userID, ChatID: chatID, Text: "manual"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeResults, search.Outcome)
}

func TestUpload_FailedSaveDiscardsPayload(t *testing.T) {
	h := newHarness(t, 10, testPage)
	boom := errors.New("tidb unavailable")
	h.files.createErr = boom

	_, err := h.orch.HandleUpload(context.Background(), models.Upload{
		UserID:  adminID,
		Kind:    models.KindPhoto,
		Caption: "poster",
		Payload: &models.Payload{Size: 1, Body: bytes.NewReader([]byte("x"))},
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"payload-1"}, h.transport.discarded)
	assert.Empty(t, h.transport.stored)
}

func TestUpload_FailedSaveKeepsExternalReference(t *testing.T) {
	h := newHarness(t, 10, testPage)
	h.files.createErr = errors.New("tidb unavailable")

	_, err := h.orch.HandleUpload(context.Background(), models.Upload{
		UserID: adminID, Kind: models.KindPhoto, Caption: "poster", PayloadID: "ext-1",
	})
	require.Error(t, err)
	assert.Empty(t, h.transport.discarded)
}

func TestUpload_StoreFailure(t *testing.T) {
	h := newHarness(t, 10, testPage)
	h.transport.storeErr = errors.New("minio unavailable")

	_, err := h.orch.HandleUpload(context.Background(), models.Upload{
		UserID:  adminID,
		Kind:    models.KindAudio,
		Caption: "song",
		Payload: &models.Payload{Body: bytes.NewReader(nil)},
	})
	require.Error(t, err)
	assert.Empty(t, h.files.files)
}

func TestUpload_DuplicateReference(t *testing.T) {
	h := newHarness(t, 10, testPage)
	h.seed(record("dup", "Existing", models.KindVideo, "war"))

	resp, err := h.orch.HandleUpload(context.Background(), models.Upload{
		UserID: adminID, Kind: models.KindVideo, Caption: "war", PayloadID: "dup",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRejected, resp.Outcome)
	assert.Equal(t, "⚠️ File dup is already registered.", lastReply(t, resp).Text)
	assert.Len(t, h.files.files, 1)
}

package bot

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maneesh/tagdrop/internal/common"
	"github.com/maneesh/tagdrop/internal/models"
	"github.com/maneesh/tagdrop/internal/quota"
	"github.com/maneesh/tagdrop/internal/search"
	"github.com/maneesh/tagdrop/internal/selection"
	"go.uber.org/zap"
)

const (
	adminID  int64 = 1000
	userID   int64 = 7
	chatID   int64 = 70
	testPage       = 10
)

// memFiles is an in-memory file store that also serves the search engine
type memFiles struct {
	mu        sync.Mutex
	files     []models.FileRecord
	createErr error
	deleteErr error
	findErr   error
	getCalls  int
}

func (m *memFiles) CreateFile(_ context.Context, file *models.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, f := range m.files {
		if f.ID == file.ID {
			return fmt.Errorf("file %s: %w", file.ID, common.ErrAlreadyExists)
		}
	}
	m.files = append(m.files, *file)
	return nil
}

func (m *memFiles) DeleteFile(_ context.Context, fileID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	for i, f := range m.files {
		if f.ID == fileID {
			m.files = slices.Delete(m.files, i, i+1)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memFiles) GetFile(_ context.Context, fileID string) (*models.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	for _, f := range m.files {
		if f.ID == fileID {
			rec := f
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("file %s: %w", fileID, common.ErrNotFound)
}

func (m *memFiles) FindByKeywords(_ context.Context, terms []string) ([]models.FileRecord, error) {
	return m.filter(func(kw string) bool { return slices.Contains(terms, kw) })
}

func (m *memFiles) FindByKeywordSubstring(_ context.Context, fragment string) ([]models.FileRecord, error) {
	return m.filter(func(kw string) bool { return strings.Contains(kw, fragment) })
}

func (m *memFiles) filter(match func(string) bool) ([]models.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []models.FileRecord
	for _, f := range m.files {
		if slices.ContainsFunc(f.Keywords, match) {
			out = append(out, f)
		}
	}
	return out, nil
}

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (m *memCounter) GetQuota(_ context.Context, userID int64, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.counts[fmt.Sprintf("%d:%s", userID, day)], nil
}

func (m *memCounter) IncrementQuota(_ context.Context, userID int64, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	key := fmt.Sprintf("%d:%s", userID, day)
	m.counts[key]++
	return m.counts[key], nil
}

type memCache struct {
	mu          sync.Mutex
	records     map[string]models.FileRecord
	invalidated []string
}

func (m *memCache) GetFileRecord(_ context.Context, fileID string) (*models.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[fileID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memCache) SetFileRecord(_ context.Context, file *models.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[file.ID] = *file
	return nil
}

func (m *memCache) InvalidateFileRecord(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, fileID)
	m.invalidated = append(m.invalidated, fileID)
	return nil
}

type fakeTransport struct {
	mu         sync.Mutex
	stored     map[string][]byte
	delivered  []models.Delivery
	discarded  []string
	storeErr   error
	deliverErr error
	nextID     int
}

func (f *fakeTransport) Store(_ context.Context, _ models.MediaKind, _, _ string, body io.Reader, _ int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return "", f.storeErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("payload-%d", f.nextID)
	f.stored[id] = data
	return id, nil
}

func (f *fakeTransport) Discard(_ context.Context, payloadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, payloadID)
	delete(f.stored, payloadID)
	return nil
}

func (f *fakeTransport) Deliver(_ context.Context, d models.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deliverErr != nil {
		return f.deliverErr
	}
	if slices.Contains(f.discarded, d.PayloadID) {
		return fmt.Errorf("payload %s: %w", d.PayloadID, common.ErrNotFound)
	}
	f.delivered = append(f.delivered, d)
	return nil
}

type harness struct {
	orch      *Orchestrator
	files     *memFiles
	counter   *memCounter
	cache     *memCache
	transport *fakeTransport
	tracker   *quota.Tracker
}

func newHarness(t *testing.T, limit, page int) *harness {
	t.Helper()
	logger := zap.NewNop()

	h := &harness{
		files:     &memFiles{},
		counter:   &memCounter{counts: make(map[string]int)},
		cache:     &memCache{records: make(map[string]models.FileRecord)},
		transport: &fakeTransport{stored: make(map[string][]byte)},
	}
	h.tracker = quota.NewTracker(h.counter, time.UTC)

	h.orch = NewOrchestrator(Deps{
		Search:     search.NewEngine(h.files, logger),
		Quota:      h.tracker,
		Selections: selection.NewCache(5*time.Minute),
		Files:      h.files,
		Cache:      h.cache,
		Transport:  h.transport,
	}, Settings{
		DailyLimit: limit,
		PageSize:   page,
		AdminIDs:   []int64{adminID},
	}, logger)
	return h
}

func (h *harness) seed(records ...models.FileRecord) {
	h.files.files = append(h.files.files, records...)
}

func (h *harness) used(t *testing.T, user int64) int {
	t.Helper()
	count, err := h.tracker.Peek(context.Background(), user)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	return count
}

func record(id, name string, kind models.MediaKind, kws ...string) models.FileRecord {
	return models.FileRecord{
		ID:          id,
		DisplayName: name,
		Keywords:    kws,
		Kind:        kind,
		AddedBy:     adminID,
		AddedAt:     time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	}
}

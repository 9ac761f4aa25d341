// Package search implements keyword lookups over the file store.
//
// Two matching modes are supported. Search uses exact-term membership: the
// query is split into normalized terms and a record matches when any term is
// one of its keywords. Lookup matches a single fragment as a substring of
// any keyword and backs the administrative /find command.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/maneesh/tagdrop/internal/keywords"
	"github.com/maneesh/tagdrop/internal/metrics"
	"github.com/maneesh/tagdrop/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("tagdrop-search")

const (
	modeExact     = "exact"
	modeSubstring = "substring"
)

// Store is the read side of the file store used by the engine
type Store interface {
	// FindByKeywords returns records with at least one keyword in terms.
	FindByKeywords(ctx context.Context, terms []string) ([]models.FileRecord, error)
	// FindByKeywordSubstring returns records with a keyword containing fragment.
	FindByKeywordSubstring(ctx context.Context, fragment string) ([]models.FileRecord, error)
}

// Engine resolves raw user queries to file records
type Engine struct {
	store  Store
	logger *zap.Logger
}

// NewEngine creates a search engine over store
func NewEngine(store Store, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger.Named("search"),
	}
}

// Search returns the records tagged with any term of query. A query with no
// terms yields an empty result without touching the store.
func (e *Engine) Search(ctx context.Context, query string) ([]models.FileRecord, error) {
	terms := keywords.Parse(query)
	if len(terms) == 0 {
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "search.exact",
		trace.WithAttributes(attribute.StringSlice("terms", terms)),
	)
	defer span.End()

	start := time.Now()
	metrics.SearchTotal.WithLabelValues(modeExact).Inc()

	files, err := e.store.FindByKeywords(ctx, terms)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search keywords: %w", err)
	}

	metrics.SearchDuration.WithLabelValues(modeExact).Observe(time.Since(start).Seconds())
	metrics.SearchResults.Observe(float64(len(files)))
	span.SetAttributes(attribute.Int("match_count", len(files)))

	e.logger.Debug("Search completed",
		zap.Strings("terms", terms),
		zap.Int("matches", len(files)),
		zap.Duration("duration", time.Since(start)),
	)
	return files, nil
}

// Lookup returns the records having a keyword that contains fragment,
// ignoring case. An empty fragment yields an empty result.
func (e *Engine) Lookup(ctx context.Context, fragment string) ([]models.FileRecord, error) {
	fragment = keywords.Normalize(fragment)
	if fragment == "" {
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "search.substring",
		trace.WithAttributes(attribute.String("fragment", fragment)),
	)
	defer span.End()

	start := time.Now()
	metrics.SearchTotal.WithLabelValues(modeSubstring).Inc()

	files, err := e.store.FindByKeywordSubstring(ctx, fragment)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to look up keyword fragment: %w", err)
	}

	metrics.SearchDuration.WithLabelValues(modeSubstring).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("match_count", len(files)))
	return files, nil
}

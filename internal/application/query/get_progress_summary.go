// Package query contains read operations (CQRS - Queries). Queries take no
// locks; they read the latest saved state.
package query

import (
	"context"
	"fmt"

	"github.com/heritage-hub/heritage-engine/internal/domain/achievement"
	"github.com/heritage-hub/heritage-engine/internal/domain/content"
	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
	"github.com/heritage-hub/heritage-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS SUMMARY QUERY
// The aggregate counters of one user. Served from the summary cache when it
// holds an entry; the command handlers refresh or invalidate it on change.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressSummaryQuery asks for a user's summary.
type GetProgressSummaryQuery struct {
	UserID string

	// RecentLimit - size of the recent lists; 0 uses the default. A cached
	// summary is only used for the default size.
	RecentLimit int

	// SkipCache - read the store even when a cached summary exists.
	SkipCache bool
}

// Validate checks the query.
func (q GetProgressSummaryQuery) Validate() error {
	if err := shared.ValidateID("query", "GetProgressSummary", "user id", q.UserID); err != nil {
		return err
	}
	if q.RecentLimit < 0 {
		return shared.NewDomainError("query", "GetProgressSummary", shared.ErrValueOutOfRange, "recent limit cannot be negative")
	}
	return nil
}

// GetProgressSummaryResult contains the summary.
type GetProgressSummaryResult struct {
	Summary progress.Summary

	// FromCache - the summary came from the cache.
	FromCache bool
}

// GetProgressSummaryHandler handles GetProgressSummaryQuery.
type GetProgressSummaryHandler struct {
	progressRepo progress.Repository
	directory    content.Directory
	catalog      *achievement.Catalog
	cache        progress.SummaryCache
	recentLimit  int
	log          *logger.Logger
}

// NewGetProgressSummaryHandler creates a new handler. cache may be nil.
func NewGetProgressSummaryHandler(
	progressRepo progress.Repository,
	directory content.Directory,
	catalog *achievement.Catalog,
	cache progress.SummaryCache,
	recentLimit int,
	log *logger.Logger,
) *GetProgressSummaryHandler {
	if recentLimit <= 0 {
		recentLimit = progress.DefaultRecentLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetProgressSummaryHandler{
		progressRepo: progressRepo,
		directory:    directory,
		catalog:      catalog,
		cache:        cache,
		recentLimit:  recentLimit,
		log:          log.With(logger.Component("get_progress_summary")),
	}
}

// Handle returns the summary. Returns shared.ErrProgressNotFound for users
// without progress.
func (h *GetProgressSummaryHandler) Handle(ctx context.Context, q GetProgressSummaryQuery) (*GetProgressSummaryResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	limit := q.RecentLimit
	if limit == 0 {
		limit = h.recentLimit
	}
	cacheable := h.cache != nil && limit == h.recentLimit

	if cacheable && !q.SkipCache {
		s, ok, err := h.cache.GetSummary(ctx, q.UserID)
		if err != nil {
			// A broken cache degrades to store reads.
			h.log.Warn("summary cache read failed", logger.UserID(q.UserID), logger.Err(err))
		} else if ok {
			return &GetProgressSummaryResult{Summary: *s, FromCache: true}, nil
		}
	}

	p, err := h.progressRepo.Get(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	totalTribes, err := h.directory.TotalTribes(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_progress_summary: failed to count tribes: %w", err)
	}

	s := p.Summarize(totalTribes, h.catalog.Points, limit)
	if cacheable {
		if err := h.cache.SetSummary(ctx, &s); err != nil {
			h.log.Warn("summary cache write failed", logger.UserID(q.UserID), logger.Err(err))
		}
	}
	return &GetProgressSummaryResult{Summary: s}, nil
}

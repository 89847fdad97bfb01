package news

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ent0n29/pitwall/internal/memory"
	"github.com/ent0n29/pitwall/internal/observability"
)

// ErrAllSourcesFailed is returned by Refresh when no source produced items.
var ErrAllSourcesFailed = errors.New("all news sources failed")

// Publisher announces newly stored headlines.
type Publisher interface {
	PublishBatch(ctx context.Context, items []memory.NewsItem) error
}

type ServiceConfig struct {
	Limit        int
	StoreTimeout time.Duration
	// RefreshTimeout bounds one shared refresh run.
	RefreshTimeout time.Duration
}

// Service keeps the news store fresh and answers "latest news" reads.
type Service struct {
	scraper   *Scraper
	sources   []Source
	store     memory.NewsStore
	publisher Publisher
	metrics   *observability.Metrics
	logger    *slog.Logger
	cfg       ServiceConfig
	group     singleflight.Group
}

// NewService wires the news pipeline. publisher, metrics and logger may be nil.
func NewService(scraper *Scraper, sources []Source, store memory.NewsStore, publisher Publisher, metrics *observability.Metrics, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		scraper:   scraper,
		sources:   sources,
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// RefreshResult summarizes one refresh run.
type RefreshResult struct {
	Scraped int
	Added   []memory.NewsItem
	Failed  []string
	// Batch is what the scrape produced, stored or not.
	Batch Batch
}

// Refresh scrapes every source once and stores new items. Concurrent callers
// share one run, which is detached from any single caller's cancellation and
// bounded by RefreshTimeout. A caller whose ctx ends stops waiting early.
func (s *Service) Refresh(ctx context.Context) (RefreshResult, error) {
	ch := s.group.DoChan("refresh", func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RefreshTimeout)
		defer cancel()
		return s.refresh(runCtx)
	})
	select {
	case <-ctx.Done():
		return RefreshResult{}, ctx.Err()
	case r := <-ch:
		res, _ := r.Val.(RefreshResult)
		return res, r.Err
	}
}

func (s *Service) refresh(ctx context.Context) (RefreshResult, error) {
	batch := s.scraper.Scrape(ctx, s.sources)
	res := RefreshResult{Scraped: len(batch.Items), Batch: batch}
	for name := range batch.Failed {
		res.Failed = append(res.Failed, name)
	}

	if len(s.sources) > 0 && len(batch.Failed) == len(s.sources) {
		s.metrics.ObserveNewsRefresh("failed", nil)
		return res, ErrAllSourcesFailed
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	added, err := s.store.AppendNews(storeCtx, batch.Items)
	res.Added = added
	if err != nil {
		s.metrics.ObservePersistError("news")
		s.metrics.ObserveNewsRefresh("store_failed", nil)
		return res, fmt.Errorf("store news: %w", err)
	}

	bySource := make(map[string]int)
	for _, it := range added {
		bySource[it.Source]++
	}
	s.metrics.ObserveNewsRefresh("ok", bySource)
	s.logger.Info("news refreshed",
		"scraped", res.Scraped, "added", len(added), "failed_sources", len(res.Failed))

	if s.publisher != nil && len(added) > 0 {
		if err := s.publisher.PublishBatch(storeCtx, added); err != nil {
			s.logger.Warn("publish news failed", "items", len(added), "error", err)
		}
	}
	return res, nil
}

// Latest returns up to the configured limit of headlines formatted as
// "<title> - <link>", newest scrape first. It never fails: with an empty
// store it refreshes once, and with a broken store it serves a direct scrape.
func (s *Service) Latest(ctx context.Context) []string {
	items, err := s.store.LatestNews(ctx, s.cfg.Limit)
	if err != nil {
		s.logger.Warn("read stored news failed, scraping directly", "error", err)
		s.metrics.ObservePersistError("news_read")
		return s.format(s.scraper.Scrape(ctx, s.sources).Items)
	}
	if len(items) > 0 {
		return s.format(items)
	}

	res, err := s.Refresh(ctx)
	if err != nil {
		s.logger.Warn("news refresh on read failed", "error", err)
		return s.format(res.Batch.Items)
	}
	items, err = s.store.LatestNews(ctx, s.cfg.Limit)
	if err != nil {
		return s.format(res.Batch.Items)
	}
	return s.format(items)
}

func (s *Service) format(items []memory.NewsItem) []string {
	out := make([]string, 0, min(len(items), s.cfg.Limit))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		line := it.Title + " - " + it.Link
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
		if len(out) == s.cfg.Limit {
			break
		}
	}
	return out
}

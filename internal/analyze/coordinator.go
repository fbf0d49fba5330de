// Package analyze runs the staged suggestion fetch for one content snapshot
// and hands the merged batch to a suggestion engine.
package analyze

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"inkline/api/internal/source"
	"inkline/api/internal/suggest"
)

var (
	coreCategories = []suggest.Category{
		suggest.CategoryGrammar,
		suggest.CategorySpelling,
		suggest.CategoryStyle,
		suggest.CategorySlang,
		suggest.CategoryDemonetization,
	}
	enhancedCategories = []suggest.Category{
		suggest.CategoryToneRewrite,
		suggest.CategoryEngagement,
		suggest.CategorySEO,
		suggest.CategoryPlatform,
	}
)

// Target receives the merged batch. *suggest.Engine satisfies it.
type Target interface {
	Revision() uint64
	Ingest(fullText string, revision uint64, batch []suggest.Suggestion) (suggest.Ingestion, error)
}

// BatchCache stores merged batches by content key.
type BatchCache interface {
	GetBatch(ctx context.Context, key string) ([]suggest.Suggestion, bool, error)
	PutBatch(ctx context.Context, key string, batch []suggest.Suggestion) error
}

// Result describes one analysis run.
type Result struct {
	Revision       uint64            `json:"revision"`
	Ingestion      suggest.Ingestion `json:"ingestion"`
	Fetched        int               `json:"fetched"`
	Cached         bool              `json:"cached"`
	EnhancedFailed bool              `json:"enhancedFailed"`
}

type Coordinator struct {
	source source.Source
	cache  BatchCache
	logger *log.Logger
}

// NewCoordinator builds a coordinator. cache may be nil.
func NewCoordinator(src source.Source, cache BatchCache, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{source: src, cache: cache, logger: logger}
}

// Run fetches the core and enhanced stages for text concurrently and
// ingests the merged batch once. revision must be target's revision at the
// moment text was captured; callers read both under the same lock. A failed
// enhanced stage keeps the core results; a failed core stage returns
// ErrSourceFetch and leaves target untouched. If target moved past revision
// while the fetch was in flight the batch is discarded with ErrStaleBatch.
func (c *Coordinator) Run(ctx context.Context, target Target, text string, revision uint64) (Result, error) {
	key := CacheKey(text)
	result := Result{Revision: revision}

	batch, cached := c.lookup(ctx, key)
	if cached {
		result.Cached = true
	} else {
		var err error
		batch, result.EnhancedFailed, err = c.fetch(ctx, text)
		if err != nil {
			return result, err
		}
		if !result.EnhancedFailed {
			c.store(ctx, key, batch)
		}
	}
	result.Fetched = len(batch)

	ingestion, err := target.Ingest(text, revision, batch)
	if err != nil {
		if errors.Is(err, suggest.ErrStaleBatch) {
			c.logger.Info("discarding stale suggestion batch", "revision", revision, "current", target.Revision())
		}
		return result, err
	}
	result.Ingestion = ingestion
	return result, nil
}

func (c *Coordinator) fetch(ctx context.Context, text string) ([]suggest.Suggestion, bool, error) {
	var (
		mu          sync.Mutex
		core        []suggest.Suggestion
		enhanced    []suggest.Suggestion
		enhancedErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := c.source.Suggest(gctx, source.Request{Text: text, Stage: source.StageCore, Categories: coreCategories})
		if err != nil {
			return fetchError(source.StageCore, err)
		}
		mu.Lock()
		core = items
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		items, err := c.source.Suggest(gctx, source.Request{Text: text, Stage: source.StageEnhanced, Categories: enhancedCategories})
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			enhancedErr = err
			return nil
		}
		enhanced = items
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	if enhancedErr != nil {
		c.logger.Warn("enhanced analysis failed, keeping core suggestions", "err", enhancedErr)
	}
	return Merge(core, enhanced), enhancedErr != nil, nil
}

func (c *Coordinator) lookup(ctx context.Context, key string) ([]suggest.Suggestion, bool) {
	if c.cache == nil {
		return nil, false
	}
	batch, ok, err := c.cache.GetBatch(ctx, key)
	if err != nil {
		c.logger.Warn("batch cache lookup failed", "err", err)
		return nil, false
	}
	return batch, ok
}

func (c *Coordinator) store(ctx context.Context, key string, batch []suggest.Suggestion) {
	if c.cache == nil {
		return
	}
	if err := c.cache.PutBatch(ctx, key, batch); err != nil {
		c.logger.Warn("batch cache store failed", "err", err)
	}
}

// Merge concatenates stage batches in order. Records repeating an earlier
// category, range and text are dropped; ids colliding with an earlier,
// different record get a stage-unique prefix.
func Merge(batches ...[]suggest.Suggestion) []suggest.Suggestion {
	out := make([]suggest.Suggestion, 0)
	seenIDs := make(map[string]struct{})
	seenSpans := make(map[string]struct{})
	for stage, batch := range batches {
		for _, item := range batch {
			span := fmt.Sprintf("%s|%d|%d|%s", item.Category, item.Start, item.End, item.Text)
			if _, ok := seenSpans[span]; ok {
				continue
			}
			seenSpans[span] = struct{}{}
			if item.ID != "" {
				if _, ok := seenIDs[item.ID]; ok {
					item.ID = uniqueID(seenIDs, fmt.Sprintf("s%d-%s", stage, item.ID))
				}
				seenIDs[item.ID] = struct{}{}
			}
			out = append(out, item)
		}
	}
	return out
}

func uniqueID(seen map[string]struct{}, base string) string {
	id := base
	for n := 2; ; n++ {
		if _, taken := seen[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

// CacheKey identifies a text snapshot.
func CacheKey(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

func fetchError(stage source.Stage, err error) error {
	if errors.Is(err, suggest.ErrSourceFetch) {
		return fmt.Errorf("%s stage: %w", stage, err)
	}
	return fmt.Errorf("%w: %s stage: %v", suggest.ErrSourceFetch, stage, err)
}

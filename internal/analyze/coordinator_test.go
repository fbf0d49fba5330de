package analyze

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"

	"inkline/api/internal/source"
	"inkline/api/internal/suggest"
)

const sample = "The qick fox jumpd"

func quietLogger() *log.Logger { return log.New(io.Discard) }

func newEngine() *suggest.Engine {
	e := suggest.New(suggest.Options{Logger: quietLogger()})
	e.Load()
	return e
}

func stagedSource(calls *atomic.Int32, enhancedErr error) source.Source {
	return source.Func(func(ctx context.Context, req source.Request) ([]suggest.Suggestion, error) {
		calls.Add(1)
		switch req.Stage {
		case source.StageCore:
			return []suggest.Suggestion{
				{ID: "1", Text: "qick", Start: 4, End: 8, Category: suggest.CategorySpelling},
				{ID: "2", Text: "jumpd", Start: 0, End: 5, Category: suggest.CategorySpelling},
			}, nil
		default:
			if enhancedErr != nil {
				return nil, enhancedErr
			}
			return []suggest.Suggestion{
				{ID: "1", Text: "The qick fox", Start: 0, End: 12, Category: suggest.CategoryToneRewrite},
			}, nil
		}
	})
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string][]suggest.Suggestion
}

func (c *memoryCache) GetBatch(_ context.Context, key string) ([]suggest.Suggestion, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch, ok := c.items[key]
	return batch, ok, nil
}

func (c *memoryCache) PutBatch(_ context.Context, key string, batch []suggest.Suggestion) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = make(map[string][]suggest.Suggestion)
	}
	c.items[key] = batch
	return nil
}

func TestRunMergesStages(t *testing.T) {
	var calls atomic.Int32
	engine := newEngine()
	coord := NewCoordinator(stagedSource(&calls, nil), nil, quietLogger())

	result, err := coord.Run(context.Background(), engine, sample, engine.Revision())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 source calls, got %d", calls.Load())
	}
	if result.Fetched != 3 || result.Ingestion.Kept != 3 || result.EnhancedFailed {
		t.Fatalf("unexpected result: %+v", result)
	}
	jumpd, ok := engine.Get("2")
	if !ok || jumpd.Start != 13 || jumpd.End != 18 {
		t.Fatalf("expected repaired offsets [13,18), got %+v", jumpd)
	}
	if _, ok := engine.Get("s1-1"); !ok {
		t.Fatal("expected colliding enhanced id to be renamed")
	}
}

func TestRunToleratesEnhancedFailure(t *testing.T) {
	var calls atomic.Int32
	engine := newEngine()
	cache := &memoryCache{}
	coord := NewCoordinator(stagedSource(&calls, errors.New("timeout")), cache, quietLogger())

	result, err := coord.Run(context.Background(), engine, sample, engine.Revision())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.EnhancedFailed || result.Ingestion.Kept != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(cache.items) != 0 {
		t.Fatal("partial batch must not be cached")
	}
}

func TestRunCoreFailureLeavesEngineUnchanged(t *testing.T) {
	engine := newEngine()
	engine.ReplaceAll([]suggest.Suggestion{{ID: "old", Text: "The", Start: 0, End: 3, Category: suggest.CategoryGrammar}})

	src := source.Func(func(ctx context.Context, req source.Request) ([]suggest.Suggestion, error) {
		if req.Stage == source.StageCore {
			return nil, errors.New("connection refused")
		}
		return nil, nil
	})
	_, err := NewCoordinator(src, nil, quietLogger()).Run(context.Background(), engine, sample, engine.Revision())
	if !errors.Is(err, suggest.ErrSourceFetch) {
		t.Fatalf("expected ErrSourceFetch, got %v", err)
	}
	if all := engine.AllSuggestions(); len(all) != 1 || all[0].ID != "old" {
		t.Fatalf("engine changed after failed fetch: %+v", all)
	}
}

func TestRunDiscardsStaleBatch(t *testing.T) {
	engine := newEngine()
	src := source.Func(func(ctx context.Context, req source.Request) ([]suggest.Suggestion, error) {
		if req.Stage == source.StageCore {
			// The document is edited while the request is in flight.
			if _, err := engine.OnTextRemoved(0, 4, "The "); err != nil {
				return nil, err
			}
			return []suggest.Suggestion{{ID: "1", Text: "qick", Start: 4, End: 8, Category: suggest.CategorySpelling}}, nil
		}
		return nil, nil
	})

	_, err := NewCoordinator(src, nil, quietLogger()).Run(context.Background(), engine, sample, engine.Revision())
	if !errors.Is(err, suggest.ErrStaleBatch) {
		t.Fatalf("expected ErrStaleBatch, got %v", err)
	}
	if len(engine.AllSuggestions()) != 0 {
		t.Fatal("stale batch reached the engine")
	}
}

func TestRunUsesCache(t *testing.T) {
	var calls atomic.Int32
	cache := &memoryCache{}
	coord := NewCoordinator(stagedSource(&calls, nil), cache, quietLogger())

	first, second := newEngine(), newEngine()
	if _, err := coord.Run(context.Background(), first, sample, first.Revision()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	result, err := coord.Run(context.Background(), second, sample, second.Revision())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !result.Cached || calls.Load() != 2 {
		t.Fatalf("expected cached run without source calls, got cached=%v calls=%d", result.Cached, calls.Load())
	}
	if result.Ingestion.Kept != 3 {
		t.Fatalf("expected 3 suggestions from cache, got %d", result.Ingestion.Kept)
	}
}

func TestMergeDropsRepeatedSpans(t *testing.T) {
	a := []suggest.Suggestion{{ID: "x", Text: "ab", Start: 0, End: 2, Category: suggest.CategoryGrammar}}
	b := []suggest.Suggestion{
		{ID: "y", Text: "ab", Start: 0, End: 2, Category: suggest.CategoryGrammar},
		{ID: "z", Text: "ab", Start: 0, End: 2, Category: suggest.CategorySEO},
	}
	got := Merge(a, b)
	if len(got) != 2 || got[0].ID != "x" || got[1].ID != "z" {
		t.Fatalf("unexpected merge: %+v", got)
	}
}

func TestRunRejectsRevisionCapturedBeforeEdit(t *testing.T) {
	var calls atomic.Int32
	engine := newEngine()
	captured := engine.Revision()
	// The edit lands after the text was captured but before the fetch starts.
	if _, err := engine.OnTextRemoved(0, 4, "The "); err != nil {
		t.Fatalf("OnTextRemoved: %v", err)
	}

	_, err := NewCoordinator(stagedSource(&calls, nil), nil, quietLogger()).Run(context.Background(), engine, sample, captured)
	if !errors.Is(err, suggest.ErrStaleBatch) {
		t.Fatalf("expected ErrStaleBatch, got %v", err)
	}
	if len(engine.AllSuggestions()) != 0 {
		t.Fatal("stale batch reached the engine")
	}
}

func TestMergeRenamesUntilUnique(t *testing.T) {
	core := []suggest.Suggestion{
		{ID: "1", Text: "ab", Start: 0, End: 2, Category: suggest.CategoryGrammar},
		{ID: "s1-1", Text: "cd", Start: 3, End: 5, Category: suggest.CategoryGrammar},
	}
	enhanced := []suggest.Suggestion{
		{ID: "1", Text: "ab cd", Start: 0, End: 5, Category: suggest.CategoryToneRewrite},
	}
	got := Merge(core, enhanced)
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %+v", got)
	}
	seen := map[string]bool{}
	for _, item := range got {
		if seen[item.ID] {
			t.Fatalf("duplicate id %q after merge: %+v", item.ID, got)
		}
		seen[item.ID] = true
	}
	if got[2].ID != "s1-1-2" {
		t.Fatalf("expected renamed id s1-1-2, got %q", got[2].ID)
	}
}

func TestCacheKeyStable(t *testing.T) {
	if CacheKey("abc") != CacheKey("abc") || CacheKey("abc") == CacheKey("abd") {
		t.Fatal("cache key must depend only on text")
	}
	if len(CacheKey("")) != 40 {
		t.Fatalf("expected hex sha1, got %q", CacheKey(""))
	}
}

package engine

import (
	"context"
	"sync"

	"github.com/memenex/memengine/pkg/hybrid"
	"github.com/memenex/memengine/pkg/record"
)

// AsyncEngine wraps Engine for callers that want request-path operations
// dispatched on their own goroutine and collected via a channel, mirroring
// the teacher's AsyncClient (pkg/core/async_memory.go).
type AsyncEngine struct {
	*Engine
	wg sync.WaitGroup
}

// NewAsync wraps an existing Engine.
func NewAsync(e *Engine) *AsyncEngine {
	return &AsyncEngine{Engine: e}
}

// InsertResult is delivered on InsertAsync's channel.
type InsertResult struct {
	Record *record.Record
	Error  error
}

// InsertAsync runs Insert on its own goroutine, tracked by Wait.
func (a *AsyncEngine) InsertAsync(ctx context.Context, content string, opts ...InsertOption) <-chan InsertResult {
	out := make(chan InsertResult, 1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		r, err := a.Insert(ctx, content, opts...)
		out <- InsertResult{Record: r, Error: err}
	}()
	return out
}

// SearchResult is delivered on SearchAsync's channel.
type SearchResult struct {
	Results []hybrid.Result
	Error   error
}

// SearchAsync runs Search on its own goroutine, tracked by Wait.
func (a *AsyncEngine) SearchAsync(ctx context.Context, query string, k int, opts ...SearchOption) <-chan SearchResult {
	out := make(chan SearchResult, 1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		res, err := a.Search(ctx, query, k, opts...)
		out <- SearchResult{Results: res, Error: err}
	}()
	return out
}

// Wait blocks until every goroutine started by *Async methods has
// returned its result.
func (a *AsyncEngine) Wait() {
	a.wg.Wait()
}

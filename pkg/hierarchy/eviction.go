package hierarchy

import (
	"context"
	"sort"

	"github.com/memenex/memengine/internal/concurrency"
	"github.com/memenex/memengine/internal/telemetry"
	"github.com/memenex/memengine/pkg/fulltext"
	"github.com/memenex/memengine/pkg/record"
	"github.com/memenex/memengine/pkg/vectorindex"
)

// Evictor enforces per-scope capacity by removing the lowest-importance
// records once a scope exceeds its configured maximum, with Working-kind
// records always evicted first regardless of importance.
type Evictor struct {
	Store    *record.Store
	Vector   vectorindex.Index
	Text     *fulltext.Index
	Counters *concurrency.ScopeCounters
	// Notify receives evicted ids on a best-effort basis: sends never
	// block the eviction path, so a slow or absent consumer only misses
	// notifications, it never stalls eviction.
	Notify chan string
	Log    *telemetry.Logger
}

// NewEvictor wires an Evictor. notifyBuffer sizes the notification
// channel; 0 is valid (no external cache invalidation consumer).
func NewEvictor(store *record.Store, vector vectorindex.Index, text *fulltext.Index, counters *concurrency.ScopeCounters, notifyBuffer int, log *telemetry.Logger) *Evictor {
	if log == nil {
		log = telemetry.Nop()
	}
	return &Evictor{
		Store:    store,
		Vector:   vector,
		Text:     text,
		Counters: counters,
		Notify:   make(chan string, notifyBuffer),
		Log:      log.With("eviction"),
	}
}

// EvictScope brings scope back under max by deleting records, Working
// kind first, then lowest importance first, until the count is within
// limit. Returns the evicted ids.
func (e *Evictor) EvictScope(ctx context.Context, scope record.Scope, max int) ([]string, error) {
	lock := e.Counters.EvictLock(string(scope))
	lock.Lock()
	defer lock.Unlock()

	records, err := e.Store.ScanByScope(ctx, scope, 0)
	if err != nil {
		return nil, err
	}
	if max <= 0 || len(records) <= max {
		return nil, nil
	}

	sort.Slice(records, func(i, j int) bool {
		wi := records[i].Kind == record.KindWorking
		wj := records[j].Kind == record.KindWorking
		if wi != wj {
			return wi // Working records sort first.
		}
		return records[i].Importance < records[j].Importance
	})

	excess := len(records) - max
	victims := records[:excess]
	evicted := make([]string, 0, len(victims))

	for _, r := range victims {
		if ctx.Err() != nil {
			return evicted, ctx.Err()
		}
		ok, err := e.Store.Delete(ctx, r.ID)
		if err != nil {
			e.Log.Warnf("eviction: failed to delete %s: %v", r.ID, err)
			continue
		}
		if !ok {
			continue
		}
		if e.Vector != nil {
			e.Vector.Delete(r.ID)
		}
		if e.Text != nil {
			e.Text.Delete(r.ID)
		}
		evicted = append(evicted, r.ID)
		e.Counters.Dec(string(scope))
		select {
		case e.Notify <- r.ID:
		default:
		}
	}

	e.Log.Infof("evicted %d record(s) from scope %s (limit %d)", len(evicted), scope, max)
	return evicted, nil
}

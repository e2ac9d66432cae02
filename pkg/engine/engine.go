// Package engine wires the Record Store, Vector Index, Full-Text Index,
// Hybrid Search Engine, Hierarchy Manager, and Core-Memory block
// subsystem into one client, the way the teacher's pkg/core.Client wires
// its storage/LLM/embedder/intelligence components.
package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/memenex/memengine/internal/concurrency"
	"github.com/memenex/memengine/internal/config"
	"github.com/memenex/memengine/internal/enginerr"
	"github.com/memenex/memengine/internal/telemetry"
	"github.com/memenex/memengine/pkg/corememory"
	"github.com/memenex/memengine/pkg/fulltext"
	"github.com/memenex/memengine/pkg/hierarchy"
	"github.com/memenex/memengine/pkg/hybrid"
	"github.com/memenex/memengine/pkg/kvbackend"
	"github.com/memenex/memengine/pkg/record"
	"github.com/memenex/memengine/pkg/vectorindex"
)

// Engine is the top-level entry point: insert, search, fetch, and delete
// records; manage Core-Memory blocks; and run decay, eviction, and
// consolidation as background jobs (spec section 5).
type Engine struct {
	cfg *config.Config

	store  *record.Store
	vector vectorindex.Index
	text   *fulltext.Index
	hybrid *hybrid.Engine

	locks    *concurrency.StripedLocks
	counters *concurrency.ScopeCounters

	scorer   hierarchy.Scorer
	decay    hierarchy.DecayEngine
	evictor  *hierarchy.Evictor
	consol   *hierarchy.Consolidator
	dedup    *hierarchy.Deduper
	Blocks   *corememory.Manager

	opts engineOptions

	idNode *snowflake.Node
	log    *telemetry.Logger

	mu        sync.Mutex
	agentIDs  map[string]struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   bool
}

// New builds an Engine over backend using cfg, applying opts. A missing
// Embedder means Insert callers must supply WithEmbedding explicitly; a
// missing Rewriter means the background consolidation pass is skipped, the
// Summarize block rewrite strategy fails, and Hybrid falls back to Compress
// (which needs no Rewriter).
func New(cfg *config.Config, backend kvbackend.Backend, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}
	scorer := hierarchy.DefaultScorer()
	if o.scorer != nil {
		scorer = *o.scorer
	}

	log := telemetry.New("engine", telemetry.LevelInfo)
	locks := concurrency.NewStripedLocks(cfg.LockStripes)
	counters := concurrency.NewScopeCounters()

	store := record.NewStore(backend, locks, log.With("record"))

	vector := newVectorIndex(cfg)
	text := fulltext.NewIndex(fulltextConfig(cfg))
	hyb := hybrid.New(vector, text)

	evictor := hierarchy.NewEvictor(store, vector, text, counters, 64, log.With("eviction"))
	consol := hierarchy.NewConsolidator(store, vector, text, o.rewriter, consolidationConfig(cfg), log.With("consolidation"))
	dedup := hierarchy.NewDeduper(vector, text, store, o.dedupThreshold)
	blocks := corememory.NewManager(store, o.rewriter, concurrency.NewKeyedMutex(), cfg.Blocks, log.With("corememory"))

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, enginerr.New("engine.New", enginerr.CodeInvalidArgument, err)
	}

	e := &Engine{
		cfg:      cfg,
		store:    store,
		vector:   vector,
		text:     text,
		hybrid:   hyb,
		locks:    locks,
		counters: counters,
		scorer:   scorer,
		decay:    decayEngine(cfg),
		evictor:  evictor,
		consol:   consol,
		dedup:    dedup,
		Blocks:   blocks,
		opts:     o,
		idNode:   node,
		log:      log,
		agentIDs: make(map[string]struct{}),
	}
	return e, nil
}

func newVectorIndex(cfg *config.Config) vectorindex.Index {
	metric := hnswMetric(cfg)
	if cfg.VectorIndex.Algorithm == config.VectorFlat {
		return vectorindex.NewFlat(metric)
	}
	return vectorindex.NewHNSW(vectorindex.HNSWConfig{
		M:              cfg.VectorIndex.M,
		EfConstruction: cfg.VectorIndex.EfConstruction,
		EfSearch:       cfg.VectorIndex.EfSearch,
		Metric:         metric,
	})
}

func fulltextConfig(cfg *config.Config) fulltext.Config {
	fc := fulltext.DefaultConfig()
	fc.K1 = cfg.FullText.K1
	fc.B = cfg.FullText.B
	fc.Stemming = cfg.FullText.Stemming
	if len(cfg.FullText.StopWords) > 0 {
		sw := make(map[string]bool, len(cfg.FullText.StopWords))
		for _, w := range cfg.FullText.StopWords {
			sw[w] = true
		}
		fc.StopWords = sw
	}
	switch cfg.FullText.Tokenizer {
	case config.TokenizerLatin:
		fc.Tokenizer = fulltext.TokenizerLatin
	case config.TokenizerCJK:
		fc.Tokenizer = fulltext.TokenizerCJK
	default:
		fc.Tokenizer = fulltext.TokenizerAuto
	}
	return fc
}

func decayEngine(cfg *config.Config) hierarchy.DecayEngine {
	return hierarchy.DecayEngine{
		Lambdas: hierarchy.DecayLambdas{
			Global:  cfg.Scopes.DecayLambda.Global,
			Agent:   cfg.Scopes.DecayLambda.Agent,
			User:    cfg.Scopes.DecayLambda.User,
			Session: cfg.Scopes.DecayLambda.Session,
		},
		Beta: cfg.Scopes.ReinforcementBoost,
	}
}

func consolidationConfig(cfg *config.Config) hierarchy.ConsolidationConfig {
	c := hierarchy.DefaultConsolidationConfig()
	c.MinAge = time.Duration(cfg.Consolidation.AgeWindowSecs) * time.Second
	c.MinClusterSize = cfg.Consolidation.MinClusterSize
	c.ImportanceFactor = cfg.Consolidation.ImportanceDecayFactor
	return c
}

// Insert stores content as a new record across the Record Store, Vector
// Index, and Full-Text Index (components A/B/C). If B or C fails after A
// succeeded, the A write is compensated with a delete before the error is
// returned (spec section 4.E, "Failure semantics").
func (e *Engine) Insert(ctx context.Context, content string, opts ...InsertOption) (*record.Record, error) {
	o := defaultInsertOptions()
	for _, opt := range opts {
		opt(&o)
	}

	embedding := o.embedding
	if embedding == nil {
		if e.opts.embedder == nil {
			return nil, enginerr.New("Engine.Insert", enginerr.CodeInvalidArgument, fmt.Errorf("no embedding supplied and no Embedder configured"))
		}
		vec, err := e.opts.embedder.Embed(ctx, content)
		if err != nil {
			return nil, err
		}
		embedding = vec
	}

	scope := record.ScopeGlobal
	if o.kind != record.KindCoreBlock {
		scope = hierarchy.AssignScope(o.agentID, o.userID, o.sessionID)
	}

	if e.opts.dedupEnabled && o.kind != record.KindCoreBlock {
		if existingID := e.dedup.Find(embedding, o.agentID); existingID != "" {
			return e.dedup.Merge(ctx, existingID, content, embedding)
		}
	}

	if err := e.ensureCapacity(ctx, scope); err != nil {
		return nil, err
	}

	noveltyFilter := record.MatchScope(scope)
	if scope != record.ScopeGlobal && o.agentID != "" {
		noveltyFilter = record.And(noveltyFilter, record.MatchAgent(o.agentID))
	}
	nearest, _ := e.vector.Search(embedding, 5, noveltyFilter)
	importance := e.scorer.Score(content, embedding, nearest, o.priority)
	if o.importance != nil {
		importance = *o.importance
	}

	now := time.Now()
	r := &record.Record{
		ID:             e.idNode.Generate().String(),
		AgentID:        o.agentID,
		UserID:         o.userID,
		SessionID:      o.sessionID,
		Scope:          scope,
		Kind:           o.kind,
		Content:        content,
		Embedding:      embedding,
		Importance:     importance,
		CreatedAt:      now,
		LastAccessedAt: now,
		Tags:           o.tags,
		Metadata:       o.metadata,
	}

	if err := e.store.Put(ctx, r); err != nil {
		return nil, err
	}
	if err := e.vector.Add(r.ID, embedding, r); err != nil {
		e.compensate(ctx, r.ID)
		return nil, err
	}
	if err := e.text.Add(r.ID, content, r); err != nil {
		e.compensate(ctx, r.ID)
		return nil, err
	}

	e.counters.Inc(string(scope))
	if o.agentID != "" {
		e.mu.Lock()
		e.agentIDs[o.agentID] = struct{}{}
		e.mu.Unlock()
	}
	return r, nil
}

// scopeMax returns the configured record cap for scope, or 0 for "no cap".
func (e *Engine) scopeMax(scope record.Scope) int {
	switch scope {
	case record.ScopeAgent:
		return e.cfg.Scopes.AgentMax
	case record.ScopeUser:
		return e.cfg.Scopes.UserMax
	case record.ScopeSession:
		return e.cfg.Scopes.SessionMax
	default:
		return e.cfg.Scopes.GlobalMax
	}
}

// ensureCapacity makes room for one more record in scope, synchronously
// evicting the lowest-importance (Working-kind first) existing records if
// the scope is already at its configured cap. This is the insert-path
// counterpart to the background eviction pass run by Start: callers that
// never call Start still get a bounded scope. If eviction cannot bring the
// scope back under its cap (e.g. the backend rejects the deletes),
// CodeCapacityExceeded is returned rather than letting the scope grow
// unbounded.
func (e *Engine) ensureCapacity(ctx context.Context, scope record.Scope) error {
	max := e.scopeMax(scope)
	if max <= 0 {
		return nil
	}
	if e.counters.Count(string(scope)) < int64(max) {
		return nil
	}
	// EvictScope treats a non-positive target as "unbounded, do nothing",
	// so only call it when there is a positive target to evict down to.
	if target := max - 1; target > 0 {
		if _, err := e.evictor.EvictScope(ctx, scope, target); err != nil {
			return err
		}
	}
	if e.counters.Count(string(scope)) >= int64(max) {
		return enginerr.New("Engine.Insert", enginerr.CodeCapacityExceeded,
			fmt.Errorf("scope %s is at capacity %d and eviction could not free a slot", scope, max))
	}
	return nil
}

// SnapshotVectorIndex writes the current vector index to w so it can be
// reloaded on the next start without replaying every insert (spec section
// 4.B "Persistence"). It is only meaningful for an HNSW index; a Flat
// index is cheap enough to rebuild from the Record Store that it has
// nothing worth snapshotting.
func (e *Engine) SnapshotVectorIndex(w io.Writer) error {
	hnsw, ok := e.vector.(*vectorindex.HNSW)
	if !ok {
		return enginerr.New("Engine.SnapshotVectorIndex", enginerr.CodeInvalidArgument,
			fmt.Errorf("active vector index is not HNSW, nothing to snapshot"))
	}
	return hnsw.Snapshot(w)
}

// LoadVectorIndexSnapshot replaces the engine's vector index with the
// contents of r. If the snapshot is corrupt, the engine falls back to an
// empty Flat index immediately so it keeps serving traffic, and kicks off
// a background rebuild of a fresh HNSW from the Record Store (spec section
// 4.B "Failure": index corruption falls back to a linear scan while a
// background rebuild runs). The returned error is non-nil in that case so
// callers can log it, but the engine is left usable either way.
func (e *Engine) LoadVectorIndexSnapshot(r io.Reader) error {
	idx, err := vectorindex.LoadHNSWWithFallback(r, vectorindex.HNSWConfig{
		M:              e.cfg.VectorIndex.M,
		EfConstruction: e.cfg.VectorIndex.EfConstruction,
		EfSearch:       e.cfg.VectorIndex.EfSearch,
		Metric:         hnswMetric(e.cfg),
	})
	if err != nil && !enginerr.Is(err, enginerr.CodeIndexCorruption) {
		return err
	}
	e.replaceVectorIndex(idx)
	if err != nil {
		e.log.Warnf("vector index snapshot corrupt, serving Flat fallback while rebuilding: %v", err)
		e.rebuildVectorIndexInBackground()
	}
	return err
}

// replaceVectorIndex swaps the vector index used by the engine and every
// subsystem that was handed it at construction time.
func (e *Engine) replaceVectorIndex(idx vectorindex.Index) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vector = idx
	e.hybrid.Vector = idx
	e.evictor.Vector = idx
	e.consol.Vector = idx
	e.dedup.Vector = idx
}

// rebuildVectorIndexInBackground repopulates a fresh HNSW index from every
// live record in the Record Store, then atomically swaps it in, so a
// corrupt snapshot only costs a temporary, linear-scan-speed degradation
// rather than a permanent one.
func (e *Engine) rebuildVectorIndexInBackground() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx := context.Background()
		records, err := e.store.Scan(ctx, nil, 0)
		if err != nil {
			e.log.Warnf("vector index rebuild: scanning record store failed: %v", err)
			return
		}
		fresh := vectorindex.NewHNSW(vectorindex.HNSWConfig{
			M:              e.cfg.VectorIndex.M,
			EfConstruction: e.cfg.VectorIndex.EfConstruction,
			EfSearch:       e.cfg.VectorIndex.EfSearch,
			Metric:         hnswMetric(e.cfg),
		})
		for _, r := range records {
			if r.Kind == record.KindWorking || len(r.Embedding) == 0 {
				continue
			}
			if err := fresh.Add(r.ID, r.Embedding, r); err != nil {
				e.log.Warnf("vector index rebuild: re-adding %s failed: %v", r.ID, err)
			}
		}
		e.replaceVectorIndex(fresh)
		e.log.Infof("vector index rebuild complete: %d records", fresh.Len())
	}()
}

func hnswMetric(cfg *config.Config) vectorindex.Metric {
	switch cfg.VectorIndex.Metric {
	case config.MetricEuclid:
		return vectorindex.MetricEuclidean
	case config.MetricDot:
		return vectorindex.MetricDot
	default:
		return vectorindex.MetricCosine
	}
}

func (e *Engine) compensate(ctx context.Context, id string) {
	e.vector.Delete(id)
	e.text.Delete(id)
	if _, err := e.store.Delete(ctx, id); err != nil {
		e.log.Warnf("compensating delete of %s failed: %v", id, err)
	}
}

// Search runs a hybrid vector+full-text query and returns fused results
// (component D).
func (e *Engine) Search(ctx context.Context, query string, k int, opts ...SearchOption) ([]hybrid.Result, error) {
	o := defaultSearchOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var queryVec []float32
	if e.opts.embedder != nil {
		vec, err := e.opts.embedder.Embed(ctx, query)
		if err != nil {
			return nil, err
		}
		queryVec = vec
	}

	var filter record.Predicate
	if o.agentID != "" {
		filter = record.MatchAgent(o.agentID)
	}
	if o.scope != "" {
		filter = record.And(filter, record.MatchScope(o.scope))
	}

	return e.hybrid.Search(ctx, queryVec, query, k, filter, o.weights, o.threshold)
}

// Get fetches a record by id and reinforces it (spec section 4.E,
// "read-triggered reinforcement").
func (e *Engine) Get(ctx context.Context, id string) (*record.Record, error) {
	r, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	e.decay.Reinforce(r, time.Now())
	if err := e.store.Put(ctx, r); err != nil {
		e.log.Warnf("persist reinforcement for %s: %v", id, err)
	}
	return r, nil
}

// Delete removes a record from all three components.
func (e *Engine) Delete(ctx context.Context, id string) (bool, error) {
	r, err := e.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	ok, err := e.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	e.vector.Delete(id)
	e.text.Delete(id)
	e.counters.Dec(string(r.Scope))
	return ok, nil
}

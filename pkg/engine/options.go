package engine

import (
	"github.com/memenex/memengine/pkg/embedder"
	"github.com/memenex/memengine/pkg/hierarchy"
	"github.com/memenex/memengine/pkg/hybrid"
	"github.com/memenex/memengine/pkg/record"
	"github.com/memenex/memengine/pkg/rewriter"
)

// Option configures an Engine at construction time, following the
// teacher's functional-options idiom (pkg/core/options.go's WithX builders).
type Option func(*engineOptions)

type engineOptions struct {
	embedder       embedder.Embedder
	rewriter       rewriter.Rewriter
	scorer         *hierarchy.Scorer
	dedupEnabled   bool
	dedupThreshold float64
}

// WithEmbedder supplies the Embedder capability (spec section 6). Without
// one, Insert requires callers to pass a precomputed embedding.
func WithEmbedder(e embedder.Embedder) Option {
	return func(o *engineOptions) { o.embedder = e }
}

// WithRewriter supplies the Rewriter capability, used by consolidation and
// Core-Memory block auto-rewrite. Without one, the background
// consolidation pass is skipped, Hybrid block rewrites fall back to
// compression, and Summarize block rewrites fail.
func WithRewriter(r rewriter.Rewriter) Option {
	return func(o *engineOptions) { o.rewriter = r }
}

// WithImportanceScorer overrides the default importance scorer.
func WithImportanceScorer(s hierarchy.Scorer) Option {
	return func(o *engineOptions) { o.scorer = &s }
}

// WithDeduplication turns on merge-on-insert: an Insert whose embedding is
// at least threshold cosine-similar to an existing record in the same
// agent scope is folded into that record instead of creating a new one.
// threshold<=0 defaults to 0.95.
func WithDeduplication(threshold float64) Option {
	return func(o *engineOptions) {
		o.dedupEnabled = true
		o.dedupThreshold = threshold
	}
}

// InsertOption configures a single Insert call.
type InsertOption func(*insertOptions)

type insertOptions struct {
	agentID    string
	userID     string
	sessionID  string
	kind       record.Kind
	embedding  []float32
	importance *float64
	priority   hierarchy.Priority
	tags       []string
	metadata   record.Metadata
}

func defaultInsertOptions() insertOptions {
	return insertOptions{kind: record.KindEpisodic}
}

// WithAgentID scopes the inserted record to agentID.
func WithAgentID(agentID string) InsertOption {
	return func(o *insertOptions) { o.agentID = agentID }
}

// WithUserID scopes the inserted record to userID.
func WithUserID(userID string) InsertOption {
	return func(o *insertOptions) { o.userID = userID }
}

// WithSessionID scopes the inserted record to sessionID.
func WithSessionID(sessionID string) InsertOption {
	return func(o *insertOptions) { o.sessionID = sessionID }
}

// WithKind overrides the default Episodic kind.
func WithKind(kind record.Kind) InsertOption {
	return func(o *insertOptions) { o.kind = kind }
}

// WithEmbedding supplies a precomputed embedding instead of calling the
// Embedder capability.
func WithEmbedding(vec []float32) InsertOption {
	return func(o *insertOptions) { o.embedding = vec }
}

// WithImportance overrides automatic importance scoring.
func WithImportance(v float64) InsertOption {
	return func(o *insertOptions) { o.importance = &v }
}

// WithPriority feeds a priority tag into importance scoring.
func WithPriority(p hierarchy.Priority) InsertOption {
	return func(o *insertOptions) { o.priority = p }
}

// WithTags attaches tags to the inserted record.
func WithTags(tags ...string) InsertOption {
	return func(o *insertOptions) { o.tags = tags }
}

// WithMetadata attaches metadata to the inserted record.
func WithMetadata(md record.Metadata) InsertOption {
	return func(o *insertOptions) { o.metadata = md }
}

// SearchOption configures a single Search call.
type SearchOption func(*searchOptions)

type searchOptions struct {
	agentID   string
	scope     record.Scope
	weights   hybrid.Weights
	threshold float64
}

func defaultSearchOptions() searchOptions {
	return searchOptions{weights: hybrid.Weights{Vector: 0.5, Text: 0.5}}
}

// WithSearchAgentID restricts Search to records for agentID.
func WithSearchAgentID(agentID string) SearchOption {
	return func(o *searchOptions) { o.agentID = agentID }
}

// WithSearchScope restricts Search to one scope.
func WithSearchScope(scope record.Scope) SearchOption {
	return func(o *searchOptions) { o.scope = scope }
}

// WithSearchWeights overrides the default 0.5/0.5 vector/text RRF weights.
func WithSearchWeights(vector, text float64) SearchOption {
	return func(o *searchOptions) { o.weights = hybrid.Weights{Vector: vector, Text: text} }
}

// WithSearchThreshold drops fused results whose score divided by the top
// result's score falls below threshold; threshold <= 0 keeps them all.
func WithSearchThreshold(threshold float64) SearchOption {
	return func(o *searchOptions) { o.threshold = threshold }
}

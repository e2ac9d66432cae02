package hierarchy

import (
	"context"
	"fmt"
	"time"

	"github.com/memenex/memengine/internal/telemetry"
	"github.com/memenex/memengine/pkg/fulltext"
	"github.com/memenex/memengine/pkg/record"
	"github.com/memenex/memengine/pkg/rewriter"
	"github.com/memenex/memengine/pkg/vectorindex"
)

// ConsolidationConfig controls a Consolidator run.
type ConsolidationConfig struct {
	// MinAge is how old an Episodic record must be before it is eligible
	// for clustering.
	MinAge time.Duration

	// MinClusterSize is the minimum number of members a DBSCAN cluster
	// must have before it is summarized; smaller clusters are left alone.
	MinClusterSize int

	// MinPts is DBSCAN's density parameter.
	MinPts int

	// ImportanceFactor scales the originals' importance down after a
	// successful summarization (e.g. 0.5 halves it); it is not set to
	// zero so eviction, not consolidation, decides when they are removed.
	ImportanceFactor float64

	// SummaryPromptTemplate is formatted with the joined content of a
	// cluster's members to build the Rewriter prompt. It must contain
	// exactly one %s verb.
	SummaryPromptTemplate string
}

// DefaultConsolidationConfig returns the defaults named in spec section 4.E
// and section 9: hourly scan granularity is the caller's job (Consolidator
// itself is stateless per-call), a cluster needs at least 3 members, and
// originals keep half their importance after being summarized.
func DefaultConsolidationConfig() ConsolidationConfig {
	return ConsolidationConfig{
		MinAge:                24 * time.Hour,
		MinClusterSize:        3,
		MinPts:                3,
		ImportanceFactor:      0.5,
		SummaryPromptTemplate: "Summarize the following related memories into one concise paragraph:\n\n%s",
	}
}

// Consolidator periodically folds aged Episodic records within one agent
// scope into new Semantic records, grounded on spec section 4.E's
// "Consolidation" paragraph: scan, cluster, summarize, de-emphasize.
type Consolidator struct {
	Store    *record.Store
	Vector   vectorindex.Index
	Text     *fulltext.Index
	Rewriter rewriter.Rewriter
	Config   ConsolidationConfig
	Log      *telemetry.Logger
}

// NewConsolidator builds a Consolidator with cfg; a zero Log is replaced
// with a no-op-safe default. vector/text are the same indexes the engine
// searches, so a summarized record becomes queryable immediately, the
// same as any other Insert.
func NewConsolidator(store *record.Store, vector vectorindex.Index, text *fulltext.Index, rw rewriter.Rewriter, cfg ConsolidationConfig, log *telemetry.Logger) *Consolidator {
	if log == nil {
		log = telemetry.Nop()
	}
	return &Consolidator{Store: store, Vector: vector, Text: text, Rewriter: rw, Config: cfg, Log: log}
}

// Result reports what one Run did, for logging and tests.
type Result struct {
	Scanned     int
	Clusters    int
	Summarized  int
	Deemphasized int
}

// Run scans agentID's Episodic records, clusters the ones older than
// Config.MinAge, and summarizes every dense-enough cluster into a new
// Semantic record via the Rewriter. It is idempotent and cancellable: a
// context cancellation mid-run simply stops after the in-flight cluster,
// leaving already-written summaries and de-emphasized originals in place
// (spec section 5, "background jobs ... are cancellable and idempotent").
func (c *Consolidator) Run(ctx context.Context, agentID string, now time.Time) (Result, error) {
	var res Result

	candidates, err := c.Store.Scan(ctx, record.And(
		record.MatchAgent(agentID),
		func(r *record.Record) bool { return r.Kind == record.KindEpisodic },
		func(r *record.Record) bool { return now.Sub(r.CreatedAt) >= c.Config.MinAge },
	), 0)
	if err != nil {
		return res, fmt.Errorf("consolidation: scan: %w", err)
	}
	res.Scanned = len(candidates)
	if len(candidates) < c.Config.MinClusterSize {
		return res, nil
	}

	points := embeddingsOf(candidates)
	epsilon := meanPairwiseDistance(points)
	if epsilon <= 0 {
		return res, nil
	}
	clusters := dbscan(points, epsilon, c.Config.MinPts)

	for _, cl := range clusters {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if len(cl.members) < c.Config.MinClusterSize {
			continue
		}
		res.Clusters++

		members := make([]*record.Record, 0, len(cl.members))
		for _, idx := range cl.members {
			members = append(members, candidates[idx])
		}

		if err := c.summarizeCluster(ctx, agentID, members, now); err != nil {
			c.Log.Warnf("cluster summarization failed: %v", err)
			continue
		}
		res.Summarized++
		res.Deemphasized += len(members)
	}

	return res, nil
}

func (c *Consolidator) summarizeCluster(ctx context.Context, agentID string, members []*record.Record, now time.Time) error {
	joined := ""
	for i, m := range members {
		if i > 0 {
			joined += "\n---\n"
		}
		joined += m.Content
	}
	prompt := fmt.Sprintf(c.Config.SummaryPromptTemplate, joined)

	summary, err := c.Rewriter.Rewrite(ctx, prompt)
	if err != nil {
		return fmt.Errorf("rewrite: %w", err)
	}

	sourceIDs := make([]string, len(members))
	var maxImportance float64
	for i, m := range members {
		sourceIDs[i] = m.ID
		if m.Importance > maxImportance {
			maxImportance = m.Importance
		}
	}

	centroid := centroidOf(embeddingsOf(members))

	semantic := &record.Record{
		ID:             newConsolidationID(agentID, now),
		AgentID:        agentID,
		UserID:         members[0].UserID,
		Scope:          members[0].Scope,
		Kind:           record.KindSemantic,
		Content:        summary,
		Embedding:      centroid,
		Importance:     maxImportance,
		CreatedAt:      now,
		LastAccessedAt: now,
		Metadata:       record.Metadata{"consolidated_from": sourceIDs},
	}
	if err := c.Store.Put(ctx, semantic); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	if c.Vector != nil && len(centroid) > 0 {
		if err := c.Vector.Add(semantic.ID, centroid, semantic); err != nil {
			c.Log.Warnf("index summary %s in vector index: %v", semantic.ID, err)
		}
	}
	if c.Text != nil {
		if err := c.Text.Add(semantic.ID, summary, semantic); err != nil {
			c.Log.Warnf("index summary %s in full-text index: %v", semantic.ID, err)
		}
	}

	for _, m := range members {
		cp := m.Clone()
		cp.Importance = clamp01(cp.Importance * c.Config.ImportanceFactor)
		if err := c.Store.Put(ctx, cp); err != nil {
			c.Log.Warnf("de-emphasize %s: %v", m.ID, err)
		}
	}
	return nil
}

// centroidOf returns the component-wise mean of points, or nil if points
// is empty or its members' dimensions disagree.
func centroidOf(points [][]float32) []float32 {
	if len(points) == 0 || len(points[0]) == 0 {
		return nil
	}
	dim := len(points[0])
	out := make([]float32, dim)
	n := 0
	for _, p := range points {
		if len(p) != dim {
			continue
		}
		for i, v := range p {
			out[i] += v
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range out {
		out[i] /= float32(n)
	}
	return out
}

func newConsolidationID(agentID string, now time.Time) string {
	return fmt.Sprintf("semantic/%s/%d", agentID, now.UnixNano())
}

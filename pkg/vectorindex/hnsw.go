package vectorindex

import (
	"container/heap"
	"encoding/gob"
	"io"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/memenex/memengine/internal/enginerr"
	"github.com/memenex/memengine/pkg/record"
)

// HNSWConfig configures graph construction and search.
type HNSWConfig struct {
	M              int // max neighbors per node per level above 0 (2*M at level 0)
	EfConstruction int // candidate list size while inserting
	EfSearch       int // candidate list size while searching
	Metric         Metric
	Seed           int64
}

// DefaultHNSWConfig matches the defaults decided in DESIGN.md (M=16,
// efConstruction=200, efSearch=64).
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{M: 16, EfConstruction: 200, EfSearch: 64, Metric: MetricCosine, Seed: 1}
}

type hnswNode struct {
	id        string
	vec       []float32
	rec       *record.Record
	level     int
	neighbors [][]string // neighbors[level] = neighbor ids at that level
	deleted   bool
}

// HNSW is a hierarchical navigable small-world graph index, reimplemented
// from the shape of liliang-cn-sqvect's HNSW index: container/heap-based
// candidate/result sets, exponential level assignment, and
// selectNeighborsHeuristic pruning. Deletes are tombstones; Compact
// rebuilds the graph without them.
type HNSW struct {
	mu  sync.RWMutex
	cfg HNSWConfig

	nodes      map[string]*hnswNode
	entryPoint string
	maxLevel   int
	liveCount  int

	rng *rand.Rand
}

// NewHNSW builds an empty graph.
func NewHNSW(cfg HNSWConfig) *HNSW {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 200
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 64
	}
	return &HNSW{
		cfg:   cfg,
		nodes: make(map[string]*hnswNode),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (h *HNSW) randomLevel() int {
	// Standard HNSW exponential level assignment with mL = 1/ln(M).
	mL := 1.0 / math.Log(float64(h.cfg.M))
	level := int(math.Floor(-math.Log(h.rng.Float64()+1e-12) * mL))
	if level > 32 {
		level = 32
	}
	return level
}

// Add inserts or replaces id's vector. Re-adding an existing id removes
// its old graph position first.
func (h *HNSW) Add(id string, vec []float32, rec *record.Record) error {
	if id == "" {
		return enginerr.New("HNSW.Add", enginerr.CodeInvalidArgument, nil)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.nodes[id]; ok && !existing.deleted {
		h.unlinkLocked(existing)
		h.liveCount--
	}

	level := h.randomLevel()
	node := &hnswNode{id: id, vec: vec, rec: rec, level: level, neighbors: make([][]string, level+1)}

	if h.entryPoint == "" {
		h.entryPoint = id
		h.maxLevel = level
		h.nodes[id] = node
		h.liveCount++
		return nil
	}

	ep := h.entryPoint
	for lc := h.maxLevel; lc > level; lc-- {
		res := h.searchLayerLocked(vec, []string{ep}, 1, lc, nil)
		if len(res) > 0 {
			ep = res[0].id
		}
	}

	for lc := min(level, h.maxLevel); lc >= 0; lc-- {
		candidates := h.searchLayerLocked(vec, []string{ep}, h.cfg.EfConstruction, lc, nil)
		m := h.cfg.M
		if lc == 0 {
			m = h.cfg.M * 2
		}
		chosen := h.selectNeighborsHeuristicLocked(vec, candidates, m)
		ids := make([]string, 0, len(chosen))
		for _, c := range chosen {
			ids = append(ids, c.id)
		}
		node.neighbors[lc] = ids

		for _, c := range chosen {
			nbr := h.nodes[c.id]
			nbr.neighbors[lc] = append(nbr.neighbors[lc], id)
			if len(nbr.neighbors[lc]) > m {
				nbr.neighbors[lc] = h.pruneLocked(nbr, lc, m)
			}
		}
		if len(candidates) > 0 {
			ep = candidates[0].id
		}
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entryPoint = id
	}
	h.nodes[id] = node
	h.liveCount++
	return nil
}

func (h *HNSW) pruneLocked(n *hnswNode, level, m int) []string {
	cands := make([]candidate, 0, len(n.neighbors[level]))
	for _, id := range n.neighbors[level] {
		if other, ok := h.nodes[id]; ok {
			cands = append(cands, candidate{id: id, dist: distance(h.cfg.Metric, n.vec, other.vec)})
		}
	}
	chosen := h.selectNeighborsHeuristicLocked(n.vec, cands, m)
	ids := make([]string, 0, len(chosen))
	for _, c := range chosen {
		ids = append(ids, c.id)
	}
	return ids
}

// unlinkLocked removes id from every neighbor list that references it, used
// when re-adding an id that already exists.
func (h *HNSW) unlinkLocked(n *hnswNode) {
	for lc, ids := range n.neighbors {
		for _, nbrID := range ids {
			nbr, ok := h.nodes[nbrID]
			if !ok || lc >= len(nbr.neighbors) {
				continue
			}
			nbr.neighbors[lc] = removeID(nbr.neighbors[lc], n.id)
		}
	}
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// Delete tombstones id; the node stays in the graph for connectivity but
// is excluded from result sets and future neighbor selection.
func (h *HNSW) Delete(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[id]
	if !ok || n.deleted {
		return false
	}
	n.deleted = true
	h.liveCount--
	if h.entryPoint == id {
		h.reassignEntryPointLocked()
	}
	return true
}

func (h *HNSW) reassignEntryPointLocked() {
	for id, n := range h.nodes {
		if !n.deleted {
			h.entryPoint = id
			h.maxLevel = n.level
			return
		}
	}
	h.entryPoint = ""
	h.maxLevel = 0
}

// Compact rebuilds the graph excluding tombstoned nodes, reclaiming their
// memory and removing dangling neighbor references. Callers should run
// this periodically (e.g. during consolidation) rather than after every
// delete, since it is O(n log n).
func (h *HNSW) Compact() {
	h.mu.Lock()
	type survivor struct {
		id  string
		vec []float32
		rec *record.Record
	}
	var survivors []survivor
	for id, n := range h.nodes {
		if !n.deleted {
			survivors = append(survivors, survivor{id, n.vec, n.rec})
		}
	}
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].id < survivors[j].id })
	h.nodes = make(map[string]*hnswNode)
	h.entryPoint = ""
	h.maxLevel = 0
	h.liveCount = 0
	h.mu.Unlock()

	for _, s := range survivors {
		h.Add(s.id, s.vec, s.rec)
	}
}

func (h *HNSW) Search(query []float32, k int, filter record.Predicate) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.entryPoint == "" {
		return nil, nil
	}

	ep := h.entryPoint
	for lc := h.maxLevel; lc > 0; lc-- {
		res := h.searchLayerLocked(query, []string{ep}, 1, lc, nil)
		if len(res) > 0 {
			ep = res[0].id
		}
	}

	ef := h.cfg.EfSearch
	if ef < k {
		ef = k
	}
	results := h.searchLayerLocked(query, []string{ep}, ef, 0, filter)

	hits := make([]Hit, 0, len(results))
	for _, c := range results {
		hits = append(hits, Hit{ID: c.id, Score: similarity(h.cfg.Metric, query, h.nodes[c.id].vec)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (h *HNSW) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.liveCount
}

// hnswSnapshotHeader carries the graph-level state a snapshot needs to
// resume from, separate from the in-memory HNSW so the wire shape can
// evolve independently, the same separation pkg/record/codec.go keeps
// between Record and wireV1.
type hnswSnapshotHeader struct {
	M              int
	EfConstruction int
	EfSearch       int
	Metric         Metric
	Seed           int64
	EntryPoint     string
	MaxLevel       int
	NodeCount      int
}

// hnswSnapshotNode is one node's wire shape. The attached record, if any,
// is carried as its already-defined record.Encode blob rather than taught
// to gob directly, since Record's Metadata field is a map[string]any that
// gob cannot decode without per-value concrete-type registration.
type hnswSnapshotNode struct {
	ID        string
	Vec       []float32
	RecBlob   []byte
	Level     int
	Neighbors [][]string
	Deleted   bool
}

// Snapshot writes the graph to w as a gob stream: a header followed by one
// record per node, grounded on liliang-cn-sqvect's HNSW.Save (parameters,
// then node count, then one Encode call per node). Reloading via
// LoadSnapshot avoids replaying every Add and its neighbor-selection work,
// so a process restart only needs to catch up on records inserted since
// the snapshot (spec section 4.B "Persistence").
func (h *HNSW) Snapshot(w io.Writer) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	enc := gob.NewEncoder(w)
	header := hnswSnapshotHeader{
		M:              h.cfg.M,
		EfConstruction: h.cfg.EfConstruction,
		EfSearch:       h.cfg.EfSearch,
		Metric:         h.cfg.Metric,
		Seed:           h.cfg.Seed,
		EntryPoint:     h.entryPoint,
		MaxLevel:       h.maxLevel,
		NodeCount:      len(h.nodes),
	}
	if err := enc.Encode(header); err != nil {
		return enginerr.New("HNSW.Snapshot", enginerr.CodeStorage, err)
	}

	for _, n := range h.nodes {
		var blob []byte
		if n.rec != nil {
			b, err := record.Encode(n.rec)
			if err != nil {
				return enginerr.New("HNSW.Snapshot", enginerr.CodeStorage, err)
			}
			blob = b
		}
		sn := hnswSnapshotNode{
			ID: n.id, Vec: n.vec, RecBlob: blob,
			Level: n.level, Neighbors: n.neighbors, Deleted: n.deleted,
		}
		if err := enc.Encode(sn); err != nil {
			return enginerr.New("HNSW.Snapshot", enginerr.CodeStorage, err)
		}
	}
	return nil
}

// LoadSnapshot replaces the graph's contents with one written by Snapshot.
// A gob decode failure or a node whose RecBlob fails record.Decode is
// reported as CodeIndexCorruption rather than a generic storage error, so
// callers can fall back to a linear-scan index and schedule a rebuild
// instead of refusing to start (spec section 4.B "Failure").
func (h *HNSW) LoadSnapshot(r io.Reader) error {
	dec := gob.NewDecoder(r)

	var header hnswSnapshotHeader
	if err := dec.Decode(&header); err != nil {
		return enginerr.New("HNSW.LoadSnapshot", enginerr.CodeIndexCorruption, err)
	}

	nodes := make(map[string]*hnswNode, header.NodeCount)
	live := 0
	for i := 0; i < header.NodeCount; i++ {
		var sn hnswSnapshotNode
		if err := dec.Decode(&sn); err != nil {
			return enginerr.New("HNSW.LoadSnapshot", enginerr.CodeIndexCorruption, err)
		}
		var rec *record.Record
		if len(sn.RecBlob) > 0 {
			decoded, err := record.Decode(sn.RecBlob)
			if err != nil {
				return enginerr.New("HNSW.LoadSnapshot", enginerr.CodeIndexCorruption, err)
			}
			rec = decoded
		}
		n := &hnswNode{
			id: sn.ID, vec: sn.Vec, rec: rec,
			level: sn.Level, neighbors: sn.Neighbors, deleted: sn.Deleted,
		}
		nodes[sn.ID] = n
		if !sn.Deleted {
			live++
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg.M = header.M
	h.cfg.EfConstruction = header.EfConstruction
	h.cfg.EfSearch = header.EfSearch
	h.cfg.Metric = header.Metric
	h.cfg.Seed = header.Seed
	h.nodes = nodes
	h.entryPoint = header.EntryPoint
	h.maxLevel = header.MaxLevel
	h.liveCount = live
	h.rng = rand.New(rand.NewSource(header.Seed))
	return nil
}

// LoadHNSWWithFallback reloads a snapshot written by HNSW.Snapshot. A
// corrupted snapshot degrades to an empty Flat index of the same metric
// rather than failing to start, per spec section 4.B: Flat is "selectable
// at index creation for small scopes or as the corruption-fallback path."
// The returned error is still CodeIndexCorruption so the caller can log it
// and schedule a rebuild from the record store; it is not swallowed.
func LoadHNSWWithFallback(r io.Reader, cfg HNSWConfig) (Index, error) {
	h := NewHNSW(cfg)
	if err := h.LoadSnapshot(r); err != nil {
		if enginerr.Is(err, enginerr.CodeIndexCorruption) {
			return NewFlat(cfg.Metric), err
		}
		return nil, err
	}
	return h, nil
}

type candidate struct {
	id   string
	dist float64
}

// minHeap pops the closest (smallest distance) candidate first; used for
// the exploration frontier.
type minHeap []candidate

func (q minHeap) Len() int            { return len(q) }
func (q minHeap) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q minHeap) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *minHeap) Push(x any)         { *q = append(*q, x.(candidate)) }
func (q *minHeap) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// maxHeap pops the farthest (largest distance) candidate first; used to
// keep only the ef closest results found so far.
type maxHeap []candidate

func (q maxHeap) Len() int           { return len(q) }
func (q maxHeap) Less(i, j int) bool { return q[i].dist > q[j].dist }
func (q maxHeap) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *maxHeap) Push(x any)        { *q = append(*q, x.(candidate)) }
func (q *maxHeap) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// searchLayerLocked runs the standard HNSW layer search: expand from
// entryPoints, tracking the ef closest live-and-filter-passing nodes seen.
// filter is applied during traversal (a filtered-out node can still be
// walked through for connectivity; it just never enters the result set),
// per the traversal-time filtering requirement.
func (h *HNSW) searchLayerLocked(query []float32, entryPoints []string, ef, level int, filter record.Predicate) []candidate {
	visited := make(map[string]bool, ef*4)
	candidates := &minHeap{}
	results := &maxHeap{}
	heap.Init(candidates)
	heap.Init(results)

	for _, epID := range entryPoints {
		n, ok := h.nodes[epID]
		if !ok {
			continue
		}
		d := distance(h.cfg.Metric, query, n.vec)
		visited[epID] = true
		heap.Push(candidates, candidate{epID, d})
		if !n.deleted && (filter == nil || filter(n.rec)) {
			heap.Push(results, candidate{epID, d})
		}
	}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(candidate)
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}
		node, ok := h.nodes[c.id]
		if !ok || level >= len(node.neighbors) {
			continue
		}
		for _, nbrID := range node.neighbors[level] {
			if visited[nbrID] {
				continue
			}
			visited[nbrID] = true
			nbr, ok := h.nodes[nbrID]
			if !ok {
				continue
			}
			d := distance(h.cfg.Metric, query, nbr.vec)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, candidate{nbrID, d})
				if !nbr.deleted && (filter == nil || filter(nbr.rec)) {
					heap.Push(results, candidate{nbrID, d})
					if results.Len() > ef {
						heap.Pop(results)
					}
				}
			}
		}
	}

	out := make([]candidate, len(*results))
	copy(out, *results)
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	return out
}

// selectNeighborsHeuristicLocked implements the diversity-aware neighbor
// selection from the HNSW paper (as reimplemented in sqvect's
// selectNeighborsHeuristic): a candidate is kept only if it is closer to
// the query than to every neighbor already selected, which spreads
// neighbors across directions instead of clustering them all on one side.
func (h *HNSW) selectNeighborsHeuristicLocked(query []float32, candidates []candidate, m int) []candidate {
	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].dist < sorted[j].dist })

	var chosen []candidate
	for _, c := range sorted {
		if len(chosen) >= m {
			break
		}
		cn, ok := h.nodes[c.id]
		if !ok {
			continue
		}
		good := true
		for _, r := range chosen {
			rn, ok := h.nodes[r.id]
			if !ok {
				continue
			}
			if distance(h.cfg.Metric, cn.vec, rn.vec) < c.dist {
				good = false
				break
			}
		}
		if good {
			chosen = append(chosen, c)
		}
	}
	// Backfill with the closest remaining candidates if the heuristic was
	// too aggressive and left the node under-connected.
	if len(chosen) < m {
		have := make(map[string]bool, len(chosen))
		for _, c := range chosen {
			have[c.id] = true
		}
		for _, c := range sorted {
			if len(chosen) >= m {
				break
			}
			if !have[c.id] {
				chosen = append(chosen, c)
			}
		}
	}
	_ = query
	return chosen
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

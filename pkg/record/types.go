// Package record defines the engine's atomic unit of persistence and the
// store that maintains it, plus its secondary indexes, over a KVBackend.
package record

import "time"

// Scope is the tenancy boundary determining a record's visibility and
// lifecycle rate.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeAgent   Scope = "agent"
	ScopeUser    Scope = "user"
	ScopeSession Scope = "session"
)

// Kind is the semantic category of a record.
type Kind string

const (
	KindEpisodic   Kind = "episodic"
	KindSemantic   Kind = "semantic"
	KindProcedural Kind = "procedural"
	KindWorking    Kind = "working"
	KindCoreBlock  Kind = "core_block"
)

// MetadataValue is a string, number, or bool. Go's type system can't express
// a closed sum type here without an interface, so Metadata stores `any` and
// callers are expected to only put these three underlying kinds in it.
// Nothing enforces this: the codec JSON-encodes whatever is stored, and
// numbers come back from Decode as float64.
type Metadata map[string]any

// Record is the engine's atomic unit.
type Record struct {
	ID        string
	AgentID   string
	UserID    string
	SessionID string
	Scope     Scope
	Kind      Kind
	Content   string
	Embedding []float32

	Importance     float64
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	ExpiresAt      *time.Time

	Tags     []string
	Metadata Metadata

	// Block-only fields, populated when Kind == KindCoreBlock.
	Block *BlockFields
}

// BlockType categorizes a Core-Memory block.
type BlockType string

const (
	BlockPersona BlockType = "persona"
	BlockHuman   BlockType = "human"
	BlockSystem  BlockType = "system"
)

// BlockFields holds the Core-Memory block attributes carried by a Record
// whose Kind is KindCoreBlock.
type BlockFields struct {
	Name         string
	BlockType    BlockType
	Capacity     int
	AccessCount  int64
	RewriteCount int
	NeedsRewrite bool
	RewriteFailed bool
}

// Clone returns a deep-enough copy of r so that callers holding a returned
// Record cannot mutate store-internal state through slices/maps.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Embedding != nil {
		cp.Embedding = append([]float32(nil), r.Embedding...)
	}
	if r.Tags != nil {
		cp.Tags = append([]string(nil), r.Tags...)
	}
	if r.Metadata != nil {
		cp.Metadata = make(Metadata, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		cp.ExpiresAt = &t
	}
	if r.Block != nil {
		b := *r.Block
		cp.Block = &b
	}
	return &cp
}

// HasTag reports whether r carries tag.
func (r *Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Predicate filters records during a scan or an index search. It is
// evaluated during traversal, not as a post-filter, so selective predicates
// do not silently shrink recall (spec section 4.B).
type Predicate func(*Record) bool

// MatchAgent returns a Predicate that accepts only records for agentID.
func MatchAgent(agentID string) Predicate {
	return func(r *Record) bool { return r.AgentID == agentID }
}

// MatchScope returns a Predicate that accepts only records in scope.
func MatchScope(scope Scope) Predicate {
	return func(r *Record) bool { return r.Scope == scope }
}

// MatchSession returns a Predicate that accepts only records for sessionID.
func MatchSession(sessionID string) Predicate {
	return func(r *Record) bool { return r.SessionID == sessionID }
}

// MatchTag returns a Predicate that accepts only records carrying tag.
func MatchTag(tag string) Predicate {
	return func(r *Record) bool { return r.HasTag(tag) }
}

// And combines predicates with logical AND; a nil predicate in the list is
// skipped so callers can build filters conditionally.
func And(preds ...Predicate) Predicate {
	return func(r *Record) bool {
		for _, p := range preds {
			if p == nil {
				continue
			}
			if !p(r) {
				return false
			}
		}
		return true
	}
}

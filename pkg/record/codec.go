package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// CurrentVersion is the format version written by this build. Changing it
// requires an online migration pass (Decode dispatches by the version
// byte, and callers that rewrite-on-read should re-encode at CurrentVersion).
const CurrentVersion byte = 1

// wireV1 is the JSON shape persisted behind the version-1 prefix byte. It
// mirrors Record field-for-field; kept separate so Record's in-memory shape
// can evolve without silently changing the wire format.
type wireV1 struct {
	ID        string   `json:"id"`
	AgentID   string   `json:"agent_id,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Scope     Scope    `json:"scope"`
	Kind      Kind     `json:"kind"`
	Content   string   `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`

	Importance     float64    `json:"importance"`
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
	AccessCount    int64      `json:"access_count"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`

	Tags     []string `json:"tags,omitempty"`
	Metadata Metadata `json:"metadata,omitempty"`

	Block *BlockFields `json:"block,omitempty"`
}

// Encode serializes r as a length-implicit, version-prefixed blob: one
// version byte followed by the JSON payload. Decode(Encode(r)) must be
// byte-identical to r for every supported version (spec section 8).
func Encode(r *Record) ([]byte, error) {
	w := wireV1{
		ID: r.ID, AgentID: r.AgentID, UserID: r.UserID, SessionID: r.SessionID,
		Scope: r.Scope, Kind: r.Kind, Content: r.Content, Embedding: r.Embedding,
		Importance: r.Importance, CreatedAt: r.CreatedAt, LastAccessedAt: r.LastAccessedAt,
		AccessCount: r.AccessCount, ExpiresAt: r.ExpiresAt,
		Tags: r.Tags, Metadata: r.Metadata, Block: r.Block,
	}
	body, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("record: encode: %w", err)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, CurrentVersion)
	out = append(out, body...)
	return out, nil
}

// Decode reverses Encode. Unrecognized versions are a hard error; callers
// that need forward compatibility must add a case here, not silently
// ignore the version byte.
func Decode(blob []byte) (*Record, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("record: decode: empty blob")
	}
	version := blob[0]
	switch version {
	case 1:
		var w wireV1
		if err := json.Unmarshal(blob[1:], &w); err != nil {
			return nil, fmt.Errorf("record: decode v1: %w", err)
		}
		return &Record{
			ID: w.ID, AgentID: w.AgentID, UserID: w.UserID, SessionID: w.SessionID,
			Scope: w.Scope, Kind: w.Kind, Content: w.Content, Embedding: w.Embedding,
			Importance: w.Importance, CreatedAt: w.CreatedAt, LastAccessedAt: w.LastAccessedAt,
			AccessCount: w.AccessCount, ExpiresAt: w.ExpiresAt,
			Tags: w.Tags, Metadata: w.Metadata, Block: w.Block,
		}, nil
	default:
		return nil, fmt.Errorf("record: decode: unrecognized version %d", version)
	}
}

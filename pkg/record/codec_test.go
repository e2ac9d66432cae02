package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncodeDecodeRoundTrip covers spec section 8's "serialization
// round-trip byte-identical" property across the record-kind/shape
// combinations that actually occur: a bare episodic record, a record
// carrying every optional field (embedding, tags, metadata, expiry), and
// a core-memory block record with its Block-only fields populated.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	accessed := time.Date(2025, 3, 2, 8, 30, 0, 0, time.UTC)
	expires := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		rec  *Record
	}{
		{
			name: "bare episodic",
			rec: &Record{
				ID:             "ep-1",
				Scope:          ScopeAgent,
				Kind:           KindEpisodic,
				Content:        "hello world",
				CreatedAt:      created,
				LastAccessedAt: accessed,
			},
		},
		{
			name: "full shape semantic",
			rec: &Record{
				ID:             "sem-1",
				AgentID:        "agent-1",
				UserID:         "user-1",
				SessionID:      "session-1",
				Scope:          ScopeUser,
				Kind:           KindSemantic,
				Content:        "a consolidated memory",
				Embedding:      []float32{0.5, -0.25, 0.125},
				Importance:     0.73,
				CreatedAt:      created,
				LastAccessedAt: accessed,
				AccessCount:    4,
				ExpiresAt:      &expires,
				Tags:           []string{"work", "urgent"},
				Metadata:       Metadata{"source": "consolidation", "score": 0.91, "flagged": true},
			},
		},
		{
			name: "core memory block",
			rec: &Record{
				ID:             "block-1",
				AgentID:        "agent-1",
				Scope:          ScopeGlobal,
				Kind:           KindCoreBlock,
				Content:        "persona text",
				CreatedAt:      created,
				LastAccessedAt: accessed,
				Block: &BlockFields{
					Name:         "persona",
					BlockType:    BlockPersona,
					Capacity:     2000,
					AccessCount:  12,
					RewriteCount: 3,
					NeedsRewrite: true,
					RewriteFailed: false,
				},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blob, err := Encode(tc.rec)
			require.NoError(t, err)
			require.NotEmpty(t, blob)
			assert.Equal(t, CurrentVersion, blob[0])

			got, err := Decode(blob)
			require.NoError(t, err)
			assert.Equal(t, tc.rec, got)

			// Encoding the decoded record must reproduce the same bytes.
			blob2, err := Encode(got)
			require.NoError(t, err)
			assert.Equal(t, blob, blob2)
		})
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	_, err := Decode([]byte{99, '{', '}'})
	assert.Error(t, err)
}

func TestDecodeRejectsEmptyBlob(t *testing.T) {
	_, err := Decode(nil)
	assert.Error(t, err)
}

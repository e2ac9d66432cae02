// Package corememory implements the per-agent Core-Memory block subsystem:
// a small set of named, capacity-bounded text blocks (Persona/Human/System)
// that are compiled into one prompt-ready string, auto-rewritten by the
// Rewriter capability when they overflow their capacity.
//
// Grounded on the Block/BlockMetadata shape in original_source's
// agent-mem-core/src/core_memory/mod.rs (BlockType Persona/Human/System,
// importance default 0.5, access_count/needs_rewrite/rewrite_count), whose
// sibling modules (block_manager, auto_rewriter, template_engine, compiler)
// are named there but not present in the filtered source tree — this
// package is a from-scratch Go implementation of what those names describe.
package corememory

import (
	"context"
	"fmt"
	"time"

	"github.com/memenex/memengine/internal/concurrency"
	"github.com/memenex/memengine/internal/config"
	"github.com/memenex/memengine/internal/enginerr"
	"github.com/memenex/memengine/internal/telemetry"
	"github.com/memenex/memengine/pkg/record"
	"github.com/memenex/memengine/pkg/rewriter"
)

// Manager owns the Core-Memory blocks for every agent backed by one
// record.Store, guarding each (agent_id, block_name) pair with a keyed
// mutex so concurrent updates to different blocks never contend (spec
// section 5, "locked per (agent_id, block_name) via a keyed mutex map").
type Manager struct {
	Store    *record.Store
	Rewriter rewriter.Rewriter
	Locks    *concurrency.KeyedMutex
	Config   config.BlockConfig
	Log      *telemetry.Logger
}

// NewManager builds a Manager. A nil Locks gets a fresh table; a nil Log
// is replaced with a no-op logger.
func NewManager(store *record.Store, rw rewriter.Rewriter, locks *concurrency.KeyedMutex, cfg config.BlockConfig, log *telemetry.Logger) *Manager {
	if locks == nil {
		locks = concurrency.NewKeyedMutex()
	}
	if log == nil {
		log = telemetry.Nop()
	}
	return &Manager{Store: store, Rewriter: rw, Locks: locks, Config: cfg, Log: log}
}

func blockKey(agentID, name string) string {
	return agentID + "/" + name
}

func blockRecordID(agentID, name string) string {
	return "block/" + agentID + "/" + name
}

// CreateBlock creates a new named block for agentID. capacity <= 0 uses
// Config.DefaultCapacityChars.
func (m *Manager) CreateBlock(ctx context.Context, agentID, name string, blockType record.BlockType, capacity int, initial string) error {
	if capacity <= 0 {
		capacity = m.Config.DefaultCapacityChars
	}
	now := time.Now()
	r := &record.Record{
		ID:             blockRecordID(agentID, name),
		AgentID:        agentID,
		Scope:          record.ScopeAgent,
		Kind:           record.KindCoreBlock,
		Content:        initial,
		Importance:     0.5,
		CreatedAt:      now,
		LastAccessedAt: now,
		Block: &record.BlockFields{
			Name:      name,
			BlockType: blockType,
			Capacity:  capacity,
		},
	}
	return m.Store.Put(ctx, r)
}

// GetBlock returns the current record for (agentID, name), bumping its
// access bookkeeping.
func (m *Manager) GetBlock(ctx context.Context, agentID, name string) (*record.Record, error) {
	r, err := m.Store.Get(ctx, blockRecordID(agentID, name))
	if err != nil {
		return nil, err
	}
	if err := m.Store.UpdateAccess(ctx, r.ID, time.Now()); err != nil {
		m.Log.Warnf("update_access on block %s/%s: %v", agentID, name, err)
	}
	return r, nil
}

// UpdateBlock replaces a block's content. If the new text exceeds the
// block's capacity, an automatic rewrite is attempted synchronously (spec
// section 4.E): the write is atomic — either the rewritten (or original)
// text fits and replaces the old content in one store Put, or the text is
// truncated at a sentence boundary and the block is flagged
// rewrite_failed. Either outcome is a single Put, never a partial write.
func (m *Manager) UpdateBlock(ctx context.Context, agentID, name, text string) error {
	key := blockKey(agentID, name)
	var outerErr error

	m.Locks.WithLock(key, func() {
		r, err := m.Store.Get(ctx, blockRecordID(agentID, name))
		if err != nil {
			outerErr = err
			return
		}
		if r.Block == nil {
			outerErr = enginerr.New("Manager.UpdateBlock", enginerr.CodeInvalidArgument, fmt.Errorf("record %s is not a core-memory block", r.ID))
			return
		}

		capacity := r.Block.Capacity
		if capacity <= 0 {
			capacity = m.Config.DefaultCapacityChars
		}

		final := text
		needsRewrite := false
		rewriteFailed := false

		if len(text) > capacity {
			needsRewrite = true
			rewritten, rerr := m.autoRewrite(ctx, text, capacity)
			if rerr == nil && len(rewritten) <= capacity {
				final = rewritten
				needsRewrite = false
				r.Block.RewriteCount++
			} else {
				if rerr != nil {
					m.Log.Warnf("auto-rewrite of block %s failed: %v", key, rerr)
				}
				final = truncateAtSentence(text, capacity)
				rewriteFailed = true
			}
		}

		r.Content = final
		r.Block.NeedsRewrite = needsRewrite
		r.Block.RewriteFailed = rewriteFailed
		r.Block.AccessCount++
		r.LastAccessedAt = time.Now()

		outerErr = m.Store.Put(ctx, r)
	})

	return outerErr
}

// Compile renders tmpl against agentID's current blocks using the mini
// template engine in template.go (spec section 4.E: "variable
// substitution, conditional sections, and block includes").
func (m *Manager) Compile(ctx context.Context, agentID string, tmpl string) (string, error) {
	blocks, err := m.Store.Scan(ctx, record.And(
		record.MatchAgent(agentID),
		func(r *record.Record) bool { return r.Kind == record.KindCoreBlock },
	), 0)
	if err != nil {
		return "", fmt.Errorf("compile: scan blocks: %w", err)
	}

	values := make(map[string]string, len(blocks))
	for _, b := range blocks {
		if b.Block != nil {
			values[b.Block.Name] = b.Content
		}
	}
	return CompileTemplate(tmpl, values)
}

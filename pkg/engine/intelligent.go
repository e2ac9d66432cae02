package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/memenex/memengine/pkg/record"
)

// ExtractedFact is one self-contained fact pulled out of a conversation by
// IngestConversation, together with the decision made about it.
type ExtractedFact struct {
	Text   string
	Action FactAction
	Record *record.Record // set for Added/Updated, nil for Skipped
}

// FactAction mirrors the ADD/UPDATE/NONE decision the teacher's LLM-driven
// memory manager made per extracted fact.
type FactAction string

const (
	FactAdded   FactAction = "added"
	FactUpdated FactAction = "updated"
	FactSkipped FactAction = "skipped"
)

// IngestConversation extracts discrete facts from a block of conversation
// text via the Rewriter capability, then for each fact either inserts it
// or merges it into the closest existing record of the same agent scope
// (via the Deduper, when WithDeduplication is enabled). An extraction with
// no facts yields an empty result; this path never reports FactSkipped.
// This adapts the teacher's two-stage
// FactExtractor -> DecisionMaker pipeline, collapsed into a single
// extraction prompt plus the existing Insert/dedup path rather than a
// second LLM round-trip per fact.
func (e *Engine) IngestConversation(ctx context.Context, conversation string, opts ...InsertOption) ([]ExtractedFact, error) {
	if e.opts.rewriter == nil {
		return nil, fmt.Errorf("IngestConversation requires a Rewriter")
	}

	raw, err := e.opts.rewriter.Rewrite(ctx, factExtractionPrompt(conversation))
	if err != nil {
		return nil, fmt.Errorf("fact extraction: %w", err)
	}
	facts, err := parseFacts(raw)
	if err != nil {
		return nil, fmt.Errorf("fact extraction: %w", err)
	}

	out := make([]ExtractedFact, 0, len(facts))
	for _, fact := range facts {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		r, err := e.Insert(ctx, fact, opts...)
		if err != nil {
			return out, fmt.Errorf("insert fact %q: %w", fact, err)
		}
		action := FactAdded
		if r.AccessCount > 0 {
			action = FactUpdated // a dedup merge bumped AccessCount on an existing record
		}
		out = append(out, ExtractedFact{Text: fact, Action: action, Record: r})
	}
	return out, nil
}

// factExtractionPrompt mirrors pkg/intelligence/fact_extractor.go's default
// system prompt: temporal facts stay dated, facts are self-contained and
// split one-per-sentence, and intentions/needs are always extracted.
func factExtractionPrompt(conversation string) string {
	today := time.Now().Format("2006-01-02")
	return fmt.Sprintf(`Extract distinct, self-contained facts, preferences, intentions, and needs from the conversation below.

Rules:
- Always include time information (dates, "yesterday", "last week") when present.
- Extract one fact per line, each self-contained with who/what/when/where.
- Always extract user intentions, needs, and requests, even without a time reference.
- If nothing relevant is present, return no lines.
- Today's date is %s.

Return a JSON object of the form {"facts": ["fact one", "fact two"]} and nothing else.

Conversation:
%s`, today, conversation)
}

func parseFacts(response string) ([]string, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var parsed struct {
		Facts []string `json:"facts"`
	}
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	facts := make([]string, 0, len(parsed.Facts))
	for _, f := range parsed.Facts {
		if f = strings.TrimSpace(f); f != "" {
			facts = append(facts, f)
		}
	}
	return facts, nil
}

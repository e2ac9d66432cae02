package hierarchy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/memenex/memengine/pkg/record"
)

func TestDecayReducesImportanceOverElapsedTime(t *testing.T) {
	d := DefaultDecayEngine()
	now := time.Now()
	r := &record.Record{Scope: record.ScopeAgent, Importance: 0.8, LastAccessedAt: now.Add(-24 * time.Hour)}

	got := d.Decay(r, now)
	want := 0.8 * math.Exp(-d.Lambdas.Agent*24)
	assert.InDelta(t, want, got, 1e-9)
	assert.Less(t, got, r.Importance)
}

func TestDecayIsNoOpForNonPositiveElapsed(t *testing.T) {
	d := DefaultDecayEngine()
	now := time.Now()
	r := &record.Record{Scope: record.ScopeAgent, Importance: 0.5, LastAccessedAt: now}
	assert.Equal(t, 0.5, d.Decay(r, now))

	future := &record.Record{Scope: record.ScopeAgent, Importance: 0.5, LastAccessedAt: now.Add(time.Hour)}
	assert.Equal(t, 0.5, d.Decay(future, now))
}

func TestDecayUsesPerScopeLambda(t *testing.T) {
	d := DefaultDecayEngine()
	now := time.Now()
	elapsed := now.Add(-10 * time.Hour)

	global := &record.Record{Scope: record.ScopeGlobal, Importance: 0.8, LastAccessedAt: elapsed}
	session := &record.Record{Scope: record.ScopeSession, Importance: 0.8, LastAccessedAt: elapsed}

	// Session decays faster than global, per DESIGN.md's lambda ordering.
	assert.Less(t, d.Decay(session, now), d.Decay(global, now))
}

func TestApplyDecayMutatesInPlace(t *testing.T) {
	d := DefaultDecayEngine()
	now := time.Now()
	r := &record.Record{Scope: record.ScopeAgent, Importance: 0.8, LastAccessedAt: now.Add(-24 * time.Hour)}
	d.ApplyDecay(r, now)
	assert.Less(t, r.Importance, 0.8)
}

func TestReinforceBumpsImportanceAndAccessCount(t *testing.T) {
	d := DefaultDecayEngine()
	now := time.Now()
	r := &record.Record{Importance: 0.5, AccessCount: 2, LastAccessedAt: now.Add(-time.Hour)}

	d.Reinforce(r, now)
	assert.InDelta(t, 0.55, r.Importance, 1e-9)
	assert.Equal(t, int64(3), r.AccessCount)
	assert.True(t, r.LastAccessedAt.Equal(now))
}

func TestReinforceClampsImportanceAtOne(t *testing.T) {
	d := DefaultDecayEngine()
	r := &record.Record{Importance: 0.98}
	d.Reinforce(r, time.Now())
	assert.Equal(t, 1.0, r.Importance)
}

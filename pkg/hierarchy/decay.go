package hierarchy

import (
	"math"
	"time"

	"github.com/memenex/memengine/pkg/record"
)

// DecayLambdas holds the per-scope decay rate lambda, in units of
// e-folds per hour. Defaults decided in DESIGN.md: Global=0.01,
// Agent=0.05, User=0.1, Session=0.3, so broader scopes persist far longer
// than narrow ones.
type DecayLambdas struct {
	Global  float64
	Agent   float64
	User    float64
	Session float64
}

// DefaultDecayLambdas returns the defaults recorded in DESIGN.md.
func DefaultDecayLambdas() DecayLambdas {
	return DecayLambdas{Global: 0.01, Agent: 0.05, User: 0.1, Session: 0.3}
}

func (d DecayLambdas) forScope(scope record.Scope) float64 {
	switch scope {
	case record.ScopeAgent:
		return d.Agent
	case record.ScopeUser:
		return d.User
	case record.ScopeSession:
		return d.Session
	default:
		return d.Global
	}
}

// DecayEngine applies Ebbinghaus-curve importance decay and read-triggered
// reinforcement, generalizing the teacher's EbbinghausManager (which
// classifies three flat memory tiers with one shared decay rate) into a
// per-scope lambda with no tier classification, since scope already plays
// the role the teacher's working/short-term/long-term tiers played.
type DecayEngine struct {
	Lambdas DecayLambdas
	// Beta is the additive importance boost applied on every read,
	// capped so importance never exceeds 1.
	Beta float64
}

// DefaultDecayEngine uses the DESIGN.md defaults (beta=0.05).
func DefaultDecayEngine() DecayEngine {
	return DecayEngine{Lambdas: DefaultDecayLambdas(), Beta: 0.05}
}

// Decay returns r.Importance after applying exp(-lambda*dt) where dt is
// the elapsed time since r.LastAccessedAt, in hours, per the configured
// per-scope lambda. It does not mutate r.
func (d DecayEngine) Decay(r *record.Record, now time.Time) float64 {
	lambda := d.Lambdas.forScope(r.Scope)
	dtHours := now.Sub(r.LastAccessedAt).Hours()
	if dtHours <= 0 {
		return r.Importance
	}
	decayed := r.Importance * math.Exp(-lambda*dtHours)
	return clamp01(decayed)
}

// ApplyDecay mutates r.Importance in place via Decay.
func (d DecayEngine) ApplyDecay(r *record.Record, now time.Time) {
	r.Importance = d.Decay(r, now)
}

// Reinforce applies the read-triggered boost: last_accessed_at is reset
// to now, access_count increments, and importance increases by Beta,
// capped at 1. Mutates r in place.
func (d DecayEngine) Reinforce(r *record.Record, now time.Time) {
	r.LastAccessedAt = now
	r.AccessCount++
	r.Importance = clamp01(r.Importance + d.Beta)
}

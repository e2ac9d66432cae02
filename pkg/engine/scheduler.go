package engine

import (
	"context"
	"time"

	"github.com/memenex/memengine/pkg/record"
)

// Start launches the engine's background jobs (decay, eviction,
// consolidation) as long-lived goroutines, per spec section 5's
// "single scheduler owned by the engine." Start is idempotent: calling it
// again while already started is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.started = true

	e.wg.Add(3)
	go e.runTicker(runCtx, e.cfg.DecayInterval, e.decayPass)
	go e.runTicker(runCtx, e.cfg.DecayInterval, e.evictionPass)
	go e.runTicker(runCtx, time.Duration(e.cfg.Consolidation.IntervalSecs)*time.Second, e.consolidationPass)
}

// Stop cancels and waits for all background jobs to exit. Safe to call
// more than once or before Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	started := e.started
	e.started = false
	e.mu.Unlock()

	if !started || cancel == nil {
		return
	}
	cancel()
	e.wg.Wait()
}

// runTicker runs fn every interval until ctx is cancelled. Each job is
// cancellable and idempotent: cancelling mid-run leaves the system in a
// valid state, and the next tick simply picks up where a full pass would
// have started (spec section 5).
func (e *Engine) runTicker(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer e.wg.Done()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (e *Engine) decayPass(ctx context.Context) {
	now := time.Now()
	records, err := e.store.Scan(ctx, func(r *record.Record) bool { return r.Kind != record.KindCoreBlock }, 0)
	if err != nil {
		e.log.Warnf("decay pass: scan: %v", err)
		return
	}
	for _, r := range records {
		if ctx.Err() != nil {
			return
		}
		before := r.Importance
		e.decay.ApplyDecay(r, now)
		if r.Importance != before {
			if err := e.store.Put(ctx, r); err != nil {
				e.log.Warnf("decay pass: persist %s: %v", r.ID, err)
			}
		}
	}
}

func (e *Engine) evictionPass(ctx context.Context) {
	limits := map[record.Scope]int{
		record.ScopeGlobal:  e.cfg.Scopes.GlobalMax,
		record.ScopeAgent:   e.cfg.Scopes.AgentMax,
		record.ScopeUser:    e.cfg.Scopes.UserMax,
		record.ScopeSession: e.cfg.Scopes.SessionMax,
	}
	for scope, max := range limits {
		if ctx.Err() != nil {
			return
		}
		if max <= 0 {
			continue
		}
		if e.counters.Count(string(scope)) <= int64(max) {
			continue
		}
		if _, err := e.evictor.EvictScope(ctx, scope, max); err != nil {
			e.log.Warnf("eviction pass: scope %s: %v", scope, err)
		}
	}
}

func (e *Engine) consolidationPass(ctx context.Context) {
	e.mu.Lock()
	agents := make([]string, 0, len(e.agentIDs))
	for id := range e.agentIDs {
		agents = append(agents, id)
	}
	e.mu.Unlock()

	now := time.Now()
	for _, agentID := range agents {
		if ctx.Err() != nil {
			return
		}
		if e.opts.rewriter == nil {
			continue
		}
		if _, err := e.consol.Run(ctx, agentID, now); err != nil {
			e.log.Warnf("consolidation pass: agent %s: %v", agentID, err)
		}
	}
}

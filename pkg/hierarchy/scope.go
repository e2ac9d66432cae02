// Package hierarchy implements the Hierarchy Manager component (E): scope
// assignment, importance scoring, decay and reinforcement, eviction, and
// consolidation. Core-Memory blocks are a sibling package
// (pkg/corememory) that the top-level engine wires alongside this one,
// since both are described under "4.E Hierarchy Manager" in the design
// but have independent lifecycles.
package hierarchy

import "github.com/memenex/memengine/pkg/record"

// AssignScope implements the scope-assignment policy: session_id, if
// present, wins over user_id, which wins over agent_id; all absent means
// Global.
func AssignScope(agentID, userID, sessionID string) record.Scope {
	switch {
	case sessionID != "":
		return record.ScopeSession
	case userID != "":
		return record.ScopeUser
	case agentID != "":
		return record.ScopeAgent
	default:
		return record.ScopeGlobal
	}
}

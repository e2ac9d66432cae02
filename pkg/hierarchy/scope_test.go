package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memenex/memengine/pkg/record"
)

func TestAssignScopeSessionWinsOverEverything(t *testing.T) {
	assert.Equal(t, record.ScopeSession, AssignScope("agent-1", "user-1", "session-1"))
}

func TestAssignScopeUserWinsOverAgent(t *testing.T) {
	assert.Equal(t, record.ScopeUser, AssignScope("agent-1", "user-1", ""))
}

func TestAssignScopeAgentWhenOnlyAgentSet(t *testing.T) {
	assert.Equal(t, record.ScopeAgent, AssignScope("agent-1", "", ""))
}

func TestAssignScopeGlobalWhenAllEmpty(t *testing.T) {
	assert.Equal(t, record.ScopeGlobal, AssignScope("", "", ""))
}

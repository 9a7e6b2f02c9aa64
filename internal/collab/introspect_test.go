package collab_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/collab/collabtest"
)

func TestListAgents_SpawnOrder(t *testing.T) {
	s := newSession(t, collabtest.NewRunner(), testOptions(), nil)
	planner := spawn(t, s, "Planner", "plan")
	builder := spawn(t, s, "Builder", "build")

	list, err := s.ListAgents()
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, s.OrchestratorID(), list[0].ID)
	assert.Equal(t, agent.RoleOrchestrator, list[0].Role)
	assert.Equal(t, planner, list[1].ID)
	assert.Equal(t, builder, list[2].ID)
	for _, sum := range list[1:] {
		assert.Equal(t, s.OrchestratorID(), sum.ParentID)
		assert.Equal(t, agent.RoleSubagent, sum.Role)
		assert.NotEmpty(t, sum.ShortID)
	}
}

func TestAgentOutput_TrimsToTail(t *testing.T) {
	long := strings.Repeat("a", 40) + "TAIL"
	runner := collabtest.NewRunner().On("Writer",
		collabtest.Reason("thinking "+long),
		collabtest.Stream(long),
		collabtest.Await(),
		collabtest.Hang(),
	)
	s := newSession(t, runner, testOptions(), nil)
	id := spawn(t, s, "Writer", "write")

	require.Eventually(t, func() bool {
		out, err := s.AgentOutput(id, 0)
		require.NoError(t, err)
		return out.PartialText == long && len(out.ReasoningEvents) == 1
	}, 2*time.Second, 5*time.Millisecond)

	out, err := s.AgentOutput(id, 4)
	require.NoError(t, err)
	assert.Equal(t, "TAIL", out.PartialText)
	require.Len(t, out.ReasoningEvents, 1)
	assert.Equal(t, "TAIL", out.ReasoningEvents[0].Text)
	assert.Equal(t, agent.StatusRunning, out.Status)
}

func TestAgentOutput_DoesNotConsumeInput(t *testing.T) {
	runner := collabtest.NewRunner().On("Sleeper", collabtest.Hang())
	s := newSession(t, runner, testOptions(), nil)
	id := spawn(t, s, "Sleeper", "wait")

	_, err := s.SendInput(context.Background(), collab.SendRequest{Target: id, Message: "first"})
	require.NoError(t, err)

	before, err := s.AgentOutput(id, 0)
	require.NoError(t, err)
	after, err := s.AgentOutput(id, 0)
	require.NoError(t, err)

	assert.Equal(t, before.ReadCursor, after.ReadCursor)
	assert.Equal(t, 1, after.PendingInput)
	assert.Equal(t, before.PendingInput, after.PendingInput)
}

func TestAgentOutput_Errors(t *testing.T) {
	s := newSession(t, collabtest.NewRunner(), testOptions(), nil)
	id := spawn(t, s, "Planner", "plan")

	_, err := s.AgentOutput(id, -1)
	assert.ErrorIs(t, err, collab.ErrInvalidInput)

	_, err = s.AgentOutput("nobody", 0)
	assert.ErrorIs(t, err, collab.ErrUnknownAgent)
}

func TestAgentOutput_FailedAgentReportsError(t *testing.T) {
	runner := collabtest.NewRunner().On("Broken", collabtest.Fail(assert.AnError))
	s := newSession(t, runner, testOptions(), nil)
	id := spawn(t, s, "Broken", "go")

	res, err := s.Wait(context.Background(), id, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusFailed, res.Status)
	assert.Contains(t, res.Error, assert.AnError.Error())

	out, err := s.AgentOutput(id, 0)
	require.NoError(t, err)
	assert.Equal(t, res.Error, out.Error)
}

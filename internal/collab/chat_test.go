package collab_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/collab/collabtest"
	"github.com/opencode-ai/collab/internal/groupchat"
)

func human(body string) collab.SendRequest {
	return collab.SendRequest{Author: groupchat.HumanAuthor, Message: body}
}

func reasoningContains(t *testing.T, s *collab.Session, id, substr string) bool {
	t.Helper()
	out, err := s.AgentOutput(id, 0)
	require.NoError(t, err)
	for _, ev := range out.ReasoningEvents {
		if strings.Contains(ev.Text, substr) {
			return true
		}
	}
	return false
}

func TestSendInput_MentionDeliversAndAdvancesCursor(t *testing.T) {
	s := newSession(t, collabtest.NewRunner(), testOptions(), nil)
	ctx := context.Background()
	planner := spawn(t, s, "Planner", "plan")
	builder := spawn(t, s, "Builder", "build")

	d, err := s.SendInput(ctx, human("please ping @planner"))
	require.NoError(t, err)
	assert.Equal(t, []string{planner}, d.DeliveredTo)
	assert.Equal(t, []string{planner}, d.Message.Mentions)
	assert.Equal(t, groupchat.HumanAuthor, d.Message.Author)
	assert.Equal(t, groupchat.VisibilityInterim, d.Message.Visibility)

	out, err := s.AgentOutput(planner, 0)
	require.NoError(t, err)
	assert.Equal(t, d.Message.Seq, out.ReadCursor)

	require.Eventually(t, func() bool {
		return reasoningContains(t, s, planner, "please ping @planner")
	}, 2*time.Second, 5*time.Millisecond)

	other, err := s.AgentOutput(builder, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), other.ReadCursor)
	assert.Empty(t, other.ReasoningEvents)
}

func TestSendInput_UnreadBacklogOnMention(t *testing.T) {
	s := newSession(t, collabtest.NewRunner(), testOptions(), nil)
	ctx := context.Background()
	builder := spawn(t, s, "Builder", "build")

	_, err := s.SendInput(ctx, human("design notes: use a queue"))
	require.NoError(t, err)
	_, err = s.SendInput(ctx, human("unrelated chatter"))
	require.NoError(t, err)

	out, err := s.AgentOutput(builder, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), out.ReadCursor)

	d, err := s.SendInput(ctx, human("@builder catch up"))
	require.NoError(t, err)
	assert.Equal(t, []string{builder}, d.DeliveredTo)

	require.Eventually(t, func() bool {
		return reasoningContains(t, s, builder, "use a queue") &&
			reasoningContains(t, s, builder, "unrelated chatter") &&
			reasoningContains(t, s, builder, "catch up")
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSendInput_TargetBypassesMentions(t *testing.T) {
	s := newSession(t, collabtest.NewRunner(), testOptions(), nil)
	reviewer := spawn(t, s, "Reviewer", "review")

	d, err := s.SendInput(context.Background(), collab.SendRequest{Target: "reviewer", Message: "look at the diff"})
	require.NoError(t, err)
	assert.Equal(t, []string{reviewer}, d.DeliveredTo)
	assert.Equal(t, []string{reviewer}, d.Message.Targets)
	assert.Empty(t, d.Message.Mentions)
	assert.Equal(t, s.OrchestratorID(), d.Message.Author)
}

func TestSendInput_AmbiguousPersonaReachesAll(t *testing.T) {
	s := newSession(t, collabtest.NewRunner(), testOptions(), nil)
	first := spawn(t, s, "Builder", "a")
	second := spawn(t, s, "builder", "b")

	d, err := s.SendInput(context.Background(), human("@builder sync up"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first, second}, d.DeliveredTo)

	_, err = s.Wait(context.Background(), "builder", 0)
	assert.ErrorIs(t, err, collab.ErrInvalidInput)
}

func TestSendInput_ShortIDAndExplicitForms(t *testing.T) {
	s := newSession(t, collabtest.NewRunner(), testOptions(), nil)
	id := spawn(t, s, "Planner", "plan")
	out, err := s.AgentOutput(id, 0)
	require.NoError(t, err)

	d, err := s.SendInput(context.Background(), human("hey @"+out.ShortID))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, d.DeliveredTo)

	d, err = s.SendInput(context.Background(), human("hey @["+id+"]"))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, d.DeliveredTo)
}

func TestSendInput_UnknownMentionIsIgnored(t *testing.T) {
	s := newSession(t, collabtest.NewRunner(), testOptions(), nil)
	spawn(t, s, "Planner", "plan")

	d, err := s.SendInput(context.Background(), human("@planer are you there? mail me at a@b.com"))
	require.NoError(t, err)
	assert.Empty(t, d.DeliveredTo)
	assert.Equal(t, []string{"planer"}, d.Unknown)
	assert.Equal(t, "planner", d.Suggestions["planer"])

	msgs, err := s.Messages(0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSendInput_UnknownTarget(t *testing.T) {
	s := newSession(t, collabtest.NewRunner(), testOptions(), nil)
	_, err := s.SendInput(context.Background(), collab.SendRequest{Target: "ghost", Message: "hello"})
	assert.ErrorIs(t, err, collab.ErrUnknownAgent)

	_, err = s.SendInput(context.Background(), collab.SendRequest{Author: "ghost", Message: "hello"})
	assert.ErrorIs(t, err, collab.ErrUnknownAgent)
}

func TestSendInput_InvalidInput(t *testing.T) {
	s := newSession(t, collabtest.NewRunner(), testOptions(), nil)

	_, err := s.SendInput(context.Background(), human("  \n "))
	assert.ErrorIs(t, err, collab.ErrInvalidInput)

	_, err = s.SendInput(context.Background(), collab.SendRequest{Message: "x", Visibility: "loud"})
	assert.ErrorIs(t, err, collab.ErrInvalidInput)
}

func TestSendInput_ToTerminalAgentIsDropped(t *testing.T) {
	runner := collabtest.NewRunner().On("Quick", collabtest.Reply("all done"))
	s := newSession(t, runner, testOptions(), nil)
	ctx := context.Background()
	id := spawn(t, s, "Quick", "go")
	eventuallyStatus(t, s, id, agent.StatusCompleted)

	d, err := s.SendInput(ctx, collab.SendRequest{Target: id, Message: "one more thing @quick"})
	require.NoError(t, err)
	assert.Empty(t, d.DeliveredTo)
	assert.Equal(t, []string{id}, d.Dropped)

	out, err := s.AgentOutput(id, 0)
	require.NoError(t, err)
	assert.Zero(t, out.PendingInput)
}

func TestSendInput_TerminalAuthorRejected(t *testing.T) {
	runner := collabtest.NewRunner().On("Quick", collabtest.Reply("all done"))
	s := newSession(t, runner, testOptions(), nil)
	id := spawn(t, s, "Quick", "go")
	eventuallyStatus(t, s, id, agent.StatusCompleted)

	_, err := s.SendInput(context.Background(), collab.SendRequest{Author: id, Message: "late"})
	assert.ErrorIs(t, err, collab.ErrAlreadyTerminal)
}

func TestSendInput_SubagentPostsToParent(t *testing.T) {
	runner := collabtest.NewRunner().On("Worker",
		collabtest.Interim("halfway there, @orchestrator"),
		collabtest.Reply("finished"),
	)
	s := newSession(t, runner, testOptions(), nil)
	id := spawn(t, s, "Worker", "go")

	res, err := s.Wait(context.Background(), id, 2000*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, agent.StatusCompleted, res.Status)
	require.NotNil(t, res.Result)
	assert.Equal(t, "finished", res.Result.Body)
	assert.Equal(t, groupchat.VisibilityFinal, res.Result.Visibility)

	msgs, err := s.Messages(0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, groupchat.VisibilityInterim, msgs[0].Visibility)
	assert.Equal(t, "Worker", msgs[0].AuthorPersona)
	assert.Equal(t, []string{s.OrchestratorID()}, msgs[0].Mentions)
}

func TestSendInput_ConcurrentOrdering(t *testing.T) {
	s := newSession(t, collabtest.NewRunner(), testOptions(), nil)
	spawn(t, s, "Planner", "plan")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.SendInput(context.Background(), human(fmt.Sprintf("message %d @planner", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := s.Messages(0)
	require.NoError(t, err)
	require.Len(t, msgs, n)
	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.Seq)
	}

	out, err := s.AgentOutput("planner", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(n), out.ReadCursor)
}

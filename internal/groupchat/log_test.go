package groupchat

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	recipient string
	seqs      []int64
}

func collect(out *[]delivery) DeliverFunc {
	return func(recipient string, unread []Message) {
		d := delivery{recipient: recipient}
		for _, m := range unread {
			d.seqs = append(d.seqs, m.Seq)
		}
		*out = append(*out, d)
	}
}

func TestLog_AppendAssignsSequence(t *testing.T) {
	l := NewLog(0)

	first := l.Append(Message{Author: HumanAuthor, Body: "hello"}, nil, nil)
	second := l.Append(Message{Author: HumanAuthor, Body: "again"}, nil, nil)

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)
	assert.False(t, first.Time.IsZero())
	assert.Equal(t, int64(2), l.Tail())
	assert.Equal(t, 2, l.Len())
}

func TestLog_DeliversUnreadAndAdvancesCursor(t *testing.T) {
	l := NewLog(0)
	var got []delivery

	l.Append(Message{Author: "orch", Body: "background chatter"}, nil, nil)
	l.Append(Message{Author: "orch", Body: "more chatter"}, nil, nil)
	assert.Equal(t, int64(0), l.Cursor("planner"))

	msg := l.Append(Message{Author: "orch", Body: "@planner go"}, []string{"planner"}, collect(&got))

	require.Len(t, got, 1)
	assert.Equal(t, "planner", got[0].recipient)
	assert.Equal(t, []int64{1, 2, 3}, got[0].seqs)
	assert.Equal(t, msg.Seq, l.Cursor("planner"))

	// Nothing unread until addressed again.
	l.Append(Message{Author: "orch", Body: "not for planner"}, nil, nil)
	assert.Equal(t, msg.Seq, l.Cursor("planner"))
	assert.Len(t, l.Unread("planner"), 1)

	got = nil
	l.Append(Message{Author: "orch", Body: "@planner next"}, []string{"planner"}, collect(&got))
	require.Len(t, got, 1)
	assert.Equal(t, []int64{4, 5}, got[0].seqs)
}

func TestLog_SkipsRecipientsOwnMessages(t *testing.T) {
	l := NewLog(0)
	var got []delivery

	l.Append(Message{Author: "builder", Body: "I did a thing"}, nil, nil)
	l.Append(Message{Author: "orch", Body: "@builder thanks"}, []string{"builder"}, collect(&got))

	require.Len(t, got, 1)
	assert.Equal(t, []int64{2}, got[0].seqs)
}

func TestLog_Retention(t *testing.T) {
	l := NewLog(3)
	for i := 0; i < 5; i++ {
		l.Append(Message{Author: "orch", Body: fmt.Sprintf("m%d", i)}, nil, nil)
	}

	assert.Equal(t, 3, l.Len())
	msgs := l.Since(0)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(3), msgs[0].Seq)
	assert.Equal(t, int64(5), msgs[2].Seq)

	// A cursor older than the retained window still sees only what is kept.
	assert.Len(t, l.Unread("late"), 3)
}

func TestLog_Since(t *testing.T) {
	l := NewLog(0)
	for i := 0; i < 4; i++ {
		l.Append(Message{Author: "orch", Body: "x"}, nil, nil)
	}
	assert.Len(t, l.Since(2), 2)
	assert.Empty(t, l.Since(4))
}

func TestLog_MentionsAreCopied(t *testing.T) {
	l := NewLog(0)
	mentions := []string{"a"}
	l.Append(Message{Author: "orch", Mentions: mentions}, nil, nil)
	mentions[0] = "changed"
	assert.Equal(t, []string{"a"}, l.Since(0)[0].Mentions)
}

func TestLog_ResetKeepsSequence(t *testing.T) {
	l := NewLog(0)
	l.Append(Message{Author: "orch"}, []string{"x"}, nil)
	l.Reset()

	assert.Equal(t, 0, l.Len())
	assert.Equal(t, int64(0), l.Cursor("x"))
	assert.Equal(t, int64(2), l.Append(Message{Author: "orch"}, nil, nil).Seq)
}

func TestVisibility(t *testing.T) {
	assert.True(t, VisibilityFinal.Valid())
	assert.True(t, VisibilityInterim.Valid())
	assert.False(t, Visibility("loud").Valid())
	assert.True(t, Message{Visibility: VisibilityFinal}.IsFinal())
}

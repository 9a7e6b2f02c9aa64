package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/groupchat"
	"github.com/opencode-ai/collab/internal/logging"
	"github.com/opencode-ai/collab/internal/provider"
)

const (
	// MaxSteps is the maximum number of model turns per task.
	MaxSteps = 50
	// MaxRetries is the maximum number of retries for API errors.
	MaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime is the maximum total time for retries.
	RetryMaxElapsedTime = 2 * time.Minute
)

// ErrMaxSteps is returned when a task exhausts its model turns.
var ErrMaxSteps = errors.New("maximum steps reached")

// ToolSource describes the tools an agent may call and turns model tool
// calls into collab tool calls. *tool.Registry implements it.
type ToolSource interface {
	ToolInfos(role agent.Role) []*schema.ToolInfo
	NewCall(id, name, arguments string) collab.ToolCall
}

// Config configures a Runner.
type Config struct {
	Provider provider.Provider
	Tools    ToolSource
	// MaxSteps bounds model turns per task. Zero selects MaxSteps.
	MaxSteps    int
	MaxTokens   int
	Temperature float64
	// Backoff overrides the retry policy, mostly for tests.
	Backoff func(ctx context.Context) backoff.BackOff
}

// Runner runs agent tasks on a chat model.
type Runner struct {
	cfg Config
	log zerolog.Logger
}

var _ collab.Runner = (*Runner)(nil)

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = MaxSteps
	}
	if cfg.Backoff == nil {
		cfg.Backoff = newRetryBackoff
	}
	return &Runner{cfg: cfg, log: logging.Component("executor")}
}

// newRetryBackoff creates an exponential backoff with jitter for API retries.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// Start implements collab.Runner.
func (r *Runner) Start(ctx context.Context, spec collab.TaskSpec) (collab.Task, error) {
	if r.cfg.Provider == nil {
		return nil, errors.New("no model provider configured")
	}
	if spec.Inbox == nil || spec.Tools == nil {
		return nil, errors.New("task needs an inbox and a tool invoker")
	}

	events := make(chan collab.TaskEvent, 64)
	go func() {
		defer close(events)
		emit := func(ev collab.TaskEvent) error {
			select {
			case events <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		l := &loop{
			runner:  r,
			role:    agent.RoleSubagent,
			tools:   spec.Tools,
			pending: spec.Inbox.TryNext,
			stopped: spec.Inbox.Closed,
			emit:    emit,
			log:     r.log.With().Str("agent", spec.AgentID).Logger(),
		}
		history := []*schema.Message{
			schema.SystemMessage(spec.Instructions),
			schema.UserMessage(spec.Input),
		}

		final, err := l.run(ctx, history)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			_ = emit(collab.TaskEvent{Kind: collab.EventError, Err: err})
			return
		}
		if strings.TrimSpace(final) != "" {
			_ = emit(collab.TaskEvent{Kind: collab.EventFinal, Text: final})
		}
	}()
	return eventStream(events), nil
}

type eventStream <-chan collab.TaskEvent

func (s eventStream) Events() <-chan collab.TaskEvent {
	return s
}

// loop is one agent's conversation with the model.
type loop struct {
	runner *Runner
	role   agent.Role
	tools  collab.ToolInvoker
	// pending returns chat input that arrived since the last call.
	pending func() []groupchat.Message
	// stopped reports a graceful stop request.
	stopped func() bool
	emit    func(collab.TaskEvent) error
	log     zerolog.Logger
}

// run alternates model turns and tool calls until the model answers without
// calling a tool and no chat input is pending. It returns that answer.
func (l *loop) run(ctx context.Context, history []*schema.Message) (string, error) {
	cfg := l.runner.cfg
	infos := cfg.Tools.ToolInfos(l.role)

	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if l.stopped != nil && l.stopped() {
			l.log.Debug().Int("step", step).Msg("stop requested")
			return "", nil
		}
		if step >= cfg.MaxSteps {
			return "", ErrMaxSteps
		}

		if msgs := l.pending(); len(msgs) > 0 {
			if err := l.read(msgs); err != nil {
				return "", err
			}
			history = append(history, chatMessage(msgs))
		}

		reply, err := l.complete(ctx, history, infos)
		if err != nil {
			return "", err
		}
		history = append(history, reply)

		if len(reply.ToolCalls) == 0 {
			msgs := l.pending()
			if len(msgs) == 0 {
				return reply.Content, nil
			}
			// New input arrived while the model was answering; the answer
			// is progress, not the result.
			if strings.TrimSpace(reply.Content) != "" {
				if err := l.emit(collab.TaskEvent{Kind: collab.EventInterim, Text: reply.Content}); err != nil {
					return "", err
				}
			}
			if err := l.read(msgs); err != nil {
				return "", err
			}
			history = append(history, chatMessage(msgs))
			continue
		}

		for _, tc := range reply.ToolCalls {
			call := cfg.Tools.NewCall(tc.ID, tc.Function.Name, tc.Function.Arguments)
			res := l.tools.Invoke(ctx, call)
			l.log.Debug().
				Str("tool", call.QualifiedName()).
				Str("call", tc.ID).
				Bool("failed", res.Failed()).
				Msg("tool call finished")
			history = append(history, schema.ToolMessage(res.Text(), tc.ID))
		}
	}
}

// complete runs one model turn, retrying failures to open the stream.
func (l *loop) complete(ctx context.Context, history []*schema.Message, infos []*schema.ToolInfo) (*schema.Message, error) {
	retry := l.runner.cfg.Backoff(ctx)
	for {
		reply, err := l.stream(ctx, history, infos)
		if err == nil {
			return reply, nil
		}
		var open *openError
		if !errors.As(err, &open) {
			return nil, err
		}

		next := retry.NextBackOff()
		if next == backoff.Stop {
			return nil, open.err
		}
		l.log.Warn().Err(open.err).Dur("retry_in", next).Msg("model request failed, retrying")
		timer := time.NewTimer(next)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// openError marks a failure to start a completion, which is safe to retry.
type openError struct{ err error }

func (e *openError) Error() string { return e.err.Error() }
func (e *openError) Unwrap() error { return e.err }

// stream runs one completion, emitting text deltas as they arrive and the
// reasoning note once the turn is complete.
func (l *loop) stream(ctx context.Context, history []*schema.Message, infos []*schema.ToolInfo) (*schema.Message, error) {
	cfg := l.runner.cfg
	stream, err := cfg.Provider.CreateCompletion(ctx, &provider.CompletionRequest{
		Messages:    history,
		Tools:       infos,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return nil, &openError{err: err}
	}
	defer stream.Close()

	var chunks []*schema.Message
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("model stream: %w", err)
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			if err := l.emit(collab.TaskEvent{Kind: collab.EventDelta, Text: chunk.Content}); err != nil {
				return nil, err
			}
		}
	}

	if len(chunks) == 0 {
		return &schema.Message{Role: schema.Assistant}, nil
	}
	reply, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, fmt.Errorf("model stream: %w", err)
	}
	if reasoning := strings.TrimSpace(reply.ReasoningContent); reasoning != "" {
		if err := l.emit(collab.TaskEvent{Kind: collab.EventReasoning, Text: reasoning}); err != nil {
			return nil, err
		}
	}
	return reply, nil
}

// chatMessage renders group chat input as one user message.
// read notes each delivered message in the agent's reasoning events.
func (l *loop) read(msgs []groupchat.Message) error {
	for _, m := range msgs {
		note := fmt.Sprintf("read #%d from %s: %s", m.Seq, m.Author, strings.TrimSpace(m.Body))
		if err := l.emit(collab.TaskEvent{Kind: collab.EventReasoning, Text: note}); err != nil {
			return err
		}
	}
	return nil
}

func chatMessage(msgs []groupchat.Message) *schema.Message {
	var b strings.Builder
	b.WriteString("New group chat messages:\n")
	for _, m := range msgs {
		author := m.AuthorPersona
		if author == "" {
			author = m.Author
		}
		fmt.Fprintf(&b, "\n[#%d %s, %s]\n%s\n", m.Seq, author, m.Visibility, m.Body)
	}
	return schema.UserMessage(b.String())
}

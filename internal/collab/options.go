package collab

import (
	"math"
	"time"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/groupchat"
	"github.com/opencode-ai/collab/internal/permission"
)

// Timeout defaults and bounds.
const (
	DefaultWaitTimeout     = 30 * time.Second
	MaxWaitTimeout         = 300 * time.Second
	DefaultCloseTimeout    = 10 * time.Second
	DefaultTeardownTimeout = 30 * time.Second

	// DefaultOrchestratorPersona names the session's root agent.
	DefaultOrchestratorPersona = "Orchestrator"
)

// maxMillis is the largest millisecond count a time.Duration can hold.
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

// Millis converts a millisecond count to a duration, saturating instead of
// overflowing. Callers still clamp the result against their own maximum.
func Millis(ms int64) time.Duration {
	if ms > maxMillis {
		ms = maxMillis
	}
	return time.Duration(ms) * time.Millisecond
}

// Options configures a Session.
type Options struct {
	// OrchestratorPersona is the persona of the root agent.
	OrchestratorPersona string
	// Instructions is the base instruction text every agent starts from.
	Instructions string
	// Policy is the orchestrator's policy, inherited by its subagents.
	Policy permission.Policy

	// DefaultSubagents spawns Templates when the session starts.
	DefaultSubagents bool
	Templates        []agent.Template

	WaitTimeout     time.Duration
	MaxWaitTimeout  time.Duration
	CloseTimeout    time.Duration
	TeardownTimeout time.Duration

	MaxMessages  int
	OutputLimits agent.Limits
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		OrchestratorPersona: DefaultOrchestratorPersona,
		Templates:           agent.DefaultTemplates(),
		WaitTimeout:         DefaultWaitTimeout,
		MaxWaitTimeout:      MaxWaitTimeout,
		CloseTimeout:        DefaultCloseTimeout,
		TeardownTimeout:     DefaultTeardownTimeout,
		MaxMessages:         groupchat.DefaultMaxMessages,
		OutputLimits:        agent.DefaultLimits(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.OrchestratorPersona == "" {
		o.OrchestratorPersona = d.OrchestratorPersona
	}
	if o.Templates == nil {
		o.Templates = d.Templates
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = d.WaitTimeout
	}
	if o.MaxWaitTimeout <= 0 {
		o.MaxWaitTimeout = d.MaxWaitTimeout
	}
	if o.WaitTimeout > o.MaxWaitTimeout {
		o.WaitTimeout = o.MaxWaitTimeout
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = d.CloseTimeout
	}
	if o.TeardownTimeout <= 0 {
		o.TeardownTimeout = d.TeardownTimeout
	}
	if o.MaxMessages <= 0 {
		o.MaxMessages = d.MaxMessages
	}
	return o
}

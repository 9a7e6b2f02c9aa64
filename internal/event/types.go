package event

import (
	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/groupchat"
	"github.com/opencode-ai/collab/internal/permission"
)

// SessionStartedData is the data for session.started events.
type SessionStartedData struct {
	SessionID      string `json:"sessionID"`
	OrchestratorID string `json:"orchestratorID"`
}

// SessionEndedData is the data for session.ended events.
type SessionEndedData struct {
	SessionID string `json:"sessionID"`
	Messages  int    `json:"messages"`
}

// AgentSpawnedData is the data for agent.spawned events.
type AgentSpawnedData struct {
	Agent agent.Summary `json:"agent"`
}

// AgentStatusData is the data for agent.status events.
type AgentStatusData struct {
	AgentID string       `json:"agentID"`
	From    agent.Status `json:"from"`
	To      agent.Status `json:"to"`
	Error   string       `json:"error,omitempty"`
}

// ChatMessageData is the data for chat.message events.
type ChatMessageData struct {
	Message     groupchat.Message `json:"message"`
	DeliveredTo []string          `json:"deliveredTo,omitempty"`
}

// ChatDroppedData is the data for chat.dropped events.
type ChatDroppedData struct {
	Seq       int64        `json:"seq"`
	Recipient string       `json:"recipient"`
	Status    agent.Status `json:"status"`
}

// PolicyDeniedData is the data for policy.denied events.
type PolicyDeniedData struct {
	AgentID string             `json:"agentID"`
	CallID  string             `json:"callID,omitempty"`
	Attempt permission.Attempt `json:"attempt"`
	Pattern string             `json:"pattern,omitempty"`
	Reason  string             `json:"reason"`
}

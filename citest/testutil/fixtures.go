package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"
)

// RandomString generates a random string of n characters
func RandomString(n int) string {
	bytes := make([]byte, n/2+1)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:n]
}

// UniquePersona returns a persona name that no other spec uses, so
// mentions in one spec cannot reach agents spawned by another.
func UniquePersona(base string) string {
	return base + "-" + RandomString(6)
}

// TempDir creates a temporary directory
type TempDir struct {
	Path string
}

// NewTempDir creates a temp directory
func NewTempDir() (*TempDir, error) {
	path, err := os.MkdirTemp("", "collab-test-*")
	if err != nil {
		return nil, err
	}
	return &TempDir{Path: path}, nil
}

// CreateFile creates a file in the temp directory and returns its path.
func (d *TempDir) CreateFile(name, content string) (string, error) {
	path := filepath.Join(d.Path, name)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Cleanup removes the temp directory and all contents
func (d *TempDir) Cleanup() {
	os.RemoveAll(d.Path)
}

// ---- Test Agent Manager ----

// AgentManager tracks spawned agents so a spec can close them afterwards.
type AgentManager struct {
	client *TestClient
	agents []string
}

// NewAgentManager creates an agent manager
func NewAgentManager(client *TestClient) *AgentManager {
	return &AgentManager{client: client}
}

// Spawn spawns an agent and tracks it for cleanup
func (m *AgentManager) Spawn(ctx context.Context, req SpawnRequest) (string, error) {
	summary, err := m.client.Spawn(ctx, req)
	if err != nil {
		return "", err
	}
	m.agents = append(m.agents, summary.ID)
	return summary.ID, nil
}

// Cleanup closes all tracked agents. Closing a finished agent is a no-op.
func (m *AgentManager) Cleanup() {
	ctx := context.Background()
	for _, id := range m.agents {
		m.client.CloseAgent(ctx, id, 2*time.Second)
	}
	m.agents = m.agents[:0]
}

// ---- Assertion Matchers ----

// EventMatcher helps match SSE events
type EventMatcher struct {
	events []SSEEvent
}

// NewEventMatcher creates an event matcher
func NewEventMatcher(events []SSEEvent) *EventMatcher {
	return &EventMatcher{events: events}
}

// HasType checks if any event has the given type
func (m *EventMatcher) HasType(eventType string) bool {
	return m.CountType(eventType) > 0
}

// CountType counts events of given type
func (m *EventMatcher) CountType(eventType string) int {
	count := 0
	for _, evt := range m.events {
		if evt.Type == eventType {
			count++
		}
	}
	return count
}

// FilterType returns events of given type
func (m *EventMatcher) FilterType(eventType string) []SSEEvent {
	var filtered []SSEEvent
	for _, evt := range m.events {
		if evt.Type == eventType {
			filtered = append(filtered, evt)
		}
	}
	return filtered
}

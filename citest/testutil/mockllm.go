package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MockLLMServer provides an HTTP server that mimics the OpenAI chat
// completions API. Replies are chosen by the rules of its MockLLMConfig.
type MockLLMServer struct {
	server *httptest.Server
	config *MockLLMConfig

	mu       sync.Mutex
	requests []MockRequest
	ids      atomic.Int64
}

// MockRequest records incoming requests for verification.
type MockRequest struct {
	Timestamp time.Time
	Path      string
	Prompt    MockPrompt
	Rule      string
	Body      map[string]any
}

// NewMockLLMServer creates a mock LLM server. A nil config selects
// DefaultMockLLMConfig.
func NewMockLLMServer(config *MockLLMConfig) *MockLLMServer {
	if config == nil {
		config = DefaultMockLLMConfig()
	}
	m := &MockLLMServer{config: config}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", m.handleChatCompletions)
	mux.HandleFunc("/chat/completions", m.handleChatCompletions)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the base URL to configure an OpenAI-compatible provider with.
func (m *MockLLMServer) URL() string {
	return m.server.URL + "/v1"
}

// Close shuts down the mock server.
func (m *MockLLMServer) Close() {
	m.server.Close()
}

// GetRequests returns all recorded requests.
func (m *MockLLMServer) GetRequests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RulesMatched returns the names of the rules that answered, in order.
func (m *MockLLMServer) RulesMatched() []string {
	var names []string
	for _, r := range m.GetRequests() {
		names = append(names, r.Rule)
	}
	return names
}

// mockResponse represents a response with optional tool calls
type mockResponse struct {
	content   string
	toolCalls []toolCall
	lag       time.Duration
}

type toolCall struct {
	id        string
	name      string
	arguments string
}

func (m *MockLLMServer) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	prompt := extractPrompt(req)
	rule, response := m.generateResponse(prompt)

	m.mu.Lock()
	m.requests = append(m.requests, MockRequest{
		Timestamp: time.Now(),
		Path:      r.URL.Path,
		Prompt:    prompt,
		Rule:      rule,
		Body:      req,
	})
	m.mu.Unlock()

	lag := time.Duration(m.config.Settings.LagMS)*time.Millisecond + response.lag
	if lag > 0 {
		select {
		case <-time.After(lag):
		case <-r.Context().Done():
			return
		}
	}

	if stream, _ := req["stream"].(bool); stream {
		m.writeStreamingResponse(w, response)
	} else {
		m.writeResponse(w, response)
	}
}

// extractPrompt collects the system prompt, the last non-assistant message
// and the offered tool names from an OpenAI request.
func extractPrompt(req map[string]any) MockPrompt {
	var p MockPrompt
	messages, _ := req["messages"].([]any)
	var system []string
	for _, raw := range messages {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		role, _ := msg["role"].(string)
		content := messageContent(msg["content"])
		switch role {
		case "system":
			system = append(system, content)
		case "user", "tool":
			p.Last = content
			p.LastRole = role
		}
	}
	p.System = strings.Join(system, "\n")

	tools, _ := req["tools"].([]any)
	for _, t := range tools {
		tool, ok := t.(map[string]any)
		if !ok {
			continue
		}
		fn, ok := tool["function"].(map[string]any)
		if !ok {
			continue
		}
		if name, ok := fn["name"].(string); ok {
			p.Tools = append(p.Tools, name)
		}
	}
	return p
}

// messageContent flattens string or multi-part content.
func messageContent(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []any:
		var parts []string
		for _, part := range c {
			if m, ok := part.(map[string]any); ok {
				if text, ok := m["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// generateResponse picks a tool rule first, then a response rule.
func (m *MockLLMServer) generateResponse(p MockPrompt) (string, *mockResponse) {
	if rule := m.config.FindMatchingToolRule(p); rule != nil {
		id := rule.ToolCall.ID
		if id == "" {
			id = fmt.Sprintf("call_%s_%03d", rule.Tool, m.ids.Add(1))
		}
		return rule.Name, &mockResponse{
			content: rule.Response,
			toolCalls: []toolCall{{
				id:        id,
				name:      rule.Tool,
				arguments: rule.arguments(),
			}},
		}
	}
	rule, _ := m.config.FindMatchingResponse(p)
	return rule.Name, &mockResponse{
		content: rule.Response,
		lag:     time.Duration(rule.LagMS) * time.Millisecond,
	}
}

// writeResponse writes a non-streaming OpenAI response.
func (m *MockLLMServer) writeResponse(w http.ResponseWriter, resp *mockResponse) {
	message := map[string]any{
		"role":    "assistant",
		"content": resp.content,
	}
	finishReason := "stop"
	if len(resp.toolCalls) > 0 {
		calls := make([]map[string]any, len(resp.toolCalls))
		for i, tc := range resp.toolCalls {
			calls[i] = map[string]any{
				"id":   tc.id,
				"type": "function",
				"function": map[string]any{
					"name":      tc.name,
					"arguments": tc.arguments,
				},
			}
		}
		message["tool_calls"] = calls
		finishReason = "tool_calls"
	}

	response := map[string]any{
		"id":      m.completionID(),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "mock-gpt-4",
		"choices": []map[string]any{
			{"index": 0, "message": message, "finish_reason": finishReason},
		},
		"usage": map[string]any{
			"prompt_tokens":     100,
			"completion_tokens": 50,
			"total_tokens":      150,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// writeStreamingResponse writes a streaming OpenAI response.
func (m *MockLLMServer) writeStreamingResponse(w http.ResponseWriter, resp *mockResponse) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	id := m.completionID()
	send := func(delta map[string]any, finishReason any) {
		chunk := map[string]any{
			"id":      id,
			"object":  "chat.completion.chunk",
			"created": time.Now().Unix(),
			"model":   "mock-gpt-4",
			"choices": []map[string]any{
				{"index": 0, "delta": delta, "finish_reason": finishReason},
			},
		}
		data, _ := json.Marshal(chunk)
		w.Write([]byte("data: " + string(data) + "\n\n"))
		flusher.Flush()
	}

	send(map[string]any{"role": "assistant"}, nil)

	// Stream content word by word
	words := strings.Fields(resp.content)
	for i, word := range words {
		if i < len(words)-1 {
			word += " "
		}
		send(map[string]any{"content": word}, nil)
		if d := m.config.Settings.ChunkDelayMS; d > 0 {
			time.Sleep(time.Duration(d) * time.Millisecond)
		}
	}

	for i, tc := range resp.toolCalls {
		send(map[string]any{
			"tool_calls": []map[string]any{
				{
					"index": i,
					"id":    tc.id,
					"type":  "function",
					"function": map[string]any{
						"name":      tc.name,
						"arguments": tc.arguments,
					},
				},
			},
		}, nil)
	}

	finishReason := "stop"
	if len(resp.toolCalls) > 0 {
		finishReason = "tool_calls"
	}
	send(map[string]any{}, finishReason)
	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

func (m *MockLLMServer) completionID() string {
	return fmt.Sprintf("chatcmpl-mockllm-%d", m.ids.Add(1))
}

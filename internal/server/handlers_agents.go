package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/collab/internal/agent"
	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/permission"
)

// SessionResponse describes the running session.
type SessionResponse struct {
	ID             string `json:"id"`
	OrchestratorID string `json:"orchestratorId"`
	Agents         int    `json:"agents"`
}

// SpawnRequest is the body of POST /session/agents.
type SpawnRequest struct {
	Persona      string `json:"persona,omitempty"`
	Description  string `json:"description,omitempty"`
	Message      string `json:"message"`
	Instructions string `json:"instructions,omitempty"`
	// Parent defaults to the orchestrator.
	Parent string `json:"parent,omitempty"`
	permission.Override
}

// SpawnResponse is returned by POST /session/agents.
type SpawnResponse struct {
	Agent agent.Summary `json:"agent"`
}

// TimeoutRequest is the body of the wait and close endpoints. A missing
// timeout selects the session default.
type TimeoutRequest struct {
	TimeoutMS *int64 `json:"timeout_ms,omitempty"`
}

// CloseResponse is returned by POST /session/agents/{agentID}/close.
type CloseResponse struct {
	ID     string       `json:"id"`
	Status agent.Status `json:"status"`
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	agents, err := s.session.ListAgents()
	if err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		ID:             s.session.ID(),
		OrchestratorID: s.session.OrchestratorID(),
		Agents:         len(agents),
	})
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.session.ListAgents()
	if err != nil {
		writeCollabError(w, err)
		return
	}
	if agents == nil {
		agents = []agent.Summary{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) spawnAgent(w http.ResponseWriter, r *http.Request) {
	var req SpawnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	id, err := s.session.Spawn(r.Context(), collab.SpawnRequest{
		ParentID:     req.Parent,
		Persona:      req.Persona,
		Description:  req.Description,
		Message:      req.Message,
		Instructions: req.Instructions,
		Policy:       req.Override,
	})
	if err != nil {
		writeCollabError(w, err)
		return
	}

	summary, err := s.session.Describe(id)
	if err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SpawnResponse{Agent: summary})
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	summary, err := s.session.Describe(chi.URLParam(r, "agentID"))
	if err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) agentOutput(w http.ResponseWriter, r *http.Request) {
	maxChars := 0
	if v := r.URL.Query().Get("max_chars"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "max_chars must be a non-negative integer")
			return
		}
		maxChars = n
	}

	out, err := s.session.AgentOutput(chi.URLParam(r, "agentID"), maxChars)
	if err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) waitAgent(w http.ResponseWriter, r *http.Request) {
	timeout, ok := s.readTimeout(w, r)
	if !ok {
		return
	}
	res, err := s.session.Wait(r.Context(), chi.URLParam(r, "agentID"), timeout)
	if err != nil {
		writeCollabError(w, err)
		return
	}
	// A timed-out wait is a normal result.
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) closeAgent(w http.ResponseWriter, r *http.Request) {
	timeout, ok := s.readTimeout(w, r)
	if !ok {
		return
	}
	ref := chi.URLParam(r, "agentID")
	status, err := s.session.CloseAgent(r.Context(), ref, timeout)
	if err != nil {
		writeCollabError(w, err)
		return
	}
	id := ref
	if summary, err := s.session.Describe(ref); err == nil {
		id = summary.ID
	}
	writeJSON(w, http.StatusOK, CloseResponse{ID: id, Status: status})
}

// readTimeout decodes a TimeoutRequest. It writes the error response and
// returns false when the body is invalid.
func (s *Server) readTimeout(w http.ResponseWriter, r *http.Request) (time.Duration, bool) {
	var req TimeoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return 0, false
	}
	if req.TimeoutMS == nil {
		return -1, true
	}
	if *req.TimeoutMS < 0 {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "timeout_ms must not be negative")
		return 0, false
	}
	return collab.Millis(*req.TimeoutMS), true
}

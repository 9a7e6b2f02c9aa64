package server

import (
	"net/http"
	"strconv"

	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/groupchat"
	"github.com/opencode-ai/collab/internal/permission"
)

// MessageRequest is the body of POST /session/messages.
type MessageRequest struct {
	// Author defaults to the orchestrator; "human" marks a person.
	Author     string               `json:"author,omitempty"`
	Target     string               `json:"target,omitempty"`
	Message    string               `json:"message"`
	Visibility groupchat.Visibility `json:"visibility,omitempty"`
}

// PolicyCheckRequest is the body of POST /session/policy/check.
type PolicyCheckRequest struct {
	// Agent defaults to the orchestrator.
	Agent   string          `json:"agent,omitempty"`
	Kind    permission.Kind `json:"kind"`
	Subject string          `json:"subject"`
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	var after int64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "after must be a non-negative integer")
			return
		}
		after = n
	}

	msgs, err := s.session.Messages(after)
	if err != nil {
		writeCollabError(w, err)
		return
	}
	if msgs == nil {
		msgs = []groupchat.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	delivery, err := s.session.SendInput(r.Context(), collab.SendRequest{
		Author:     req.Author,
		Target:     req.Target,
		Message:    req.Message,
		Visibility: req.Visibility,
	})
	if err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, delivery)
}

func (s *Server) checkPolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	var attempt permission.Attempt
	switch req.Kind {
	case permission.KindTool:
		attempt = permission.ToolAttempt(req.Subject)
	case permission.KindCommand:
		attempt = permission.CommandAttempt(req.Subject)
	default:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, `kind must be "tool" or "command"`)
		return
	}
	if req.Subject == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "subject is required")
		return
	}

	ref := req.Agent
	if ref == "" {
		ref = s.session.OrchestratorID()
	}
	decision, err := s.session.CheckPolicy(ref, attempt)
	if err != nil {
		writeCollabError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

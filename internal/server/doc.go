// Package server exposes a collab session over HTTP.
//
// # API Endpoints
//
//	GET  /session                          session id, orchestrator id, agent count
//	GET  /session/agents                   list agents in spawn order
//	POST /session/agents                   spawn a subagent
//	GET  /session/agents/{agentID}         describe one agent
//	GET  /session/agents/{agentID}/output  output snapshot (?max_chars=N)
//	POST /session/agents/{agentID}/wait    wait for a terminal status
//	POST /session/agents/{agentID}/close   close an agent
//	GET  /session/messages                 group chat log (?after=seq)
//	POST /session/messages                 post to the group chat
//	POST /session/policy/check             evaluate a tool or command
//	GET  /event                            server-sent events (?type=prefix)
//
// {agentID} accepts a full id, a short id or a persona.
//
// # Errors
//
// Errors use the body {"error": {"code", "message", "details"}}. Session
// error kinds map to statuses: unknown agent 404, invalid input 400,
// already terminal 409, policy denied 403, session closed 410 and
// anything else 500. A wait that times out is not an error; its result has
// "timedOut": true.
//
// # Events
//
// /event reads the session bus's watermill topic, so every connection sees
// every event published after it subscribed. Each event is written as
// {"type": ..., "properties": ...} with a heartbeat comment every 30s.
package server

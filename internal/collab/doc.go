// Package collab is the orchestration core: it spawns subagents, routes group
// chat messages between them, gates their tool calls through their policies,
// and lets the orchestrator wait for, close and inspect them.
//
// A Session owns one orchestrator, its subagents and one group chat log.
// Subagent reasoning runs elsewhere, behind the Runner interface; tool and
// command execution runs behind the Executor interface. The session only
// decides what is allowed and keeps the shared state consistent.
//
// # Serialization
//
// Log appends, cursor advancement and status transitions all happen under
// the session lock. Lock order is session, then log, then mailbox; agent
// locks are leaves. Wait and CloseAgent are the only blocking operations and
// they never hold the session lock while blocked.
package collab

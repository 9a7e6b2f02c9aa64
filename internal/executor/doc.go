// Package executor runs agent reasoning on an Eino chat model.
//
// Runner implements collab.Runner for subagents: each task streams model
// turns, sends tool calls through the agent's policy gate and posts its
// reply to the group chat when the model stops calling tools. Chat input
// that arrives while the task runs is folded into the conversation before
// the next turn.
//
// Orchestrate drives the orchestrator with the same loop, reading group
// chat updates through the session instead of a mailbox.
package executor

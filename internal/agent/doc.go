// Package agent models the agents of a collaboration session: their
// lifecycle status, their bounded output buffers, their pending-input
// mailboxes and the registry that tracks them in spawn order.
//
// # Lifecycle
//
//	spawned -> running -> completed
//	                   -> failed
//	spawned|running    -> closed
//
// running may re-enter itself on interim updates. completed, failed and
// closed are terminal: once reached, no further transition is accepted and
// the agent's Done channel is closed.
//
// # Identity
//
// Every agent has a ULID id. Its short id is the lower-cased tail of that
// id, lengthened by the registry until it is unique within the session.
// Personas are free-form names such as "Planner" and are matched by mention
// tokens after normalization ("Code Reviewer" answers to @code-reviewer).
package agent

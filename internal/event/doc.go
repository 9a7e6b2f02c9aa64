/*
Package event is the pub/sub backbone of a collaboration session.

Components publish typed events (an agent was spawned, a chat message was
appended, a policy denied a tool call) without knowing who listens. A Bus
delivers each event two ways:

  - directly, to in-process subscribers registered with Subscribe or
    SubscribeAll, with the Go value intact;
  - as a JSON envelope on the watermill topic Topic, for consumers such as
    the SSE stream that want serialized events and back-pressure.

# Event Types

Session events:
  - session.started: the orchestrator was registered
  - session.ended: teardown finished

Agent events:
  - agent.spawned: a subagent was registered
  - agent.status: an agent changed lifecycle status

Chat events:
  - chat.message: a message was appended to the group chat log
  - chat.dropped: a message addressed an agent that had already stopped

Policy events:
  - policy.denied: a tool call or command was refused
*/
package event

package agent

// Status is the lifecycle state of an agent.
type Status string

const (
	StatusSpawned   Status = "spawned"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusClosed    Status = "closed"
)

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusClosed:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle permits moving from one status
// to another.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusSpawned:
		return to == StatusRunning || to == StatusFailed || to == StatusClosed
	case StatusRunning:
		return to == StatusRunning || to == StatusCompleted ||
			to == StatusFailed || to == StatusClosed
	}
	return false
}

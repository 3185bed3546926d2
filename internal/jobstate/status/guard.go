package status

// Guard decides which status a job actually moves to when a caller asks for candidate.
// Returning current means the request is refused.
type Guard interface {
	NextState(current Status, candidate Status) Status
}

// GuardFunc adapts a plain function to a Guard.
type GuardFunc func(current Status, candidate Status) Status

func (f GuardFunc) NextState(current Status, candidate Status) Status {
	return f(current, candidate)
}

// StateMachine is the default transition policy: a fixed table of allowed moves.
// Staying in the same state is always allowed.
type StateMachine struct {
	transitions map[Status]map[Status]bool
}

func NewStateMachine() *StateMachine {
	table := map[Status][]Status{
		Received:   {Checking, Waiting, Failed, Killed, Deleted},
		Checking:   {Staging, Waiting, Failed, Killed, Deleted},
		Staging:    {Checking, Waiting, Failed, Killed},
		Waiting:    {Matched, Checking, Failed, Killed, Deleted},
		Matched:    {Running, Waiting, Failed, Killed},
		Running:    {Stalled, Completing, Completed, Done, Failed, Killed},
		Stalled:    {Running, Completing, Done, Failed, Killed},
		Completing: {Completed, Done, Failed, Stalled, Killed},
		Completed:  {Done, Failed},
		Done:       {Deleted},
		Failed:     {Deleted},
		Killed:     {Deleted},
		Deleted:    {},
	}
	transitions := make(map[Status]map[Status]bool, len(table))
	for from, tos := range table {
		allowed := make(map[Status]bool, len(tos))
		for _, to := range tos {
			allowed[to] = true
		}
		transitions[from] = allowed
	}
	return &StateMachine{transitions: transitions}
}

func (sm *StateMachine) NextState(current Status, candidate Status) Status {
	if current == candidate {
		return candidate
	}
	if sm.transitions[current][candidate] {
		return candidate
	}
	return current
}

// Allowed returns the statuses reachable from s in one step, not including s itself.
func (sm *StateMachine) Allowed(s Status) []Status {
	var result []Status
	for _, candidate := range All {
		if sm.transitions[s][candidate] {
			result = append(result, candidate)
		}
	}
	return result
}

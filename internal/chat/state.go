package chat

// State is a step of the orchestration state machine.
//
//	New → Created → MessageAdded → RunStarted → {Polling ⇄ Dispatching}
//	    → Completed → ReplyExtracted
//
// Failed is reachable from every state.
type State int

const (
	StateNew State = iota
	StateCreated
	StateMessageAdded
	StateRunStarted
	StatePolling
	StateDispatching
	StateCompleted
	StateReplyExtracted
	StateFailed
)

var stateNames = [...]string{
	StateNew:            "new",
	StateCreated:        "created",
	StateMessageAdded:   "message_added",
	StateRunStarted:     "run_started",
	StatePolling:        "polling",
	StateDispatching:    "dispatching",
	StateCompleted:      "completed",
	StateReplyExtracted: "reply_extracted",
	StateFailed:         "failed",
}

// String returns the snake_case name of the state.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

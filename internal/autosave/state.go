package autosave

// State is the controller's lifecycle position.
type State int

const (
	StateUninitialized State = iota
	StateHydrating
	StateIdle
	StatePendingUpsert
	StatePendingDelete
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHydrating:
		return "hydrating"
	case StateIdle:
		return "idle"
	case StatePendingUpsert:
		return "pending_upsert"
	case StatePendingDelete:
		return "pending_delete"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

package domain

type WorkerState string

const (
	WorkerNotStarted WorkerState = "not-started"
	WorkerStarting   WorkerState = "starting"
	WorkerReady      WorkerState = "ready"
	WorkerFailed     WorkerState = "failed"
	WorkerStopped    WorkerState = "stopped"
)

func (s WorkerState) String() string {
	return string(s)
}

// NeedsStart reports whether a data request must (re)spawn the worker first.
func (s WorkerState) NeedsStart() bool {
	switch s {
	case WorkerNotStarted, WorkerFailed, WorkerStopped:
		return true
	default:
		return false
	}
}

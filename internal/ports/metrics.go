package ports

import "time"

// Recorder receives orchestrator events for metrics export.
type Recorder interface {
	ToolCall(tool string, outcome string, elapsed time.Duration)
	WorkerStart(err error)
	Turn(backend string)
}

type NopRecorder struct{}

func (NopRecorder) ToolCall(string, string, time.Duration) {}

func (NopRecorder) WorkerStart(error) {}

func (NopRecorder) Turn(string) {}

package medic

import "time"

// Observer receives orchestration measurements.
type Observer interface {
	ObserveRequest(outcome string, iterations int, d time.Duration)
	ObserveToolCall(name ToolName, outcome string, d time.Duration)
	ObserveRetry(attempt int)
}

// NopObserver discards all measurements.
type NopObserver struct{}

func (NopObserver) ObserveRequest(string, int, time.Duration)        {}
func (NopObserver) ObserveToolCall(ToolName, string, time.Duration) {}
func (NopObserver) ObserveRetry(int)                                {}

var _ Observer = NopObserver{}

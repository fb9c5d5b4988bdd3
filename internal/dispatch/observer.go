package dispatch

// Observer receives counters for every send attempt, wait and run result.
// metrics.DispatchMetrics satisfies it.
type Observer interface {
	ObserveSend(sender, status string)
	ObserveRateLimitWait(seconds float64)
	ObserveDelay(phase string, seconds float64)
	ObserveRun(status string)
}

type noopObserver struct{}

func (noopObserver) ObserveSend(string, string)   {}
func (noopObserver) ObserveRateLimitWait(float64) {}
func (noopObserver) ObserveDelay(string, float64) {}
func (noopObserver) ObserveRun(string)            {}

const (
	sendStatusSent        = "sent"
	sendStatusRateLimited = "rate_limited"
	sendStatusFailed      = "failed"
)

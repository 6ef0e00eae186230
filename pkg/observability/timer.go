package observability

import "time"

// Timer measures one operation and reports it as a Timing on Stop.
type Timer struct {
	metrics Metrics
	name    string
	tags    []Tag
	start   time.Time
}

// StartTimer begins timing. A nil Metrics is allowed; Stop then only returns
// the elapsed time.
func StartTimer(m Metrics, name string, tags ...Tag) *Timer {
	return &Timer{metrics: m, name: name, tags: tags, start: time.Now()}
}

// Stop records the elapsed time with the start tags plus any extra ones.
func (t *Timer) Stop(extra ...Tag) time.Duration {
	elapsed := time.Since(t.start)
	if t.metrics != nil {
		t.metrics.Timing(t.name, elapsed, append(append([]Tag(nil), t.tags...), extra...)...)
	}
	return elapsed
}

package reuse

import (
	"sync"
)

// Progress checkpoints, in percent
const (
	ProgressStart        = 0
	ProgressMetadata     = 5
	ProgressCorpus       = 10
	ProgressParsed       = 60
	ProgressComplete     = 100
	progressEventsBuffer = ProgressComplete + 1
)

// ProgressFunc observes progress values between 0 and 100
type ProgressFunc func(value int)

// Reporter forwards progress to a ProgressFunc, keeping values in [0,100],
// never going backwards and never repeating a value
type Reporter struct {
	mu   sync.Mutex
	fn   ProgressFunc
	last int
	sent bool
}

// NewReporter creates a reporter. A nil fn discards every value.
func NewReporter(fn ProgressFunc) *Reporter {
	return &Reporter{fn: fn}
}

// Report emits value if it moves progress forward
func (r *Reporter) Report(value int) {
	value = min(max(value, ProgressStart), ProgressComplete)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent && value <= r.last {
		return
	}
	r.last = value
	r.sent = true

	// called under the lock so observers see values in order
	if r.fn != nil {
		r.fn(value)
	}
}

// Stage reports done/total mapped linearly onto [from,to]. A zero total reports to.
func (r *Reporter) Stage(from, to, done, total int) {
	if total <= 0 {
		r.Report(to)
		return
	}
	r.Report(from + (to-from)*done/total)
}

// Complete reports 100
func (r *Reporter) Complete() {
	r.Report(ProgressComplete)
}

// Last returns the last emitted value
func (r *Reporter) Last() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Fanout calls every non-nil fn in order
func Fanout(fns ...ProgressFunc) ProgressFunc {
	return func(value int) {
		for _, fn := range fns {
			if fn != nil {
				fn(value)
			}
		}
	}
}

package bench

import (
	"log"
	"sync/atomic"
)

// Progress counts completed tasks of one phase and logs at roughly every
// twentieth of the total.
type Progress struct {
	verb    string
	noun    string
	total   int64
	step    int64
	verbose bool
	done    atomic.Int64
}

// NewProgress creates a counter for total tasks. Nothing is logged unless
// verbose is set.
func NewProgress(verb, noun string, total int, verbose bool) *Progress {
	step := int64(total / 20)
	if step < 1 {
		step = 1
	}
	return &Progress{verb: verb, noun: noun, total: int64(total), step: step, verbose: verbose}
}

// Inc records one completed task and returns the new count.
func (p *Progress) Inc() int64 {
	n := p.done.Add(1)
	if p.verbose && (n%p.step == 0 || n == p.total) {
		log.Printf("bench: %s %d/%d %s", p.verb, n, p.total, p.noun)
	}
	return n
}

// Done returns the number of completed tasks.
func (p *Progress) Done() int64 {
	return p.done.Load()
}

// Package progress maps completed pipeline stages to a bounded percentage.
//
// The percentage is floor(100 * completed / total) and never exceeds 99
// until Finish is called, so a poller cannot observe 100% before the output
// exists.
package progress

import (
	"math"
	"sync"
)

// Stage is one weighted unit of pipeline work.
type Stage struct {
	Name   string
	Label  string
	Weight float64
}

// Accumulator tracks completed stage weight for a single job.
type Accumulator struct {
	mu        sync.Mutex
	weights   map[string]float64
	done      map[string]bool
	total     float64
	completed float64
	finished  bool
}

// New creates an accumulator for the ordered stage list. Negative weights
// count as zero.
func New(stages ...Stage) *Accumulator {
	a := &Accumulator{
		weights: make(map[string]float64, len(stages)),
		done:    make(map[string]bool, len(stages)),
	}
	for _, s := range stages {
		w := math.Max(s.Weight, 0)
		a.weights[s.Name] += w
		a.total += w
	}
	return a
}

// Complete marks a stage finished and returns the new percentage. Unknown
// or already completed stages leave the value unchanged.
func (a *Accumulator) Complete(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if w, ok := a.weights[name]; ok && !a.done[name] {
		a.done[name] = true
		a.completed += w
	}
	return a.percentLocked()
}

// Percent returns the current percentage.
func (a *Accumulator) Percent() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.percentLocked()
}

// Finish snaps the percentage to 100. Call only once the output is ready.
func (a *Accumulator) Finish() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finished = true
	return 100
}

func (a *Accumulator) percentLocked() int {
	if a.finished {
		return 100
	}
	if a.total <= 0 {
		return 0
	}
	pct := int(math.Floor(100 * a.completed / a.total))
	if pct > 99 {
		pct = 99
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: stats.go
Description: Campaign statistics for the Choronzon fuzzer. Uses atomic operations
so reporters can read counters while a trial is in flight.
*/

package core

import (
	"sync/atomic"
	"time"
)

// Stats tracks campaign-wide counters.
type Stats struct {
	Trials       int64     `json:"trials"`        // Total trials run
	Admitted     int64     `json:"admitted"`      // Chromosomes admitted to the corpus
	Discarded    int64     `json:"discarded"`     // Trials discarded
	Crashes      int64     `json:"crashes"`       // Fatal terminations observed
	Timeouts     int64     `json:"timeouts"`      // Trials that hit the wall clock
	TracerErrors int64     `json:"tracer_errors"` // Trials lost to tracer failures
	NoOps        int64     `json:"noops"`         // Variation attempts that found no edit
	StartTime    time.Time `json:"start_time"`    // When the campaign started
}

// IncrementTrials atomically increments the trial counter.
func (s *Stats) IncrementTrials() {
	atomic.AddInt64(&s.Trials, 1)
}

// IncrementAdmitted atomically increments the admitted counter.
func (s *Stats) IncrementAdmitted() {
	atomic.AddInt64(&s.Admitted, 1)
}

// IncrementDiscarded atomically increments the discarded counter.
func (s *Stats) IncrementDiscarded() {
	atomic.AddInt64(&s.Discarded, 1)
}

// IncrementCrashes atomically increments the crash counter.
func (s *Stats) IncrementCrashes() {
	atomic.AddInt64(&s.Crashes, 1)
}

// IncrementTimeouts atomically increments the timeout counter.
func (s *Stats) IncrementTimeouts() {
	atomic.AddInt64(&s.Timeouts, 1)
}

// IncrementTracerErrors atomically increments the tracer error counter.
func (s *Stats) IncrementTracerErrors() {
	atomic.AddInt64(&s.TracerErrors, 1)
}

// IncrementNoOps atomically increments the no-op counter.
func (s *Stats) IncrementNoOps() {
	atomic.AddInt64(&s.NoOps, 1)
}

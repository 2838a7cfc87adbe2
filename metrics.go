package fhirvalidator

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks validation performance metrics using lock-free atomic
// operations. All methods are safe for concurrent use.
type Metrics struct {
	// Validation counts
	validationsTotal atomic.Uint64
	validationsValid atomic.Uint64

	// Timing (stored as nanoseconds)
	validationTimeTotal atomic.Uint64
	validationTimeMin   atomic.Uint64
	validationTimeMax   atomic.Uint64

	// Issue counts by severity
	errorsTotal   atomic.Uint64
	warningsTotal atomic.Uint64
	infosTotal    atomic.Uint64

	// Per-pass timing
	phaseTiming sync.Map // map[string]*phaseMetrics
}

// phaseMetrics tracks metrics for a single validation pass.
type phaseMetrics struct {
	invocations atomic.Uint64
	totalTime   atomic.Uint64 // nanoseconds
	issuesFound atomic.Uint64
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	// Initialize min to max uint64 so first value becomes the minimum
	m.validationTimeMin.Store(^uint64(0))
	return m
}

// RecordValidation records a completed validation.
func (m *Metrics) RecordValidation(duration time.Duration, valid bool) {
	m.validationsTotal.Add(1)
	if valid {
		m.validationsValid.Add(1)
	}

	ns := uint64(duration.Nanoseconds())
	m.validationTimeTotal.Add(ns)

	// Update min (CAS loop)
	for {
		old := m.validationTimeMin.Load()
		if ns >= old {
			break
		}
		if m.validationTimeMin.CompareAndSwap(old, ns) {
			break
		}
	}

	// Update max (CAS loop)
	for {
		old := m.validationTimeMax.Load()
		if ns <= old {
			break
		}
		if m.validationTimeMax.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordPhase records a single pass execution.
func (m *Metrics) RecordPhase(name string, duration time.Duration, issues int) {
	v, _ := m.phaseTiming.LoadOrStore(name, &phaseMetrics{})
	pm := v.(*phaseMetrics)
	pm.invocations.Add(1)
	pm.totalTime.Add(uint64(duration.Nanoseconds()))
	pm.issuesFound.Add(uint64(issues))
}

// RecordIssues records issue counts by severity.
func (m *Metrics) RecordIssues(issues []Issue) {
	for _, issue := range issues {
		switch {
		case issue.IsError():
			m.errorsTotal.Add(1)
		case issue.IsWarning():
			m.warningsTotal.Add(1)
		default:
			m.infosTotal.Add(1)
		}
	}
}

// Snapshot holds a point-in-time view of the metrics.
type Snapshot struct {
	ValidationsTotal uint64
	ValidationsValid uint64

	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
	AvgTime   time.Duration

	ErrorsTotal   uint64
	WarningsTotal uint64
	InfosTotal    uint64

	Phases map[string]PhaseSnapshot
}

// PhaseSnapshot holds metrics for a single pass.
type PhaseSnapshot struct {
	Invocations uint64
	TotalTime   time.Duration
	IssuesFound uint64
}

// Snapshot returns a consistent view of the current metrics.
func (m *Metrics) Snapshot() Snapshot {
	total := m.validationsTotal.Load()

	s := Snapshot{
		ValidationsTotal: total,
		ValidationsValid: m.validationsValid.Load(),
		TotalTime:        time.Duration(m.validationTimeTotal.Load()),
		MaxTime:          time.Duration(m.validationTimeMax.Load()),
		ErrorsTotal:      m.errorsTotal.Load(),
		WarningsTotal:    m.warningsTotal.Load(),
		InfosTotal:       m.infosTotal.Load(),
		Phases:           make(map[string]PhaseSnapshot),
	}

	if min := m.validationTimeMin.Load(); min != ^uint64(0) {
		s.MinTime = time.Duration(min)
	}
	if total > 0 {
		s.AvgTime = s.TotalTime / time.Duration(total)
	}

	m.phaseTiming.Range(func(key, value any) bool {
		pm := value.(*phaseMetrics)
		s.Phases[key.(string)] = PhaseSnapshot{
			Invocations: pm.invocations.Load(),
			TotalTime:   time.Duration(pm.totalTime.Load()),
			IssuesFound: pm.issuesFound.Load(),
		}
		return true
	})

	return s
}

// ValidRate returns the fraction of validations that were valid.
func (m *Metrics) ValidRate() float64 {
	total := m.validationsTotal.Load()
	if total == 0 {
		return 0
	}
	return float64(m.validationsValid.Load()) / float64(total)
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.validationsTotal.Store(0)
	m.validationsValid.Store(0)
	m.validationTimeTotal.Store(0)
	m.validationTimeMin.Store(^uint64(0))
	m.validationTimeMax.Store(0)
	m.errorsTotal.Store(0)
	m.warningsTotal.Store(0)
	m.infosTotal.Store(0)
	m.phaseTiming.Range(func(key, _ any) bool {
		m.phaseTiming.Delete(key)
		return true
	})
}

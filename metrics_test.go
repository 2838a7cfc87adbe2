package fhirvalidator

import (
	"sync"
	"testing"
	"time"
)

func TestMetrics_RecordValidation(t *testing.T) {
	m := NewMetrics()

	m.RecordValidation(10*time.Millisecond, true)
	m.RecordValidation(30*time.Millisecond, false)
	m.RecordValidation(20*time.Millisecond, true)

	s := m.Snapshot()

	if s.ValidationsTotal != 3 {
		t.Errorf("ValidationsTotal = %d; want 3", s.ValidationsTotal)
	}
	if s.ValidationsValid != 2 {
		t.Errorf("ValidationsValid = %d; want 2", s.ValidationsValid)
	}
	if s.MinTime != 10*time.Millisecond {
		t.Errorf("MinTime = %v; want 10ms", s.MinTime)
	}
	if s.MaxTime != 30*time.Millisecond {
		t.Errorf("MaxTime = %v; want 30ms", s.MaxTime)
	}
	if s.AvgTime != 20*time.Millisecond {
		t.Errorf("AvgTime = %v; want 20ms", s.AvgTime)
	}
}

func TestMetrics_RecordPhase(t *testing.T) {
	m := NewMetrics()

	m.RecordPhase("cardinality", 5*time.Millisecond, 2)
	m.RecordPhase("cardinality", 3*time.Millisecond, 0)
	m.RecordPhase("bindings", 1*time.Millisecond, 1)

	s := m.Snapshot()

	card, ok := s.Phases["cardinality"]
	if !ok {
		t.Fatal("missing cardinality phase")
	}
	if card.Invocations != 2 {
		t.Errorf("cardinality Invocations = %d; want 2", card.Invocations)
	}
	if card.TotalTime != 8*time.Millisecond {
		t.Errorf("cardinality TotalTime = %v; want 8ms", card.TotalTime)
	}
	if card.IssuesFound != 2 {
		t.Errorf("cardinality IssuesFound = %d; want 2", card.IssuesFound)
	}

	if _, ok := s.Phases["bindings"]; !ok {
		t.Error("missing bindings phase")
	}
}

func TestMetrics_RecordIssues(t *testing.T) {
	m := NewMetrics()

	m.RecordIssues([]Issue{
		Error(IssueTypeValue).Build(),
		Error(IssueTypeRequired).Build(),
		Warning(IssueTypeCodeInvalid).Build(),
		Info(IssueTypeInformational).Build(),
	})

	s := m.Snapshot()

	if s.ErrorsTotal != 2 {
		t.Errorf("ErrorsTotal = %d; want 2", s.ErrorsTotal)
	}
	if s.WarningsTotal != 1 {
		t.Errorf("WarningsTotal = %d; want 1", s.WarningsTotal)
	}
	if s.InfosTotal != 1 {
		t.Errorf("InfosTotal = %d; want 1", s.InfosTotal)
	}
}

func TestMetrics_ValidRate(t *testing.T) {
	m := NewMetrics()

	if got := m.ValidRate(); got != 0 {
		t.Errorf("ValidRate() with no data = %v; want 0", got)
	}

	m.RecordValidation(time.Millisecond, true)
	m.RecordValidation(time.Millisecond, true)
	m.RecordValidation(time.Millisecond, false)
	m.RecordValidation(time.Millisecond, false)

	if got := m.ValidRate(); got != 0.5 {
		t.Errorf("ValidRate() = %v; want 0.5", got)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()
	m.RecordValidation(time.Millisecond, true)
	m.RecordPhase("types", time.Millisecond, 1)
	m.RecordIssues([]Issue{Error(IssueTypeValue).Build()})

	m.Reset()
	s := m.Snapshot()

	if s.ValidationsTotal != 0 {
		t.Errorf("ValidationsTotal after Reset = %d; want 0", s.ValidationsTotal)
	}
	if s.MinTime != 0 {
		t.Errorf("MinTime after Reset = %v; want 0", s.MinTime)
	}
	if s.ErrorsTotal != 0 {
		t.Errorf("ErrorsTotal after Reset = %d; want 0", s.ErrorsTotal)
	}
	if len(s.Phases) != 0 {
		t.Errorf("len(Phases) after Reset = %d; want 0", len(s.Phases))
	}
}

func TestMetrics_Concurrent(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordValidation(time.Millisecond, j%2 == 0)
				m.RecordPhase("cardinality", time.Microsecond, 1)
			}
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	if s.ValidationsTotal != 800 {
		t.Errorf("ValidationsTotal = %d; want 800", s.ValidationsTotal)
	}
	if s.Phases["cardinality"].Invocations != 800 {
		t.Errorf("Invocations = %d; want 800", s.Phases["cardinality"].Invocations)
	}
}

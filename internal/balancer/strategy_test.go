package balancer

import (
	"fmt"
	"testing"
	"time"

	"github.com/Iron-Ham/sessionpool/internal/errors"
)

func makeCandidates(n int) []Candidate {
	cands := make([]Candidate, n)
	for i := range cands {
		cands[i] = Candidate{ID: fmt.Sprintf("inst-%d", i)}
	}
	return cands
}

func TestByName(t *testing.T) {
	for _, name := range AvailableStrategies() {
		s, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q) failed: %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("ByName(%q).Name() = %q", name, s.Name())
		}
	}
}

func TestByName_Unknown(t *testing.T) {
	if _, err := ByName("fastest"); !errors.Is(err, errors.ErrUnknownStrategy) {
		t.Errorf("ByName(unknown) = %v, want ErrUnknownStrategy", err)
	}
}

func TestRoundRobin_CyclesEvenly(t *testing.T) {
	const k = 4
	cands := makeCandidates(k)
	s := NewRoundRobin()

	visits := make(map[string]int)
	var order []string
	for i := 0; i < 3*k; i++ {
		id, ok := s.Select(cands)
		if !ok {
			t.Fatal("Select returned no candidate")
		}
		visits[id]++
		order = append(order, id)
	}

	for _, c := range cands {
		if visits[c.ID] != 3 {
			t.Errorf("instance %s visited %d times, want 3", c.ID, visits[c.ID])
		}
	}
	for i, id := range order {
		if want := cands[i%k].ID; id != want {
			t.Fatalf("selection %d = %s, want %s", i, id, want)
		}
	}
}

func TestRoundRobin_Empty(t *testing.T) {
	if _, ok := NewRoundRobin().Select(nil); ok {
		t.Error("Select on empty candidates returned ok")
	}
}

func TestLeastBusy_PicksMinimum(t *testing.T) {
	cands := []Candidate{
		{ID: "a", ActiveRequests: 2},
		{ID: "b", ActiveRequests: 0},
		{ID: "c", ActiveRequests: 1},
	}
	id, ok := NewLeastBusy().Select(cands)
	if !ok || id != "b" {
		t.Errorf("Select = %q, want b", id)
	}
}

func TestLeastBusy_TieBreaksEarliest(t *testing.T) {
	cands := []Candidate{
		{ID: "a", ActiveRequests: 1},
		{ID: "b", ActiveRequests: 1},
		{ID: "c", ActiveRequests: 1},
	}
	// Candidates arrive in creation order, so the first minimum wins.
	for i := 0; i < 5; i++ {
		id, _ := NewLeastBusy().Select(cands)
		if id != "a" {
			t.Fatalf("Select = %q, want a", id)
		}
	}
}

func TestResponseTime_PicksFastest(t *testing.T) {
	cands := []Candidate{
		{ID: "a", AvgResponseTime: 300 * time.Millisecond, HasStats: true},
		{ID: "b", AvgResponseTime: 100 * time.Millisecond, HasStats: true},
		{ID: "c"},
	}
	id, ok := NewResponseTime().Select(cands)
	if !ok || id != "b" {
		t.Errorf("Select = %q, want b", id)
	}
}

func TestResponseTime_NoStatsFallsBackToFirst(t *testing.T) {
	id, ok := NewResponseTime().Select(makeCandidates(3))
	if !ok || id != "inst-0" {
		t.Errorf("Select = %q, want inst-0", id)
	}
}

func TestRandom_StaysInSet(t *testing.T) {
	cands := makeCandidates(3)
	valid := make(map[string]bool)
	for _, c := range cands {
		valid[c.ID] = true
	}

	s := NewRandom()
	for i := 0; i < 100; i++ {
		id, ok := s.Select(cands)
		if !ok || !valid[id] {
			t.Fatalf("Select = %q, ok=%v", id, ok)
		}
	}
}

func TestWeightedRoundRobin_FavorsFaster(t *testing.T) {
	cands := []Candidate{
		{ID: "slow", AvgResponseTime: 10 * time.Second, HasStats: true},
		{ID: "fast", AvgResponseTime: 100 * time.Millisecond, HasStats: true},
	}

	s := NewWeightedRoundRobin()
	counts := make(map[string]int)
	for i := 0; i < 1000; i++ {
		id, ok := s.Select(cands)
		if !ok {
			t.Fatal("Select returned no candidate")
		}
		counts[id]++
	}

	// fast is weighted 100x over slow; even a loose bound catches an
	// inverted or uniform weighting.
	if counts["fast"] <= counts["slow"]*5 {
		t.Errorf("fast=%d slow=%d, want fast to dominate", counts["fast"], counts["slow"])
	}
}

func TestWeightedRoundRobin_SingleCandidate(t *testing.T) {
	id, ok := NewWeightedRoundRobin().Select(makeCandidates(1))
	if !ok || id != "inst-0" {
		t.Errorf("Select = %q, want inst-0", id)
	}
}

package engine

import (
	"math"
	"testing"

	"nft-acceptance-tester/internal/events"
	"nft-acceptance-tester/internal/model"
	"nft-acceptance-tester/internal/report"
)

func resultsFor(prefix string, codes ...int) events.Results {
	results := make(events.Results)
	for n, c := range codes {
		rc := c
		results[events.ItemKey(prefix, n)] = &events.Result{RC: &rc}
	}
	return results
}

func TestScoreTestcase(t *testing.T) {
	tests := []struct {
		name      string
		allow     bool
		points    int
		codes     []int
		want      float64
		wantCount int
	}{
		{name: "allow partial", allow: true, points: 4, codes: []int{0, 0, 0, 1}, want: 3, wantCount: 4},
		{name: "allow all succeed", allow: true, points: 2, codes: []int{0, 0}, want: 2, wantCount: 2},
		{name: "allow none succeed", allow: true, points: 5, codes: []int{1, 2}, want: 0, wantCount: 2},
		{name: "no attempts", allow: true, points: 3, codes: nil, want: 0, wantCount: 0},
		// Denied flows score every attempt, whatever it returned.
		{name: "deny counts every attempt", allow: false, points: 3, codes: []int{0, 1, 0}, want: 3, wantCount: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := model.Testcase{Name: "testcase_3", Source: "fw", Points: tt.points, Allow: tt.allow}
			attempts, got := scoreTestcase(tc, "fw", resultsFor("fw-testcase_3", tt.codes...))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %v points, got %v", tt.want, got)
			}
			if len(attempts) != tt.wantCount {
				t.Errorf("expected %d attempts, got %d", tt.wantCount, len(attempts))
			}
		})
	}
}

func TestScoreTestcaseStopsAtGap(t *testing.T) {
	results := resultsFor("fw-t", 0, 0)
	rc := 1
	results[events.ItemKey("fw-t", 3)] = &events.Result{RC: &rc}

	attempts, points := scoreTestcase(model.Testcase{Name: "t", Points: 1, Allow: true}, "fw", results)
	if len(attempts) != 2 {
		t.Fatalf("expected probing to stop at the first gap, got %d attempts", len(attempts))
	}
	if points != 1 {
		t.Errorf("expected 1 point, got %v", points)
	}
}

func TestScore(t *testing.T) {
	cfg := testTopology(t)
	cases := []model.Testcase{
		{Name: "testcase_3", Source: "fw", Proto: "tcp", Points: 4, Allow: true},
		{Name: "missing", Source: "client", Proto: "tcp", Points: 2, Allow: true},
	}
	results := resultsFor("fw-testcase_3", 0, 0, 0, 1)

	log := report.NewLog()
	Score(cases, results, cfg, log)

	stats := log.Finalize()
	if len(stats.Criteria) != 2 {
		t.Fatalf("expected 2 criteria, got %d", len(stats.Criteria))
	}
	if got := stats.Criteria[0]["testcase_3"].PointsReached; got != 3 {
		t.Errorf("expected 3 points for testcase_3, got %v", got)
	}
	if got := stats.Criteria[1]["missing"].PointsReached; got != 0 {
		t.Errorf("expected 0 points for missing, got %v", got)
	}
	if stats.General.Tests != 4 {
		t.Errorf("expected 4 tests, got %d", stats.General.Tests)
	}
	if stats.General.PointsPossible != 6 {
		t.Errorf("expected 6 possible points, got %d", stats.General.PointsPossible)
	}
}

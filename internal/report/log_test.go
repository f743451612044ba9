package report

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"nft-acceptance-tester/internal/events"
	"nft-acceptance-tester/internal/model"
)

func rc(v int) *int { return &v }

func testEvents(codes ...int) []TestEvent {
	evs := make([]TestEvent, 0, len(codes))
	for i, c := range codes {
		evs = append(evs, TestEvent{TestNr: i, Result: events.Result{RC: rc(c)}})
	}
	return evs
}

func TestRecordTestOutcome(t *testing.T) {
	l := NewLog()

	first := model.Testcase{Name: "testcase_1", Source: "fw", Points: 4}
	l.RecordTestOutcome(testEvents(0, 0, 0, 1), 3, first)

	second := model.Testcase{Name: "testcase_2", Source: "client", Points: 2}
	l.RecordTestOutcome(testEvents(0, 0), 2, second)

	stats := l.Finalize()
	want := General{Tests: 6, Successful: 5, Failed: 1, PointsReached: 5, PointsPossible: 6, Errors: []string{}}
	if !reflect.DeepEqual(stats.General, want) {
		t.Errorf("expected %+v, got %+v", want, stats.General)
	}

	if len(stats.Criteria) != 2 {
		t.Fatalf("expected 2 criteria, got %d", len(stats.Criteria))
	}
	if got := stats.Criteria[0]["testcase_1"]; got != (Criterion{PointsReached: 3, PointsPossible: 4}) {
		t.Errorf("unexpected criterion for testcase_1: %+v", got)
	}
	if got := stats.Criteria[1]["testcase_2"]; got != (Criterion{PointsReached: 2, PointsPossible: 2}) {
		t.Errorf("unexpected criterion for testcase_2: %+v", got)
	}

	items, ok := l.protocol["testcase_2"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 trace entries for testcase_2, got %v", l.protocol["testcase_2"])
	}
	ev := items[1].(TestEvent)
	if ev.TestNr != 5 {
		t.Errorf("expected test numbers to continue across testcases, got %d", ev.TestNr)
	}
	if ev.Machine != "client" {
		t.Errorf("expected executing machine client, got %q", ev.Machine)
	}
}

func TestRecordTestOutcomeNoEvents(t *testing.T) {
	l := NewLog()
	l.RecordTestOutcome(nil, 0, model.Testcase{Name: "empty", Source: "fw", Points: 1})

	g := l.Finalize().General
	if g.Tests != 0 || g.PointsPossible != 1 || g.Successful != 0 || g.Failed != 0 {
		t.Errorf("unexpected statistics %+v", g)
	}
}

func TestRecordError(t *testing.T) {
	l := NewLog()
	l.RecordError(ErrorDescriptor{Tag: "Firewall setup", Messages: []string{"Fatal: fw unreachable"}, Err: errors.New("first")})
	l.RecordError(ErrorDescriptor{Tag: "Firewall setup", Messages: []string{"again"}, Err: errors.New("second")})
	l.RecordError(ErrorDescriptor{Tag: "setup-fw", Messages: []string{"Fatal failure setting up fw"}, Payload: &events.Result{RC: rc(1)}})

	want := []string{"Fatal: fw unreachable", "again", "Fatal failure setting up fw"}
	if got := l.Finalize().General.Errors; !reflect.DeepEqual(got, want) {
		t.Errorf("expected errors %v, got %v", want, got)
	}
	if got := l.protocol["Firewall setup"]; got != "first" {
		t.Errorf("expected first error to be kept, got %v", got)
	}
	if got, ok := l.protocol["setup-fw"].(*events.Result); !ok || *got.RC != 1 {
		t.Errorf("expected payload to be stored, got %v", l.protocol["setup-fw"])
	}
}

func TestFromFatal(t *testing.T) {
	err := model.Fatal("Testsetup", model.ErrInvalidProtocol, "Error while creating tests")
	fe, ok := model.AsFatal(err)
	if !ok {
		t.Fatalf("expected a fatal error")
	}

	d := FromFatal(fe)
	if d.Tag != "Testsetup" {
		t.Errorf("expected tag Testsetup, got %q", d.Tag)
	}
	if !reflect.DeepEqual(d.Messages, []string{"Error while creating tests"}) {
		t.Errorf("unexpected messages %v", d.Messages)
	}
	if !errors.Is(d.Err, model.ErrInvalidProtocol) {
		t.Errorf("expected ErrInvalidProtocol, got %v", d.Err)
	}
}

func TestFinalizeDoesNotReset(t *testing.T) {
	l := NewLog()
	l.RecordTestOutcome(testEvents(0), 1, model.Testcase{Name: "a", Source: "fw", Points: 1})

	first := l.Finalize()
	second := l.Finalize()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected repeated snapshots to match: %+v vs %+v", first, second)
	}

	first.General.Errors = append(first.General.Errors, "mutated")
	if errs := l.Finalize().General.Errors; len(errs) != 0 {
		t.Errorf("expected snapshot to be a copy, got %v", errs)
	}
}

func TestRecordEvents(t *testing.T) {
	l := NewLog()
	l.RecordEvents("setup-fw", &events.Result{RC: rc(0), Path: "/etc/nftables.conf"})
	l.RecordEvents("setup-fw", &events.Result{RC: rc(0)})

	if trace, ok := l.protocol["setup-fw"].([]any); !ok || len(trace) != 2 {
		t.Errorf("expected 2 setup events, got %v", l.protocol["setup-fw"])
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	l := NewLog()
	l.now = func() time.Time { return time.Date(2024, 3, 7, 9, 5, 1, 0, time.UTC) }

	l.RecordTestOutcome(testEvents(0, 1), 1, model.Testcase{Name: "testcase_1", Source: "fw", Points: 2})
	l.RecordError(ErrorDescriptor{Tag: "Testsetup", Messages: []string{"Error while creating tests"}})

	paths := l.ResolvePaths(dir, "", "")
	if want := filepath.Join(dir, "ant-results-07-03-2024-09-05-01.yml"); paths.Results != want {
		t.Errorf("expected results path %s, got %s", want, paths.Results)
	}
	if want := filepath.Join(dir, "ant-protocol-07-03-2024-09-05-01.yml"); paths.Protocol != want {
		t.Errorf("expected protocol path %s, got %s", want, paths.Protocol)
	}

	general, err := l.Write(paths)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if general.Tests != 2 {
		t.Errorf("expected 2 tests, got %d", general.Tests)
	}

	var results map[string]any
	readYAML(t, paths.Results, &results)
	gen := results["General"].(map[string]any)
	if gen["Tests"] != 2 || gen["Points possible"] != 2 {
		t.Errorf("unexpected General section %v", gen)
	}
	if !reflect.DeepEqual(gen["Errors"], []any{"Error while creating tests"}) {
		t.Errorf("unexpected errors %v", gen["Errors"])
	}

	var protocol map[string]any
	readYAML(t, paths.Protocol, &protocol)
	trace := protocol["testcase_1"].([]any)
	if len(trace) != 2 {
		t.Fatalf("expected 2 trace entries, got %d", len(trace))
	}
	entry := trace[1].(map[string]any)
	if entry["TestNr"] != 1 || entry["Executing Machine"] != "fw" || entry["rc"] != 1 {
		t.Errorf("unexpected trace entry %v", entry)
	}
}

func readYAML(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		t.Fatalf("failed to decode %s: %v", path, err)
	}
}

func TestResolvePathsExplicit(t *testing.T) {
	l := NewLog()
	paths := l.ResolvePaths("/out", "/tmp/r.yml", "")
	if paths.Results != "/tmp/r.yml" {
		t.Errorf("expected explicit results path, got %s", paths.Results)
	}
	if !strings.HasPrefix(paths.Protocol, "/out/ant-protocol-") {
		t.Errorf("expected timestamped protocol path, got %s", paths.Protocol)
	}
}

func TestWriteFailsOnMissingDirectory(t *testing.T) {
	l := NewLog()
	_, err := l.Write(Paths{
		Results:  filepath.Join(t.TempDir(), "missing", "r.yml"),
		Protocol: filepath.Join(t.TempDir(), "p.yml"),
	})
	if err == nil {
		t.Errorf("expected error for missing directory")
	}
}

func TestGeneralSummary(t *testing.T) {
	g := General{Tests: 4, Successful: 3, Failed: 1, PointsReached: 3, PointsPossible: 4, Errors: []string{}}
	lines := g.Summary()
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %v", lines)
	}
	if lines[0] != "Tests: 4" || lines[3] != "Points reached: 3" {
		t.Errorf("unexpected summary %v", lines)
	}
}

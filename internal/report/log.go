package report

import (
	"fmt"
	"log/slog"
	"time"

	"nft-acceptance-tester/internal/events"
	"nft-acceptance-tester/internal/model"
)

// ErrorDescriptor is a tagged error kept in the report.
type ErrorDescriptor struct {
	Tag      string
	Messages []string
	Err      error
	Payload  any
}

// FromFatal converts a fatal run error into a descriptor.
func FromFatal(fe *model.FatalError) ErrorDescriptor {
	return ErrorDescriptor{Tag: fe.Tag, Messages: fe.Messages, Err: fe.Err, Payload: fe.Payload}
}

// TestEvent is one scored invocation as it appears in the protocol.
type TestEvent struct {
	TestNr        int    `yaml:"TestNr"`
	Machine       string `yaml:"Executing Machine"`
	events.Result `yaml:",inline"`
}

type General struct {
	Tests          int      `yaml:"Tests"`
	Successful     float64  `yaml:"Successful"`
	Failed         float64  `yaml:"Failed"`
	PointsReached  float64  `yaml:"Points reached"`
	PointsPossible int      `yaml:"Points possible"`
	Errors         []string `yaml:"Errors"`
}

// Summary renders the statistics one per line.
func (g General) Summary() []string {
	return []string{
		fmt.Sprintf("Tests: %d", g.Tests),
		fmt.Sprintf("Successful: %v", g.Successful),
		fmt.Sprintf("Failed: %v", g.Failed),
		fmt.Sprintf("Points reached: %v", g.PointsReached),
		fmt.Sprintf("Points possible: %d", g.PointsPossible),
		fmt.Sprintf("Errors: %v", g.Errors),
	}
}

type Criterion struct {
	PointsReached  float64 `yaml:"Points reached"`
	PointsPossible int     `yaml:"Points possible"`
}

// AggregateStats is the content of the results file.
type AggregateStats struct {
	General  General                `yaml:"General"`
	Criteria []map[string]Criterion `yaml:"Criteria"`
}

// Log accumulates the protocol trace and the aggregate statistics of a run.
// It is not safe for concurrent use.
type Log struct {
	protocol map[string]any
	stats    AggregateStats

	now func() time.Time
}

func NewLog() *Log {
	return &Log{
		protocol: make(map[string]any),
		stats: AggregateStats{
			General:  General{Errors: []string{}},
			Criteria: []map[string]Criterion{},
		},
		now: time.Now,
	}
}

// RecordError adds the messages to the aggregate error list and stores the
// first error of each tag in the protocol.
func (l *Log) RecordError(d ErrorDescriptor) {
	l.stats.General.Errors = append(l.stats.General.Errors, d.Messages...)
	if _, ok := l.protocol[d.Tag]; ok {
		return
	}
	payload := d.Payload
	switch {
	case payload != nil:
	case d.Err != nil:
		payload = d.Err.Error()
	default:
		payload = d.Messages
	}
	l.protocol[d.Tag] = payload
	slog.Debug("Recorded error", "tag", d.Tag, "messages", d.Messages)
}

// RecordEvents appends raw results to the trace of host.
func (l *Log) RecordEvents(host string, results ...*events.Result) {
	items := make([]any, 0, len(results))
	for _, r := range results {
		items = append(items, r)
	}
	l.appendTrace(host, items...)
}

// RecordTestOutcome stamps the events of one testcase with the executing
// machine and a run-wide test number, then updates the statistics.
func (l *Log) RecordTestOutcome(evs []TestEvent, points float64, tc model.Testcase) {
	offset := l.stats.General.Tests
	items := make([]any, 0, len(evs))
	for _, ev := range evs {
		if ev.Machine == "" {
			ev.Machine = tc.Source
		}
		ev.TestNr += offset
		items = append(items, ev)
	}
	l.appendTrace(tc.Name, items...)

	l.stats.Criteria = append(l.stats.Criteria, map[string]Criterion{
		tc.Name: {PointsReached: points, PointsPossible: tc.Points},
	})

	n := float64(len(evs))
	ratio := 0.0
	if tc.Points != 0 {
		ratio = points / float64(tc.Points)
	}
	g := &l.stats.General
	g.PointsReached += points
	g.PointsPossible += tc.Points
	g.Successful += ratio * n
	g.Failed += n - ratio*n
	g.Tests += len(evs)
}

// Finalize returns a snapshot of the statistics. The log stays usable.
func (l *Log) Finalize() AggregateStats {
	snap := l.stats
	snap.General.Errors = append([]string{}, l.stats.General.Errors...)
	snap.Criteria = append([]map[string]Criterion{}, l.stats.Criteria...)
	return snap
}

func (l *Log) appendTrace(key string, items ...any) {
	trace, _ := l.protocol[key].([]any)
	l.protocol[key] = append(trace, items...)
}

package engine

import (
	"log/slog"

	"nft-acceptance-tester/internal/events"
	"nft-acceptance-tester/internal/model"
	"nft-acceptance-tester/internal/report"
)

// Score correlates the normalized results with the testcases and records one
// outcome per testcase in log.
//
// The attempts of a testcase are the results <machine>-<testcase>-0, -1, ...
// up to the first missing key. An attempt of an allowed flow succeeds when it
// returned zero. An attempt of a denied flow always counts as a success.
func Score(cases []model.Testcase, results events.Results, cfg *model.NetworkConfiguration, log *report.Log) {
	for i := range cases {
		tc := cases[i]
		host := tc.Source
		if m, ok := cfg.Machines[tc.Source]; ok {
			host = m.Name
		}

		attempts, points := scoreTestcase(tc, host, results)
		failed := 0
		for j := range attempts {
			if attempts[j].Failed() {
				failed++
			}
		}
		slog.Debug("Scored testcase", "testcase", tc.Name, "attempts", len(attempts), "failed", failed, "points", points)
		log.RecordTestOutcome(attempts, points, tc)
	}
}

func scoreTestcase(tc model.Testcase, host string, results events.Results) ([]report.TestEvent, float64) {
	var attempts []report.TestEvent
	hits := 0

	prefix := model.HostKey(host, tc.Name)
	for n := 0; ; n++ {
		res, ok := results[events.ItemKey(prefix, n)]
		if !ok {
			break
		}
		attempts = append(attempts, report.TestEvent{TestNr: n, Result: *res})
		if !tc.Allow || res.Succeeded() {
			hits++
		}
	}

	if len(attempts) == 0 {
		return nil, 0
	}
	return attempts, float64(hits) / float64(len(attempts)) * float64(tc.Points)
}

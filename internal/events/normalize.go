package events

// Normalize folds a raw event stream of one playbook run into results keyed
// by invocation.
//
// Item results of a host get the keys <host>-0, <host>-1, ... in stream
// order. Setup events of a host are merged under setup-<host>; a field
// written once keeps its value, except that unreachable events replace
// everything but the timestamps.
func Normalize(stream [][]byte, playbook string) Results {
	n := &normalizer{
		results:  make(Results),
		written:  make(map[string]fieldSet),
		counters: make(map[string]int),
	}
	for _, raw := range stream {
		n.apply(Decode(raw, playbook))
	}
	return n.results
}

type normalizer struct {
	results  Results
	written  map[string]fieldSet
	counters map[string]int
}

func (n *normalizer) apply(ev Event) {
	switch ev.Kind {
	case KindItemResult:
		key := ItemKey(ev.Host, n.counters[ev.Host])
		n.counters[ev.Host]++
		r := ev.Result
		n.results[key] = &r
		n.written[key] = ev.set

	case KindSetupCopy, KindSetupCommand, KindSetupFailed:
		key := SetupKey(ev.Host)
		dst := n.slot(key)
		n.written[key] = mergeFirstWins(dst, n.written[key], &ev.Result, ev.set)

	case KindSetupUnreachable:
		key := SetupKey(ev.Host)
		dst := n.slot(key)
		set := mergeFirstWins(dst, n.written[key], &ev.Result, ev.set)
		if ev.Overwrite != nil {
			set = mergeOverwrite(dst, set, ev.Overwrite, ev.overwriteSet)
		}
		n.written[key] = set
	}
}

func (n *normalizer) slot(key string) *Result {
	r, ok := n.results[key]
	if !ok {
		r = &Result{}
		n.results[key] = r
	}
	return r
}

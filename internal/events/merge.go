package events

// field identifies one Result field for merging.
type field uint32

const (
	fStdoutLines field = 1 << iota
	fStderrLines
	fStdout
	fStderr
	fRC
	fStart
	fEnd
	fDelta
	fMsg
	fCmd
	fUnreachable
	fPath
	fChanged
	fSize
	fUploadStart
	fUploadEnd
	fChecksum
	fLoadRulesStart
	fLoadRulesEnd
)

// fieldSet records which fields of a Result have been written.
type fieldSet uint32

func (s fieldSet) has(f field) bool { return s&fieldSet(f) != 0 }

func (s *fieldSet) add(f field) { *s |= fieldSet(f) }

var copiers = []struct {
	f    field
	copy func(dst, src *Result)
}{
	{fStdoutLines, func(d, s *Result) { d.StdoutLines = s.StdoutLines }},
	{fStderrLines, func(d, s *Result) { d.StderrLines = s.StderrLines }},
	{fStdout, func(d, s *Result) { d.Stdout = s.Stdout }},
	{fStderr, func(d, s *Result) { d.Stderr = s.Stderr }},
	{fRC, func(d, s *Result) { d.RC = s.RC }},
	{fStart, func(d, s *Result) { d.Start = s.Start }},
	{fEnd, func(d, s *Result) { d.End = s.End }},
	{fDelta, func(d, s *Result) { d.Delta = s.Delta }},
	{fMsg, func(d, s *Result) { d.Msg = s.Msg }},
	{fCmd, func(d, s *Result) { d.Cmd = s.Cmd }},
	{fUnreachable, func(d, s *Result) { d.Unreachable = s.Unreachable }},
	{fPath, func(d, s *Result) { d.Path = s.Path }},
	{fChanged, func(d, s *Result) { d.Changed = s.Changed }},
	{fSize, func(d, s *Result) { d.Size = s.Size }},
	{fUploadStart, func(d, s *Result) { d.UploadStart = s.UploadStart }},
	{fUploadEnd, func(d, s *Result) { d.UploadEnd = s.UploadEnd }},
	{fChecksum, func(d, s *Result) { d.Checksum = s.Checksum }},
	{fLoadRulesStart, func(d, s *Result) { d.LoadRulesStart = s.LoadRulesStart }},
	{fLoadRulesEnd, func(d, s *Result) { d.LoadRulesEnd = s.LoadRulesEnd }},
}

// mergeFirstWins copies the fields in srcSet from src into dst unless dst
// already holds them. It returns the updated set of dst.
func mergeFirstWins(dst *Result, dstSet fieldSet, src *Result, srcSet fieldSet) fieldSet {
	for _, c := range copiers {
		if srcSet.has(c.f) && !dstSet.has(c.f) {
			c.copy(dst, src)
			dstSet.add(c.f)
		}
	}
	return dstSet
}

// mergeOverwrite copies the fields in srcSet and all extras from src into
// dst, replacing what dst holds.
func mergeOverwrite(dst *Result, dstSet fieldSet, src *Result, srcSet fieldSet) fieldSet {
	for _, c := range copiers {
		if srcSet.has(c.f) {
			c.copy(dst, src)
			dstSet.add(c.f)
		}
	}
	for k, v := range src.Extra {
		if dst.Extra == nil {
			dst.Extra = make(map[string]any)
		}
		dst.Extra[k] = v
	}
	return dstSet
}

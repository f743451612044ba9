package events

import "fmt"

// Result is the normalized outcome of one engine invocation on one host.
type Result struct {
	StdoutLines []string `yaml:"stdout_lines,omitempty"`
	StderrLines []string `yaml:"stderr_lines,omitempty"`
	Stdout      string   `yaml:"stdout,omitempty"`
	Stderr      string   `yaml:"stderr,omitempty"`
	RC          *int     `yaml:"rc,omitempty"`
	Start       string   `yaml:"start,omitempty"`
	End         string   `yaml:"end,omitempty"`
	Delta       string   `yaml:"delta,omitempty"`
	Msg         string   `yaml:"msg,omitempty"`
	Cmd         string   `yaml:"cmd,omitempty"`
	Unreachable bool     `yaml:"unreachable"`

	// Filled from the setup playbook only.
	Path           string `yaml:"path,omitempty"`
	Changed        *bool  `yaml:"changed,omitempty"`
	Size           *int64 `yaml:"size,omitempty"`
	UploadStart    string `yaml:"upload_start,omitempty"`
	UploadEnd      string `yaml:"upload_end,omitempty"`
	Checksum       string `yaml:"checksum,omitempty"`
	LoadRulesStart string `yaml:"load_rules_start,omitempty"`
	LoadRulesEnd   string `yaml:"load_rules_end,omitempty"`

	// Extra holds result fields of unreachable events that have no typed field.
	Extra map[string]any `yaml:",inline"`
}

// Succeeded reports whether the invocation returned code zero.
func (r *Result) Succeeded() bool {
	return r.RC != nil && *r.RC == 0
}

// Failed reports whether the invocation returned a nonzero code.
func (r *Result) Failed() bool {
	return r.RC != nil && *r.RC != 0
}

// Results maps invocation keys to normalized results.
type Results map[string]*Result

// ItemKey is the key of the n-th item result of a host.
func ItemKey(host string, n int) string {
	return fmt.Sprintf("%s-%d", host, n)
}

// SetupKey is the key of the setup result of a host.
func SetupKey(host string) string {
	return "setup-" + host
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func int64Ptr(v int64) *int64 { return &v }

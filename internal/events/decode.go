package events

import (
	"strings"

	"github.com/tidwall/gjson"
)

// SetupPlaybook is the playbook that uploads and loads the rule sets.
const SetupPlaybook = "setup.yml"

const (
	EventItemOK          = "runner_item_on_ok"
	EventItemFailed      = "runner_item_on_failed"
	EventTaskOK          = "runner_on_ok"
	EventTaskUnreachable = "runner_on_unreachable"
	EventTaskFailed      = "runner_on_failed"

	ActionCopy    = "ansible.builtin.copy"
	ActionCommand = "ansible.builtin.command"
)

var actionAliases = map[string]string{
	"copy":                   ActionCopy,
	"ansible.legacy.copy":    ActionCopy,
	"command":                ActionCommand,
	"ansible.legacy.command": ActionCommand,
}

// Kind classifies an engine event.
type Kind int

const (
	KindIgnored Kind = iota
	KindItemResult
	KindSetupCopy
	KindSetupCommand
	KindSetupUnreachable
	KindSetupFailed
)

func (k Kind) String() string {
	switch k {
	case KindItemResult:
		return "item-result"
	case KindSetupCopy:
		return "setup-copy"
	case KindSetupCommand:
		return "setup-command"
	case KindSetupUnreachable:
		return "setup-unreachable"
	case KindSetupFailed:
		return "setup-failed"
	}
	return "ignored"
}

// Event is one decoded engine event.
type Event struct {
	Kind   Kind
	Host   string
	Result Result
	set    fieldSet

	// Overwrite holds fields replacing anything already recorded.
	Overwrite    *Result
	overwriteSet fieldSet
}

type decodeKey struct {
	event  string
	action string
}

type decoder func(ev *Event, data gjson.Result)

var setupDecoders = map[decodeKey]decoder{
	{EventTaskOK, ActionCopy}:    decodeCopy,
	{EventTaskOK, ActionCommand}: decodeCommand,
	{EventTaskUnreachable, ""}:   decodeUnreachable,
	{EventTaskFailed, ""}:        decodeFailed,
}

// Decode classifies a raw JSON event of the named playbook.
func Decode(raw []byte, playbook string) Event {
	root := gjson.ParseBytes(raw)
	name := root.Get("event").String()
	data := root.Get("event_data")

	ev := Event{Host: data.Get("host").String()}
	if ev.Host == "" {
		return Event{Kind: KindIgnored}
	}

	switch name {
	case EventItemOK, EventItemFailed:
		ev.Kind = KindItemResult
		decodeItem(&ev, data)
		return ev
	}

	if playbook != SetupPlaybook {
		return Event{Kind: KindIgnored}
	}

	action := data.Get("task_action").String()
	if alias, ok := actionAliases[action]; ok {
		action = alias
	}
	dec, ok := setupDecoders[decodeKey{name, action}]
	if !ok {
		dec, ok = setupDecoders[decodeKey{name, ""}]
	}
	if !ok {
		return Event{Kind: KindIgnored}
	}
	dec(&ev, data)
	return ev
}

func decodeItem(ev *Event, data gjson.Result) {
	res := data.Get("res")
	r := &ev.Result

	r.StdoutLines = stringList(res.Get("stdout_lines"))
	r.StderrLines = stringList(res.Get("stderr_lines"))
	if rc := res.Get("rc"); rc.Exists() && rc.Type == gjson.Number {
		r.RC = intPtr(int(rc.Int()))
	}
	r.Start = res.Get("start").String()
	r.End = res.Get("end").String()
	r.Delta = res.Get("delta").String()
	r.Msg = res.Get("msg").String()
	r.Cmd = joinCmd(res.Get("cmd"))
	r.Unreachable = res.Get("unreachable").Bool()

	ev.set = fieldSet(fStdoutLines | fStderrLines | fRC | fStart | fEnd | fDelta | fMsg | fCmd | fUnreachable)
}

func decodeCopy(ev *Event, data gjson.Result) {
	ev.Kind = KindSetupCopy
	res := data.Get("res")
	r := &ev.Result

	r.Path = res.Get("path").String()
	r.Changed = boolPtr(res.Get("changed").Bool())
	r.Size = int64Ptr(res.Get("size").Int())
	r.UploadStart = data.Get("start").String()
	r.UploadEnd = data.Get("end").String()
	r.Checksum = res.Get("checksum").String()
	r.Unreachable = false

	ev.set = fieldSet(fPath | fChanged | fSize | fUploadStart | fUploadEnd | fChecksum | fUnreachable)
}

func decodeCommand(ev *Event, data gjson.Result) {
	ev.Kind = KindSetupCommand
	res := data.Get("res")
	r := &ev.Result

	r.Stdout = res.Get("stdout").String()
	r.Stderr = res.Get("stderr").String()
	r.RC = intPtr(intOr(res.Get("rc"), 1))
	r.Msg = res.Get("msg").String()
	r.Cmd = joinCmd(res.Get("cmd"))
	r.LoadRulesStart = res.Get("start").String()
	r.LoadRulesEnd = res.Get("end").String()
	r.Unreachable = false

	ev.set = fieldSet(fStdout | fStderr | fRC | fMsg | fCmd | fLoadRulesStart | fLoadRulesEnd | fUnreachable)
}

func decodeUnreachable(ev *Event, data gjson.Result) {
	ev.Kind = KindSetupUnreachable
	ev.Result.Start = data.Get("start").String()
	ev.Result.End = data.Get("end").String()
	ev.set = fieldSet(fStart | fEnd)

	ev.Overwrite, ev.overwriteSet = decodeVerbatim(data.Get("res"))
}

func decodeFailed(ev *Event, data gjson.Result) {
	ev.Kind = KindSetupFailed
	res := data.Get("res")
	r := &ev.Result

	r.Start = data.Get("start").String()
	r.End = data.Get("end").String()
	rc := res.Get("rc")
	if !rc.Exists() {
		rc = data.Get("rc")
	}
	// A failed task never counts as a successful setup, whatever rc it reports.
	code := intOr(rc, 1)
	if code == 0 {
		code = 1
	}
	r.RC = intPtr(code)
	r.Msg = res.Get("msg").String()
	r.Unreachable = false

	ev.set = fieldSet(fStart | fEnd | fRC | fMsg | fUnreachable)
}

// decodeVerbatim maps every key of res onto a Result, keeping unknown keys
// in Extra.
func decodeVerbatim(res gjson.Result) (*Result, fieldSet) {
	r := &Result{}
	var set fieldSet
	res.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "stdout_lines":
			r.StdoutLines = stringList(value)
			set.add(fStdoutLines)
		case "stderr_lines":
			r.StderrLines = stringList(value)
			set.add(fStderrLines)
		case "stdout":
			r.Stdout = value.String()
			set.add(fStdout)
		case "stderr":
			r.Stderr = value.String()
			set.add(fStderr)
		case "rc":
			r.RC = intPtr(int(value.Int()))
			set.add(fRC)
		case "start":
			r.Start = value.String()
			set.add(fStart)
		case "end":
			r.End = value.String()
			set.add(fEnd)
		case "delta":
			r.Delta = value.String()
			set.add(fDelta)
		case "msg":
			r.Msg = value.String()
			set.add(fMsg)
		case "cmd":
			r.Cmd = joinCmd(value)
			set.add(fCmd)
		case "unreachable":
			r.Unreachable = value.Bool()
			set.add(fUnreachable)
		case "changed":
			r.Changed = boolPtr(value.Bool())
			set.add(fChanged)
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]any)
			}
			r.Extra[key.String()] = value.Value()
		}
		return true
	})
	return r, set
}

func stringList(v gjson.Result) []string {
	if !v.IsArray() {
		return nil
	}
	arr := v.Array()
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		out = append(out, item.String())
	}
	return out
}

func joinCmd(v gjson.Result) string {
	if v.IsArray() {
		return strings.Join(stringList(v), " ")
	}
	return v.String()
}

func intOr(v gjson.Result, fallback int) int {
	if v.Type != gjson.Number {
		return fallback
	}
	return int(v.Int())
}

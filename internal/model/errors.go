package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDestination   = errors.New("invalid destination")
	ErrEmptyNetworkMatch    = errors.New("empty network match")
	ErrInvalidProtocol      = errors.New("invalid protocol")
	ErrTimeout              = errors.New("playbook timed out")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrMixedAddressFamily   = errors.New("mixed address families")
	ErrMissingTopologyData  = errors.New("missing topology data")
	ErrUnknownMachine       = errors.New("unknown machine")
	ErrFieldNotFound        = errors.New("testcase field not found")
	ErrHostUnreachable      = errors.New("host unreachable")
	ErrSetupFailed          = errors.New("firewall setup failed")
	ErrInvalidScript        = errors.New("invalid nftables script")
)

// detailError carries a human readable message while matching its sentinel with errors.Is.
type detailError struct {
	kind error
	msg  string
}

func (e *detailError) Error() string { return e.msg }
func (e *detailError) Unwrap() error { return e.kind }

// Errorf formats a message and tags it with the sentinel kind.
func Errorf(kind error, format string, args ...any) error {
	return &detailError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// FatalError aborts the whole run. Tag names the failing subsystem in the report.
// Payload, when set, replaces Err in the report trace.
type FatalError struct {
	Tag      string
	Messages []string
	Err      error
	Payload  any
}

func (e *FatalError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("%s: %s: %v", e.Tag, e.Messages[0], e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Tag, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func Fatal(tag string, err error, messages ...string) error {
	return &FatalError{Tag: tag, Messages: messages, Err: err}
}

// AsFatal returns the FatalError in err's chain, if any.
func AsFatal(err error) (*FatalError, bool) {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

package nft

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

const DefaultBin = "nft"

// permissionNoise is reported by a dry run without CAP_NET_ADMIN and says
// nothing about the script.
const permissionNoise = "Error: Could not process rule: Operation not permitted\n"

var errorLine = regexp.MustCompile(`Error:.*\n`)

// Diagnostics describes a script that failed validation.
type Diagnostics struct {
	Errors []string
	Output string
}

type Validator struct {
	Bin string
}

func NewValidator(bin string) *Validator {
	if bin == "" {
		bin = DefaultBin
	}
	return &Validator{Bin: bin}
}

// Validate dry-runs the script at path. It returns nil diagnostics for a
// valid script and an error only when nft itself could not be run.
func (v *Validator) Validate(ctx context.Context, path string) (*Diagnostics, error) {
	cmd := exec.CommandContext(ctx, v.Bin, "--check", "-f", path)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("'%s' execution failed: %w", cmd, err)
		}
	}
	return ParseDiagnostics(out.String()), nil
}

// ParseDiagnostics extracts the syntax errors from nft output.
func ParseDiagnostics(output string) *Diagnostics {
	text := output
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	var errs []string
	for _, m := range errorLine.FindAllString(text, -1) {
		if m == permissionNoise {
			continue
		}
		errs = append(errs, m)
	}
	if len(errs) == 0 {
		return nil
	}
	return &Diagnostics{Errors: errs, Output: output}
}

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"nft-acceptance-tester/internal/model"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultBin     = "ansible-runner"
	DefaultDir     = "ansible_runner"

	artifactsDir = "artifacts"
	lockFile     = ".ant.lock"

	StatusSuccessful = "successful"
	StatusFailed     = "failed"
	StatusTimeout    = "timeout"
)

// ErrBusy is returned when another invocation holds the private directory.
var ErrBusy = errors.New("ansible-runner private directory is in use")

type Config struct {
	Bin        string
	PrivateDir string
	Timeout    time.Duration
}

// Runner drives ansible-runner against one private data directory.
type Runner struct {
	bin     string
	dir     string
	timeout time.Duration

	newIdent func() string
}

func New(cfg Config) *Runner {
	r := &Runner{
		bin:      cfg.Bin,
		dir:      cfg.PrivateDir,
		timeout:  cfg.Timeout,
		newIdent: uuid.NewString,
	}
	if r.bin == "" {
		r.bin = DefaultBin
	}
	if r.dir == "" {
		r.dir = DefaultDir
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	return r
}

// Dir returns the private data directory.
func (r *Runner) Dir() string {
	return r.dir
}

// Run is the outcome of one playbook invocation.
type Run struct {
	Ident    string
	Playbook string
	Status   string
	RC       int
	// Events holds the raw job events ordered by their counter.
	Events [][]byte
}

// Run executes playbook and collects its event stream. The artifacts
// directory is removed afterwards; a missing directory is reported as an
// error.
func (r *Runner) Run(ctx context.Context, playbook string) (*Run, error) {
	lock := flock.New(filepath.Join(r.dir, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", r.dir, err)
	}
	if !ok {
		return nil, ErrBusy
	}
	defer lock.Close()

	ident := r.newIdent()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.bin, "run", r.dir, "-p", playbook, "--ident", ident, "-q")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	killProcessGroup(cmd)

	slog.Debug("Running playbook", "playbook", playbook, "ident", ident)
	start := time.Now()
	runErr := cmd.Run()
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)

	run := &Run{Ident: ident, Playbook: playbook}
	var collectErr error
	if !timedOut {
		collectErr = r.collect(run)
	}
	cleanErr := r.cleanup()

	if timedOut || run.Status == StatusTimeout {
		if cleanErr != nil {
			slog.Warn("Cleanup after timeout failed", "error", cleanErr)
		}
		return nil, fmt.Errorf("ansible playbook %s timed out: %w", playbook, model.ErrTimeout)
	}
	if collectErr != nil {
		if runErr != nil {
			return nil, fmt.Errorf("ansible-runner failed: %v: %s: %w", runErr, strings.TrimSpace(stderr.String()), collectErr)
		}
		return nil, collectErr
	}
	if cleanErr != nil {
		return nil, cleanErr
	}

	slog.Info("Playbook finished", "playbook", playbook, "status", run.Status, "rc", run.RC, "events", len(run.Events), "duration", time.Since(start))
	return run, nil
}

func (r *Runner) collect(run *Run) error {
	base := filepath.Join(r.dir, artifactsDir, run.Ident)

	status, err := os.ReadFile(filepath.Join(base, "status"))
	if err != nil {
		return fmt.Errorf("failed to read run status: %w", err)
	}
	run.Status = strings.TrimSpace(string(status))

	if rc, err := os.ReadFile(filepath.Join(base, "rc")); err == nil {
		run.RC, _ = strconv.Atoi(strings.TrimSpace(string(rc)))
	}

	run.Events, err = readEvents(filepath.Join(base, "job_events"))
	return err
}

func readEvents(dir string) ([][]byte, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}

	type numbered struct {
		counter int64
		raw     []byte
	}
	evs := make([]numbered, 0, len(files))
	for _, f := range files {
		raw, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		if !gjson.ValidBytes(raw) {
			return nil, fmt.Errorf("'%s' is not valid JSON", f)
		}
		evs = append(evs, numbered{counter: gjson.GetBytes(raw, "counter").Int(), raw: raw})
	}
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].counter < evs[j].counter })

	out := make([][]byte, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.raw)
	}
	return out, nil
}

func (r *Runner) cleanup() error {
	path := filepath.Join(r.dir, artifactsDir)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("failed to remove artifacts: %w", err)
	}
	return os.RemoveAll(path)
}

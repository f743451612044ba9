package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"nft-acceptance-tester/internal/events"
	"nft-acceptance-tester/internal/model"
)

const (
	InventoryFile      = "inventory.yml"
	SetupInventoryFile = "setup.yml"
)

// InventoryPath returns where an inventory file lives in the private data
// directory.
func (r *Runner) InventoryPath(name string) string {
	return filepath.Join(r.dir, "inventory", name)
}

// WriteInventory serializes inv as YAML to path, creating parent directories.
func WriteInventory(path string, inv model.Inventory) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to encode inventory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// RunAll runs the playbook of every protocol in mapping order and merges the
// normalized results. A timed out protocol is reported through onTimeout and
// skipped; any other failure stops the run.
func (r *Runner) RunAll(ctx context.Context, mapping *model.ProtocolMapping, onTimeout func(proto string, err error)) (events.Results, error) {
	merged := make(events.Results)
	for _, proto := range mapping.Order {
		playbook := model.Playbook(proto)
		run, err := r.Run(ctx, playbook)
		if err != nil {
			if onTimeout != nil && isTimeout(err) {
				onTimeout(proto, err)
				continue
			}
			return merged, err
		}
		for k, v := range events.Normalize(run.Events, playbook) {
			merged[k] = v
		}
	}
	return merged, nil
}

// Setup runs the setup playbook and returns the setup results.
func (r *Runner) Setup(ctx context.Context) (events.Results, error) {
	run, err := r.Run(ctx, events.SetupPlaybook)
	if err != nil {
		return nil, err
	}
	return events.Normalize(run.Events, events.SetupPlaybook), nil
}

func isTimeout(err error) bool {
	return errors.Is(err, model.ErrTimeout)
}

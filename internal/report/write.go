package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const timestampLayout = "02-01-2006-15-04-05"

// Paths names the files written by Write.
type Paths struct {
	Results  string
	Protocol string
}

// ResolvePaths fills in timestamped names under dir for any path left empty.
func (l *Log) ResolvePaths(dir, results, protocol string) Paths {
	stamp := l.now().Format(timestampLayout)
	if results == "" {
		results = filepath.Join(dir, fmt.Sprintf("ant-results-%s.yml", stamp))
	}
	if protocol == "" {
		protocol = filepath.Join(dir, fmt.Sprintf("ant-protocol-%s.yml", stamp))
	}
	return Paths{Results: results, Protocol: protocol}
}

// Write serializes the statistics and the protocol trace as YAML and returns
// the statistics.
func (l *Log) Write(paths Paths) (General, error) {
	stats := l.Finalize()
	if err := writeYAML(paths.Results, stats); err != nil {
		return stats.General, fmt.Errorf("failed to write results: %w", err)
	}
	if err := writeYAML(paths.Protocol, l.protocol); err != nil {
		return stats.General, fmt.Errorf("failed to write protocol: %w", err)
	}
	slog.Info("Report written", "results", paths.Results, "protocol", paths.Protocol)
	return stats.General, nil
}

func writeYAML(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

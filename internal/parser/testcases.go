package parser

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"nft-acceptance-tester/internal/model"
)

type testcaseEntry struct {
	Name        *scalar        `yaml:"Name"`
	Source      *scalar        `yaml:"Source"`
	Destination *scalar        `yaml:"Destination"`
	Proto       *scalar        `yaml:"Proto"`
	SPort       portList       `yaml:"S_port"`
	DPort       portList       `yaml:"D_port"`
	Points      *int           `yaml:"Points"`
	Allow       *bool          `yaml:"Allow"`
	Special     map[string]any `yaml:"Special"`
}

// ParseTestcases reads the ordered testcase rubric.
func ParseTestcases(r io.Reader) (*model.TestcaseConfiguration, error) {
	var entries []testcaseEntry
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil && err != io.EOF {
		return nil, fmt.Errorf("could not decode testcases: %w", err)
	}

	cfg := &model.TestcaseConfiguration{}
	for i, entry := range entries {
		tc, err := buildTestcase(i, entry)
		if err != nil {
			return nil, err
		}
		cfg.Testcases = append(cfg.Testcases, tc)
	}
	return cfg, nil
}

func buildTestcase(index int, entry testcaseEntry) (model.Testcase, error) {
	name := entry.Name.String()
	if name == "" {
		name = fmt.Sprintf("testcase_%d", index)
	}

	source := strings.ToLower(entry.Source.String())
	destination := strings.ToLower(entry.Destination.String())
	proto := entry.Proto.String()
	switch {
	case source == "":
		return model.Testcase{}, model.Errorf(model.ErrMissingRequiredField, "%s missing Source attribute", name)
	case destination == "":
		return model.Testcase{}, model.Errorf(model.ErrMissingRequiredField, "%s missing Destination attribute", name)
	case proto == "":
		return model.Testcase{}, model.Errorf(model.ErrMissingRequiredField, "%s missing Proto attribute", name)
	}

	return model.Testcase{
		Name:             name,
		Source:           source,
		Destination:      destination,
		Proto:            proto,
		SourcePorts:      nonNil(entry.SPort),
		DestinationPorts: nonNil(entry.DPort),
		Points:           normalizePoints(entry.Points),
		Allow:            entry.Allow == nil || *entry.Allow,
		Special:          nonNilSpecial(entry.Special),
	}, nil
}

// normalizePoints defaults missing points to 1 and clamps to at least 1.
func normalizePoints(points *int) int {
	if points == nil || *points <= 0 {
		return 1
	}
	return *points
}

func nonNil(ports []int) []int {
	if ports == nil {
		return []int{}
	}
	return ports
}

func nonNilSpecial(special map[string]any) map[string]any {
	if special == nil {
		return map[string]any{}
	}
	return special
}

// LoadTestcases opens and parses the testcase file at path.
func LoadTestcases(path string) (*model.TestcaseConfiguration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := ParseTestcases(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

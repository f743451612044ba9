package parser

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"nft-acceptance-tester/pkg/wellknown"
)

// scalar accepts any YAML scalar (string, number, bool) and keeps its text.
type scalar string

func (s *scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", node.Line)
	}
	*s = scalar(node.Value)
	return nil
}

func (s *scalar) String() string {
	if s == nil {
		return ""
	}
	return string(*s)
}

// portList accepts a single port or a list of ports. Entries are numbers or
// well-known service names: 443 → [443], ["ssh", 8080] → [22, 8080].
type portList []int

func (p *portList) UnmarshalYAML(node *yaml.Node) error {
	var items []*yaml.Node
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*p = nil
			return nil
		}
		items = []*yaml.Node{node}
	case yaml.SequenceNode:
		items = node.Content
	default:
		return fmt.Errorf("line %d: expected a port or a list of ports", node.Line)
	}

	ports := make([]int, 0, len(items))
	for _, item := range items {
		port, err := parsePort(item.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", item.Line, err)
		}
		ports = append(ports, port)
	}
	*p = ports
	return nil
}

func parsePort(value string) (int, error) {
	if port, err := strconv.Atoi(value); err == nil {
		if port < 0 || port > 65535 {
			return 0, fmt.Errorf("port %d out of range", port)
		}
		return port, nil
	}
	if port, ok := wellknown.Port(value); ok {
		return port, nil
	}
	return 0, fmt.Errorf("unknown port %q", value)
}

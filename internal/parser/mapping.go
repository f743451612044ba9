package parser

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"nft-acceptance-tester/internal/model"
)

// ParseProtocolMapping reads the protocol mapping table. Protocol and
// variable order follow the file.
func ParseProtocolMapping(r io.Reader) (*model.ProtocolMapping, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("protocol mapping is empty")
		}
		return nil, fmt.Errorf("could not decode protocol mapping: %w", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("protocol mapping must be a non-empty map of protocols")
	}

	mapping := &model.ProtocolMapping{Bindings: make(map[string][]model.Binding)}
	for i := 0; i+1 < len(root.Content); i += 2 {
		proto := root.Content[i].Value
		bindings, err := parseBindings(proto, root.Content[i+1])
		if err != nil {
			return nil, err
		}
		if _, dup := mapping.Bindings[proto]; !dup {
			mapping.Order = append(mapping.Order, proto)
		}
		mapping.Bindings[proto] = bindings
	}
	return mapping, nil
}

func parseBindings(proto string, node *yaml.Node) ([]model.Binding, error) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("protocol %s: line %d: expected a map of variables", proto, node.Line)
	}

	bindings := make([]model.Binding, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		variable, field := node.Content[i].Value, node.Content[i+1].Value
		if field != model.DestinationSentinel && !model.IsTestcaseField(field) {
			return nil, fmt.Errorf("protocol %s: variable %s: %w: %q", proto, variable, model.ErrFieldNotFound, field)
		}
		bindings = append(bindings, model.Binding{Variable: variable, Field: field})
	}
	return bindings, nil
}

// LoadProtocolMapping opens and parses the mapping file at path.
func LoadProtocolMapping(path string) (*model.ProtocolMapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mapping, err := ParseProtocolMapping(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return mapping, nil
}

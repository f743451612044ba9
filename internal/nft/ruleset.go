package nft

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

type Chain struct {
	Table  string
	Name   string
	Type   string
	Hook   string
	Policy string
	Rules  int
}

type Table struct {
	Family string
	Name   string
}

// RulesetParser reads the structure of an nftables script: its tables, base
// chains and rule counts. It does not check syntax, Validator does.
type RulesetParser struct {
	scanner *bufio.Scanner

	Tables []Table
	Chains []Chain
	Flush  bool
}

func NewRulesetParser(reader io.Reader) *RulesetParser {
	return &RulesetParser{scanner: bufio.NewScanner(reader)}
}

func (p *RulesetParser) Parse() error {
	for p.scanner.Scan() {
		line := stripComment(p.scanner.Text())
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		switch {
		case parts[0] == "flush" && len(parts) > 1 && parts[1] == "ruleset":
			p.Flush = true
		case parts[0] == "table" && strings.HasSuffix(line, "{"):
			table, err := tableHeader(parts)
			if err != nil {
				return err
			}
			p.Tables = append(p.Tables, table)
			if err := p.parseTable(table); err != nil {
				return fmt.Errorf("failed to parse table %s: %w", table.Name, err)
			}
		}
	}
	if err := p.scanner.Err(); err != nil {
		return fmt.Errorf("error reading script: %w", err)
	}
	return nil
}

func (p *RulesetParser) parseTable(table Table) error {
	for p.scanner.Scan() {
		line := stripComment(p.scanner.Text())
		if line == "}" {
			return nil
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		switch {
		case parts[0] == "chain" && len(parts) >= 2:
			chain := Chain{Table: table.Name, Name: parts[1]}
			if err := p.parseChain(&chain); err != nil {
				return fmt.Errorf("failed to parse chain %s: %w", chain.Name, err)
			}
			p.Chains = append(p.Chains, chain)
		case strings.HasSuffix(line, "{"):
			// sets, maps, flowtables
			if err := p.skipBlock(); err != nil {
				return err
			}
		}
	}
	return io.ErrUnexpectedEOF
}

func (p *RulesetParser) parseChain(chain *Chain) error {
	for p.scanner.Scan() {
		line := stripComment(p.scanner.Text())
		if line == "}" {
			return nil
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "type ") {
			parseChainHeader(chain, line)
			continue
		}
		if strings.HasPrefix(line, "policy ") {
			chain.Policy = strings.TrimSuffix(strings.Fields(line)[1], ";")
			continue
		}
		chain.Rules++
	}
	return io.ErrUnexpectedEOF
}

func (p *RulesetParser) skipBlock() error {
	depth := 1
	for p.scanner.Scan() {
		line := stripComment(p.scanner.Text())
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth <= 0 {
			return nil
		}
	}
	return io.ErrUnexpectedEOF
}

// parseChainHeader reads "type filter hook input priority 0; policy drop;".
func parseChainHeader(chain *Chain, line string) {
	fields := strings.Fields(strings.ReplaceAll(line, ";", " ; "))
	for i := 0; i+1 < len(fields); i++ {
		switch fields[i] {
		case "type":
			chain.Type = fields[i+1]
		case "hook":
			chain.Hook = fields[i+1]
		case "policy":
			chain.Policy = fields[i+1]
		}
	}
}

func tableHeader(parts []string) (Table, error) {
	// table [family] name {
	switch len(parts) {
	case 3:
		return Table{Family: "ip", Name: parts[1]}, nil
	case 4:
		return Table{Family: parts[1], Name: parts[2]}, nil
	}
	return Table{}, fmt.Errorf("malformed table header %q", strings.Join(parts, " "))
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

// Summary renders one line per base chain.
func (p *RulesetParser) Summary() []string {
	var lines []string
	for _, c := range p.Chains {
		if c.Hook == "" {
			lines = append(lines, fmt.Sprintf("%s/%s: %d rules", c.Table, c.Name, c.Rules))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s/%s: %s hook %s policy %s, %d rules", c.Table, c.Name, c.Type, c.Hook, policyOrAccept(c.Policy), c.Rules))
	}
	return lines
}

func policyOrAccept(policy string) string {
	if policy == "" {
		return "accept"
	}
	return policy
}

// InspectFile parses the script at path.
func InspectFile(path string) (*RulesetParser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p := NewRulesetParser(f)
	if err := p.Parse(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

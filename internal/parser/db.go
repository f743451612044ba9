package parser

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"nft-acceptance-tester/internal/model"

	_ "github.com/go-sql-driver/mysql"
)

const (
	queryNetworks  = "SELECT name, netaddress, netmask FROM ant_network"
	queryMachines  = "SELECT name, ip_addresses, management, username, password, nftable FROM ant_machine"
	queryTestcases = "SELECT name, source, destination, proto, s_ports, d_ports, points, allow, special FROM ant_testcase ORDER BY position ASC"
)

// MariaDBParser loads the topology and the testcase rubric from a MariaDB
// schema instead of YAML files.
type MariaDBParser struct {
	db *sql.DB

	Network   *model.NetworkConfiguration
	Testcases *model.TestcaseConfiguration
}

func NewMariaDBParser(dsn string) (*MariaDBParser, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return newMariaDBParser(db), nil
}

func newMariaDBParser(db *sql.DB) *MariaDBParser {
	return &MariaDBParser{
		db:        db,
		Network:   model.NewNetworkConfiguration(),
		Testcases: &model.TestcaseConfiguration{},
	}
}

func (p *MariaDBParser) Close() {
	p.db.Close()
}

// Topology returns what Parse loaded.
func (p *MariaDBParser) Topology() (*model.NetworkConfiguration, *model.TestcaseConfiguration) {
	return p.Network, p.Testcases
}

// Parse loads networks, machines and testcases. scriptExists has the same
// meaning as for ParseNetworkConfiguration.
func (p *MariaDBParser) Parse(scriptExists func(string) bool) error {
	if err := p.loadNetworks(); err != nil {
		return fmt.Errorf("failed to load networks: %w", err)
	}
	if err := p.loadMachines(); err != nil {
		return fmt.Errorf("failed to load machines: %w", err)
	}
	if err := ValidateTopology(p.Network, scriptExists); err != nil {
		return err
	}
	if err := p.loadTestcases(); err != nil {
		return fmt.Errorf("failed to load testcases: %w", err)
	}
	return nil
}

func (p *MariaDBParser) loadNetworks() error {
	rows, err := p.db.Query(queryNetworks)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, address, mask string
		if err := rows.Scan(&name, &address, &mask); err != nil {
			return err
		}
		network, err := buildNetwork(strings.ToLower(name), networkEntry{
			Netaddress: scalarOf(address),
			Netmask:    scalarOf(mask),
		})
		if err != nil {
			return err
		}
		p.Network.Networks[network.Name] = network
	}
	return rows.Err()
}

func (p *MariaDBParser) loadMachines() error {
	rows, err := p.db.Query(queryMachines)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, ipsJSON, mgmt, user, password string
		var script sql.NullString
		if err := rows.Scan(&name, &ipsJSON, &mgmt, &user, &password, &script); err != nil {
			return err
		}

		var ips []string
		if err := json.Unmarshal([]byte(ipsJSON), &ips); err != nil {
			return fmt.Errorf("machine %s: ip_addresses: %w", name, err)
		}

		machine, err := buildMachine(strings.ToLower(name), machineEntry{
			IP:         ips,
			Management: scalarOf(mgmt),
			User:       scalarOf(user),
			Password:   scalarOf(password),
			NFTable:    script.String,
		})
		if err != nil {
			return err
		}
		p.Network.Machines[machine.Name] = machine
	}
	return rows.Err()
}

func (p *MariaDBParser) loadTestcases() error {
	rows, err := p.db.Query(queryTestcases)
	if err != nil {
		return err
	}
	defer rows.Close()

	for index := 0; rows.Next(); index++ {
		var name, sPorts, dPorts, special sql.NullString
		var source, destination, proto string
		var points sql.NullInt64
		var allow sql.NullBool
		if err := rows.Scan(&name, &source, &destination, &proto, &sPorts, &dPorts, &points, &allow, &special); err != nil {
			return err
		}

		entry := testcaseEntry{
			Source:      scalarOf(source),
			Destination: scalarOf(destination),
			Proto:       scalarOf(proto),
		}
		if name.Valid {
			entry.Name = scalarOf(name.String)
		}
		if points.Valid {
			v := int(points.Int64)
			entry.Points = &v
		}
		if allow.Valid {
			entry.Allow = &allow.Bool
		}
		if entry.SPort, err = jsonPorts(sPorts); err != nil {
			return fmt.Errorf("testcase %d: s_ports: %w", index, err)
		}
		if entry.DPort, err = jsonPorts(dPorts); err != nil {
			return fmt.Errorf("testcase %d: d_ports: %w", index, err)
		}
		if special.Valid && special.String != "" {
			if err := json.Unmarshal([]byte(special.String), &entry.Special); err != nil {
				return fmt.Errorf("testcase %d: special: %w", index, err)
			}
		}

		tc, err := buildTestcase(index, entry)
		if err != nil {
			return err
		}
		p.Testcases.Testcases = append(p.Testcases.Testcases, tc)
	}
	return rows.Err()
}

// jsonPorts decodes a JSON array of port numbers or service names.
func jsonPorts(col sql.NullString) (portList, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var items []any
	if err := json.Unmarshal([]byte(col.String), &items); err != nil {
		return nil, err
	}
	ports := make(portList, 0, len(items))
	for _, item := range items {
		port, err := parsePort(fmt.Sprint(item))
		if err != nil {
			return nil, err
		}
		ports = append(ports, port)
	}
	return ports, nil
}

func scalarOf(v string) *scalar {
	s := scalar(v)
	return &s
}

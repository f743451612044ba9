package model

import (
	"fmt"
	"net/netip"
	"sort"
)

type Protocol string // transport protocol of a well-known service

const (
	TCP Protocol = "tcp"
	UDP Protocol = "udp"
)

// Machine is a host of the test topology. IPs share one address family.
type Machine struct {
	Name       string
	IPs        []netip.Addr
	Management netip.Addr
	User       string
	Password   string
	Script     string // path to the nftables script, empty if the machine is not a firewall
}

type Network struct {
	Name   string
	Prefix netip.Prefix
}

type NetworkConfiguration struct {
	Networks map[string]Network
	Machines map[string]Machine
}

func NewNetworkConfiguration() *NetworkConfiguration {
	return &NetworkConfiguration{
		Networks: make(map[string]Network),
		Machines: make(map[string]Machine),
	}
}

// MachineNames returns the machine names in sorted order.
func (c *NetworkConfiguration) MachineNames() []string {
	names := make([]string, 0, len(c.Machines))
	for name := range c.Machines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Testcase struct {
	Name             string
	Source           string
	Destination      string
	Proto            string
	SourcePorts      []int
	DestinationPorts []int
	Points           int
	Allow            bool
	Special          map[string]any
}

// Testcase field names as referenced by the protocol mapping file.
const (
	FieldName        = "name"
	FieldSource      = "source"
	FieldDestination = "destination"
	FieldProto       = "proto"
	FieldSourcePort  = "s_port"
	FieldDestPort    = "d_port"
	FieldPoints      = "points"
	FieldAllow       = "allow"
	FieldSpecial     = "special"
)

var testcaseFields = map[string]func(*Testcase) any{
	FieldName:        func(t *Testcase) any { return t.Name },
	FieldSource:      func(t *Testcase) any { return t.Source },
	FieldDestination: func(t *Testcase) any { return t.Destination },
	FieldProto:       func(t *Testcase) any { return t.Proto },
	FieldSourcePort:  func(t *Testcase) any { return t.SourcePorts },
	FieldDestPort:    func(t *Testcase) any { return t.DestinationPorts },
	FieldPoints:      func(t *Testcase) any { return t.Points },
	FieldAllow:       func(t *Testcase) any { return t.Allow },
	FieldSpecial:     func(t *Testcase) any { return t.Special },
}

// Field returns the value of the named testcase field.
func (t *Testcase) Field(name string) (any, error) {
	get, ok := testcaseFields[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFieldNotFound, name)
	}
	return get(t), nil
}

// IsTestcaseField reports whether name can be read with Testcase.Field.
func IsTestcaseField(name string) bool {
	_, ok := testcaseFields[name]
	return ok
}

type TestcaseConfiguration struct {
	Testcases []Testcase
}

// DestinationSentinel in a mapping binding stands for the resolved destination list.
const DestinationSentinel = "destination"

// Binding maps one automation variable to a testcase field.
type Binding struct {
	Variable string
	Field    string
}

type ProtocolMapping struct {
	Order    []string
	Bindings map[string][]Binding
}

func (m *ProtocolMapping) Lookup(proto string) ([]Binding, bool) {
	b, ok := m.Bindings[proto]
	return b, ok
}

// Playbook returns the playbook file name that tests the given protocol.
func Playbook(proto string) string {
	return proto + "_playbook.yml"
}

type HostVars map[string]any

type HostGroup struct {
	Hosts map[string]HostVars `yaml:"hosts"`
}

// Inventory groups execution targets by protocol.
type Inventory map[string]*HostGroup

func (inv Inventory) Group(name string) *HostGroup {
	g, ok := inv[name]
	if !ok {
		g = &HostGroup{Hosts: make(map[string]HostVars)}
		inv[name] = g
	}
	return g
}

// HostKey joins a machine and a testcase name into an inventory host key.
func HostKey(machine, testcase string) string {
	return machine + "-" + testcase
}

package parser

import (
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"nft-acceptance-tester/internal/model"
	"nft-acceptance-tester/internal/utils"
)

type infraFile struct {
	Networks map[string]networkEntry `yaml:"Networks"`
	Machines map[string]machineEntry `yaml:"Machines"`
}

type networkEntry struct {
	Netmask    *scalar `yaml:"Netmask"`
	Netaddress *scalar `yaml:"Netaddress"`
}

type machineEntry struct {
	IP         []string `yaml:"IP"`
	Management *scalar  `yaml:"Management"`
	User       *scalar  `yaml:"User"`
	Password   *scalar  `yaml:"Password"`
	NFTable    string   `yaml:"NFTable"`
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ParseNetworkConfiguration reads the infrastructure description. scriptExists
// decides whether a referenced nftables script is present; nil means FileExists.
func ParseNetworkConfiguration(r io.Reader, scriptExists func(string) bool) (*model.NetworkConfiguration, error) {
	var raw infraFile
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("could not decode infrastructure: %w", err)
	}

	cfg := model.NewNetworkConfiguration()
	for name, entry := range raw.Networks {
		network, err := buildNetwork(strings.ToLower(name), entry)
		if err != nil {
			return nil, err
		}
		cfg.Networks[network.Name] = network
	}

	for name, entry := range raw.Machines {
		machine, err := buildMachine(strings.ToLower(name), entry)
		if err != nil {
			return nil, err
		}
		cfg.Machines[machine.Name] = machine
	}

	if err := ValidateTopology(cfg, scriptExists); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateTopology checks the invariants of a loaded configuration.
func ValidateTopology(cfg *model.NetworkConfiguration, scriptExists func(string) bool) error {
	if scriptExists == nil {
		scriptExists = FileExists
	}
	if len(cfg.Networks) == 0 {
		return model.Errorf(model.ErrMissingTopologyData, "missing Networks attribute")
	}
	if len(cfg.Machines) == 0 {
		return model.Errorf(model.ErrMissingTopologyData, "missing Machines attribute")
	}
	for _, m := range cfg.Machines {
		if m.Script != "" && scriptExists(m.Script) {
			return nil
		}
	}
	return model.Errorf(model.ErrMissingTopologyData, "missing at least one NFTable configuration file")
}

func buildNetwork(name string, entry networkEntry) (model.Network, error) {
	if entry.Netaddress == nil {
		return model.Network{}, model.Errorf(model.ErrMissingRequiredField, "network %s missing Netaddress", name)
	}
	if entry.Netmask == nil {
		return model.Network{}, model.Errorf(model.ErrMissingRequiredField, "network %s missing Netmask", name)
	}
	prefix, err := utils.ParsePrefix(entry.Netaddress.String(), entry.Netmask.String())
	if err != nil {
		return model.Network{}, fmt.Errorf("network %s: %w", name, err)
	}
	return model.Network{Name: name, Prefix: prefix}, nil
}

func buildMachine(name string, entry machineEntry) (model.Machine, error) {
	switch {
	case len(entry.IP) == 0:
		return model.Machine{}, model.Errorf(model.ErrMissingRequiredField, "machine %s missing IP", name)
	case entry.Management == nil:
		return model.Machine{}, model.Errorf(model.ErrMissingRequiredField, "machine %s missing Management", name)
	case entry.User == nil:
		return model.Machine{}, model.Errorf(model.ErrMissingRequiredField, "machine %s missing User", name)
	case entry.Password == nil:
		return model.Machine{}, model.Errorf(model.ErrMissingRequiredField, "machine %s missing Password", name)
	}

	ips, err := parseAddresses(entry.IP)
	if err != nil {
		return model.Machine{}, fmt.Errorf("machine %s: %w", name, err)
	}

	mgmt, err := netip.ParseAddr(entry.Management.String())
	if err != nil {
		return model.Machine{}, fmt.Errorf("machine %s: management address: %w", name, err)
	}

	return model.Machine{
		Name:       name,
		IPs:        ips,
		Management: mgmt,
		User:       entry.User.String(),
		Password:   entry.Password.String(),
		Script:     entry.NFTable,
	}, nil
}

func parseAddresses(values []string) ([]netip.Addr, error) {
	ips := make([]netip.Addr, 0, len(values))
	for _, v := range values {
		ip, err := netip.ParseAddr(strings.TrimSpace(v))
		if err != nil {
			return nil, err
		}
		if len(ips) > 0 && ip.Is4() != ips[0].Is4() {
			return nil, model.Errorf(model.ErrMixedAddressFamily, "IPv4 and IPv6 addresses mixed")
		}
		ips = append(ips, ip)
	}
	return ips, nil
}

// LoadNetworkConfiguration opens and parses the infrastructure file at path.
func LoadNetworkConfiguration(path string) (*model.NetworkConfiguration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := ParseNetworkConfiguration(f, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

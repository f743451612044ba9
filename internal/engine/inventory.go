package engine

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"nft-acceptance-tester/internal/model"
	"nft-acceptance-tester/internal/utils"
)

// SetupGroup is the inventory group of firewalls receiving rule sets.
const SetupGroup = "setup"

// BuildInventory assigns every testcase to the group of its protocol, with
// host variables filled as the protocol mapping prescribes. Every protocol of
// the mapping gets a group, even when no testcase uses it. Any error aborts
// the whole build.
func BuildInventory(cases []model.Testcase, cfg *model.NetworkConfiguration, mapping *model.ProtocolMapping) (model.Inventory, error) {
	inv := make(model.Inventory)
	for _, proto := range mapping.Order {
		inv.Group(proto)
	}

	for i := range cases {
		tc := &cases[i]

		machine, ok := cfg.Machines[tc.Source]
		if !ok {
			return nil, model.Errorf(model.ErrUnknownMachine, "%s is not a known machine", tc.Source)
		}

		bindings, ok := mapping.Lookup(tc.Proto)
		if !ok {
			return nil, model.Errorf(model.ErrInvalidProtocol, "%s is not a valid proto", tc.Proto)
		}

		vars := credentials(machine)
		for _, b := range bindings {
			if b.Field == model.DestinationSentinel {
				hosts, err := Resolve(tc.Destination, cfg)
				if err != nil {
					return nil, fmt.Errorf("testcase %s: %w", tc.Name, err)
				}
				vars[b.Variable] = hosts
				continue
			}
			v, err := tc.Field(b.Field)
			if err != nil {
				return nil, fmt.Errorf("testcase %s: %w", tc.Name, err)
			}
			vars[b.Variable] = v
		}

		key := model.HostKey(machine.Name, tc.Name)
		inv.Group(tc.Proto).Hosts[key] = vars
		slog.Debug("Added inventory host", "group", tc.Proto, "host", key)
	}
	return inv, nil
}

// BuildSetupInventory lists every machine that has an nftables script.
func BuildSetupInventory(cfg *model.NetworkConfiguration) (model.Inventory, error) {
	inv := make(model.Inventory)
	group := inv.Group(SetupGroup)
	for _, name := range cfg.MachineNames() {
		machine := cfg.Machines[name]
		if machine.Script == "" {
			continue
		}
		abs, err := filepath.Abs(machine.Script)
		if err != nil {
			return nil, fmt.Errorf("machine %s: %w", name, err)
		}
		vars := credentials(machine)
		vars["nft_file"] = abs
		vars["filename"] = filepath.Base(machine.Script)
		group.Hosts[machine.Name] = vars
	}
	return inv, nil
}

func credentials(m model.Machine) model.HostVars {
	return model.HostVars{
		"ansible_host":     utils.Exploded(m.Management),
		"ansible_user":     m.User,
		"ansible_password": m.Password,
	}
}

package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"nft-acceptance-tester/internal/engine"
	"nft-acceptance-tester/internal/events"
	"nft-acceptance-tester/internal/model"
	"nft-acceptance-tester/internal/nft"
	"nft-acceptance-tester/internal/parser"
	"nft-acceptance-tester/internal/report"
	"nft-acceptance-tester/internal/runner"
	"nft-acceptance-tester/internal/utils"
)

const (
	ProviderYAML    = "yaml"
	ProviderMariaDB = "mariadb"
)

// Report tags.
const (
	TagConfig    = "Config"
	TagNetconfig = "Netconfig"
	TagNFTables  = "NFTables"
	TagTestcases = "Testcases"
	TagSetup     = "Firewall setup"
	TagTestsetup = "Testsetup"
	TagTests     = "Tests"
)

type Config struct {
	MappingPath   string
	InfraPath     string
	TestcasesPath string
	Provider      string
	DSN           string

	Dir          string
	ReportPath   string
	ProtocolPath string

	Verbose bool
	DryRun  bool
}

// Engine runs playbooks against the test topology.
type Engine interface {
	Setup(ctx context.Context) (events.Results, error)
	RunAll(ctx context.Context, mapping *model.ProtocolMapping, onTimeout func(proto string, err error)) (events.Results, error)
	InventoryPath(name string) string
}

// ScriptValidator checks nftables scripts before they are deployed.
type ScriptValidator interface {
	Validate(ctx context.Context, path string) (*nft.Diagnostics, error)
}

type Harness struct {
	cfg       Config
	engine    Engine
	validator ScriptValidator
	log       *report.Log
	out       io.Writer

	openDB func(dsn string) (topologySource, error)
}

type topologySource interface {
	Parse(scriptExists func(string) bool) error
	Topology() (*model.NetworkConfiguration, *model.TestcaseConfiguration)
	Close()
}

func New(cfg Config, eng Engine, validator ScriptValidator, out io.Writer) *Harness {
	if cfg.Provider == "" {
		cfg.Provider = ProviderYAML
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	return &Harness{
		cfg:       cfg,
		engine:    eng,
		validator: validator,
		log:       report.NewLog(),
		out:       out,
		openDB: func(dsn string) (topologySource, error) {
			return parser.NewMariaDBParser(dsn)
		},
	}
}

// Log exposes the run log.
func (h *Harness) Log() *report.Log {
	return h.log
}

// Run executes the whole acceptance test and writes the report. It returns
// the process exit code.
func (h *Harness) Run(ctx context.Context) int {
	if err := h.run(ctx); err != nil {
		fe, ok := model.AsFatal(err)
		if !ok {
			fe = &model.FatalError{Tag: TagTests, Messages: []string{err.Error()}, Err: err}
		}
		h.log.RecordError(report.FromFatal(fe))
		slog.Error("Fatal error", "tag", fe.Tag, "messages", fe.Messages, "error", fe.Err)
		for _, msg := range fe.Messages {
			h.printf("%s\n", msg)
		}
		if h.cfg.Verbose && fe.Err != nil {
			h.printf("%v\n", fe.Err)
		}
		return h.finalize(1)
	}
	return h.finalize(0)
}

func (h *Harness) run(ctx context.Context) error {
	mapping, err := parser.LoadProtocolMapping(h.cfg.MappingPath)
	if err != nil {
		return model.Fatal(TagConfig, err, loadMessage(h.cfg.MappingPath, "Error parsing protocol mapping", err))
	}

	h.printf("Loading Network configuration...\n")
	netCfg, cases, err := h.loadTopology()
	if err != nil {
		return err
	}
	logTopology(netCfg)
	h.printf("Done.\n")

	h.printf("Checking NFTable configuration files...\n")
	if err := h.validateScripts(ctx, netCfg); err != nil {
		return err
	}
	h.printf("Done.\n")

	if cases == nil {
		h.printf("Loading Testcases...\n")
		cases, err = parser.LoadTestcases(h.cfg.TestcasesPath)
		if err != nil {
			return model.Fatal(TagTestcases, err, loadMessage(h.cfg.TestcasesPath, "Error parsing testcases", err))
		}
		h.printf("Done.\n")
	}

	h.printf("Setting up firewalls...\n")
	if err := h.setupFirewalls(ctx, netCfg); err != nil {
		return err
	}

	h.printf("Setting up tests...\n")
	inv, err := engine.BuildInventory(cases.Testcases, netCfg, mapping)
	if err != nil {
		return model.Fatal(TagTestsetup, err, "Error while creating tests")
	}
	if err := runner.WriteInventory(h.engine.InventoryPath(runner.InventoryFile), inv); err != nil {
		return model.Fatal(TagTestsetup, err, "Error while writing the inventory")
	}

	if h.cfg.DryRun {
		h.printf("Dry run: inventories written, no tests executed.\n")
		return nil
	}

	h.printf("Running tests...\n")
	results, err := h.engine.RunAll(ctx, mapping, func(proto string, err error) {
		h.log.RecordError(report.ErrorDescriptor{
			Tag:      proto,
			Messages: []string{fmt.Sprintf("Error while running %s tests", proto)},
			Err:      err,
		})
		slog.Warn("Protocol group timed out", "proto", proto, "error", err)
	})
	if err != nil {
		return model.Fatal(TagTests, err, "Error while running tests")
	}
	h.printf("Done.\n")

	engine.Score(cases.Testcases, results, netCfg, h.log)
	return nil
}

// loadTopology returns the testcases too when the provider stores them.
func (h *Harness) loadTopology() (*model.NetworkConfiguration, *model.TestcaseConfiguration, error) {
	switch h.cfg.Provider {
	case ProviderYAML:
		netCfg, err := parser.LoadNetworkConfiguration(h.cfg.InfraPath)
		if err != nil {
			return nil, nil, model.Fatal(TagNetconfig, err,
				loadMessage(h.cfg.InfraPath, "Error parsing network configuration "+h.cfg.InfraPath, err))
		}
		return netCfg, nil, nil

	case ProviderMariaDB:
		src, err := h.openDB(h.cfg.DSN)
		if err != nil {
			return nil, nil, model.Fatal(TagNetconfig, err, "Error connecting to the database")
		}
		defer src.Close()
		if err := src.Parse(nil); err != nil {
			return nil, nil, model.Fatal(TagNetconfig, err, "Error loading configuration from the database")
		}
		netCfg, cases := src.Topology()
		return netCfg, cases, nil
	}
	return nil, nil, model.Fatal(TagConfig, fmt.Errorf("unknown provider %q", h.cfg.Provider), "Unknown provider "+h.cfg.Provider)
}

func logTopology(netCfg *model.NetworkConfiguration) {
	names := make([]string, 0, len(netCfg.Networks))
	for name := range netCfg.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prefix := netCfg.Networks[name].Prefix
		slog.Debug("Loaded network", "network", name, "prefix", prefix.String(), "addresses", utils.CIDRSize(prefix))
	}
	slog.Info("Topology loaded", "networks", len(netCfg.Networks), "machines", len(netCfg.Machines))
}

func (h *Harness) validateScripts(ctx context.Context, netCfg *model.NetworkConfiguration) error {
	for _, name := range netCfg.MachineNames() {
		script := netCfg.Machines[name].Script
		if script == "" {
			continue
		}
		diag, err := h.validator.Validate(ctx, script)
		if err != nil {
			return model.Fatal(TagNFTables, err, fmt.Sprintf("Could not validate %s", script))
		}
		if diag != nil {
			h.printf("The script %s has invalid syntax.\n", script)
			if h.cfg.Verbose {
				h.printf("%s\n", strings.Join(diag.Errors, ""))
			}
			return &model.FatalError{
				Tag:      TagNFTables,
				Messages: diag.Errors,
				Err:      model.Errorf(model.ErrInvalidScript, "%s", diag.Output),
				Payload:  diag.Output,
			}
		}

		if rs, err := nft.InspectFile(script); err != nil {
			slog.Warn("Could not inspect script", "script", script, "error", err)
		} else {
			slog.Debug("Validated script", "machine", name, "script", script, "flush", rs.Flush, "chains", rs.Summary())
		}
	}
	return nil
}

func (h *Harness) setupFirewalls(ctx context.Context, netCfg *model.NetworkConfiguration) error {
	inv, err := engine.BuildSetupInventory(netCfg)
	if err != nil {
		return model.Fatal(TagSetup, err, "Error while setting up firewalls")
	}
	if err := runner.WriteInventory(h.engine.InventoryPath(runner.SetupInventoryFile), inv); err != nil {
		return model.Fatal(TagSetup, err, "Error while setting up firewalls")
	}
	if h.cfg.DryRun {
		return nil
	}

	results, err := h.engine.Setup(ctx)
	if err != nil {
		return model.Fatal(TagSetup, err, "Error while setting up firewalls")
	}

	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		result := results[key]
		machine := strings.TrimPrefix(key, "setup-")
		switch {
		case result.Unreachable:
			return &model.FatalError{
				Tag:      key,
				Messages: []string{fmt.Sprintf("Fatal: %s unreachable", machine)},
				Err:      model.Errorf(model.ErrHostUnreachable, "%s unreachable", machine),
				Payload:  result,
			}
		case !result.Succeeded():
			return &model.FatalError{
				Tag:      key,
				Messages: []string{"Fatal failure setting up " + machine},
				Err:      model.Errorf(model.ErrSetupFailed, "failure setting up %s", machine),
				Payload:  result,
			}
		}
		h.log.RecordEvents(key, result)
	}
	h.printf("Done.\n")
	return nil
}

func (h *Harness) finalize(rc int) int {
	paths := h.log.ResolvePaths(h.cfg.Dir, h.cfg.ReportPath, h.cfg.ProtocolPath)
	general, err := h.log.Write(paths)
	if err != nil {
		slog.Error("Failed to write report", "error", err)
		h.printf("Could not write report: %v\n", err)
		rc = 1
	}

	if rc == 0 {
		h.printf("Testing finished:\n")
	} else {
		h.printf("A fatal error occurred: Exiting.\n")
	}
	for _, line := range general.Summary() {
		h.printf("%s\n", line)
	}
	return rc
}

func (h *Harness) printf(format string, args ...any) {
	if h.out != nil {
		fmt.Fprintf(h.out, format, args...)
	}
}

func loadMessage(path, fallback string, err error) string {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("File %s does not exist", path)
	}
	return fallback
}

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"nft-acceptance-tester/internal/harness"
	"nft-acceptance-tester/internal/nft"
	"nft-acceptance-tester/internal/runner"
)

const banner = `
================================================================
                       d0000 000b    000 00000000000
                      d00000 0000b   000     000
                     d00P000 00000b  000     000
                    d00P 000 000Y00b 000     000
                   d00P  000 000 Y00b000     000
                  d00P   000 000  Y00000     000
                 d0000000000 000   Y0000     000
                d00P     000 000    Y000     000
=================================================================
                    Automated NFTables Tester
`

var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	infraFile     string
	testcasesFile string
	mappingFile   string
	reportFile    string
	protocolFile  string
	outDir        string
	verbose       bool
	logLevel      string
	logFile       string
	provider      string
	dbDSN         string
	runnerDir     string
	runnerBin     string
	nftBin        string
	dryRun        bool

	exitCode int
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ant",
		Short: "Automated acceptance tests for nftables firewalls",
		Long: `ant deploys nftables rule sets to the firewalls of a test topology,
runs the connectivity testcases of a rubric against it and scores the outcome.`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().StringVarP(&infraFile, "infrafile", "i", "", "The path to the infrastructure configuration file (required for 'yaml' provider)")
	rootCmd.Flags().StringVarP(&testcasesFile, "testcases", "t", "", "The path to the testcase configuration file (required for 'yaml' provider)")
	rootCmd.Flags().StringVarP(&mappingFile, "config", "c", "mapping.yml", "Path to the protocol mapping file")
	rootCmd.Flags().StringVarP(&reportFile, "report", "r", "", "Report file, overrides --dir")
	rootCmd.Flags().StringVarP(&protocolFile, "protocol", "p", "", "Protocol file, overrides --dir")
	rootCmd.Flags().StringVarP(&outDir, "dir", "d", ".", "Output directory")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print error details and log at DEBUG level")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Log file path (default: stderr)")
	rootCmd.Flags().StringVar(&provider, "provider", harness.ProviderYAML, "Topology provider: 'yaml' or 'mariadb'")
	rootCmd.Flags().StringVar(&dbDSN, "db", "", "Database connection string (for 'mariadb' provider)")
	rootCmd.Flags().StringVar(&runnerDir, "runner-dir", runner.DefaultDir, "ansible-runner private data directory")
	rootCmd.Flags().StringVar(&runnerBin, "runner-bin", runner.DefaultBin, "ansible-runner executable")
	rootCmd.Flags().StringVar(&nftBin, "nft-bin", nft.DefaultBin, "nft executable used to validate scripts")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate input and write the inventories without running playbooks")

	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print ant version",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ant %s\n", Version)
			fmt.Fprintf(out, "  Commit: %s\n", GitCommit)
			fmt.Fprintf(out, "  Built:  %s\n", BuildDate)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func run(cmd *cobra.Command, args []string) error {
	level := logLevel
	if verbose {
		level = "DEBUG"
	}
	slog.SetDefault(setupLogger(level, logFile))

	if err := validateFlags(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, banner)

	eng := runner.New(runner.Config{Bin: runnerBin, PrivateDir: runnerDir})
	slog.Info("Starting ant", "version", Version, "provider", provider, "runner_dir", eng.Dir())
	startTime := time.Now()

	h := harness.New(harness.Config{
		MappingPath:   mappingFile,
		InfraPath:     infraFile,
		TestcasesPath: testcasesFile,
		Provider:      provider,
		DSN:           dbDSN,
		Dir:           outDir,
		ReportPath:    reportFile,
		ProtocolPath:  protocolFile,
		Verbose:       verbose,
		DryRun:        dryRun,
	}, eng, nft.NewValidator(nftBin), out)

	exitCode = h.Run(cmd.Context())
	slog.Info("Run complete", "exit_code", exitCode, "duration", time.Since(startTime))
	return nil
}

func validateFlags() error {
	switch provider {
	case harness.ProviderYAML:
		if infraFile == "" || testcasesFile == "" {
			return fmt.Errorf("--infrafile and --testcases must be provided for yaml provider")
		}
	case harness.ProviderMariaDB:
		if dbDSN == "" {
			return fmt.Errorf("database connection string must be provided for mariadb provider")
		}
	default:
		return fmt.Errorf("unknown provider: %s", provider)
	}
	return nil
}

func setupLogger(level, logFilePath string) *slog.Logger {
	var logWriter io.Writer = os.Stderr
	toFile := false
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logWriter = f
			toFile = true
		}
		// Falls back to stderr.
	}

	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "INFO":
		lvl = slog.LevelInfo
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	if !toFile && isTerminal(os.Stderr) {
		return slog.New(tint.NewHandler(logWriter, &tint.Options{
			Level:      lvl,
			TimeFormat: time.TimeOnly,
		}))
	}
	return slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: lvl}))
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

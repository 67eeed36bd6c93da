package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coderunner/ccr/internal/config"
	"github.com/coderunner/ccr/internal/events"
	"github.com/coderunner/ccr/internal/instructions"
	"github.com/coderunner/ccr/internal/launcher"
	"github.com/coderunner/ccr/internal/logging"
	"github.com/coderunner/ccr/internal/platform"
	"github.com/coderunner/ccr/internal/runner"
	"github.com/coderunner/ccr/internal/session"
	"github.com/coderunner/ccr/internal/tmux"
	"github.com/coderunner/ccr/internal/ui"
)

// Version is set at build time.
var Version = "dev"

const (
	exitOK        = 0
	exitError     = 1
	exitInterrupt = 130
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, args)
	return exitCode(err)
}

// exitCode maps an error to the process exit status: 130 for interrupts,
// 1 for everything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, runner.ErrInterrupted), errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "interrupted")
		return exitInterrupt
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}
}

func run(ctx context.Context, args []string) error {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

type rootOptions struct {
	exclude     string
	delay       int
	parallel    bool
	maxParallel int
	dryRun      bool
	stage       string
	listStages  bool
	verbose     bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "ccr <root>",
		Short:         "Batch-launch Claude Code sessions across project directories",
		Long: "ccr scans a root directory, resolves init/continue instructions for each\n" +
			"subdirectory, and opens a terminal per directory in which the Claude Code\n" +
			"session is probed, resumed or initialized, fed its instructions, and then\n" +
			"handed to you.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, opts, args)
		},
	}
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	flags := root.Flags()
	flags.StringVar(&opts.exclude, "exclude", "", "comma-separated directory names to skip")
	flags.IntVar(&opts.delay, "delay", 2, "seconds to pause between launches")
	flags.BoolVar(&opts.parallel, "parallel", false, "process directories through a bounded worker pool")
	flags.IntVar(&opts.maxParallel, "max-parallel", 3, "worker pool size for --parallel")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "report the plan without writing scripts or launching terminals")
	flags.StringVar(&opts.stage, "stage", "", "stage name or glob selecting stage-specific instruction files")
	flags.BoolVar(&opts.listStages, "list-stages", false, "print the known workflow stages and exit")
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "log at debug level")

	root.AddCommand(newDriveCommand(opts))
	return root
}

func runBatch(cmd *cobra.Command, opts *rootOptions, args []string) error {
	ctx := cmd.Context()
	console := ui.NewConsole()

	if opts.listStages {
		console.StageCatalog(instructions.Stages())
		return nil
	}
	if len(args) == 0 {
		return errors.New("root directory is required (or use --list-stages)")
	}

	root, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve root directory: %w", err)
	}

	cfg, err := config.Load(ctx, root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cfg, cmd, opts)

	runLogger, err := logging.New(ctx, logging.WithVerbose(opts.verbose))
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		if closeErr := runLogger.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", closeErr)
		}
	}()
	logger := runLogger.Logger

	detected, err := platform.Detect()
	if err != nil {
		return err
	}
	terminalLauncher, err := launcher.Detect(detected, cfg.Terminal, launcher.Deps{})
	if err != nil && !opts.dryRun {
		return err
	}
	if terminalLauncher == nil {
		// Dry runs never launch, so plan with a stand-in.
		terminalLauncher = noopLauncher{}
	}

	ccrBin, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate ccr binary: %w", err)
	}

	bus := events.New(events.WithLogger(logger))
	console.AttachTo(bus)

	orchestrator, err := runner.New(
		instructions.NewResolver(root, opts.stage),
		terminalLauncher,
		ccrBin,
		runner.WithLogger(logger),
		runner.WithBus(bus),
	)
	if err != nil {
		return err
	}

	items, err := orchestrator.Discover(root, excludeSet(cfg.Exclude, opts.exclude))
	if err != nil {
		return err
	}

	mode := "sequential"
	if opts.parallel {
		mode = fmt.Sprintf("parallel (%d workers)", cfg.MaxParallel)
	}
	if opts.dryRun {
		mode += ", dry run"
	}
	console.Banner(root, mode, len(items))

	if opts.dryRun {
		console.PlanReport(orchestrator.DryRun(items))
		return nil
	}

	var summary runner.Summary
	if opts.parallel {
		summary, err = orchestrator.RunParallel(ctx, items, cfg.Delay, cfg.MaxParallel)
	} else {
		summary, err = orchestrator.RunSequential(ctx, items, cfg.Delay)
	}
	// Drain pending progress lines before the summary so none are lost on exit.
	bus.Close()
	console.Summary(summary)
	return err
}

// applyFlagOverrides lets explicitly set flags win over config file values.
func applyFlagOverrides(cfg *config.Config, cmd *cobra.Command, opts *rootOptions) {
	if cmd.Flags().Changed("delay") {
		cfg.Delay = time.Duration(opts.delay) * time.Second
	}
	if cmd.Flags().Changed("max-parallel") && opts.maxParallel > 0 {
		cfg.MaxParallel = opts.maxParallel
	}
}

// excludeSet merges config and flag exclusions into a lookup set.
func excludeSet(fromConfig []string, fromFlag string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, name := range fromConfig {
		if name = strings.TrimSpace(name); name != "" {
			set[name] = struct{}{}
		}
	}
	for _, name := range strings.Split(fromFlag, ",") {
		if name = strings.TrimSpace(name); name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// noopLauncher stands in during dry runs when no real terminal is available.
type noopLauncher struct{}

func (noopLauncher) Name() string { return "none" }

func (noopLauncher) Launch(context.Context, string, string) error {
	return errors.New("no terminal launcher available")
}

// newDriveCommand is the hidden entry point executed by generated automation
// scripts inside the launched terminal: it runs the session state machine
// for one directory and attaches the operator.
func newDriveCommand(opts *rootOptions) *cobra.Command {
	var (
		workdir      string
		initFile     string
		continueFile string
	)

	cmd := &cobra.Command{
		Use:           "drive",
		Short:         "Drive one assistant session (invoked by generated scripts)",
		Hidden:        true,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDrive(cmd.Context(), workdir, initFile, continueFile, opts.verbose)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&workdir, "workdir", "", "directory whose session to drive")
	flags.StringVar(&initFile, "init-file", "", "file holding init instruction content")
	flags.StringVar(&continueFile, "continue-file", "", "file holding continue instruction content")
	_ = cmd.MarkFlagRequired("workdir")
	_ = cmd.MarkFlagRequired("init-file")
	return cmd
}

func runDrive(ctx context.Context, workdir, initFile, continueFile string, verbose bool) error {
	cfg, err := config.Load(ctx, workdir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runLogger, err := logging.New(ctx, logging.WithVerbose(verbose))
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		if closeErr := runLogger.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", closeErr)
		}
	}()

	initContent, err := readContentFile(initFile)
	if err != nil {
		return err
	}
	continueContent := ""
	if continueFile != "" {
		// The continue file is optional; a read failure only loses the
		// follow-up message.
		continueContent, _ = readContentFile(continueFile)
	}

	terminal, err := session.NewTmuxTerminal(tmux.New(tmux.Options{}), cfg.AssistantBin, workdir)
	if err != nil {
		return err
	}

	engine, err := session.New(terminal, initContent, continueContent,
		session.WithTimeouts(session.Timeouts{
			Probe:   cfg.ProbeTimeout,
			Ready:   cfg.ReadyTimeout,
			Deliver: cfg.DeliverTimeout,
			Poll:    cfg.PollInterval,
		}),
		session.WithLogger(runLogger.Logger.With("workdir", workdir)),
	)
	if err != nil {
		return err
	}
	return engine.Run(ctx)
}

func readContentFile(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- paths come from the generated script's mktemp files.
	if err != nil {
		return "", fmt.Errorf("read instruction file %q: %w", path, err)
	}
	return string(data), nil
}

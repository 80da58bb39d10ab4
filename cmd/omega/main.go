package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"omega/internal/audit"
	"omega/internal/brain"
	"omega/internal/config"
	"omega/internal/devices"
	"omega/internal/events"
	"omega/internal/governor"
	"omega/internal/jobs"
	"omega/internal/sandbox"
	"omega/internal/scheduler"
	"omega/internal/server"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "omega",
	Short: "omega - mission orchestrator for the ARK device grid",
	Long: `omega coordinates a fleet of ARK devices through LLM-planned missions.

A mission is decomposed into a dependency graph of sub-tasks, every task is
screened by the Risk Governor before any agent acts, and sandboxed WASM
skills extend the system at runtime without a rebuild.

Run without arguments to start the HTTP gateway.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

// serveCmd starts the HTTP gateway and the skill watcher
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	Long: `Serves the mission, device and skill APIs over HTTP.

The skills directory is watched for hot-reload: dropping a .wasm file in
makes it callable immediately, removing it unregisters it.`,
	RunE: runServe,
}

// runCmd executes a single mission from the command line
var runCmd = &cobra.Command{
	Use:   "run [mission]",
	Short: "Execute a single mission end to end",
	Long: `Runs one mission through the full pipeline:
  1. Decompose: the model plans a task graph over the agent roster
  2. Govern:    every sub-task is screened against the active policy
  3. Execute:   independent tasks run concurrently, in dependency order
  4. Synthesize: per-task outputs are fused into the final response`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMission,
}

// devicesCmd groups entity operations
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Inspect and command registered devices",
	RunE:  listDevices,
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered devices",
	RunE:  listDevices,
}

var deviceCommandCmd = &cobra.Command{
	Use:   "command [id] [verb]",
	Short: "Send a command verb to a device",
	Args:  cobra.MinimumNArgs(2),
	RunE:  commandDevice,
}

var deviceDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan the network and register newly found devices",
	RunE:  discoverDevices,
}

// skillsCmd groups sandboxed skill operations
var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Inspect and run installed WASM skills",
	RunE:  listSkills,
}

var skillListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed WASM skills",
	RunE:  listSkills,
}

var skillRunCmd = &cobra.Command{
	Use:   "run [name] [input]",
	Short: "Execute an installed skill in the sandbox",
	Args:  cobra.MinimumNArgs(1),
	RunE:  execSkill,
}

// jobsCmd groups recurring-mission operations
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Operate on the recurring-mission manifest",
	RunE:  runJobs,
}

var jobsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every job in the manifest",
	RunE:  runJobs,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "omega.yaml", "Config file path")

	devicesCmd.AddCommand(deviceListCmd)
	devicesCmd.AddCommand(deviceCommandCmd)
	devicesCmd.AddCommand(deviceDiscoverCmd)
	skillsCmd.AddCommand(skillListCmd)
	skillsCmd.AddCommand(skillRunCmd)
	jobsCmd.AddCommand(jobsRunCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(jobsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// system bundles the wired core components.
type system struct {
	cfg      config.Config
	registry *devices.Registry
	governor *governor.Governor
	skills   *sandbox.Engine
	orch     *scheduler.Orchestrator
}

func buildSystem(ch chan<- events.Event) (*system, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	registry := devices.New(logger)
	gov := governor.Load(cfg.Policy.Path, logger)

	client, err := brain.NewFromConfig(brain.Config{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLMTimeout(),
	})
	if err != nil {
		return nil, err
	}

	skills := sandbox.NewEngine(registry, cfg.Skills.Dir, logger,
		sandbox.WithGovernor(gov),
		sandbox.WithTimeout(cfg.SkillTimeout()),
		sandbox.WithEvents(ch),
	)

	orch := scheduler.New(client, gov, cfg.LLM.Model, logger)
	return &system{cfg: cfg, registry: registry, governor: gov, skills: skills, orch: orch}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	sys, err := buildSystem(nil)
	if err != nil {
		return err
	}

	if err := sys.skills.Watch(ctx); err != nil {
		return fmt.Errorf("failed to watch skills directory: %w", err)
	}

	var opts []server.Option
	if path := sys.cfg.Logging.Audit; path != "" {
		trail, err := audit.Open(path, logger)
		if err != nil {
			return err
		}
		defer trail.Close()
		opts = append(opts, server.WithAudit(trail))
	}

	srv := server.New(sys.orch, sys.registry, sys.skills, sys.governor, logger, opts...)
	return srv.Run(ctx, sys.cfg.Server.Listen, sys.cfg.Server.AllowedOrigins)
}

func runMission(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	ch := make(chan events.Event, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		renderEvents(ch)
	}()

	sys, err := buildSystem(ch)
	if err != nil {
		close(ch)
		<-done
		return err
	}

	mission := strings.Join(args, " ")
	report, err := sys.orch.ExecuteMission(ctx, mission, ch)
	close(ch)
	<-done
	if err != nil {
		if report != nil && report.Final != "" {
			fmt.Println(report.Final)
		}
		return err
	}

	fmt.Println(report.Final)
	return nil
}

// renderEvents prints engine events until the channel closes.
func renderEvents(ch <-chan events.Event) {
	for e := range ch {
		switch ev := e.(type) {
		case events.Stream:
			fmt.Print(ev.Text)
		case events.Status:
			fmt.Printf("[%s] mission %s\n", ev.Phase, ev.MissionID)
		case events.TaskUpdate:
			line := fmt.Sprintf("  task %s (%s): %s", ev.TaskID, ev.Agent, ev.Status)
			if ev.Detail != "" {
				line += " - " + ev.Detail
			}
			fmt.Println(line)
		case events.Trace:
			fmt.Printf("  trace %s: %s\n", ev.Source, ev.Line)
		case events.Summary:
			fmt.Printf("[done] %s in %s (%d tokens)\n", ev.MissionID, ev.Elapsed.Round(time.Millisecond), ev.Tokens)
		}
	}
}

func listDevices(cmd *cobra.Command, args []string) error {
	sys, err := buildSystem(nil)
	if err != nil {
		return err
	}
	for _, e := range sys.registry.All() {
		fmt.Printf("%-14s %-8s %-10s %s\n", e.ID, e.Type, e.Status, e.Name)
	}
	return nil
}

func commandDevice(cmd *cobra.Command, args []string) error {
	sys, err := buildSystem(nil)
	if err != nil {
		return err
	}

	id, verb := args[0], strings.Join(args[1:], " ")
	if !sys.governor.AssessRisk(verb) {
		return fmt.Errorf("command %q blocked by policy", verb)
	}
	msg, err := sys.registry.ExecuteCommand(id, verb)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func discoverDevices(cmd *cobra.Command, args []string) error {
	sys, err := buildSystem(nil)
	if err != nil {
		return err
	}
	found := sys.registry.Discover()
	if len(found) == 0 {
		fmt.Println("no new devices found")
		return nil
	}
	for _, e := range found {
		fmt.Printf("discovered %-14s %-8s %s\n", e.ID, e.Type, e.Name)
	}
	return nil
}

func listSkills(cmd *cobra.Command, args []string) error {
	sys, err := buildSystem(nil)
	if err != nil {
		return err
	}
	names, err := sys.skills.ListSkills()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no skills installed")
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func execSkill(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	sys, err := buildSystem(nil)
	if err != nil {
		return err
	}

	input := strings.Join(args[1:], " ")
	output, err := sys.skills.RunSkill(ctx, args[0], input)
	if err != nil {
		return err
	}
	fmt.Println(output)
	return nil
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	sys, err := buildSystem(nil)
	if err != nil {
		return err
	}

	manifest, err := jobs.LoadManifest(sys.cfg.Jobs.Path)
	if err != nil {
		return err
	}
	runner := jobs.NewRunner(sys.orch, logger)
	return runner.RunAll(ctx, manifest, nil)
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

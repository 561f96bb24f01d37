package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/schaermu/agconf/internal/config"
	"github.com/schaermu/agconf/internal/git"
	"github.com/schaermu/agconf/internal/lockfile"
	"github.com/schaermu/agconf/internal/source"
	"github.com/schaermu/agconf/internal/sync"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	repoDir   string
	logLevel  string
	logFormat string

	// Sync flags
	dryRun     bool
	override   bool
	force      bool
	sourceFlag string
	refFlag    string
	targets    []string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agconf",
	Short: "Synchronize AI agent configuration from a canonical repository",
	Long: `agconf distributes organization-wide agent instructions, skills, rules and
sub-agents from a canonical repository into downstream repositories.

Synced files are marked as managed so that later runs can update them, report
local edits, and clean up artifacts that were removed upstream without ever
touching content the repository owns.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync canonical content into the repository",
	Long: `Sync resolves the canonical source, merges the global instructions into
AGENTS.md, writes skills, rules and agents for every configured target, and
removes orphaned artifacts that were not edited locally.

The result is recorded in .agconf/lockfile.json.`,
	RunE: runSync,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that managed files have not been modified",
	Long: `Check compares every file recorded in the lockfile with the content hash
embedded when it was synced. It exits non-zero when anything drifted and never
modifies the repository.`,
	RunE: runCheck,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what was last synced",
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "agconf %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <dir>/.agconf/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&repoDir, "dir", ".", "repository root to operate on")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "log format (text, json, auto)")

	// Sync command flags
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
	syncCmd.Flags().BoolVar(&override, "override", false, "rewrite AGENTS.md from scratch, dropping repository content")
	syncCmd.Flags().BoolVar(&force, "force", false, "delete orphaned artifacts even when they were edited locally")
	syncCmd.Flags().StringVar(&sourceFlag, "source", "", "canonical source (git URL or local path), overrides the config file")
	syncCmd.Flags().StringVar(&refFlag, "ref", "", "git ref to sync when --source is a URL")
	syncCmd.Flags().StringSliceVar(&targets, "target", nil, "agent targets to sync (claude, codex)")

	// Add commands
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	dir, err := repositoryRoot()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(logger, dir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	gitClient := git.NewShellClient(git.Auth{
		SSHKeyFile:     cfg.Auth.SSHKeyFile,
		HTTPSTokenFile: cfg.Auth.HTTPSTokenFile,
	})
	resolver := source.NewResolver(cfg, dir, gitClient)

	engine := sync.NewEngine(cfg, dir, resolver, logger, sync.Options{
		DryRun:   dryRun,
		Override: override || cfg.Sync.Override,
		Force:    force,
	})

	report, err := engine.Run(ctx)
	if err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}

	printReport(cmd.OutOrStdout(), report)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	dir, err := repositoryRoot()
	if err != nil {
		return err
	}

	report, err := sync.Check(dir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if report.OK() {
		fmt.Fprintf(out, "All %d managed files are in sync.\n", report.Checked)
		return nil
	}
	fmt.Fprintf(out, "%d of %d managed files drifted:\n", len(report.Drifts), report.Checked)
	for _, d := range report.Drifts {
		fmt.Fprintf(out, "  %s\n", d)
	}
	return fmt.Errorf("managed content drifted in %d file(s)", len(report.Drifts))
}

func runStatus(cmd *cobra.Command, args []string) error {
	dir, err := repositoryRoot()
	if err != nil {
		return err
	}

	lf, err := lockfile.Load(lockfile.Path(dir))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if lf == nil {
		fmt.Fprintln(out, "Not synced yet. Run 'agconf sync' to get started.")
		return nil
	}

	fmt.Fprintf(out, "Source:    %s\n", lf.Source)
	if lf.Source.Ref != "" {
		fmt.Fprintf(out, "Ref:       %s\n", lf.Source.Ref)
	}
	fmt.Fprintf(out, "Synced at: %s\n", lf.SyncedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Prefix:    %s\n", lf.MarkerPrefix)
	fmt.Fprintf(out, "Targets:   %s\n", strings.Join(lf.Targets, ", "))
	fmt.Fprintf(out, "Skills:    %d\n", len(lf.Content.Skills))
	fmt.Fprintf(out, "Rules:     %d\n", len(lf.Content.Rules))
	fmt.Fprintf(out, "Agents:    %d\n", len(lf.Content.Agents))
	return nil
}

func printReport(out io.Writer, r *sync.Report) {
	verb := ""
	if r.DryRun {
		verb = "would be "
	}
	section := func(title string, paths []string) {
		if len(paths) == 0 {
			return
		}
		fmt.Fprintf(out, "%s%s:\n", verb, title)
		for _, p := range paths {
			fmt.Fprintf(out, "  %s\n", p)
		}
	}

	fmt.Fprintf(out, "Synced from %s\n", r.Source)
	section("added", r.Added)
	section("updated", r.Updated)
	section("deleted", r.Deleted)

	if len(r.Overwritten) > 0 {
		fmt.Fprintln(out, "Local edits overwritten:")
		for _, p := range r.Overwritten {
			fmt.Fprintf(out, "  %s\n", p)
		}
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintln(out, "Orphans kept:")
		for _, s := range r.Skipped {
			fmt.Fprintf(out, "  %s (%s)\n", s.Path, s.Decision.Reason)
		}
	}
	if len(r.Validation) > 0 {
		fmt.Fprintln(out, "Validation errors:")
		for _, err := range r.Validation {
			fmt.Fprintf(out, "  %v\n", err)
		}
	}
	if !r.Changed() {
		fmt.Fprintln(out, "Already up to date.")
	}
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	switch logFormat {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		if term.IsTerminal(int(os.Stderr.Fd())) {
			handler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
	}

	return slog.New(handler)
}

func repositoryRoot() (string, error) {
	dir, err := filepath.Abs(repoDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve repository directory: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("repository directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("repository directory %s is not a directory", dir)
	}
	return dir, nil
}

// loadConfig builds the configuration from --source when given, otherwise
// from the config file.
func loadConfig(logger *slog.Logger, dir string) (*config.Config, error) {
	var cfg *config.Config
	if sourceFlag != "" {
		c, err := config.FromSource(sourceFlag, refFlag)
		if err != nil {
			return nil, err
		}
		// Paths on the command line are relative to the working directory.
		if !c.IsRemote() && !filepath.IsAbs(c.Source.Path) {
			abs, err := filepath.Abs(c.Source.Path)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve source path: %w", err)
			}
			c.Source.Path = abs
		}
		cfg = c
		logger.Info("using source from command line", "source", sourceFlag)
	} else {
		configPath := cfgFile
		if configPath == "" {
			configPath = config.Path(dir)
		}

		logger.Info("loading configuration", "path", configPath)

		c, err := config.Load(configPath)
		if errors.Is(err, os.ErrNotExist) && cfgFile == "" {
			return nil, fmt.Errorf("no %s found; pass --source or create one", config.RelPath)
		}
		if err != nil {
			return nil, err
		}
		cfg = c
	}

	if len(targets) > 0 {
		cfg.Targets = targets
	}

	logger.Debug("configuration loaded",
		"url", cfg.Source.URL,
		"ref", cfg.Source.Ref,
		"path", cfg.Source.Path,
		"subdir", cfg.Source.Subdir,
		"auth", cfg.AuthMethod(),
		"targets", cfg.Targets)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/schaermu/cadsync/internal/config"
	"github.com/schaermu/cadsync/internal/eventlog"
	"github.com/schaermu/cadsync/internal/office"
	"github.com/schaermu/cadsync/internal/settings"
	"github.com/schaermu/cadsync/internal/sync"
	"github.com/spf13/cobra"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Command flags
	preferLocal bool
	background  bool
	clean       bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cadsync",
	Short: "Synchronize CAD office standards to the local workstation",
	Long: `cadsync keeps a workstation's copy of the CAD office standards (settings,
packages, fonts, hatch patterns, plot styles and plotter configurations) in
step with the central standards share.

It compares the central tree against the local user tree, copies whatever is
missing or out of date and lays the selected office's standards into the
folders the CAD application reads from.`,
	SilenceUsage: true,
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Show which standards files are out of date",
	RunE:  runCompare,
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Compare and copy every out of date standards file",
	Long: `Update runs a compare pass and then copies every file that is missing or
older than its source. Files that are newer locally are never overwritten.

When no central location is reachable the local common snapshot is used.`,
	RunE: runUpdate,
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Lay the cached office standards into the application folders",
	RunE:  runPublish,
}

var firstRunCmd = &cobra.Command{
	Use:   "first-run",
	Short: "Seed the user folders from the local common snapshot",
	RunE:  runFirstRun,
}

var officesCmd = &cobra.Command{
	Use:   "offices",
	Short: "List the known offices",
	RunE:  runOffices,
}

var officeCmd = &cobra.Command{
	Use:   "office",
	Short: "Manage the selected office",
}

var officeSelectCmd = &cobra.Command{
	Use:   "select <REGION-Office>",
	Short: "Select the office whose standards are synced",
	Args:  cobra.ExactArgs(1),
	RunE:  runOfficeSelect,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cadsync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/cadsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	compareCmd.Flags().BoolVar(&preferLocal, "local", false, "compare against the local common snapshot instead of the central share")
	updateCmd.Flags().BoolVar(&preferLocal, "local", false, "update from the local common snapshot instead of the central share")
	updateCmd.Flags().BoolVar(&background, "background", false, "run the copy pass on a background worker and wait for it")
	publishCmd.Flags().BoolVar(&clean, "clean", false, "empty the application folders before publishing")

	officeCmd.AddCommand(officeSelectCmd)

	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(firstRunCmd)
	rootCmd.AddCommand(officesCmd)
	rootCmd.AddCommand(officeCmd)
	rootCmd.AddCommand(versionCmd)
}

// app bundles what every command needs
type app struct {
	logger  *slog.Logger
	cfg     *config.Config
	store   settings.Store
	offices office.List
	origin  office.Origin
	office  office.Office
	// events collects what the engine reported so it can be summarised on
	// stdout next to the log output
	events  *eventlog.Recorder
}

func newApp(ctx context.Context) (*app, error) {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &app{logger: logger, cfg: cfg}

	if cfg.SettingsFile != "" {
		store, err := settings.OpenFileStore(cfg.SettingsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open settings: %w", err)
		}
		if err := cfg.ApplySettings(store); err != nil {
			return nil, err
		}
		a.store = store
	}

	loader := cfg.OfficeLoader()
	loader.Logger = logger
	a.offices, a.origin, err = loader.Load(ctx)
	if err != nil {
		logger.Warn("office list unavailable, using configured office only", "error", err)
	}

	a.office, err = cfg.ActiveOffice(a.offices)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active office: %w", err)
	}
	logger.Debug("active office", "office", a.office.ID, "name", a.office.String())

	return a, nil
}

func (a *app) engine() (*sync.Engine, error) {
	a.events = eventlog.NewRecorder()
	events := eventlog.Multi{eventlog.NewSlogSink(a.logger, a.cfg.Events.LogInfo), a.events}
	return sync.NewEngine(a.cfg.SyncContext(a.office),
		sync.WithLogger(a.logger),
		sync.WithEvents(events),
	)
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	engine, err := a.engine()
	if err != nil {
		return err
	}

	res := engine.CompareAll(ctx, preferLocal)
	if err := compareError(res); err != nil {
		return err
	}
	printCompareTable(cmd.OutOrStdout(), engine, res)
	printEvents(cmd.OutOrStdout(), a.events)
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	engine, err := a.engine()
	if err != nil {
		return err
	}

	if err := engine.ValidateCriticalFiles(ctx); err != nil {
		a.logger.Warn("failed to validate critical files", "error", err)
	}

	res := engine.CompareAll(ctx, preferLocal)
	if err := compareError(res); err != nil {
		return err
	}
	if res.Status == sync.Disabled {
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		return nil
	}

	var report *sync.Report
	if background {
		job, err := engine.BackgroundUpdate(ctx)
		if err != nil {
			return err
		}
		a.logger.Info("update running in background", "run_id", job.RunID)
		report = job.Wait()
	} else {
		report, err = engine.Update(ctx)
		if err != nil {
			return err
		}
	}

	printReport(cmd.OutOrStdout(), report)
	printEvents(cmd.OutOrStdout(), a.events)
	if report.Canceled {
		return context.Canceled
	}
	return nil
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	engine, err := a.engine()
	if err != nil {
		return err
	}

	report, err := engine.Publish(ctx, clean)
	if err != nil {
		return fmt.Errorf("failed to publish standards: %w", err)
	}
	printReport(cmd.OutOrStdout(), report)
	printEvents(cmd.OutOrStdout(), a.events)
	return nil
}

func runFirstRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	engine, err := a.engine()
	if err != nil {
		return err
	}

	seeded, err := engine.HandleFirstRun(ctx)
	if err != nil {
		return err
	}
	if err := engine.ValidateCriticalFiles(ctx); err != nil {
		return err
	}
	if err := engine.CacheFromLocalCommon(ctx); err != nil {
		return err
	}

	if seeded {
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %s from %s\n", a.cfg.Paths.LocalUser, a.cfg.Paths.LocalCommon)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "User folders already present, critical files validated")
	}
	return nil
}

func runOffices(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	if len(a.offices) == 0 {
		return office.ErrNoOffices
	}
	printOfficesTable(cmd.OutOrStdout(), a.offices, a.office.ID)
	a.logger.Debug("office list origin", "origin", string(a.origin))
	return nil
}

func runOfficeSelect(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	if a.store == nil {
		return fmt.Errorf("settings_file must be configured to save the selected office")
	}

	o, err := selectOffice(a.store, a.offices, args[0])
	if err != nil {
		return err
	}
	a.logger.Info("office selected", "office", o.ID)
	fmt.Fprintf(cmd.OutOrStdout(), "Selected %s (%s)\n", o.ID, o.String())
	return nil
}

// selectOffice persists id as the saved office. The id must name a known
// office when a list is available.
func selectOffice(store settings.Store, list office.List, id string) (office.Office, error) {
	o, ok := list.ByID(id)
	if !ok {
		if len(list) > 0 {
			return office.Office{}, fmt.Errorf("unknown office: %s", id)
		}
		var err error
		region, dir, _ := strings.Cut(id, "-")
		if o, err = office.New(office.Data{RegionDir: region, OfficeDir: dir}); err != nil {
			return office.Office{}, fmt.Errorf("invalid office id %q: %w", id, err)
		}
	}
	if err := store.Set(settings.KeySavedOffice, settings.String(o.ID)); err != nil {
		return office.Office{}, fmt.Errorf("failed to save office: %w", err)
	}
	return o, nil
}

// compareError turns an unsuccessful compare into a command error
func compareError(res sync.CompareResult) error {
	switch res.Status {
	case sync.Succeeded, sync.Disabled:
		return nil
	case sync.Busy:
		return sync.ErrBusy
	default:
		if res.Err != nil {
			return fmt.Errorf("%s: %w", res.Message, res.Err)
		}
		return errors.New(res.Message)
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

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "cadsync", "config.yaml")
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"central", []string(cfg.Paths.Central),
		"local_common", cfg.Paths.LocalCommon,
		"local_user", cfg.Paths.LocalUser,
		"office", cfg.OfficeID(),
		"compare", string(cfg.Sync.Compare))

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

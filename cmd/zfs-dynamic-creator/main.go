// Copyright 2026 The zfs-dynamic-creator Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/tesujimath/zfs-dynamic-creator/lib/config"
	"github.com/tesujimath/zfs-dynamic-creator/lib/exports"
	"github.com/tesujimath/zfs-dynamic-creator/lib/migrate"
	"github.com/tesujimath/zfs-dynamic-creator/lib/rsync"
	"github.com/tesujimath/zfs-dynamic-creator/lib/version"
	"github.com/tesujimath/zfs-dynamic-creator/lib/zfs"
)

const synopsis = "zfs-dynamic-creator [flags] <root-fs> <root-dir> [<name> <event>]"

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run parses the invocation and dispatches it. Exit policy: malformed
// invocations exit 2 before any action; every runtime failure is
// logged in full and the process exits 0, so the watcher driving this
// tool observes failures through logs rather than exit codes.
func run(args []string, stderr io.Writer) int {
	flags := pflag.NewFlagSet("zfs-dynamic-creator", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintf(stderr, "usage: %s\n", synopsis)
		flags.PrintDefaults()
	}

	var (
		configPath   = flags.String("config", "", "YAML config file (overrides "+config.EnvVar+")")
		delay        = flags.Duration("delay", 0, "quiescence window before staging a new directory")
		addExport    = flags.Bool("add-export", false, "add/update export entries for newly migrated filesystems")
		syncExports  = flags.Bool("add-remove-all-exports", false, "fully resync the managed export subtree instead")
		filter       = flags.String("filter", "", "only migrate created names matching this regexp")
		exportsFile  = flags.String("exports-file", "", "export table path (default /etc/exports)")
		quiet        = flags.Bool("quiet", false, "suppress non-essential logging")
		printVersion = flags.Bool("version", false, "print version information and exit")
	)

	if err := flags.Parse(args); err != nil {
		return 2
	}
	if *printVersion {
		fmt.Fprintf(stderr, "zfs-dynamic-creator %s\n", version.Full())
		return 0
	}
	if *addExport && *syncExports {
		fmt.Fprintln(stderr, "error: --add-export and --add-remove-all-exports are mutually exclusive")
		flags.Usage()
		return 2
	}

	positional := flags.Args()
	if len(positional) != 2 && len(positional) != 4 {
		fmt.Fprintf(stderr, "error: expected 2 or 4 arguments, got %d\n", len(positional))
		flags.Usage()
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	if flags.Changed("delay") {
		cfg.Delay = delay.String()
	}
	if flags.Changed("filter") {
		cfg.Filter = *filter
	}
	if flags.Changed("exports-file") {
		cfg.ExportsFile = *exportsFile
	}
	if flags.Changed("quiet") {
		cfg.Quiet = *quiet
	}
	if *addExport {
		cfg.ExportMode = config.ExportAdd
	}
	if *syncExports {
		cfg.ExportMode = config.ExportSync
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	logger := newLogger(stderr, cfg.Quiet)
	if err := dispatch(context.Background(), cfg, positional, logger); err != nil {
		logger.Error("event processing failed", "args", positional, "error", err)
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newLogger(stderr io.Writer, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("ZFS_DYNAMIC_CREATOR_DEBUG") != "" {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// dispatch runs one invocation: a single watch event (4 arguments) or
// a standalone full-resync reconciliation (2 arguments).
func dispatch(ctx context.Context, cfg *config.Config, positional []string, logger *slog.Logger) error {
	rootFs := strings.TrimSuffix(positional[0], "/")
	rootDir := strings.TrimSuffix(positional[1], "/")
	storage := zfs.New(cfg.Binaries.ZFS)

	if len(positional) == 2 {
		return resyncExports(ctx, cfg, storage, rootFs, rootDir, logger)
	}

	delay, err := cfg.DelayDuration()
	if err != nil {
		return err
	}
	pattern, err := cfg.FilterPattern()
	if err != nil {
		return err
	}

	engine := migrate.NewEngine(migrate.Config{
		RootFilesystem: rootFs,
		RootDirectory:  rootDir,
		Storage:        storage,
		Copier:         rsync.New(cfg.Binaries.Rsync),
		Delay:          delay,
		Logger:         logger,
	})

	var onMigrated migrate.OnMigrated
	if cfg.ExportMode != config.ExportNone {
		onMigrated = func(ctx context.Context, migrated string, allFilesystems []string) error {
			return reconcileExports(ctx, cfg, rootFs, rootDir,
				[]string{migrated}, allFilesystems, logger)
		}
	}

	router := migrate.NewRouter(engine, pattern, onMigrated, logger)
	return router.Route(ctx, migrate.Event{Name: positional[2], Kind: positional[3]})
}

// resyncExports is the two-argument invocation: reconcile the export
// table against the current inventory with no migration side effects.
func resyncExports(ctx context.Context, cfg *config.Config, storage migrate.Storage, rootFs, rootDir string, logger *slog.Logger) error {
	allFilesystems, err := storage.List(ctx)
	if err != nil {
		return err
	}
	return commitReconciled(ctx, cfg, rootFs, rootDir, nil, allFilesystems, exports.FullResync, logger)
}

// reconcileExports runs the post-migration reconciliation in the mode
// the configuration selects.
func reconcileExports(ctx context.Context, cfg *config.Config, rootFs, rootDir string, newlyMigrated, allFilesystems []string, logger *slog.Logger) error {
	mode := exports.Incremental
	if cfg.ExportMode == config.ExportSync {
		mode = exports.FullResync
	}
	return commitReconciled(ctx, cfg, rootFs, rootDir, newlyMigrated, allFilesystems, mode, logger)
}

// commitReconciled is the load-reconcile-commit-refresh sequence every
// export path goes through. The re-export trigger fires only when the
// commit actually replaced the file.
func commitReconciled(ctx context.Context, cfg *config.Config, rootFs, rootDir string, newlyMigrated, allFilesystems []string, mode exports.Mode, logger *slog.Logger) error {
	table, err := exports.Load(cfg.ExportsFile)
	if err != nil {
		return err
	}
	exports.Reconcile(table, rootFs, rootDir, newlyMigrated, allFilesystems, mode)
	changed, err := table.Commit()
	if err != nil {
		return err
	}
	if !changed {
		logger.Debug("export table unchanged", "mode", mode.String())
		return nil
	}
	logger.Info("export table updated", "file", cfg.ExportsFile, "mode", mode.String())
	return exports.NewExporter(cfg.Binaries.Exportfs).Refresh(ctx)
}

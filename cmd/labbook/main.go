// Command labbook runs the lab-management server and its operator commands.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/hylla/labbook/internal/adapters/notify"
	"github.com/hylla/labbook/internal/adapters/server"
	"github.com/hylla/labbook/internal/adapters/server/common"
	"github.com/hylla/labbook/internal/adapters/storage/sqlite"
	"github.com/hylla/labbook/internal/app"
	"github.com/hylla/labbook/internal/config"
	"github.com/hylla/labbook/internal/platform"
	"github.com/spf13/cobra"
)

// version is replaced at build time.
var version = "dev"

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := fang.Execute(context.Background(), root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}

// globalOptions holds flags shared by every command.
type globalOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{stderr: stderr}

	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("LABBOOK_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	defaultApp := platform.DefaultAppName
	if envApp := strings.TrimSpace(os.Getenv("LABBOOK_APP_NAME")); envApp != "" {
		defaultApp = envApp
	}

	root := &cobra.Command{
		Use:           "labbook",
		Short:         "Lab project, inventory and budget tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config TOML")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	root.PersistentFlags().StringVar(&opts.appName, "app", defaultApp, "application name for config/data path resolution")
	root.PersistentFlags().BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		newServeCmd(opts),
		newPathsCmd(opts),
		newProjectsCmd(opts),
		newProgressCmd(opts),
		newDashboardCmd(opts),
		newReportCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
	)
	return root
}

// runtimeEnv holds everything a command needs once config and storage are resolved.
type runtimeEnv struct {
	paths      platform.Paths
	configPath string
	cfg        config.Config
	logger     *runtimeLogger
	repo       *sqlite.Repository
	svc        *app.Service
}

// resolvePaths applies flag and env overrides to platform defaults.
func resolvePaths(opts *globalOptions) (platform.Paths, string, string, bool, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{AppName: opts.appName, DevMode: opts.devMode})
	if err != nil {
		return platform.Paths{}, "", "", false, err
	}
	configPath := strings.TrimSpace(opts.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("LABBOOK_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(opts.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("LABBOOK_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}
	return paths, configPath, dbPath, dbOverridden, nil
}

// openRuntime loads config, starts logging and opens the repository.
func openRuntime(command string, opts *globalOptions) (*runtimeEnv, error) {
	paths, configPath, dbPath, dbOverridden, err := resolvePaths(opts)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(opts.stderr, opts.appName, opts.devMode, cfg.Logging, paths.LogDir, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.Info("startup configuration resolved", "app", opts.appName, "dev_mode", opts.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	logger.Debug("sqlite repository ready", "db_path", cfg.Database.Path)

	svc := app.NewService(repo, uuid.NewString, nil, app.ServiceConfig{
		DefaultDeleteMode: app.DeleteMode(cfg.Delete.DefaultMode),
		CodeAttempts:      cfg.IDs.MaxAttempts,
		Thresholds: app.Thresholds{
			PlaquetteNearlyFull: cfg.Thresholds.PlaquetteNearlyFull,
			BudgetWarn:          cfg.Thresholds.BudgetWarn,
			AttendanceMin:       cfg.Thresholds.AttendanceMin,
		},
	})
	return &runtimeEnv{
		paths:      paths,
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
		repo:       repo,
		svc:        svc,
	}, nil
}

// Close releases the repository and log sinks.
func (e *runtimeEnv) Close() {
	if err := e.repo.Close(); err != nil {
		e.logger.Warn("sqlite close failed", "db_path", e.cfg.Database.Path, "err", err)
	}
	_ = e.logger.Close()
}

// withRuntime opens the runtime around one command body and logs its outcome.
func withRuntime(command string, opts *globalOptions, fn func(*runtimeEnv) error) error {
	env, err := openRuntime(command, opts)
	if err != nil {
		return err
	}
	defer env.Close()
	env.logger.Debug("command flow start", "command", command)
	if err := fn(env); err != nil {
		env.logger.Error("command flow failed", "command", command, "err", err)
		return fmt.Errorf("run %s command: %w", command, err)
	}
	env.logger.Debug("command flow complete", "command", command)
	return nil
}

func newServeCmd(opts *globalOptions) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime("serve", opts, func(env *runtimeEnv) error {
				serverCfg := env.cfg.Server
				if strings.TrimSpace(bind) != "" {
					serverCfg.HTTPBind = bind
				}
				recorder := notify.NewRecorder(env.cfg.Notifications.RingSize)
				tracker := app.NewTracker(
					env.svc,
					app.NewIntents(env.cfg.Store.CommitTimeout.Std(), nil),
					notify.Fanout{notify.NewLogNotifier(env.logger.Console()), recorder},
				)
				defer tracker.Close()

				return server.Run(cmd.Context(), server.Config{
					HTTPBind:        serverCfg.HTTPBind,
					APIEndpoint:     serverCfg.APIEndpoint,
					MCPEndpoint:     serverCfg.MCPEndpoint,
					ServerName:      opts.appName,
					ServerVersion:   version,
					ShutdownTimeout: serverCfg.ShutdownTimeout.Std(),
				}, server.Dependencies{
					Service:       common.NewAppServiceAdapter(env.svc, tracker),
					Notifications: recorder,
					Ready:         env.repo.Ping,
					Logger:        env.logger.Console(),
				})
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "override server.http_bind")
	return cmd
}

func newPathsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data and database paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, configPath, dbPath, _, err := resolvePaths(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", configPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", dbPath)
			_, _ = fmt.Fprintf(out, "logs: %s\n", paths.LogDir)
			return nil
		},
	}
}

func newProjectsCmd(opts *globalOptions) *cobra.Command {
	var includeArchived bool
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List projects with their derived progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime("projects", opts, func(env *runtimeEnv) error {
				projects, err := env.svc.ListProjects(cmd.Context(), includeArchived)
				if err != nil {
					return err
				}
				rows := make([]app.ProjectProgress, 0, len(projects))
				for _, project := range projects {
					progress, err := env.svc.ProjectProgress(cmd.Context(), project.ID)
					if err != nil {
						return err
					}
					rows = append(rows, progress)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), renderProjects(rows))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&includeArchived, "archived", false, "include archived projects")
	return cmd
}

func newProgressCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <project-id>",
		Short: "Show milestone and activity progress for one project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime("progress", opts, func(env *runtimeEnv) error {
				progress, err := env.svc.ProjectProgress(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), renderProgress(progress))
				return err
			})
		},
	}
}

func newDashboardCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the lab-wide dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime("dashboard", opts, func(env *runtimeEnv) error {
				dashboard, err := env.svc.Dashboard(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), renderDashboard(dashboard, time.Now()))
				return err
			})
		},
	}
}

func newReportCmd(opts *globalOptions) *cobra.Command {
	var (
		style string
		width int
		raw   bool
	)
	cmd := &cobra.Command{
		Use:   "report <project-id>",
		Short: "Render a markdown progress and budget report for one project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime("report", opts, func(env *runtimeEnv) error {
				progress, err := env.svc.ProjectProgress(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				budget, err := env.svc.BudgetSummary(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				markdown := projectReportMarkdown(progress, budget, time.Now())
				if raw {
					_, err = io.WriteString(cmd.OutOrStdout(), markdown)
					return err
				}
				rendered, err := renderMarkdown(markdown, style, width)
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), rendered)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&style, "style", "dark", "glamour style: dark|light|notty|ascii")
	cmd.Flags().IntVar(&width, "width", 100, "word wrap width")
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without rendering")
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var outPath, format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every table as a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime("export", opts, func(env *runtimeEnv) error {
				return runExport(cmd.Context(), env.svc, outPath, format, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	cmd.Flags().StringVar(&format, "format", "", "json|yaml (default from --out extension, else json)")
	return cmd
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	var inPath, format string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a snapshot, merging rows by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(inPath) == "" {
				return fmt.Errorf("--in is required")
			}
			return withRuntime("import", opts, func(env *runtimeEnv) error {
				return runImport(cmd.Context(), env.svc, inPath, format)
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot file")
	cmd.Flags().StringVar(&format, "format", "", "json|yaml (default from --in extension, else json)")
	return cmd
}

// parseBoolEnv reads a boolean environment variable; ok is false when unset or invalid.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return value, true
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"termbridge/internal/analyzer"
	"termbridge/internal/audit"
	"termbridge/internal/config"
	"termbridge/internal/domain"
	"termbridge/internal/executor"
	"termbridge/internal/health"
	"termbridge/internal/server"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "termbridge",
		Short: "termbridge: terminal command execution and analysis service",
		Long:  "termbridge runs shell commands under a bounded time budget and statically analyzes command strings for risky patterns, over a local HTTP JSON API.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.termbridge/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(analyzeCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(configCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadOrDefaults loads the config, falling back to defaults with a warning.
func loadOrDefaults() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		return config.Defaults()
	}
	return cfg
}

// setupLogger rebuilds the process logger from config.
func setupLogger(cfg *config.Config) error {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stderr
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("cannot open log file: %w", err)
		}
		out = f
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return nil
}

// buildAnalyzer creates the analyzer with built-in rules plus configured
// rule packs.
func buildAnalyzer(cfg *config.Config) (*analyzer.Analyzer, error) {
	extra, err := analyzer.LoadRulePacks(cfg.Analyzer.RulePacks)
	if err != nil {
		return nil, fmt.Errorf("rule packs: %w", err)
	}
	return analyzer.NewDefault(extra...), nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			workDir := config.ExpandPath(cfg.Executor.WorkingDir)
			if err := os.MkdirAll(workDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "workspace", workDir)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the execution and analysis server",
		Long:  "Starts the HTTP server exposing /mcp/execute, /mcp/analyze and /health. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	if err := setupLogger(cfg); err != nil {
		return err
	}

	workDir := config.ExpandPath(cfg.Executor.WorkingDir)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return err
	}

	// Graceful shutdown on signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var auditLogger domain.AuditLogger
	if cfg.Audit.Enabled {
		store, err := audit.NewSQLiteStore(cfg.Audit.DBPath, logger)
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		defer store.Close()
		auditLogger = store
		logger.Info("audit journal enabled", "path", cfg.Audit.DBPath)
	}

	anlz, err := buildAnalyzer(cfg)
	if err != nil {
		return err
	}
	logger.Info("analyzer ready", "rules", len(anlz.Rules()))

	exec := executor.New(executor.Config{
		WorkingDir:     workDir,
		TimeoutSeconds: cfg.Executor.TimeoutSeconds,
		MaxOutputBytes: cfg.Executor.MaxOutputBytes,
		Logger:         logger,
	})

	srv := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		Version:         version,
		Executor:        exec,
		Analyzer:        anlz,
		Audit:           auditLogger,
		Logger:          logger,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
	})

	return srv.Start(ctx)
}

func runCmd() *cobra.Command {
	var cwd string
	cmd := &cobra.Command{
		Use:   "run [command]",
		Short: "Execute a command once and print the structured result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadOrDefaults()
			exec := executor.New(executor.Config{
				WorkingDir:     config.ExpandPath(cfg.Executor.WorkingDir),
				TimeoutSeconds: cfg.Executor.TimeoutSeconds,
				MaxOutputBytes: cfg.Executor.MaxOutputBytes,
				Logger:         logger,
			})

			res := exec.Execute(cmd.Context(), domain.ExecRequest{Command: args[0], WorkingDir: cwd})

			out := map[string]any{
				"success": res.Success,
				"output":  res.Stdout,
				"error":   res.Stderr,
			}
			if res.FailureReason != "" {
				out["error"] = res.FailureReason
			}
			if res.ExitCode != nil {
				out["return_code"] = *res.ExitCode
			}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory for the command")
	return cmd
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [command]",
		Short: "Analyze a command string for risky patterns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadOrDefaults()
			anlz, err := buildAnalyzer(cfg)
			if err != nil {
				return err
			}

			res := anlz.Analyze(domain.AnalysisRequest{Command: args[0]})
			suggestions := res.Suggestions
			if suggestions == nil {
				suggestions = []string{}
			}
			data, _ := json.MarshalIndent(map[string]any{
				"command":     res.Command,
				"type":        "analysis",
				"suggestions": suggestions,
				"risk_level":  string(res.RiskLevel),
			}, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check liveness of configured instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadOrDefaults()
			if len(cfg.Health.Targets) == 0 {
				return fmt.Errorf("no health targets configured")
			}

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			sp.Suffix = " checking instances..."
			sp.Start()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			poller := health.NewPoller(time.Duration(cfg.Health.TimeoutSeconds)*time.Second, logger)
			targets := make([]health.Target, 0, len(cfg.Health.Targets))
			for _, t := range cfg.Health.Targets {
				targets = append(targets, health.Target{Name: t.Name, URL: t.URL})
			}
			reports := poller.CheckAll(ctx, targets)
			sp.Stop()

			printReports(reports)
			return nil
		},
	}
}

func printReports(reports []health.Report) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	running := 0
	for _, r := range reports {
		name := fmt.Sprintf("%-16s", r.Name)
		switch r.Status {
		case health.StatusRunning:
			running++
			fmt.Printf("%s %s %s (HTTP %d)\n", green("✔"), name, green("RUNNING"), r.StatusCode)
		case health.StatusDown:
			fmt.Printf("%s %s %s - %s\n", red("✘"), name, red("DOWN"), r.Error)
		case health.StatusTimeout:
			fmt.Printf("%s %s %s - %s\n", yellow("✘"), name, yellow("TIMEOUT"), r.Error)
		default:
			fmt.Printf("%s %s %s - %s\n", red("✘"), name, red("ERROR"), r.Error)
		}
	}

	fmt.Println(strings.Repeat("-", 40))
	if running == len(reports) {
		fmt.Println(green(fmt.Sprintf("All %d instances are running", running)))
	} else {
		fmt.Println(yellow(fmt.Sprintf("%d of %d instances are running", running, len(reports))))
	}
}

func auditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadOrDefaults()
			if cfg.Audit.DBPath == "" {
				return fmt.Errorf("audit.dbPath is not configured")
			}
			store, err := audit.NewSQLiteStore(config.ExpandPath(cfg.Audit.DBPath), logger)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s  %-8s %-8s %s\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.Result, e.Command)
			}
			if len(entries) == 0 {
				fmt.Println("no audit entries")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum entries to show")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. server.port)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. executor.timeoutSeconds 60)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("validation: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(cfg, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"personabot/internal/bus"
	"personabot/internal/channel"
	"personabot/internal/config"
	"personabot/internal/crm"
	"personabot/internal/escalation"
	"personabot/internal/generator"
	"personabot/internal/knowledge"
	"personabot/internal/orchestrator"
	"personabot/internal/persona"
	"personabot/internal/prompt"
	"personabot/internal/store"

	"github.com/spf13/cobra"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "personabot",
		Short: "personabot: persona-aware dialogue engine for messaging platforms",
		Long:  "personabot mediates customer conversations for a messaging platform: it classifies each customer into a persona, retrieves matching reference material, generates replies through an LLM backend, and escalates to human staff when the conversation calls for it.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.personabot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(knowledgeCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())
	root.AddCommand(wizardCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config, workspace, and seed knowledge files",
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
			workspace := config.ExpandPath(cfg.General.Workspace)
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return err
			}
			knowledgeDir := config.ExpandPath(cfg.Knowledge.Dir)
			if err := knowledge.WriteDefaults(knowledgeDir); err != nil {
				return fmt.Errorf("seed knowledge: %w", err)
			}
			logger.Info("initialized", "config", cfgPath, "workspace", workspace, "knowledge", knowledgeDir)
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// setupLogger builds the process logger from config: level from
// general.logLevel, destination from general.logFile (stderr when empty).
func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.General.LogLevel {
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
	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), nil
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the dialogue gateway (webhook + Telegram)",
		Long:  "Starts the webhook server and, when enabled, the Telegram transport. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	logger = log

	if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	intentBus := bus.New(logger)

	db, err := store.NewSQLiteStore(cfg.History.DBPath, logger)
	if err != nil {
		return fmt.Errorf("history store: %w", err)
	}
	defer db.Close()
	db.ConsumeIntents(intentBus)

	// Seed the knowledge dir on first run so the gateway starts usable.
	if _, err := os.Stat(cfg.Knowledge.Dir); os.IsNotExist(err) {
		logger.Info("knowledge dir missing, seeding defaults", "dir", cfg.Knowledge.Dir)
		if err := knowledge.WriteDefaults(cfg.Knowledge.Dir); err != nil {
			return fmt.Errorf("seed knowledge: %w", err)
		}
	}
	ks, err := knowledge.NewStore(cfg.Knowledge.Dir, logger)
	if err != nil {
		return fmt.Errorf("knowledge store: %w", err)
	}

	gen, err := generator.NewFactory(cfg.Generator, logger).Build()
	if err != nil {
		return fmt.Errorf("generator: %w", err)
	}
	if err := gen.Healthy(ctx); err != nil {
		logger.Warn("generator unhealthy at startup", "generator", gen.Name(), "err", err)
	} else {
		logger.Info("generator healthy", "generator", gen.Name())
	}

	var assist orchestrator.AssistGate
	if cfg.CRM.Enabled {
		client := crm.NewClient(crm.ClientConfig{
			APIBase:   cfg.CRM.APIBase,
			APIKey:    cfg.CRM.APIKey,
			AccountID: cfg.CRM.AccountID,
			Logger:    logger,
		})
		syncer := crm.NewSyncer(client, cfg.CRM.AssistTag, logger)
		syncer.Register(intentBus)
		assist = syncer
		logger.Info("crm sync enabled", "apiBase", cfg.CRM.APIBase)
	} else {
		logger.Info("crm sync disabled")
	}

	classifier := persona.NewClassifier(cfg.Persona.Threshold, logger)
	policy := escalation.NewPolicy(cfg.Escalation.TurnCeiling, cfg.Escalation.UnansweredLimit, logger)
	assembler := prompt.NewAssembler(cfg.History.Window)

	orch := orchestrator.New(db, ks, classifier, policy, assembler, gen, intentBus, assist,
		orchestrator.Config{
			PersonaWindow: cfg.Persona.Window,
			TopK:          cfg.Knowledge.TopK,
			RetryBackoff:  time.Duration(cfg.Generator.RetryBackoffMS) * time.Millisecond,
		}, logger)

	errCh := make(chan error, 2)

	webhook := channel.NewWebhook(channel.WebhookConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		Path:            cfg.Channels.Webhook.Path,
		Secret:          cfg.Server.WebhookSecret,
		AdminToken:      cfg.Server.AdminToken,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		Logger:          logger,
	}, orch, db, db, ks)
	go func() {
		errCh <- webhook.Start(ctx)
	}()

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		tg := channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			ParseMode: cfg.Channels.Telegram.ParseMode,
			Logger:    logger,
		}, orch)
		go func() {
			if err := tg.Start(ctx); err != nil {
				logger.Error("telegram transport error", "err", err)
			}
		}()
		logger.Info("telegram transport enabled")
	} else {
		logger.Info("telegram transport disabled")
	}

	logger.Info("gateway started. Press Ctrl+C to stop.", "version", version)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("webhook server: %w", err)
		}
	}

	logger.Info("shutting down gateway...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Webhook.Start drains its own graceful shutdown when ctx is canceled;
	// wait for it to return before exiting.
	select {
	case err := <-errCh:
		if err != nil {
			logger.Warn("webhook shutdown", "err", err)
		}
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}

			ctx := context.Background()
			gen, err := generator.NewFactory(cfg.Generator, logger).Build()
			if err != nil {
				logger.Info("generator", "healthy", false, "err", err)
			} else if err := gen.Healthy(ctx); err != nil {
				logger.Info("generator", "name", gen.Name(), "healthy", false, "err", err)
			} else {
				logger.Info("generator", "name", gen.Name(), "healthy", true)
			}

			if ks, err := knowledge.NewStore(cfg.Knowledge.Dir, logger); err != nil {
				logger.Info("knowledge", "dir", cfg.Knowledge.Dir, "loaded", false, "err", err)
			} else {
				snap := ks.Current()
				logger.Info("knowledge", "dir", cfg.Knowledge.Dir,
					"cases", len(snap.Cases), "faqs", len(snap.FAQs))
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. persona.threshold)",
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
		Short: "Set a config value (e.g. escalation.turnCeiling 25)",
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
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
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

func knowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Inspect and manage the knowledge base",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List loaded success cases and FAQs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ks, err := knowledge.NewStore(cfg.Knowledge.Dir, logger)
			if err != nil {
				return fmt.Errorf("knowledge store: %w", err)
			}
			snap := ks.Current()
			fmt.Printf("Success cases (%d):\n", len(snap.Cases))
			for _, c := range snap.Cases {
				fmt.Printf("  %-12s %s\n", c.ID, c.Title)
			}
			fmt.Printf("FAQs (%d):\n", len(snap.FAQs))
			for _, f := range snap.FAQs {
				fmt.Printf("  %-12s %s\n", f.ID, f.Question)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Write the default knowledge files to the configured directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := knowledge.WriteDefaults(cfg.Knowledge.Dir); err != nil {
				return err
			}
			fmt.Printf("Knowledge files written to %s\n", cfg.Knowledge.Dir)
			return nil
		},
	})

	return cmd
}

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

	"staybot/internal/assistant"
	"staybot/internal/bus"
	"staybot/internal/channel"
	"staybot/internal/config"
	"staybot/internal/conversation"
	"staybot/internal/eventlog"
	"staybot/internal/metrics"
	"staybot/internal/payment"
	"staybot/internal/provider"

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
		Use:   "staybot",
		Short: "StayBot: property booking assistant over Telegram",
		Long:  "StayBot runs a guest-facing booking assistant and a host-facing approval bot, sharing one conversation log.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.staybot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config, catalog, and storage directories",
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
			if err := os.MkdirAll(config.ExpandPath(cfg.Storage.ProofDir), 0o755); err != nil {
				return err
			}
			catalogPath := config.ExpandPath(cfg.Catalog.Path)
			if _, err := os.Stat(catalogPath); os.IsNotExist(err) {
				if err := os.WriteFile(catalogPath, []byte(sampleCatalog), 0o644); err != nil {
					return err
				}
				logger.Info("wrote sample catalog", "path", catalogPath)
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant from the terminal, playing a guest",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)
	eventBus := bus.NewEventBus(logger)

	store, err := eventlog.NewSQLiteStore(config.ExpandPath(cfg.Storage.DBPath), logger)
	if err != nil {
		return fmt.Errorf("event store: %w", err)
	}
	defer store.Close()
	defer messageBus.Close()

	catalog, err := config.LoadCatalog(config.ExpandPath(cfg.Catalog.Path))
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	properties := catalog.Properties()
	if len(properties) == 0 {
		return fmt.Errorf("catalog has no properties")
	}

	provFactory := provider.NewFactory(cfg, logger)
	prov, err := provFactory.FailoverChain()
	if err != nil {
		logger.Warn("no configured provider, falling back to ollama", "err", err)
		prov = provider.NewOllama(provider.OllamaConfig{Logger: logger})
	}

	recon := conversation.NewReconstructor(store, cfg.General.ContextLookback, logger)
	coordinator := payment.NewCoordinator(store, store, catalog, recon, messageBus, eventBus, logger)

	asst := assistant.New(assistant.Config{
		Events:       store,
		Bookings:     store,
		Catalog:      catalog,
		Recon:        recon,
		Payments:     coordinator,
		Provider:     prov,
		Bus:          messageBus,
		EventBus:     eventBus,
		Logger:       logger,
		Concurrency:  cfg.General.MaxConcurrentMessages,
		HistoryLimit: cfg.General.HistoryLimit,
		RatePerMin:   float64(cfg.Providers[cfg.General.DefaultProvider].RateLimitPerMin),
	})
	go asst.Run(ctx)

	console := channel.NewConsole(channel.ConsoleConfig{
		Logger:     logger,
		PropertyID: properties[0].ID,
	})
	return console.Start(ctx, messageBus)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("staybot", version)
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

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
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
		Short: "Get a config value (e.g. general.defaultProvider)",
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
		Short: "Set a config value (e.g. general.defaultProvider ollama)",
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

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start gateway (guest bot + host bot + assistant)",
		Long:  "Starts the enabled Telegram channels and the message-processing loop. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.General.LogLevel),
	}))

	proofDir := config.ExpandPath(cfg.Storage.ProofDir)
	if err := os.MkdirAll(proofDir, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Message bus (closed during graceful shutdown below)
	messageBus := bus.New(100, logger)
	eventBus := bus.NewEventBus(logger)
	metrics.Observe(eventBus)

	store, err := eventlog.NewSQLiteStore(config.ExpandPath(cfg.Storage.DBPath), logger)
	if err != nil {
		return fmt.Errorf("event store: %w", err)
	}
	defer store.Close()

	catalog, err := config.LoadCatalog(config.ExpandPath(cfg.Catalog.Path))
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	properties := catalog.Properties()
	if len(properties) == 0 {
		return fmt.Errorf("catalog has no properties")
	}
	logger.Info("catalog loaded", "properties", len(properties))

	provFactory := provider.NewFactory(cfg, logger)
	prov, err := provFactory.FailoverChain()
	if err != nil {
		logger.Warn("no configured provider, falling back to ollama", "err", err)
		prov = provider.NewOllama(provider.OllamaConfig{Logger: logger})
	}
	if err := prov.Healthy(ctx); err != nil {
		logger.Warn("provider unhealthy at startup", "provider", prov.Name(), "err", err)
	} else {
		logger.Info("provider healthy", "provider", prov.Name())
	}

	recon := conversation.NewReconstructor(store, cfg.General.ContextLookback, logger)
	coordinator := payment.NewCoordinator(store, store, catalog, recon, messageBus, eventBus, logger)

	asst := assistant.New(assistant.Config{
		Events:       store,
		Bookings:     store,
		Catalog:      catalog,
		Recon:        recon,
		Payments:     coordinator,
		Provider:     prov,
		Bus:          messageBus,
		EventBus:     eventBus,
		Logger:       logger,
		Concurrency:  cfg.General.MaxConcurrentMessages,
		HistoryLimit: cfg.General.HistoryLimit,
		RatePerMin:   float64(cfg.Providers[cfg.General.DefaultProvider].RateLimitPerMin),
	})
	go asst.Run(ctx)

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Port, cfg.Metrics.Endpoint, logger); err != nil {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	var guestCh *channel.Guest
	if cfg.Channels.Guest.Enabled && cfg.Channels.Guest.Token != "" {
		guestCh = channel.NewGuest(channel.GuestConfig{
			Token:      cfg.Channels.Guest.Token,
			AllowFrom:  cfg.Channels.Guest.AllowFrom,
			ParseMode:  cfg.Channels.Guest.ParseMode,
			PropertyID: properties[0].ID,
			ProofDir:   proofDir,
			Logger:     logger,
		})
		go func() {
			if err := guestCh.Start(ctx, messageBus); err != nil {
				logger.Error("guest channel error", "err", err)
			}
		}()
		logger.Info("guest channel enabled", "property", properties[0].ID)
	} else {
		logger.Info("guest channel disabled")
	}

	var hostCh *channel.Host
	if cfg.Channels.Host.Enabled && cfg.Channels.Host.Token != "" {
		hostCh = channel.NewHost(channel.HostConfig{
			Token:     cfg.Channels.Host.Token,
			AllowFrom: cfg.Channels.Host.AllowFrom,
			ParseMode: cfg.Channels.Host.ParseMode,
			Logger:    logger,
		})
		go func() {
			if err := hostCh.Start(ctx, messageBus); err != nil {
				logger.Error("host channel error", "err", err)
			}
		}()
		logger.Info("host channel enabled")
	} else {
		logger.Info("host channel disabled")
	}

	logger.Info("gateway started. Press Ctrl+C to stop.")

	// Block until shutdown signal
	<-ctx.Done()
	logger.Info("shutting down gateway...")

	// Graceful shutdown with timeout
	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		if guestCh != nil {
			guestCh.Stop()
		}
		if hostCh != nil {
			hostCh.Stop()
		}
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		shutdownErr = fmt.Errorf("shutdown timed out")
	}

	return shutdownErr
}

const sampleCatalog = `properties:
  - id: mountain-view-villa
    host: host-1
    name: Mountain View Villa
    location: Hunza Valley
    base_price: 120.00
    min_price: 95.00
    max_price: 150.00
    max_guests: 6
    check_in_time: "14:00"
    check_out_time: "11:00"
    faqs:
      - question: Is breakfast included?
        answer: Yes, a local breakfast is included for all guests.
  - id: riverside-cottage
    host: host-1
    name: Riverside Cottage
    location: Hunza Valley
    base_price: 80.00
    min_price: 60.00
    max_price: 100.00
    max_guests: 4
    check_in_time: "14:00"
    check_out_time: "11:00"
hosts:
  - id: host-1
    name: Ali
    chat_id: "123456789"
    payment_methods:
      - bank: Meezan Bank
        account_name: Ali Khan
        account_number: "0012-3456-7890"
        instructions: Send a screenshot after transferring.
`

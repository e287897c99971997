package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"time"

	"staybot/internal/config"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your StayBot installation",
		Long: `Verifies that StayBot's configuration, providers, catalog, and
database are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("StayBot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'staybot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
			} else {
				printPass("Config validation", "valid")
				passed++
			}

			if cfg == nil {
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}

			// 3. Database writable
			dbPath := config.ExpandPath(cfg.Storage.DBPath)
			if err := checkDatabase(dbPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", dbPath)
				passed++
			}

			// 4. Proof directory writable
			proofDir := config.ExpandPath(cfg.Storage.ProofDir)
			if err := os.MkdirAll(proofDir, 0o755); err != nil {
				printFail("Proof directory", err.Error())
				failed++
			} else {
				printPass("Proof directory", proofDir)
				passed++
			}

			// 5. Catalog parses and has properties
			catalogPath := config.ExpandPath(cfg.Catalog.Path)
			catalog, err := config.LoadCatalog(catalogPath)
			if err != nil {
				printFail("Catalog", err.Error())
				failed++
			} else if len(catalog.Properties()) == 0 {
				printFail("Catalog", "no properties defined")
				failed++
			} else {
				printPass("Catalog", fmt.Sprintf("%s (%d properties)", catalogPath, len(catalog.Properties())))
				passed++
				for _, p := range catalog.Properties() {
					if _, err := catalog.HostFor(p.ID); err != nil {
						printWarn("Property: "+p.ID, "no host entry, payment methods unavailable")
						warned++
					}
				}
			}

			// 6. Check providers
			providerCount := 0
			for name, p := range cfg.Providers {
				if !p.Enabled {
					continue
				}
				providerCount++
				if p.APIKey == "" && p.APIBase == "" {
					printWarn("Provider: "+name, "enabled but no API key/base configured")
					warned++
				} else {
					printPass("Provider: "+name, "configured")
					passed++
				}
			}
			if providerCount == 0 {
				printFail("Providers", "no providers enabled")
				failed++
			}

			// 7. Bot tokens
			checkToken := func(label string, ch config.TelegramConfig) {
				if !ch.Enabled {
					printWarn(label, "disabled")
					warned++
					return
				}
				if ch.Token == "" {
					printFail(label, "enabled but no token configured")
					failed++
					return
				}
				printPass(label, "token configured")
				passed++
			}
			checkToken("Guest bot", cfg.Channels.Guest)
			checkToken("Host bot", cfg.Channels.Host)

			// 8. Metrics port
			if cfg.Metrics.Enabled {
				port := cfg.Metrics.Port
				if port == 0 {
					port = 9091
				}
				if err := checkPort(port); err != nil {
					printWarn("Metrics port", fmt.Sprintf("port %d may be in use: %v", port, err))
					warned++
				} else {
					printPass("Metrics port", fmt.Sprintf(":%d available", port))
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running StayBot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nStayBot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! StayBot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	dir := dbPath
	for i := len(dir) - 1; i >= 0; i-- {
		if dir[i] == '/' || dir[i] == '\\' {
			dir = dir[:i]
			break
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"paintsense/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your PaintSense installation",
		Long: `Verifies that PaintSense's configuration, advice server, history
database, and optional voice/preview features are correctly set up.
Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("PaintSense Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'paintsense init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("config invalid")
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Advice server reachable
			if err := checkServer(cfg.Server.BaseURL); err != nil {
				printWarn("Advice server", fmt.Sprintf("%s: %v", cfg.Server.BaseURL, err))
				warned++
			} else {
				printPass("Advice server", cfg.Server.BaseURL)
				passed++
			}

			// 4. History database writable
			if cfg.History.Enabled {
				if err := checkDatabase(cfg.History.DBPath); err != nil {
					printFail("History database", err.Error())
					failed++
				} else {
					printPass("History database", cfg.History.DBPath)
					passed++
				}
			} else {
				printPass("History", "disabled (in-memory transcript only)")
				passed++
			}

			// 5. Voice backends
			if cfg.Voice.STT.Enabled {
				if cfg.Voice.STT.APIKey == "" {
					printWarn("Speech-to-text", "enabled but no API key configured")
					warned++
				} else {
					printPass("Speech-to-text", cfg.Voice.STT.Model)
					passed++
				}
			}
			if cfg.Voice.TTS.Enabled {
				if cfg.Voice.TTS.APIKey == "" {
					printWarn("Text-to-speech", "enabled but no API key configured")
					warned++
				} else if findPlayer() == "" {
					printWarn("Text-to-speech", "no audio player found (need ffplay, mpv or mpg123)")
					warned++
				} else {
					printPass("Text-to-speech", fmt.Sprintf("%s via %s", cfg.Voice.TTS.Model, findPlayer()))
					passed++
				}
			}

			// 6. Browser preview
			if cfg.Review.OpenPreview {
				if chrome := findChrome(); chrome == "" {
					printWarn("Review preview", "openPreview is on but no Chrome/Chromium found")
					warned++
				} else {
					printPass("Review preview", chrome)
					passed++
				}
			}

			// 7. Telegram gateway
			if cfg.Channels.Telegram.Enabled {
				if cfg.Channels.Telegram.Token == "" {
					printFail("Telegram", "enabled but no token configured")
					failed++
				} else {
					printPass("Telegram", "token configured")
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running PaintSense.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nPaintSense should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! PaintSense is ready to run.\n")
			}
			return nil
		},
	}
}

func checkServer(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
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

func findPlayer() string {
	for _, bin := range []string{"ffplay", "mpv", "mpg123"} {
		if _, err := exec.LookPath(bin); err == nil {
			return bin
		}
	}
	return ""
}

func findChrome() string {
	for _, bin := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if _, err := exec.LookPath(bin); err == nil {
			return bin
		}
	}
	return ""
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

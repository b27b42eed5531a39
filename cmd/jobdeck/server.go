package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/jobdeck/jobdeck/internal/api"
	"github.com/jobdeck/jobdeck/internal/config"
	"github.com/jobdeck/jobdeck/internal/connector"
	"github.com/jobdeck/jobdeck/internal/fetch"
	"github.com/jobdeck/jobdeck/internal/quota"
	"github.com/jobdeck/jobdeck/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the jobdeck HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running jobdeck server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show jobdeck system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "jobdeck.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "jobdeck version %s\n", version)

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// Check if a server is already answering on the port before clobbering
	// anything.
	pidPath := pidFilePath(a.cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", a.cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("jobdeck is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("jobdeck is already running on port %d", a.cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", a.cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := api.NewHandler(api.Deps{
		Store:    a.store,
		Resolver: a.orch,
		Token:    a.cfg.Server.APIToken,
	})
	if a.cfg.Server.APIToken == "" {
		printWarning("no API token configured, /api routes are unauthenticated")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Background refresh keeps saved searches warm. Each run is an ordinary
	// resolve: fresh sources are skipped, quota denial serves cache.
	if a.cfg.Server.RefreshEnabled && len(a.cfg.Searches) > 0 {
		scheduler := cron.New()
		every := "@every " + a.cfg.Server.RefreshInterval
		if _, err := scheduler.AddFunc(every, func() { refreshSearches(ctx, a) }); err != nil {
			return fmt.Errorf("invalid refresh interval %q: %w", a.cfg.Server.RefreshInterval, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		go refreshSearches(ctx, a)
		slog.Info("background refresh scheduled",
			"interval", a.cfg.Server.RefreshInterval, "searches", len(a.cfg.Searches))
	} else if a.cfg.Server.RefreshEnabled {
		slog.Info("background refresh idle, no saved searches configured")
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "jobdeck listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// refreshSearches resolves every saved search once. Stops early when the
// month's quota runs out; the next interval will hit the same denial and
// stay cheap.
func refreshSearches(ctx context.Context, a *app) {
	log := slog.With("component", "scheduler")
	for _, s := range a.cfg.Searches {
		if strings.TrimSpace(s.Query) == "" {
			continue
		}
		result, err := a.orch.Resolve(ctx,
			connector.Query{Text: s.Query, Location: s.Location},
			fetch.Options{Sources: s.Sources})
		if err != nil {
			log.Error("scheduled refresh failed", "query", s.Query, "error", err)
			continue
		}
		for _, r := range result.Reports {
			if r.Status == fetch.StatusFresh {
				log.Info("scheduled refresh fetched",
					"query", s.Query, "source", r.Source, "postings", r.Fetched)
			}
		}
		if result.Quota.Exhausted() {
			log.Warn("quota exhausted, stopping scheduled refresh early",
				"used", result.Quota.Used, "limit", result.Quota.Limit)
			return
		}
	}
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("jobdeck is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop jobdeck (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to jobdeck (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Gateway", "%s", cfg.Gateway.URL)
	printStatus("Sources", "%s", strings.Join(cfg.EnabledSources(), ", "))
	printStatus("Saved searches", "%d", len(cfg.Searches))

	// Cache and quota summary straight from the store.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		printError("opening storage: %v", err)
		return nil
	}
	defer store.Close()

	if counts, err := store.CountPostingsBySource(); err == nil {
		active, inactive := 0, 0
		for _, c := range counts {
			active += c.Active
			inactive += c.Inactive
		}
		printStatus("Cached postings", "%d active, %d inactive", active, inactive)
	}
	month := quota.MonthKey(time.Now())
	if used, err := store.QuotaUsed(month); err == nil {
		printStatus("Quota", "%d of %d used in %s", used, cfg.Quota.MonthlyLimit, month)
	}
	return nil
}

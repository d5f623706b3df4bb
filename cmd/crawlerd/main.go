// -----------------------------------------------------------------------
// Last Modified: Saturday, 1st August 2026 12:00:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/crawlerd/internal/common"
	"github.com/ternarybob/crawlerd/internal/launcher"
	"github.com/ternarybob/crawlerd/internal/statusweb"
	"github.com/ternarybob/crawlerd/internal/store"
)

// configPaths is a custom flag type that allows multiple -config flags.
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	serverPort   = flag.Int("port", 0, "Server port (overrides config)")
	serverPortP  = flag.Int("p", 0, "Server port (shorthand, overrides config)")
	serverHost   = flag.String("host", "", "Server host (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("crawlerd version %s\n", common.GetVersion())
		os.Exit(0)
	}

	finalPort := *serverPort
	if *serverPortP != 0 {
		finalPort = *serverPortP
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	if len(configFiles) == 0 {
		if _, err := os.Stat("crawlerd.toml"); err == nil {
			configFiles = append(configFiles, "crawlerd.toml")
		} else if _, err := os.Stat("deployments/local/crawlerd.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/crawlerd.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		if len(configFiles) == 0 {
			tempLogger.Fatal().Err(err).Msg("Failed to load configuration: no config file found")
		} else {
			tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		}
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, finalPort, *serverHost)

	logger := common.SetupLogger(config)
	common.InstallCrashHandler(config.Launcher.LogsDir)
	defer common.RecoverWithCrashFile()

	common.PrintBanner(config, logger)

	logger.Debug().
		Str("dbs_dir", config.Storage.DBsDir).
		Int("max_proc", config.Launcher.MaxProc).
		Str("runner", config.Launcher.Runner).
		Msg("resolved configuration")

	if config.Storage.ResetOnStartup {
		if err := os.RemoveAll(config.Storage.DBsDir); err != nil {
			logger.Fatal().Err(err).Msg("failed to reset storage directory")
		}
	}

	db, err := store.Open(logger, filepath.Join(config.Storage.DBsDir, "crawlerd"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()

	poller := launcher.NewPoller(db)

	projects, err := loadProjects(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load static projects")
	}
	poller.UpdateProjects(projects)

	sched := launcher.NewInProcessScheduler(poller)
	env := launcher.NewDefaultEnvironment(config.Launcher.LogsDir, config.Launcher.ItemsDir, config.Launcher.SettingsModule)

	pool := launcher.NewPool(logger, db, launcher.Config{
		MaxProc:        config.Launcher.MaxProc,
		MaxProcPerCPU:  config.Launcher.MaxProcPerCPU,
		FinishedToKeep: config.Launcher.FinishedToKeep,
		Runner:         config.Launcher.Runner,
	}, poller, env, sched)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start launcher pool")
	}

	var janitor *launcher.Janitor
	if config.Launcher.ReconcileCron != "" {
		janitor, err = launcher.NewJanitor(logger, pool, config.Launcher.ReconcileCron)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure reconciliation janitor")
		}
		janitor.Start()
	}

	throttle := 0.0
	if config.WebSocket.Enabled {
		throttle = config.WebSocket.ThrottleEventsSec
	}
	web := statusweb.NewServer(logger, pool, config.NodeName, config.Launcher.LogsDir, config.Launcher.ItemsDir, throttle)

	mux := http.NewServeMux()
	web.Routes(mux)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler: mux,
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Fatal().Str("panic", fmt.Sprintf("%v", r)).Msg("status server goroutine panicked")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("status server failed")
		}
	}()

	time.Sleep(100 * time.Millisecond)

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("crawlerd ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutdown signal received")
	common.PrintShutdownBanner(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("status server shutdown failed")
	}
	if janitor != nil {
		janitor.Stop()
	}

	cancel()
	common.Stop()
	logger.Info().Msg("crawlerd stopped")
}

// loadProjects returns the static project list from the configured
// file, if any. It never errors on a missing file (see
// launcher.LoadStaticProjects) and returns nil otherwise.
func loadProjects(config *common.Config, logger arbor.ILogger) ([]string, error) {
	if config.Launcher.ProjectsFile == "" {
		return nil, nil
	}
	names, err := launcher.LoadStaticProjects(config.Launcher.ProjectsFile)
	if err != nil {
		return nil, err
	}
	logger.Info().Strs("projects", names).Msg("loaded static project list")
	return names, nil
}

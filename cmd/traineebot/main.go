// Command traineebot runs the onboarding bot: it restores trainee state
// from SQLite, listens for direct messages (Slack Socket Mode or a local
// stdin loop) and drives each trainee's onboarding conversation.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"traineebot/pkg/config"
	"traineebot/pkg/dispatch"
	"traineebot/pkg/engine"
	"traineebot/pkg/eventlog"
	"traineebot/pkg/github"
	"traineebot/pkg/logx"
	"traineebot/pkg/messenger"
	"traineebot/pkg/messenger/slack"
	"traineebot/pkg/metrics"
	"traineebot/pkg/progress"
	"traineebot/pkg/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string
	var reportMode bool
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.BoolVar(&reportMode, "report", false, "Post the progress report to the general channel and exit")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("Failed to get config: %v", err)
	}

	logger := logx.NewLogger("main")

	db, err := store.InitializeDatabase(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	st := store.NewTraineeStore(db)

	var msgr messenger.Messenger
	var slackClient *slack.Client
	if cfg.Slack.Enabled {
		slackClient = slack.NewClient(cfg.Slack.AppToken, cfg.Slack.BotToken)
		msgr = slackClient
	} else {
		logger.Info("Slack disabled, using log messenger with stdin loop")
		msgr = messenger.NewLogMessenger()
	}

	if reportMode {
		if err := progress.NewReporter(st, msgr).PostReport(cfg.Chat.GeneralChannel); err != nil {
			log.Fatalf("Failed to post progress report: %v", err)
		}
		return
	}

	directory := github.NewClient(cfg.GitHub.Org).WithTimeout(cfg.GitHub.Timeout())

	eng, err := engine.New(&engine.Deps{
		Store:     st,
		Messenger: msgr,
		Directory: directory,
		Config:    cfg,
		Metrics:   metrics.NewRecorder(nil),
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	if cfg.EventLog.Dir != "" {
		eventLog, err := eventlog.NewWriter(cfg.EventLog.Dir, cfg.EventLog.RotationHours)
		if err != nil {
			log.Fatalf("Failed to open event log: %v", err)
		}
		defer func() {
			_ = eventLog.Close()
		}()
		eng.SetEventLog(eventLog)
	}

	dispatcher := dispatch.NewDispatcher(eng, msgr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metricsServer *http.Server
	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Metrics listening on %s", cfg.Metrics.ListenAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
	}

	handle := func(ctx context.Context, userID, text string) {
		if err := dispatcher.HandleMessage(ctx, userID, text); err != nil {
			logger.Error("Failed to handle message from %s: %v", userID, err)
		}
	}

	if slackClient != nil {
		go func() {
			if err := slackClient.Run(ctx, handle); err != nil {
				logger.Error("Slack listener stopped: %v", err)
			}
		}()
	} else {
		go stdinLoop(ctx, handle)
	}

	logger.Info("Bot started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal %v, shutting down", sig)

	cancel()
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed: %v", err)
		}
	}
}

// stdinLoop reads "<userID> <text>" lines from stdin for local runs
// without Slack credentials.
func stdinLoop(ctx context.Context, handle func(ctx context.Context, userID, text string)) {
	fmt.Println("Local mode. Type: <userID> <message>")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			fmt.Println("Expected: <userID> <message>")
			continue
		}
		handle(ctx, parts[0], parts[1])
	}
}

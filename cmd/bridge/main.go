package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/openclaw/wa-bridge/internal/api"
	"github.com/openclaw/wa-bridge/internal/conf"
	"github.com/openclaw/wa-bridge/internal/hook"
	"github.com/openclaw/wa-bridge/internal/ingest"
	"github.com/openclaw/wa-bridge/internal/monitor"
	"github.com/openclaw/wa-bridge/internal/queue"
	"github.com/openclaw/wa-bridge/internal/transport"
	"github.com/openclaw/wa-bridge/internal/wameow"
)

const shutdownGrace = 5 * time.Second

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger := newLogger()

	cfg, err := conf.Load()
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	q, err := queue.New(cfg.EventsDir())
	if err != nil {
		logger.Error().Err(err).Msg("failed to open event queue")
		os.Exit(1)
	}
	monitors := monitor.Load(cfg.MonitorsFile())
	state := transport.NewState()

	client, err := wameow.NewClient(cfg.AuthDir(), state, logger.With().Str("component", "wameow").Logger())
	if err != nil {
		logger.Error().Err(err).Msg("failed to create transport")
		os.Exit(1)
	}

	disp := hook.NewDispatcher(2, 64, logger.With().Str("component", "dispatch").Logger())
	notifier := hook.NewNotifier(cfg.Rules, cfg.Port, disp, logger.With().Str("component", "hook").Logger())

	pipeline, err := ingest.New(cfg.Rules, q, monitors, client, notifier, disp, cfg.LogsDir(), logger.With().Str("component", "ingest").Logger())
	if err != nil {
		logger.Error().Err(err).Msg("failed to build pipeline")
		os.Exit(1)
	}
	client.OnMessage(pipeline.Handle)

	ctx := context.Background()
	if err := client.Initialize(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to start transport")
		os.Exit(1)
	}

	server := api.NewServer(cfg.APIToken, cfg.Port, q, monitors, client, state, logger.With().Str("component", "api").Logger())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info().Msg("shutting down")
		state.BeginShutdown()

		// A second signal, or a hung teardown, ends the process hard.
		go func() {
			select {
			case <-sigCh:
			case <-time.After(shutdownGrace):
			}
			logger.Warn().Msg("forcing exit")
			os.Exit(1)
		}()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown failed")
		}
		if err := client.Destroy(); err != nil {
			logger.Error().Err(err).Msg("transport teardown failed")
		}
		disp.Close()
		os.Exit(0)
	}()

	logger.Info().Int("port", cfg.Port).Str("dir", cfg.BaseDir).Msg("starting WhatsApp bridge")
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server error")
		os.Exit(1)
	}

	// Server closed by the signal handler; wait for teardown to finish.
	select {}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if os.Getenv("DEBUG") == "true" {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger
}

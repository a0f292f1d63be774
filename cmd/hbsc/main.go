package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/hbsc/internal/config"
	"codeberg.org/mutker/hbsc/internal/errors"
	"codeberg.org/mutker/hbsc/internal/logger"
	"codeberg.org/mutker/hbsc/internal/report"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if errors.Is(err, config.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return exitConfig
	}

	level, err := logger.ParseLevel(cfg.GetLogLevel().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		return exitConfig
	}
	logger.Init(level, logger.IsService())
	logger.Debug().Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	h, err := newHarness(cfg, logger.Default().With("harness"))
	if err != nil {
		if e, ok := err.(errors.Error); ok {
			logger.ErrorWithCode(e).Msg("Failed to initialize harness")
		} else {
			logger.Error().Err(err).Msg("Failed to initialize harness")
		}
		return exitFailed
	}

	results := h.runAll(ctx)
	closeErr := h.close()
	if closeErr != nil {
		logger.Error().Err(closeErr).Msg("Failed to close window store")
	}

	if err := report.NewFormatterFor(os.Stdout).Write(os.Stdout, results); err != nil {
		logger.Error().Err(err).Msg("Failed to write summary")
	}

	if closeErr != nil || failed(results) {
		return exitFailed
	}
	return exitOK
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func failed(results []report.Result) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

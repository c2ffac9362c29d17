package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/velocitycollector/velocitycollector/internal/api"
	"github.com/velocitycollector/velocitycollector/internal/executor"
	"github.com/velocitycollector/velocitycollector/internal/logging"
	"github.com/velocitycollector/velocitycollector/internal/progress"
	"github.com/velocitycollector/velocitycollector/internal/runner"
	"github.com/velocitycollector/velocitycollector/internal/sshdriver"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the control/progress API and wait for job triggers",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	pool := &executor.Pool{
		Dialer:      &sshdriver.RealDialer{},
		Concurrency: a.cfg.DefaultMaxWorkers,
		Timeouts:    a.timeouts(),
		RetryCount:  a.cfg.DefaultRetryCount,
		RetryDelay:  time.Duration(a.cfg.DefaultRetryDelaySeconds) * time.Second,
		Metrics:     a.metrics,
	}

	r := &runner.Runner{
		Jobs:      a.store,
		History:   a.store,
		Devices:   a.devices,
		Templates: a.templates,
		Vault:     a.vault,
		Pool:      pool,
		Metrics:   a.metrics,
	}

	hub := progress.New()
	server := api.New(a.cfg.APIAddr, a.store, hub, r)

	logging.With("addr", a.cfg.APIAddr).Info("velocitycollector serve starting")

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logging.With("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

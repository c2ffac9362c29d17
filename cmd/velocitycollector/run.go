package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/velocitycollector/velocitycollector/internal/executor"
	"github.com/velocitycollector/velocitycollector/internal/logging"
	"github.com/velocitycollector/velocitycollector/internal/runner"
	"github.com/velocitycollector/velocitycollector/internal/sshdriver"
)

func newRunCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "run <job-slug>",
		Short: "run a single job definition immediately and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneJob(args[0], limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the number of devices queried (0 = unlimited)")
	return cmd
}

func runOneJob(slug string, limit int) error {
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

	progressFn := executor.ProgressFunc(func(completed, total int, res executor.Result) {
		status := "ok"
		if !res.Success {
			status = "FAIL: " + res.ErrorMessage
		}
		logging.With("host", res.Host, "progress", fmt.Sprintf("%d/%d", completed, total)).Info(status)
	})

	result, err := r.Run(context.Background(), runner.DBSlugRef(slug), runner.Options{Limit: limit}, progressFn)
	if err != nil {
		return fmt.Errorf("run %s: %w", slug, err)
	}
	if result.Error != "" {
		return fmt.Errorf("job %s failed: %s", slug, result.Error)
	}

	printJobResult(result)
	return nil
}

func printJobResult(result *runner.JobResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Device", "Path", "Bytes", "Score"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, f := range result.SavedFiles {
		table.Append([]string{f.Device, f.Path, fmt.Sprintf("%d", f.Bytes), fmt.Sprintf("%.1f", f.Score)})
	}
	table.Render()

	fmt.Printf("\nsuccess=%d failed=%d validation_skipped=%d elapsed=%s\n",
		result.Success, result.Failed, result.ValidationSkipped, result.Elapsed)
	for _, de := range result.DeviceErrors {
		fmt.Printf("  error: %s (%s): %s\n", de.Device, de.Category, de.Message)
	}
}

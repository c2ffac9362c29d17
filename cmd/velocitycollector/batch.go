package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/velocitycollector/velocitycollector/internal/batch"
	"github.com/velocitycollector/velocitycollector/internal/executor"
	"github.com/velocitycollector/velocitycollector/internal/logging"
	"github.com/velocitycollector/velocitycollector/internal/runner"
	"github.com/velocitycollector/velocitycollector/internal/sshdriver"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <job-slug> [job-slug...]",
		Short: "run several job definitions with bounded concurrency",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(args)
		},
	}
	return cmd
}

func runBatch(slugs []string) error {
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

	b := &batch.Batch{Runner: r, Concurrency: a.cfg.BatchMaxJobs}

	refs := make([]runner.JobRef, len(slugs))
	for i, slug := range slugs {
		refs[i] = runner.DBSlugRef(slug)
	}

	progressFn := batch.JobProgressFunc(func(ref runner.JobRef, result *runner.JobResult, err error) {
		if err != nil {
			logging.With("job", ref.String(), "error", err).Warn("job failed to run")
			return
		}
		logging.With("job", ref.String(), "success", result.Success, "failed", result.Failed).Info("job complete")
	})

	results, summary := b.Run(context.Background(), refs, progressFn)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Job", "Success", "Failed", "Skipped", "Error"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for i, res := range results {
		if res == nil {
			table.Append([]string{slugs[i], "-", "-", "-", "job did not run"})
			continue
		}
		table.Append([]string{
			slugs[i],
			fmt.Sprintf("%d", res.Success),
			fmt.Sprintf("%d", res.Failed),
			fmt.Sprintf("%d", res.ValidationSkipped),
			res.Error,
		})
	}
	table.Render()

	fmt.Printf("\njobs: %d total, %d succeeded, %d failed; devices: %d success, %d failed, %d skipped; elapsed=%s\n",
		summary.JobsTotal, summary.JobsSucceeded, summary.JobsFailed,
		summary.DevicesSuccess, summary.DevicesFailed, summary.DevicesSkipped, summary.Elapsed)
	return nil
}

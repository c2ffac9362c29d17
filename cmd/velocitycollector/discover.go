package main

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/velocitycollector/velocitycollector/internal/dcim"
	"github.com/velocitycollector/velocitycollector/internal/discovery"
	"github.com/velocitycollector/velocitycollector/internal/logging"
	"github.com/velocitycollector/velocitycollector/internal/sshdriver"
)

func newDiscoverCmd() *cobra.Command {
	var skipConfigured, skipRecent, updateDevices bool
	var recentHours, concurrency int

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "probe every active device against the vault's credentials and report matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(discovery.Options{
				SkipConfigured:     skipConfigured,
				SkipRecentlyTested: skipRecent,
				RecentHours:        recentHours,
				UpdateDevices:      updateDevices,
				Concurrency:        concurrency,
			})
		},
	}
	cmd.Flags().BoolVar(&skipConfigured, "skip-configured", false, "skip devices that already have a credential assigned")
	cmd.Flags().BoolVar(&skipRecent, "skip-recent", true, "skip devices tested within --recent-hours")
	cmd.Flags().IntVar(&recentHours, "recent-hours", 24, "window for --skip-recent")
	cmd.Flags().BoolVar(&updateDevices, "update-devices", true, "write matches back to device inventory")
	cmd.Flags().IntVar(&concurrency, "concurrency", 10, "concurrent device probes")
	return cmd
}

func runDiscover(opts discovery.Options) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	opts.Timeouts = a.timeouts()

	devices, err := a.devices.Query(context.Background(), dcim.Filter{Status: "active"})
	if err != nil {
		return fmt.Errorf("query devices: %w", err)
	}

	summaries, err := a.vault.List()
	if err != nil {
		return fmt.Errorf("list vault credentials: %w", err)
	}
	var candidates []discovery.Candidate
	for _, s := range summaries {
		cred, err := a.vault.Get(s.Name)
		if err != nil || cred == nil {
			continue
		}
		candidates = append(candidates, discovery.Candidate{
			Name: cred.Name,
			Creds: sshdriver.Credentials{
				Username: cred.Username, Password: cred.Password,
				KeyPEM: cred.KeyPEM, KeyPassphrase: cred.KeyPassphrase,
			},
		})
	}
	if len(candidates) == 0 {
		return fmt.Errorf("no usable credentials in vault; unlock it and add at least one")
	}

	d := &discovery.Discoverer{Dialer: &sshdriver.RealDialer{}, Sink: a.devices}

	progressFn := discovery.ProgressFunc(func(completed, total int, res discovery.Result) {
		logging.With("device", res.Device, "progress", fmt.Sprintf("%d/%d", completed, total)).Info("discovery probe complete")
	})

	results := d.Discover(context.Background(), devices, candidates, opts, progressFn)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Device", "Matched", "Credential", "Attempts", "Last Category"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, r := range results {
		matched := "no"
		if r.Matched {
			matched = "yes"
		}
		table.Append([]string{r.Device, matched, r.CredentialName, fmt.Sprintf("%d", r.Attempts), string(r.LastCategory)})
	}
	table.Render()
	return nil
}

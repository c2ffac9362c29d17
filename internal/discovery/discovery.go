// Package discovery implements credential discovery (C9): probing a
// device with an ordered list of candidate credentials until one
// authenticates, reusing internal/executor's bounded-concurrency shape
// with a sequential inner loop over candidates per device.
package discovery

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/velocitycollector/velocitycollector/internal/dcim"
	"github.com/velocitycollector/velocitycollector/internal/sshdriver"
)

// Candidate is one credential to try, in the order supplied by the
// caller (spec.md §4.9 step 4 may reorder a copy of this list per
// device to try the device's current credential first).
type Candidate struct {
	Name  string
	Creds sshdriver.Credentials
}

// Options tunes which devices are probed and whether results are
// written back to the DCIM sink.
type Options struct {
	SkipConfigured     bool
	SkipRecentlyTested bool
	RecentHours        int
	UpdateDevices      bool
	Concurrency        int
	Timeouts           sshdriver.Timeouts
}

// Result is one device's discovery outcome.
type Result struct {
	Device         string
	Matched        bool
	CredentialName string
	Attempts       int
	LastCategory   sshdriver.ErrorCategory
}

// ProgressFunc is invoked once per completed device.
type ProgressFunc func(completed, total int, result Result)

// Discoverer drives credential-discovery probes.
type Discoverer struct {
	Dialer  sshdriver.Dialer
	Sink    dcim.Repository
	NowFunc func() time.Time
}

func (d *Discoverer) now() time.Time {
	if d.NowFunc != nil {
		return d.NowFunc()
	}
	return time.Now().UTC()
}

// Discover tests each device against candidates, in parallel across
// devices and sequentially within a device (spec.md §4.9).
func (d *Discoverer) Discover(ctx context.Context, devices []dcim.Device, candidates []Candidate, opts Options, progress ProgressFunc) []Result {
	n := len(devices)
	results := make([]Result, n)

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	var wg sync.WaitGroup
	var completedMu sync.Mutex
	completed := 0

	report := func(i int, r Result) {
		results[i] = r
		completedMu.Lock()
		completed++
		c := completed
		completedMu.Unlock()
		if progress != nil {
			progress(c, n, r)
		}
	}

	for i, dev := range devices {
		i, dev := i, dev

		if !dev.HasPrimaryIP4() {
			report(i, Result{Device: dev.Name})
			continue
		}
		if opts.SkipConfigured && dev.CredentialID != "" {
			report(i, Result{Device: dev.Name})
			continue
		}
		if opts.SkipRecentlyTested && recentlyTested(dev, opts.RecentHours, d.now()) {
			report(i, Result{Device: dev.Name})
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			report(i, Result{Device: dev.Name})
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			report(i, d.probeDevice(ctx, dev, candidates, opts))
		}()
	}
	wg.Wait()

	return results
}

// probeDevice implements spec.md §4.9 steps 4-8 for a single device.
func (d *Discoverer) probeDevice(ctx context.Context, dev dcim.Device, candidates []Candidate, opts Options) Result {
	order := orderCandidates(dev.CredentialID, candidates)

	res := Result{Device: dev.Name}
	for _, cand := range order {
		res.Attempts++

		category := d.probeOne(ctx, dev, cand.Creds, opts.Timeouts)
		res.LastCategory = category

		if category == sshdriver.CategorySuccess {
			res.Matched = true
			res.CredentialName = cand.Name
			break
		}
		if category != sshdriver.CategoryAuth && category != sshdriver.CategoryKex {
			break
		}
	}

	if opts.UpdateDevices && d.Sink != nil {
		d.updateSink(ctx, dev, res)
	}
	return res
}

func (d *Discoverer) probeOne(ctx context.Context, dev dcim.Device, creds sshdriver.Credentials, timeouts sshdriver.Timeouts) sshdriver.ErrorCategory {
	target := sshdriver.Target{Host: dev.PrimaryIP4, Port: sshPortOrDefault(dev.SSHPort)}
	session := d.Dialer.Dial(target, creds, false, timeouts)
	defer session.Disconnect()

	if err := session.Connect(ctx); err != nil {
		return sshdriver.AsError(err).Category
	}
	if err := session.OpenShell(ctx); err != nil {
		return sshdriver.AsError(err).Category
	}
	if _, err := session.FindPrompt(ctx); err != nil {
		return sshdriver.AsError(err).Category
	}
	return sshdriver.CategorySuccess
}

func (d *Discoverer) updateSink(ctx context.Context, dev dcim.Device, res Result) {
	tested := d.now().Format(time.RFC3339)
	testResult := "failed"
	upd := dcim.Update{CredentialTestedAt: &tested, CredentialTestResult: &testResult}
	if res.Matched {
		testResult = "success"
		upd.CredentialTestResult = &testResult
		upd.CredentialID = &res.CredentialName
	}
	_ = d.Sink.UpdateDevice(ctx, dev.ID, upd)
}

// orderCandidates implements step 4: the device's currently preferred
// credential first (if present in the candidate list), then the
// remaining candidates in supplied order. Each name appears at most
// once (P8).
func orderCandidates(preferred string, candidates []Candidate) []Candidate {
	if preferred == "" {
		return candidates
	}
	var first *Candidate
	rest := make([]Candidate, 0, len(candidates))
	for i := range candidates {
		if candidates[i].Name == preferred && first == nil {
			c := candidates[i]
			first = &c
			continue
		}
		rest = append(rest, candidates[i])
	}
	if first == nil {
		return candidates
	}
	return append([]Candidate{*first}, rest...)
}

func recentlyTested(dev dcim.Device, recentHours int, now time.Time) bool {
	if dev.CredentialTestedAt == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, dev.CredentialTestedAt)
	if err != nil {
		return false
	}
	return now.Sub(t) < time.Duration(recentHours)*time.Hour
}

func sshPortOrDefault(port int) int {
	if port <= 0 {
		return 22
	}
	return port
}

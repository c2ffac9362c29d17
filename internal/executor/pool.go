// Package executor implements the bounded-concurrency per-device worker
// pool (C7): it drives an SSH session per target through
// internal/sshdriver, preserves input order in its results despite
// workers completing out of order, and reports progress as each target
// completes.
package executor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/velocitycollector/velocitycollector/internal/logging"
	"github.com/velocitycollector/velocitycollector/internal/sshdriver"
)

// Target is one device to drive a session against.
type Target struct {
	Host          string
	Port          int
	CommandString string
	PromptCount   int
	// Credentials overrides the pool's default when non-nil.
	Credentials *sshdriver.Credentials
	// CredentialName labels whichever credentials end up in use, for
	// the result's CredentialUsed field.
	CredentialName string
	// ExtraData is opaque to the pool; it is copied onto the Result
	// unchanged so callers can correlate results back to domain objects
	// (e.g. a *dcim.Device) without the pool knowing about them.
	ExtraData any
}

// Result is one target's outcome.
type Result struct {
	Host           string
	Success        bool
	Transcript     string
	Duration       time.Duration
	Category       sshdriver.ErrorCategory
	ErrorMessage   string
	Trace          string
	RetryCount     int
	Prompt         string
	CredentialUsed string
	DisconnectNote string
	ExtraData      any
}

// Summary aggregates a pool run.
type Summary struct {
	Total      int
	Successes  int
	Failures   int
	ByCategory map[sshdriver.ErrorCategory]int
	Elapsed    time.Duration
}

// ProgressFunc is invoked once per completed target, in the completer's
// own goroutine. Panics inside it are recovered and logged, never
// propagated to the pool (§4.7).
type ProgressFunc func(completed, total int, result Result)

// Metrics receives per-attempt observations; Pool works correctly with a
// nil Metrics (all methods become no-ops).
type Metrics interface {
	ObserveAttempt(category sshdriver.ErrorCategory, duration time.Duration)
}

// Pool drives a bounded number of concurrent sessions.
type Pool struct {
	Dialer                sshdriver.Dialer
	Concurrency           int
	DefaultCredentials    sshdriver.Credentials
	DefaultCredentialName string
	LegacyMode            bool
	Timeouts              sshdriver.Timeouts
	RetryCount            int
	RetryDelay            time.Duration
	CaptureTrace          bool
	Metrics               Metrics
}

// Run drives every target, bounded by p.Concurrency in-flight sessions
// at once. The returned slice preserves the input order of targets.
func (p *Pool) Run(ctx context.Context, targets []Target, progress ProgressFunc) ([]Result, Summary) {
	start := time.Now()
	n := len(targets)
	results := make([]Result, n)

	concurrency := p.Concurrency
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
		dispatchProgress(progress, c, n, r)
	}

	for i, tgt := range targets {
		i, tgt := i, tgt

		if ctx.Err() != nil {
			report(i, Result{Host: tgt.Host, Category: sshdriver.CategoryCancelled, ExtraData: tgt.ExtraData})
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			report(i, Result{Host: tgt.Host, Category: sshdriver.CategoryCancelled, ExtraData: tgt.ExtraData})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			report(i, p.runOne(ctx, tgt))
		}()
	}
	wg.Wait()

	return results, summarize(results, time.Since(start))
}

func (p *Pool) runOne(ctx context.Context, tgt Target) Result {
	creds := p.DefaultCredentials
	credName := p.DefaultCredentialName
	if tgt.Credentials != nil {
		creds = *tgt.Credentials
		credName = tgt.CredentialName
	}

	attempt := 0
	for {
		res := p.attempt(ctx, tgt, creds, credName)
		res.RetryCount = attempt
		if p.Metrics != nil {
			p.Metrics.ObserveAttempt(res.Category, res.Duration)
		}

		if res.Success || attempt >= p.RetryCount || !res.Category.RetryEligible() {
			return res
		}
		attempt++

		select {
		case <-time.After(p.RetryDelay):
		case <-ctx.Done():
			res.Category = sshdriver.CategoryCancelled
			return res
		}
	}
}

func (p *Pool) attempt(ctx context.Context, tgt Target, creds sshdriver.Credentials, credName string) Result {
	start := time.Now()
	target := sshdriver.Target{Host: tgt.Host, Port: tgt.Port}
	session := p.Dialer.Dial(target, creds, p.LegacyMode, p.Timeouts)

	res := Result{Host: tgt.Host, CredentialUsed: credName, ExtraData: tgt.ExtraData}

	finish := func(err error) Result {
		if dErr := session.Disconnect(); dErr != nil {
			res.DisconnectNote = sshdriver.AsError(dErr).Message
		}
		res.Duration = time.Since(start)
		if err == nil {
			res.Success = true
			res.Category = sshdriver.CategorySuccess
			return res
		}
		se := sshdriver.AsError(err)
		res.Category = se.Category
		res.ErrorMessage = se.Message
		if p.CaptureTrace {
			res.Trace = se.Trace
		}
		return res
	}

	if err := session.Connect(ctx); err != nil {
		return finish(err)
	}
	if err := session.OpenShell(ctx); err != nil {
		return finish(err)
	}
	prompt, err := session.FindPrompt(ctx)
	if err != nil {
		return finish(err)
	}
	res.Prompt = prompt

	execRes, err := session.Execute(ctx, tgt.CommandString, tgt.PromptCount)
	res.Transcript = execRes.Transcript
	return finish(err)
}

func dispatchProgress(fn ProgressFunc, completed, total int, r Result) {
	if fn == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logging.L().Error("executor progress callback panicked", "panic", rec, "host", r.Host)
		}
	}()
	fn(completed, total, r)
}

func summarize(results []Result, elapsed time.Duration) Summary {
	s := Summary{Total: len(results), ByCategory: make(map[sshdriver.ErrorCategory]int)}
	for _, r := range results {
		s.ByCategory[r.Category]++
		if r.Success {
			s.Successes++
		} else {
			s.Failures++
		}
	}
	s.Elapsed = elapsed
	return s
}

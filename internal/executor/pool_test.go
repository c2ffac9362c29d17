package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velocitycollector/velocitycollector/internal/sshdriver"
)

// scriptedSession is a local test double with per-call scripting beyond
// what sshdriver.FakeSession offers (needed for retry-attempt sequencing).
type scriptedSession struct {
	connectErrs   []error
	execResult    sshdriver.ExecResult
	disconnectErr error
	attempt       int32
	disconnects   int32
}

func (s *scriptedSession) Connect(ctx context.Context) error {
	i := int(atomic.AddInt32(&s.attempt, 1)) - 1
	if i < len(s.connectErrs) {
		return s.connectErrs[i]
	}
	return nil
}
func (s *scriptedSession) OpenShell(ctx context.Context) error        { return nil }
func (s *scriptedSession) FindPrompt(ctx context.Context) (string, error) { return "router1#", nil }
func (s *scriptedSession) Prompt() string                             { return "router1#" }
func (s *scriptedSession) Execute(ctx context.Context, cmd string, n int) (sshdriver.ExecResult, error) {
	return s.execResult, nil
}
func (s *scriptedSession) Disconnect() error {
	atomic.AddInt32(&s.disconnects, 1)
	return s.disconnectErr
}
func (s *scriptedSession) State() sshdriver.State { return sshdriver.StateClosed }

type scriptedDialer struct {
	mu       sync.Mutex
	sessions map[string]*scriptedSession
}

func (d *scriptedDialer) Dial(target sshdriver.Target, creds sshdriver.Credentials, legacy bool, timeouts sshdriver.Timeouts) sshdriver.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[target.Host]
}

func TestPoolPreservesInputOrderDespiteOutOfOrderCompletion(t *testing.T) {
	dialer := &scriptedDialer{sessions: map[string]*scriptedSession{
		"slow": {execResult: sshdriver.ExecResult{Transcript: "slow-done"}},
		"fast": {execResult: sshdriver.ExecResult{Transcript: "fast-done"}},
	}}
	pool := &Pool{Dialer: dialer, Concurrency: 2, Timeouts: sshdriver.DefaultTimeouts()}

	targets := []Target{
		{Host: "slow", CommandString: "show run", PromptCount: 1},
		{Host: "fast", CommandString: "show run", PromptCount: 1},
	}

	results, summary := pool.Run(context.Background(), targets, nil)
	require.Len(t, results, 2)
	assert.Equal(t, "slow", results[0].Host)
	assert.Equal(t, "fast", results[1].Host)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Successes)
}

func TestPoolRetriesRetryEligibleCategory(t *testing.T) {
	sess := &scriptedSession{
		connectErrs: []error{sshdriver.NewError(sshdriver.CategorySocket, "transient", ""), nil},
		execResult:  sshdriver.ExecResult{Transcript: "ok"},
	}
	dialer := &scriptedDialer{sessions: map[string]*scriptedSession{"h1": sess}}
	pool := &Pool{Dialer: dialer, Concurrency: 1, RetryCount: 2, RetryDelay: time.Millisecond, Timeouts: sshdriver.DefaultTimeouts()}

	results, _ := pool.Run(context.Background(), []Target{{Host: "h1", CommandString: "show run", PromptCount: 1}}, nil)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, 1, results[0].RetryCount)
	assert.EqualValues(t, 2, sess.disconnects)
}

func TestPoolDoesNotRetryAuthFailures(t *testing.T) {
	sess := &scriptedSession{
		connectErrs: []error{sshdriver.NewError(sshdriver.CategoryAuth, "bad creds", "")},
	}
	dialer := &scriptedDialer{sessions: map[string]*scriptedSession{"h1": sess}}
	pool := &Pool{Dialer: dialer, Concurrency: 1, RetryCount: 3, Timeouts: sshdriver.DefaultTimeouts()}

	results, summary := pool.Run(context.Background(), []Target{{Host: "h1", CommandString: "show run", PromptCount: 1}}, nil)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, sshdriver.CategoryAuth, results[0].Category)
	assert.Equal(t, 0, results[0].RetryCount)
	assert.Equal(t, 1, summary.Failures)
}

func TestPoolCancellationSkipsUndispatchedTargets(t *testing.T) {
	dialer := &scriptedDialer{sessions: map[string]*scriptedSession{
		"h1": {execResult: sshdriver.ExecResult{Transcript: "ok"}},
	}}
	pool := &Pool{Dialer: dialer, Concurrency: 1, Timeouts: sshdriver.DefaultTimeouts()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, summary := pool.Run(ctx, []Target{{Host: "h1", CommandString: "show run", PromptCount: 1}}, nil)
	require.Len(t, results, 1)
	assert.Equal(t, sshdriver.CategoryCancelled, results[0].Category)
	assert.Equal(t, 1, summary.ByCategory[sshdriver.CategoryCancelled])
}

func TestPoolProgressCallbackPanicIsContained(t *testing.T) {
	dialer := &scriptedDialer{sessions: map[string]*scriptedSession{
		"h1": {execResult: sshdriver.ExecResult{Transcript: "ok"}},
	}}
	pool := &Pool{Dialer: dialer, Concurrency: 1, Timeouts: sshdriver.DefaultTimeouts()}

	panicked := func(completed, total int, r Result) { panic("boom") }

	assert.NotPanics(t, func() {
		pool.Run(context.Background(), []Target{{Host: "h1", CommandString: "show run", PromptCount: 1}}, panicked)
	})
}

func TestPoolDisconnectNoteDoesNotFlipSuccess(t *testing.T) {
	sess := &scriptedSession{
		execResult:    sshdriver.ExecResult{Transcript: "ok"},
		disconnectErr: sshdriver.NewError(sshdriver.CategoryDisconnect, "teardown failed", ""),
	}
	dialer := &scriptedDialer{sessions: map[string]*scriptedSession{"h1": sess}}
	pool := &Pool{Dialer: dialer, Concurrency: 1, Timeouts: sshdriver.DefaultTimeouts()}

	results, _ := pool.Run(context.Background(), []Target{{Host: "h1", CommandString: "show run", PromptCount: 1}}, nil)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, "teardown failed", results[0].DisconnectNote)
}

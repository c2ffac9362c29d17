package sshdriver

import (
	"context"
	"strings"
)

// FakeDialer is a test double implementing Dialer without a network. Script
// maps a target host to a canned session outcome, letting the executor pool
// and discovery subsystem be exercised deterministically (mirroring
// joestump-claude-ops's ProcessRunner fake-runner test seam).
type FakeDialer struct {
	Script map[string]*FakeSession
}

func (d *FakeDialer) Dial(target Target, creds Credentials, legacyMode bool, timeouts Timeouts) Session {
	if s, ok := d.Script[target.Host]; ok {
		s.creds = creds
		return s
	}
	return &FakeSession{ConnectErr: NewError(CategoryUnknown, "no script for host "+target.Host, "")}
}

// FakeSession is a scripted Session for tests.
type FakeSession struct {
	ConnectErr    error
	OpenShellErr  error
	PromptResult  string
	PromptErr     error
	ExecResult    ExecResult
	ExecErr       error
	DisconnectErr error

	creds Credentials

	state           State
	disconnectCalls int
	transcript      string
}

func (f *FakeSession) Connect(ctx context.Context) error {
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.state = StateAuthenticated
	return nil
}

func (f *FakeSession) OpenShell(ctx context.Context) error {
	if f.OpenShellErr != nil {
		return f.OpenShellErr
	}
	f.state = StateShellOpen
	return nil
}

func (f *FakeSession) FindPrompt(ctx context.Context) (string, error) {
	if f.PromptErr != nil {
		return "", f.PromptErr
	}
	if f.PromptResult == "" {
		f.PromptResult = "device#"
	}
	return f.PromptResult, nil
}

func (f *FakeSession) Prompt() string { return f.PromptResult }

// Execute records the commands it was sent (for P6 assertions) and returns
// the scripted result.
func (f *FakeSession) Execute(ctx context.Context, commandString string, promptCount int) (ExecResult, error) {
	f.state = StateExecuting
	f.transcript = commandString
	if f.ExecErr != nil {
		return ExecResult{}, f.ExecErr
	}
	f.state = StateReady
	return f.ExecResult, nil
}

// SentLines splits the last Execute's command string the way the real
// session would, for tests asserting P6 (k tokens + (c-k) bare newlines).
func (f *FakeSession) SentLines() []string {
	parts := strings.Split(f.transcript, ",")
	lines := make([]string, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			lines[i] = "\n"
		} else {
			lines[i] = p + "\n"
		}
	}
	return lines
}

func (f *FakeSession) Disconnect() error {
	f.disconnectCalls++
	f.state = StateClosed
	return f.DisconnectErr
}

// DisconnectCalls reports how many times Disconnect was invoked, for P5
// assertions ("Disconnect is called exactly once").
func (f *FakeSession) DisconnectCalls() int { return f.disconnectCalls }

func (f *FakeSession) State() State { return f.state }

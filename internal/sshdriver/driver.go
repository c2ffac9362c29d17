package sshdriver

import (
	"context"
	"time"
)

// State is a session's position in the C3 state machine:
//
//	NEW -> CONNECTING -> AUTHENTICATED -> SHELL_OPEN -> READY
//	                                                  <-> EXECUTING
//	READY|EXECUTING -> CLOSED (always reachable on exit)
type State int

const (
	StateNew State = iota
	StateConnecting
	StateAuthenticated
	StateShellOpen
	StateReady
	StateExecuting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateShellOpen:
		return "shell_open"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Credentials identifies how a session should authenticate. Username is
// always required; exactly one of KeyPEM or Password drives auth unless
// both are set, in which case the key is primary and the password is
// accepted as fallback.
type Credentials struct {
	Username      string
	Password      string
	KeyPEM        string
	KeyPassphrase string
}

// Target names the device to connect to.
type Target struct {
	Host string
	Port int
}

// Timeouts bounds every blocking step of a session's lifetime.
type Timeouts struct {
	Connect          time.Duration
	ShellSettle      time.Duration
	PromptDetect     time.Duration
	PromptRetry      time.Duration
	PromptAttempts   int
	Execute          time.Duration
	InterCommandTime time.Duration
}

// DefaultTimeouts returns the driver's default timing policy (§4.2, §4.3).
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect:          10 * time.Second,
		ShellSettle:      2 * time.Second,
		PromptDetect:     3 * time.Second,
		PromptRetry:      2 * time.Second,
		PromptAttempts:   5,
		Execute:          30 * time.Second,
		InterCommandTime: 200 * time.Millisecond,
	}
}

// ExecResult is the outcome of a single Execute call.
type ExecResult struct {
	Transcript     string
	PromptsCounted int
	TimedOut       bool
}

// Session is a single SSH connection to one device, driven through the
// C3 state machine. Callers must call Disconnect on every exit path
// (I6); a Session is owned by exactly one goroutine for its lifetime.
type Session interface {
	// Connect performs TCP connect, SSH negotiation, and authentication.
	Connect(ctx context.Context) error
	// OpenShell requests an interactive shell and drains the banner.
	OpenShell(ctx context.Context) error
	// FindPrompt runs the prompt detector and stores the result.
	FindPrompt(ctx context.Context) (string, error)
	// Prompt returns the last prompt token found by FindPrompt, or the
	// fallback prompt if detection exhausted its retries.
	Prompt() string
	// Execute sends commandString (split on commas per §4.3) and reads
	// until promptCount occurrences of the expected prompt are seen or
	// the execution deadline expires.
	Execute(ctx context.Context, commandString string, promptCount int) (ExecResult, error)
	// Disconnect closes the shell and transport. Safe to call multiple
	// times; only the first call has effect.
	Disconnect() error
	// State reports the session's current position in the state machine.
	State() State
}

// Dialer constructs Sessions. Production code uses the real
// golang.org/x/crypto/ssh-backed Dialer; tests substitute a fake so the
// executor pool and discovery subsystem can be exercised without a
// network, mirroring joestump-claude-ops's ProcessRunner test seam.
type Dialer interface {
	Dial(target Target, creds Credentials, legacyMode bool, timeouts Timeouts) Session
}

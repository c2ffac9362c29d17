package sshdriver

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/velocitycollector/velocitycollector/internal/textutil"
)

// RealDialer builds Sessions backed by golang.org/x/crypto/ssh. HostKeyCallback
// defaults to ssh.InsecureIgnoreHostKey when nil, since device fleets rarely
// present stable host keys; callers that can supply a known-hosts callback
// should set it explicitly.
type RealDialer struct {
	HostKeyCallback ssh.HostKeyCallback
}

func (d *RealDialer) Dial(target Target, creds Credentials, legacyMode bool, timeouts Timeouts) Session {
	hkc := d.HostKeyCallback
	if hkc == nil {
		hkc = ssh.InsecureIgnoreHostKey()
	}
	return &realSession{
		target:     target,
		creds:      creds,
		legacyMode: legacyMode,
		timeouts:   timeouts,
		hostKeyCB:  hkc,
		state:      StateNew,
	}
}

type realSession struct {
	target     Target
	creds      Credentials
	legacyMode bool
	timeouts   Timeouts
	hostKeyCB  ssh.HostKeyCallback

	mu    sync.Mutex
	state State

	client  *ssh.Client
	sshSess *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader

	readCh chan readChunk
	prompt string

	closeOnce sync.Once
}

type readChunk struct {
	data []byte
	err  error
}

func (s *realSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *realSession) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *realSession) authMethods() []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if s.creds.KeyPEM != "" {
		var signer ssh.Signer
		var err error
		if s.creds.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(s.creds.KeyPEM), []byte(s.creds.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(s.creds.KeyPEM))
		}
		if err == nil {
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}
	if s.creds.Password != "" {
		methods = append(methods, ssh.Password(s.creds.Password))
	}
	return methods
}

func (s *realSession) Connect(ctx context.Context) error {
	s.setState(StateConnecting)

	algo := modernConfig()
	if s.legacyMode {
		algo = legacyConfig()
	}

	clientCfg := &ssh.ClientConfig{
		User:            s.creds.Username,
		Auth:            s.authMethods(),
		HostKeyCallback: s.hostKeyCB,
		Timeout:         s.timeouts.Connect,
		Config:          algo,
		BannerCallback:  func(message string) error { return nil },
	}

	addr := net.JoinHostPort(s.target.Host, strconv.Itoa(s.target.Port))

	deadline := time.Now().Add(s.timeouts.Connect)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.timeouts.Connect)
	defer cancel()
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return categorizeDialErr(err)
	}
	_ = conn.SetDeadline(deadline)

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return categorizeHandshakeErr(err)
	}
	_ = conn.SetDeadline(time.Time{})

	s.client = ssh.NewClient(sshConn, chans, reqs)
	s.setState(StateAuthenticated)
	return nil
}

func (s *realSession) OpenShell(ctx context.Context) error {
	sess, err := s.client.NewSession()
	if err != nil {
		return NewError(CategoryChannel, fmt.Sprintf("session open failed: %v", err), "")
	}
	if err := sess.RequestPty("vt100", 200, 400, ssh.TerminalModes{}); err != nil {
		sess.Close()
		return NewError(CategoryChannel, fmt.Sprintf("pty request failed: %v", err), "")
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return NewError(CategoryChannel, fmt.Sprintf("stdin pipe failed: %v", err), "")
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return NewError(CategoryChannel, fmt.Sprintf("stdout pipe failed: %v", err), "")
	}
	if err := sess.Shell(); err != nil {
		sess.Close()
		return NewError(CategoryChannel, fmt.Sprintf("shell request failed: %v", err), "")
	}

	s.sshSess = sess
	s.stdin = stdin
	s.stdout = stdout
	s.readCh = make(chan readChunk, 16)
	go s.readLoop()

	select {
	case <-time.After(s.timeouts.ShellSettle):
	case <-ctx.Done():
		return NewError(CategoryCancelled, "cancelled during shell settle", "")
	}
	s.drainAvailable()

	s.setState(StateShellOpen)
	return nil
}

func (s *realSession) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.readCh <- readChunk{data: chunk}
		}
		if err != nil {
			s.readCh <- readChunk{err: err}
			return
		}
	}
}

// drainAvailable consumes any chunks already queued without blocking.
func (s *realSession) drainAvailable() string {
	var b strings.Builder
	for {
		select {
		case c := <-s.readCh:
			if c.data != nil {
				b.WriteString(textutil.FilterANSI(c.data))
			}
		default:
			return b.String()
		}
	}
}

func (s *realSession) FindPrompt(ctx context.Context) (string, error) {
	attempts := s.timeouts.PromptAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		timeout := s.timeouts.PromptDetect
		if i > 0 {
			timeout = s.timeouts.PromptRetry
		}
		if _, err := s.stdin.Write([]byte("\n")); err != nil {
			return "", NewError(CategoryChannel, fmt.Sprintf("write failed: %v", err), "")
		}

		buf := s.readUntilIdle(ctx, timeout)
		if p := textutil.DetectPrompt(buf); p != "" {
			s.prompt = p
			return p, nil
		}
	}
	s.prompt = textutil.FallbackPrompt
	return "", NewError(CategoryPromptDetection, "prompt detection exhausted retries", "")
}

func (s *realSession) Prompt() string {
	return s.prompt
}

// readUntilIdle accumulates chunks for up to the given duration.
func (s *realSession) readUntilIdle(ctx context.Context, timeout time.Duration) string {
	var b strings.Builder
	deadline := time.After(timeout)
	for {
		select {
		case c, ok := <-s.readCh:
			if !ok {
				return b.String()
			}
			if c.err != nil {
				return b.String()
			}
			b.WriteString(textutil.FilterANSI(c.data))
		case <-deadline:
			return b.String()
		case <-ctx.Done():
			return b.String()
		}
	}
}

func (s *realSession) Execute(ctx context.Context, commandString string, promptCount int) (ExecResult, error) {
	s.setState(StateExecuting)
	defer s.setState(StateReady)

	tokens := strings.Split(commandString, ",")

	for i, tok := range tokens {
		tok = strings.TrimSpace(tok)
		var line string
		if tok == "" {
			line = "\n"
		} else {
			line = tok + "\n"
		}
		if _, err := s.stdin.Write([]byte(line)); err != nil {
			return ExecResult{}, NewError(CategoryChannel, fmt.Sprintf("write failed: %v", err), "")
		}
		if i < len(tokens)-1 {
			select {
			case <-time.After(s.timeouts.InterCommandTime):
			case <-ctx.Done():
			}
		}
	}

	var transcript strings.Builder
	deadline := time.After(s.timeouts.Execute)
	prompt := s.prompt
	if prompt == "" {
		prompt = textutil.FallbackPrompt
	}

	for {
		if countOccurrences(transcript.String(), prompt) >= promptCount {
			return ExecResult{Transcript: transcript.String(), PromptsCounted: promptCount}, nil
		}
		select {
		case c, ok := <-s.readCh:
			if !ok {
				return ExecResult{Transcript: transcript.String()}, NewError(CategoryChannel, "shell channel closed", "")
			}
			if c.err != nil {
				if c.err == io.EOF {
					return ExecResult{Transcript: transcript.String()}, NewError(CategoryChannel, "shell channel EOF", "")
				}
				return ExecResult{Transcript: transcript.String()}, NewError(CategorySocket, c.err.Error(), "")
			}
			transcript.WriteString(textutil.FilterANSI(c.data))
		case <-deadline:
			return ExecResult{Transcript: transcript.String(), TimedOut: true}, NewError(CategoryCommandTimeout, "expect-prompt deadline expired", "")
		case <-ctx.Done():
			return ExecResult{Transcript: transcript.String()}, NewError(CategoryCancelled, "cancelled during execution", "")
		}
	}
}

func countOccurrences(haystack, needle string) int {
	if needle == "" {
		return 0
	}
	count := 0
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i == -1 {
			return count
		}
		count++
		idx += i + len(needle)
	}
}

func (s *realSession) Disconnect() error {
	var err error
	s.closeOnce.Do(func() {
		if s.sshSess != nil {
			_ = s.sshSess.Close()
		}
		if s.client != nil {
			err = s.client.Close()
		}
		s.setState(StateClosed)
	})
	if err != nil {
		return NewError(CategoryDisconnect, err.Error(), "")
	}
	return nil
}

func categorizeDialErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "lookup"):
		return NewError(CategoryDNSFailure, msg, "")
	case strings.Contains(msg, "connection refused"):
		return NewError(CategoryConnectionRefused, msg, "")
	case strings.Contains(msg, "i/o timeout"), strings.Contains(msg, "timed out"):
		return NewError(CategoryConnectionTimeout, msg, "")
	default:
		return NewError(CategorySocket, msg, "")
	}
}

func categorizeHandshakeErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "auth"):
		return NewError(CategoryAuth, msg, "")
	case strings.Contains(msg, "no common algorithm"):
		return NewError(CategoryKex, msg, "")
	case strings.Contains(msg, "timeout"):
		return NewError(CategoryConnectionTimeout, msg, "")
	default:
		return NewError(CategoryProtocol, msg, "")
	}
}

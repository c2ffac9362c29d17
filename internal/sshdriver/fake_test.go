package sshdriver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// P6: for a command string with k non-empty comma-separated tokens, the
// driver transmits exactly k command lines plus (c-k) bare newlines, where
// c is the comma count + 1.
func TestFakeSessionSentLinesCountsBareNewlines(t *testing.T) {
	f := &FakeSession{ExecResult: ExecResult{Transcript: "ok", PromptsCounted: 3}}
	ctx := context.Background()

	require.NoError(t, f.Connect(ctx))
	require.NoError(t, f.OpenShell(ctx))
	_, err := f.FindPrompt(ctx)
	require.NoError(t, err)

	_, err = f.Execute(ctx, "show run,,", 3)
	require.NoError(t, err)

	lines := f.SentLines()
	require.Len(t, lines, 3)
	assert.Equal(t, "show run\n", lines[0])
	assert.Equal(t, "\n", lines[1])
	assert.Equal(t, "\n", lines[2])
}

// S2: a paging-disable command plus a real command ("terminal length
// 0,show run", prompt_count=2) sends two command lines and counts two
// prompt occurrences.
func TestFakeSessionPagingPlusCommandSendsTwoLines(t *testing.T) {
	f := &FakeSession{ExecResult: ExecResult{Transcript: "ok", PromptsCounted: 2}}
	ctx := context.Background()

	require.NoError(t, f.Connect(ctx))
	require.NoError(t, f.OpenShell(ctx))
	_, err := f.FindPrompt(ctx)
	require.NoError(t, err)

	res, err := f.Execute(ctx, "terminal length 0,show run", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PromptsCounted)

	lines := f.SentLines()
	require.Len(t, lines, 2)
	assert.Equal(t, "terminal length 0\n", lines[0])
	assert.Equal(t, "show run\n", lines[1])
}

// P5: for any session that reaches SHELL_OPEN, Disconnect is called
// exactly once whether execution succeeded or failed.
func TestFakeSessionDisconnectCalledOnceOnSuccess(t *testing.T) {
	f := &FakeSession{ExecResult: ExecResult{Transcript: "ok"}}
	ctx := context.Background()

	require.NoError(t, f.Connect(ctx))
	require.NoError(t, f.OpenShell(ctx))
	_, _ = f.FindPrompt(ctx)
	_, _ = f.Execute(ctx, "show run", 1)
	require.NoError(t, f.Disconnect())

	assert.Equal(t, 1, f.DisconnectCalls())
	assert.Equal(t, StateClosed, f.State())
}

func TestFakeSessionDisconnectCalledOnceOnExecError(t *testing.T) {
	f := &FakeSession{ExecErr: NewError(CategoryCommandTimeout, "deadline", "")}
	ctx := context.Background()

	require.NoError(t, f.Connect(ctx))
	require.NoError(t, f.OpenShell(ctx))
	_, _ = f.FindPrompt(ctx)
	_, err := f.Execute(ctx, "show run", 1)
	require.Error(t, err)
	require.NoError(t, f.Disconnect())

	assert.Equal(t, 1, f.DisconnectCalls())
}

func TestFakeDialerDialsScriptedHost(t *testing.T) {
	scripted := &FakeSession{PromptResult: "router1#"}
	d := &FakeDialer{Script: map[string]*FakeSession{"10.0.0.1": scripted}}

	sess := d.Dial(Target{Host: "10.0.0.1", Port: 22}, Credentials{Username: "admin"}, false, DefaultTimeouts())
	require.NoError(t, sess.Connect(context.Background()))
	assert.Equal(t, "admin", scripted.creds.Username)
}

func TestFakeDialerUnscriptedHostErrors(t *testing.T) {
	d := &FakeDialer{Script: map[string]*FakeSession{}}
	sess := d.Dial(Target{Host: "unknown", Port: 22}, Credentials{}, false, DefaultTimeouts())
	err := sess.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, CategoryUnknown, AsError(err).Category)
}

func TestErrorCategoryRetryEligible(t *testing.T) {
	assert.False(t, CategoryAuth.RetryEligible())
	assert.False(t, CategoryDNSFailure.RetryEligible())
	assert.False(t, CategoryKex.RetryEligible())
	assert.True(t, CategoryCommandTimeout.RetryEligible())
	assert.True(t, CategorySocket.RetryEligible())
}

package sshdriver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorizeDialErr(t *testing.T) {
	cases := []struct {
		msg  string
		want ErrorCategory
	}{
		{"dial tcp: lookup bogus.example: no such host", CategoryDNSFailure},
		{"dial tcp 10.0.0.1:22: connect: connection refused", CategoryConnectionRefused},
		{"dial tcp 10.0.0.1:22: i/o timeout", CategoryConnectionTimeout},
		{"dial tcp 10.0.0.1:22: some other failure", CategorySocket},
	}
	for _, c := range cases {
		err := categorizeDialErr(errors.New(c.msg))
		assert.Equal(t, c.want, AsError(err).Category, c.msg)
	}
}

func TestCategorizeHandshakeErr(t *testing.T) {
	cases := []struct {
		msg  string
		want ErrorCategory
	}{
		{"ssh: handshake failed: ssh: unable to authenticate", CategoryAuth},
		{"ssh: no common algorithm for key exchange", CategoryKex},
		{"ssh: handshake failed: i/o timeout", CategoryConnectionTimeout},
		{"ssh: some other protocol error", CategoryProtocol},
	}
	for _, c := range cases {
		err := categorizeHandshakeErr(errors.New(c.msg))
		assert.Equal(t, c.want, AsError(err).Category, c.msg)
	}
}

func TestCountOccurrences(t *testing.T) {
	assert.Equal(t, 2, countOccurrences("router1#show run\nrouter1#", "router1#"))
	assert.Equal(t, 0, countOccurrences("no prompt here", "router1#"))
	assert.Equal(t, 0, countOccurrences("anything", ""))
}

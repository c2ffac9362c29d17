// Package sshdriver drives an interactive SSH shell session against a
// network device: connect, open a shell, detect its prompt, and execute
// command strings by counting prompt occurrences rather than guessing at
// timeouts.
package sshdriver

// ErrorCategory is the closed error taxonomy shared by the driver, the
// executor pool, and the job runner.
type ErrorCategory string

const (
	CategorySuccess           ErrorCategory = "success"
	CategoryConnectionRefused ErrorCategory = "connection_refused"
	CategoryConnectionTimeout ErrorCategory = "connection_timeout"
	CategoryDNSFailure        ErrorCategory = "dns_failure"
	CategoryAuth              ErrorCategory = "auth"
	CategoryKex               ErrorCategory = "kex"
	CategoryCommandTimeout    ErrorCategory = "command_timeout"
	CategoryPromptDetection   ErrorCategory = "prompt_detection"
	CategoryChannel           ErrorCategory = "channel"
	CategorySocket            ErrorCategory = "socket"
	CategoryProtocol          ErrorCategory = "protocol"
	CategoryDisconnect        ErrorCategory = "disconnect"
	CategoryCancelled         ErrorCategory = "cancelled"
	CategoryUnknown           ErrorCategory = "unknown"
)

// RetryEligible reports whether an error of this category may be retried.
// auth, dns, and kex failures are never retry-eligible (§7).
func (c ErrorCategory) RetryEligible() bool {
	switch c {
	case CategoryAuth, CategoryDNSFailure, CategoryKex:
		return false
	default:
		return true
	}
}

// Error is a categorized session failure. It carries an optional
// diagnostic trace separately from its user-facing Message so callers can
// choose whether to surface the trace.
type Error struct {
	Category ErrorCategory
	Message  string
	Trace    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Category)
}

// NewError builds a categorized error with an optional trace.
func NewError(cat ErrorCategory, message string, trace string) *Error {
	return &Error{Category: cat, Message: message, Trace: trace}
}

// AsError unwraps err into a *Error if possible, else categorizes it as
// unknown.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*Error); ok {
		return se
	}
	return &Error{Category: CategoryUnknown, Message: err.Error()}
}

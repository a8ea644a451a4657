package fxp

import (
	"errors"
	"fmt"
)

// ErrWaitInterrupted is returned by AwaitCompletion when the wait was
// cancelled before its read began. Waits cancelled mid-read surface the
// connection's deadline error instead; either way the coordinator wraps
// the error in a side-tagged TransferError.
var ErrWaitInterrupted = errors.New("fxp: completion wait interrupted")

// ProtocolError is returned when a command got a reply outside the class
// the caller required. It carries the full command/reply context.
type ProtocolError struct {
	// Command is the FTP command that was sent (e.g. "STOR").
	Command string

	// Response is the text of the server's reply.
	Response string

	// Code is the numeric reply code (e.g. 550).
	Code int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("fxp: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

// IsTemporary reports whether the reply was a 4xx (transient) failure.
// Callers may use this to drive retry policy; the library itself never
// retries.
func (e *ProtocolError) IsTemporary() bool {
	return e.Code >= 400 && e.Code < 500
}

// IsPermanent reports whether the reply was a 5xx (permanent) failure.
func (e *ProtocolError) IsPermanent() bool {
	return e.Code >= 500 && e.Code < 600
}

// Side identifies which server of an FXP pair an error is attributed to.
type Side int

const (
	// SideSource is the server the file is read from (RETR side).
	SideSource Side = iota

	// SideDestination is the server the file is written to (STOR side).
	SideDestination
)

func (s Side) String() string {
	if s == SideSource {
		return "source"
	}
	return "destination"
}

// TransferError reports that one side of an FXP transfer did not complete.
// Exactly one of Reply or Err is set: Reply when the server answered with
// a code other than 226, Err when the completion wait itself failed
// (connection error, caller cancellation).
type TransferError struct {
	Side  Side
	Reply *Reply
	Err   error
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fxp: %s server: completion wait failed: %v", e.Side, e.Err)
	}
	return fmt.Sprintf("fxp: %s server reported %d %s, want 226", e.Side, e.Reply.Code, e.Reply.Text)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// NegotiationError reports a malformed PASV/CPSV reply. The coordinator
// fails fast on these instead of handing a garbage address to the peer.
type NegotiationError struct {
	// Response is the offending reply text.
	Response string

	// Reason describes what was wrong with it.
	Reason string
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("fxp: bad passive reply %q: %s", e.Response, e.Reason)
}

// AuthError reports a failed login. A TLS handshake succeeding says
// nothing about credential validity, so this is kept distinct from
// handshake failures.
type AuthError struct {
	User string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("fxp: login as %q failed: %v", e.User, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

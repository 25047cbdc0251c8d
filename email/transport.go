package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Transport delivers messages. Implementations report per-recipient
// outcomes in the Result and return a *TransportError when the transaction
// as a whole fails.
type Transport interface {
	Send(ctx context.Context, msg *MessageFields) (*Result, error)
	Close() error
}

// DialFunc creates a Transport bound to opts. It should not perform network
// I/O; connecting is deferred to the first Send.
type DialFunc func(opts TransportOptions) (Transport, error)

// Envelope is the SMTP envelope a message was sent with.
type Envelope struct {
	From string   `json:"from" yaml:"from"`
	To   []string `json:"to" yaml:"to"`
}

// Result describes one delivery as reported by the server.
type Result struct {
	MessageID string   `json:"messageId" yaml:"messageId"`
	Envelope  Envelope `json:"envelope" yaml:"envelope"`
	Accepted  []string `json:"accepted" yaml:"accepted"`
	Rejected  []string `json:"rejected" yaml:"rejected"`
	// Pending lists recipients the server deferred with a 4xx reply.
	Pending []string `json:"pending" yaml:"pending"`
	// Response is the last reply line from the server, e.g.
	// "250 2.0.0 OK: queued".
	Response string `json:"response" yaml:"response"`
}

var (
	// ErrNoRecipients means the message had no To, Cc or Bcc address.
	ErrNoRecipients = errors.New("no recipients defined")

	// ErrAllRecipientsRejected means the server accepted none of the
	// recipients, so no data was sent.
	ErrAllRecipientsRejected = errors.New("all recipients were rejected")

	// ErrTLSRequired means RequireTLS was set but the server did not offer
	// STARTTLS.
	ErrTLSRequired = errors.New("server does not offer STARTTLS")

	// ErrAuthUnsupported means credentials were configured but the server
	// does not advertise AUTH.
	ErrAuthUnsupported = errors.New("server does not support authentication")
)

// TransportError is returned by transports when a delivery fails. Op names
// the stage that failed: "envelope", "compose", "dial", "greeting",
// "hello", "starttls", "auth", "mail", "rcpt" or "data".
type TransportError struct {
	Op string
	// Code and Response hold the server's reply, when there was one.
	Code     int
	Response string
	Rejected []string
	Pending  []string
	Err      error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "email: %s failed", e.Op)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Rejected) > 0 {
		fmt.Fprintf(&b, " (rejected: %s)", strings.Join(e.Rejected, ", "))
	}
	return b.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Temporary reports whether the server answered with a 4xx code, or, for
// rejected envelopes, whether every refused recipient was only deferred.
func (e *TransportError) Temporary() bool {
	if e.Code >= 400 && e.Code < 500 {
		return true
	}
	return e.Code == 0 && len(e.Pending) > 0 && len(e.Rejected) == 0
}

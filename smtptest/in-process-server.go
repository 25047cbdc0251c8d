package smtptest

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/go-units"
	"github.com/emersion/go-smtp"
)

// Message is one email the server accepted, together with its envelope.
type Message struct {
	Created time.Time
	From    string
	To      []string
	Body    string
}

// Options control how the InProcessServer behaves. The zero value accepts
// anonymous, unencrypted submissions to any recipient.
type Options struct {
	// KeyPath and CertPath point to a PEM key pair (see GenerateTLSFiles).
	// When set, the server offers STARTTLS.
	KeyPath  string
	CertPath string
	// RequireAuth rejects MAIL FROM until the client authenticates. Any
	// non-empty username/password pair is accepted.
	RequireAuth bool
	// Reject lists recipients refused with 550, Defer those refused
	// with 450.
	Reject []string
	Defer  []string
}

// Backend implements smtp.Backend. It's a thin authentication wrapper
// for an InMemoryEmailStore.
type Backend struct {
	*InMemoryEmailStore
	opts Options
}

// Login implements smtp.Backend. Any username/password is fine, since we
// don't want to couple this with specific test configurations.
func (be *Backend) Login(_ *smtp.ConnectionState, username string, password string) (smtp.Session, error) {
	if username != "" && password != "" {
		be.recordLogin(username)
		return be.newSession(), nil
	}
	return nil, errors.New("no username or password provided")
}

// AnonymousLogin implements smtp.Backend. Refused when the server requires
// AUTH.
func (be *Backend) AnonymousLogin(_ *smtp.ConnectionState) (smtp.Session, error) {
	if be.opts.RequireAuth {
		return nil, &smtp.SMTPError{
			Code:         530,
			EnhancedCode: smtp.EnhancedCode{5, 7, 0},
			Message:      "Authentication required",
		}
	}
	return be.newSession(), nil
}

func (be *Backend) newSession() *session {
	return &session{store: be.InMemoryEmailStore, opts: be.opts}
}

// session implements smtp.Session and collects one envelope at a time.
type session struct {
	store *InMemoryEmailStore
	opts  Options
	from  string
	to    []string
}

// Reset implements smtp.Session.
func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

// Logout implements smtp.Session. No-op here.
func (s *session) Logout() error { return nil }

// Mail implements smtp.Session. It starts a new envelope.
func (s *session) Mail(from string, _ smtp.MailOptions) error {
	s.from = from
	s.to = nil
	return nil
}

// Rcpt implements smtp.Session, refusing the recipients listed in the
// server's Options.
func (s *session) Rcpt(to string) error {
	for _, r := range s.opts.Reject {
		if strings.EqualFold(r, to) {
			return &smtp.SMTPError{
				Code:         550,
				EnhancedCode: smtp.EnhancedCode{5, 1, 1},
				Message:      "No such user here",
			}
		}
	}
	for _, r := range s.opts.Defer {
		if strings.EqualFold(r, to) {
			return &smtp.SMTPError{
				Code:         450,
				EnhancedCode: smtp.EnhancedCode{4, 2, 1},
				Message:      "Mailbox busy, try again later",
			}
		}
	}
	s.to = append(s.to, to)
	return nil
}

// Data implements smtp.Session. Stores the email data in memory for
// retrieval at the end of the test.
func (s *session) Data(r io.Reader) error {
	// doubtful we'll get an email this big, but we need a limit
	var maxEmailSize int64 = 100 * units.MiB
	buf, err := io.ReadAll(io.LimitReader(r, maxEmailSize))
	if err != nil {
		return err
	}

	s.store.saveEmail(Message{
		Created: time.Now(),
		From:    s.from,
		To:      append([]string(nil), s.to...),
		Body:    string(buf),
	})
	return nil
}

// InMemoryEmailStore retains email bodies in memory for comparison against
// a test's expected output.
// Designed to be goroutine safe since we don't know how many goroutines will
// be hitting the server at once.
type InMemoryEmailStore struct {
	mu       *sync.Mutex
	messages []Message
	logins   []string
}

// InProcessServer is an SMTP server that runs in the same process as the
// test suite, letting us inspect sent emails. You must initialize this
// via NewInProcessServer
type InProcessServer struct {
	*smtp.Server
	*InMemoryEmailStore
	listener *countingListener
}

// countingListener counts accepted connections.
type countingListener struct {
	net.Listener
	accepted atomic.Int64
}

func (l *countingListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err == nil {
		l.accepted.Add(1)
	}
	return c, err
}

// NewInProcessServer creates an InProcessServer listening on a random
// loopback port, including configuring its SMTP server to store incoming
// messages in memory. Call Start to begin serving.
func NewInProcessServer(opts Options) (*InProcessServer, error) {
	is := &InMemoryEmailStore{
		mu:       &sync.Mutex{},
		messages: []Message{},
	}

	srv := smtp.NewServer(&Backend{
		InMemoryEmailStore: is,
		opts:               opts,
	})

	srv.Domain = "localhost"
	// Without TLS, AUTH is only offered when insecure auth is allowed.
	srv.AllowInsecureAuth = opts.KeyPath == ""
	srv.AuthDisabled = false
	// Strict is undocumented, but it looks like it enforces <address> syntax
	// in messages:
	// https://github.com/emersion/go-smtp/blob/f92bf7f1a25777bcdaa28a142b1cd1a54b74c8f4/conn.go#L321-L325
	srv.Strict = true
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second

	if opts.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(opts.CertPath, opts.KeyPath)
		if err != nil {
			return nil, err
		}
		srv.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
		}
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	srv.Addr = l.Addr().String()

	return &InProcessServer{
		Server:             srv,
		InMemoryEmailStore: is,
		listener:           &countingListener{Listener: l},
	}, nil
}

// saveEmail stores the message in memory
func (es *InMemoryEmailStore) saveEmail(m Message) {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.messages = append(es.messages, m)
}

func (es *InMemoryEmailStore) recordLogin(username string) {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.logins = append(es.logins, username)
}

// Start starts the test server. Blocking.
func (is *InProcessServer) Start() error {
	// Not using ServeTLS--the client should upgrade the connection
	// to TLS
	return is.Server.Serve(is.listener)
}

// Close shuts down the test server daemon. You must initialize a new
// InProcessServer instead of restarting this one.
func (is *InProcessServer) Close() {
	is.Server.Close()
}

// RetrieveEmails returns a slice of all message bodies (as strings)
// sent after epoch nanoseconds t
// Satisfies smtptest.Server but isn't expected to return an error.
func (es *InMemoryEmailStore) RetrieveEmails(t int64) ([]string, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	r := make([]string, 0, len(es.messages))
	for _, m := range es.messages {
		if m.Created.UnixNano() >= t {
			r = append(r, m.Body)
		}
	}
	return r, nil
}

// Messages returns every message received so far, envelopes included.
func (es *InMemoryEmailStore) Messages() []Message {
	es.mu.Lock()
	defer es.mu.Unlock()

	return append([]Message(nil), es.messages...)
}

// Logins returns the usernames clients authenticated with, one entry per
// successful AUTH.
func (es *InMemoryEmailStore) Logins() []string {
	es.mu.Lock()
	defer es.mu.Unlock()

	return append([]string(nil), es.logins...)
}

// Connections returns the number of client connections accepted so far.
func (is *InProcessServer) Connections() int {
	return int(is.listener.accepted.Load())
}

// Address returns the host:port of the test SMTP server.
func (is *InProcessServer) Address() string {
	return is.listener.Addr().String()
}

// Host returns the host part of Address.
func (is *InProcessServer) Host() string {
	h, _, _ := net.SplitHostPort(is.Address())
	return h
}

// Port returns the port part of Address.
func (is *InProcessServer) Port() int {
	return is.listener.Addr().(*net.TCPAddr).Port
}

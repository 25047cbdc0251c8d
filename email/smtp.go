package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/go-units"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog/log"
)

// defaultHost is dialed when TransportOptions.Host is empty.
const defaultHost = "localhost"

// SMTPTransport delivers messages to an SMTP server. A transport created
// with Pool set keeps its connection open between sends; otherwise every
// Send dials, delivers and quits. Sends through one SMTPTransport are
// serialized.
type SMTPTransport struct {
	opts TransportOptions

	mu     sync.Mutex
	conn   net.Conn
	client *smtp.Client
	sent   int // messages delivered over conn
}

// NewSMTPTransport returns a transport for opts. It does not connect.
// It satisfies DialFunc.
func NewSMTPTransport(opts TransportOptions) (Transport, error) {
	if opts.Port < 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("email: invalid port %d", opts.Port)
	}
	if opts.MaxMessages < 0 {
		return nil, fmt.Errorf("email: invalid message limit %d", opts.MaxMessages)
	}
	opts = withDialDefaults(opts)
	return &SMTPTransport{opts: opts}, nil
}

// withDialDefaults fills in the host and port the transport falls back to.
func withDialDefaults(opts TransportOptions) TransportOptions {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Host == "" {
		opts.Host = defaultHost
	}
	opts.Auth.Normalize()
	return opts
}

// Addr returns the host:port the transport connects to.
func (t *SMTPTransport) Addr() string {
	return net.JoinHostPort(t.opts.Host, strconv.Itoa(t.opts.Port))
}

// Send delivers msg. Recipients refused with a 4xx reply are reported as
// pending, those refused with a 5xx reply as rejected. If no recipient is
// accepted, Send returns a *TransportError wrapping
// ErrAllRecipientsRejected.
func (t *SMTPTransport) Send(ctx context.Context, msg *MessageFields) (*Result, error) {
	env, err := envelope(msg)
	if err != nil {
		return nil, &TransportError{Op: "envelope", Err: err}
	}

	id := newMessageID(env.From)
	raw, err := compose(msg, id, t.opts.TextFromHTML)
	if err != nil {
		return nil, &TransportError{Op: "compose", Err: err}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	c, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}
	if t.opts.SocketTimeout > 0 {
		_ = t.conn.SetDeadline(time.Now().Add(t.opts.SocketTimeout))
	}

	res, err := deliver(c, env, raw)
	if err == nil {
		t.sent++
	}
	if err != nil || !t.opts.Pool {
		t.hangUp(err == nil)
	} else {
		_ = t.conn.SetDeadline(time.Time{})
	}
	if err != nil {
		return nil, err
	}
	res.MessageID = id

	log.Debug().
		Str("server", t.Addr()).
		Str("messageId", id).
		Str("size", units.HumanSize(float64(len(raw)))).
		Int("accepted", len(res.Accepted)).
		Int("rejected", len(res.Rejected)).
		Int("pending", len(res.Pending)).
		Msg("message delivered")
	return res, nil
}

// Close quits a connection kept open by a pooled transport.
func (t *SMTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Quit()
	t.client = nil
	t.conn = nil
	return err
}

// connect returns a ready client, reusing the open connection when it
// still answers NOOP and has not reached MaxMessages.
func (t *SMTPTransport) connect(ctx context.Context) (*smtp.Client, error) {
	if t.client != nil {
		switch {
		case t.opts.MaxMessages > 0 && t.sent >= t.opts.MaxMessages:
			log.Debug().
				Str("server", t.Addr()).
				Int("sent", t.sent).
				Msg("pooled connection reached its message limit, reconnecting")
			t.hangUp(true)
		case t.client.Noop() == nil:
			return t.client, nil
		default:
			log.Debug().Str("server", t.Addr()).Msg("pooled connection went stale, redialing")
			t.hangUp(false)
		}
	}

	c, conn, err := t.dial(ctx, !t.opts.Secure && !t.opts.IgnoreTLS)
	if err != nil {
		return nil, err
	}
	t.client = c
	t.conn = conn
	return c, nil
}

// hangUp drops the current connection, politely when graceful is set.
func (t *SMTPTransport) hangUp(graceful bool) {
	if t.client == nil {
		return
	}
	if graceful {
		if err := t.client.Quit(); err != nil {
			log.Debug().Err(err).Str("server", t.Addr()).Msg("QUIT failed")
		}
	} else {
		_ = t.client.Close()
	}
	t.client = nil
	t.conn = nil
	t.sent = 0
}

func (t *SMTPTransport) tlsConfig() *tls.Config {
	if t.opts.TLSConfig != nil {
		c := t.opts.TLSConfig.Clone()
		if c.ServerName == "" {
			c.ServerName = t.opts.Host
		}
		return c
	}
	return &tls.Config{ServerName: t.opts.Host}
}

// dial opens a connection and walks it through EHLO, STARTTLS (when
// startTLS is set) and AUTH.
func (t *SMTPTransport) dial(ctx context.Context, startTLS bool) (*smtp.Client, net.Conn, error) {
	d := net.Dialer{Timeout: t.opts.ConnectionTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.Addr())
	if err != nil {
		return nil, nil, &TransportError{Op: "dial", Err: err}
	}

	if t.opts.Secure {
		tc := tls.Client(conn, t.tlsConfig())
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, nil, &TransportError{Op: "dial", Err: err}
		}
		conn = tc
	}

	var dc *debugConn
	if t.opts.Debug {
		dc = &debugConn{Conn: conn, w: smtpDebugLog{server: t.Addr()}}
		conn = dc
	}

	// smtp.NewClient reads the greeting, so the greeting timeout bounds it.
	if t.opts.GreetingTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(t.opts.GreetingTimeout))
	}
	c, err := smtp.NewClient(conn, t.opts.Host)
	if err != nil {
		conn.Close()
		return nil, nil, replyError("greeting", err)
	}
	_ = conn.SetDeadline(time.Time{})

	fail := func(op string, err error) (*smtp.Client, net.Conn, error) {
		c.Close()
		return nil, nil, replyError(op, err)
	}

	if t.opts.Name != "" {
		if err := c.Hello(t.opts.Name); err != nil {
			return fail("hello", err)
		}
	}

	if startTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if dc != nil {
				// The wrapped connection only sees ciphertext from here on.
				dc.off.Store(true)
				c.DebugWriter = dc.w
			}
			if err := c.StartTLS(t.tlsConfig()); err != nil {
				if !t.opts.OpportunisticTLS || t.opts.RequireTLS {
					return fail("starttls", err)
				}
				c.Close()
				log.Warn().
					Err(err).
					Str("server", t.Addr()).
					Msg("STARTTLS failed, continuing without encryption")
				return t.dial(ctx, false)
			}
		} else if t.opts.RequireTLS {
			return fail("starttls", ErrTLSRequired)
		}
	}

	if a := t.opts.Auth; a.Username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return fail("auth", ErrAuthUnsupported)
		}
		if err := c.Auth(sasl.NewPlainClient("", a.Username, a.Password)); err != nil {
			return fail("auth", err)
		}
	}

	log.Debug().
		Str("server", t.Addr()).
		Bool("secure", t.opts.Secure).
		Bool("startTLS", startTLS).
		Msg("connected to the SMTP server")
	return c, conn, nil
}

// deliver runs one mail transaction on c.
func deliver(c *smtp.Client, env Envelope, raw []byte) (*Result, error) {
	if err := c.Mail(env.From, nil); err != nil {
		return nil, replyError("mail", err)
	}

	res := &Result{
		Envelope: env,
		Accepted: []string{},
		Rejected: []string{},
		Pending:  []string{},
	}
	for _, rcpt := range env.To {
		err := c.Rcpt(rcpt)
		if err == nil {
			res.Accepted = append(res.Accepted, rcpt)
			continue
		}
		code, _, ok := reply(err)
		switch {
		case !ok:
			// Not a server reply: the connection itself failed.
			return nil, &TransportError{Op: "rcpt", Err: err}
		case code >= 400 && code < 500:
			res.Pending = append(res.Pending, rcpt)
		default:
			res.Rejected = append(res.Rejected, rcpt)
		}
	}

	if len(res.Accepted) == 0 {
		_ = c.Reset()
		return nil, &TransportError{
			Op:       "rcpt",
			Rejected: res.Rejected,
			Pending:  res.Pending,
			Err:      ErrAllRecipientsRejected,
		}
	}

	resp, err := data(c, raw)
	if err != nil {
		return nil, replyError("data", err)
	}
	res.Response = resp
	return res, nil
}

// data sends the DATA command and the message. It drives the client's
// textproto connection directly so the final reply line can be returned to
// the caller.
func data(c *smtp.Client, raw []byte) (string, error) {
	id, err := c.Text.Cmd("DATA")
	if err != nil {
		return "", err
	}
	c.Text.StartResponse(id)
	_, _, err = c.Text.ReadResponse(354)
	c.Text.EndResponse(id)
	if err != nil {
		return "", err
	}

	w := c.Text.DotWriter()
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	code, msg, err := c.Text.ReadResponse(250)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(code) + " " + msg, nil
}

// reply extracts the server's reply code and text from err.
func reply(err error) (int, string, bool) {
	var se *smtp.SMTPError
	if errors.As(err, &se) {
		return se.Code, se.Message, true
	}
	var te *textproto.Error
	if errors.As(err, &te) {
		return te.Code, te.Msg, true
	}
	return 0, "", false
}

func replyError(op string, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	e := &TransportError{Op: op, Err: err}
	if code, msg, ok := reply(err); ok {
		e.Code = code
		e.Response = strconv.Itoa(code) + " " + msg
	}
	return e
}

// debugConn copies the plain-text SMTP conversation to w.
type debugConn struct {
	net.Conn
	w   io.Writer
	off atomic.Bool
}

func (c *debugConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 && !c.off.Load() {
		_, _ = c.w.Write(p[:n])
	}
	return n, err
}

func (c *debugConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if n > 0 && !c.off.Load() {
		_, _ = c.w.Write(p[:n])
	}
	return n, err
}

// smtpDebugLog writes each protocol line as a debug log entry.
type smtpDebugLog struct {
	server string
}

func (w smtpDebugLog) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\r\n"), "\n") {
		log.Debug().
			Str("server", w.server).
			Str("component", "smtp").
			Msg(strings.TrimRight(line, "\r"))
	}
	return len(p), nil
}

package email

import (
	"crypto/tls"
	"slices"
	"time"
)

// Defaults applied by NewConfig before any caller-supplied options. The
// timeouts follow the values common SMTP clients use.
const (
	DefaultPort              = 25
	DefaultConnectionTimeout = 2 * time.Minute
	DefaultGreetingTimeout   = 30 * time.Second
	DefaultSocketTimeout     = 10 * time.Minute
	// DefaultMaxMessages is how many messages a pooled connection carries
	// before it is replaced.
	DefaultMaxMessages = 100
)

// Auth holds SMTP credentials. User and Pass are accepted as aliases of
// Username and Password; call Normalize to fold them in.
type Auth struct {
	Username string
	Password string
	User     string
	Pass     string
}

// Normalize copies the legacy aliases into the canonical fields. A canonical
// field that is already set is left alone.
func (a *Auth) Normalize() {
	if a.Username == "" {
		a.Username = a.User
	}
	if a.Password == "" {
		a.Password = a.Pass
	}
	a.User = ""
	a.Pass = ""
}

// TransportOptions configures the connection a Builder sends through. A
// Builder's copy is fixed once the Builder exists.
type TransportOptions struct {
	Host   string
	Port   int
	Secure bool // implicit TLS (smtps)
	Pool   bool // share one transport between builders with equal PoolKey
	Auth   Auth
	// Name is sent with EHLO. Empty means the local hostname.
	Name       string
	IgnoreTLS  bool // never upgrade with STARTTLS
	RequireTLS bool // fail when STARTTLS is not offered
	// OpportunisticTLS keeps going without encryption when the STARTTLS
	// upgrade fails. It has no effect together with RequireTLS.
	OpportunisticTLS bool

	// MaxMessages caps the messages sent over one pooled connection. Zero
	// means no cap.
	MaxMessages int

	// Debug logs the SMTP conversation at debug level.
	Debug bool

	ConnectionTimeout time.Duration
	GreetingTimeout   time.Duration
	SocketTimeout     time.Duration

	// TextFromHTML makes the transport generate a text/plain alternative
	// from the HTML body when the message has no text body of its own.
	TextFromHTML bool

	TLSConfig *tls.Config
}

// Header is one custom header line.
type Header struct {
	Key   string
	Value string
}

// Attachment references a file that is read when the message is sent.
type Attachment struct {
	Path string
}

// MessageFields is the content of a single message.
type MessageFields struct {
	Subject     string
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Text        string
	HTML        string
	Headers     []Header
	Attachments []Attachment
}

// Clone returns a deep copy of m.
func (m MessageFields) Clone() MessageFields {
	c := m
	c.To = slices.Clone(m.To)
	c.Cc = slices.Clone(m.Cc)
	c.Bcc = slices.Clone(m.Bcc)
	c.Headers = slices.Clone(m.Headers)
	c.Attachments = slices.Clone(m.Attachments)
	return c
}

// Recipients returns To, Cc and Bcc in that order.
func (m MessageFields) Recipients() []string {
	r := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	r = append(r, m.To...)
	r = append(r, m.Cc...)
	return append(r, m.Bcc...)
}

// Options groups the transport and message settings that a Config holds as
// defaults and that a Builder holds as its effective state.
type Options struct {
	Transport TransportOptions
	Message   MessageFields
}

func (o Options) clone() Options {
	c := o
	c.Message = o.Message.Clone()
	if o.Transport.TLSConfig != nil {
		c.Transport.TLSConfig = o.Transport.TLSConfig.Clone()
	}
	return c
}

// Option sets exactly one field of Options. Only the fields named by the
// options passed to a call are changed.
type Option func(*Options)

func builtinDefaults() Options {
	return Options{
		Transport: TransportOptions{
			Port:              DefaultPort,
			ConnectionTimeout: DefaultConnectionTimeout,
			GreetingTimeout:   DefaultGreetingTimeout,
			SocketTimeout:     DefaultSocketTimeout,
			MaxMessages:       DefaultMaxMessages,
		},
		Message: MessageFields{
			To:          []string{},
			Cc:          []string{},
			Bcc:         []string{},
			Headers:     []Header{},
			Attachments: []Attachment{},
		},
	}
}

func apply(o *Options, opts []Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	o.Transport.Auth.Normalize()
}

// WithHost sets the SMTP server host. Empty means localhost.
func WithHost(host string) Option {
	return func(o *Options) { o.Transport.Host = host }
}

// WithPort sets the SMTP server port.
func WithPort(port int) Option {
	return func(o *Options) { o.Transport.Port = port }
}

// WithSecure turns implicit TLS on or off.
func WithSecure(secure bool) Option {
	return func(o *Options) { o.Transport.Secure = secure }
}

// WithPool makes builders share one transport per PoolKey.
func WithPool(pool bool) Option {
	return func(o *Options) { o.Transport.Pool = pool }
}

// WithAuth replaces the credentials. Aliases in a are normalized.
func WithAuth(a Auth) Option {
	return func(o *Options) {
		a.Normalize()
		o.Transport.Auth = a
	}
}

// WithCredentials is WithAuth for the canonical username and password.
func WithCredentials(username, password string) Option {
	return WithAuth(Auth{Username: username, Password: password})
}

// WithName sets the name sent with EHLO.
func WithName(name string) Option {
	return func(o *Options) { o.Transport.Name = name }
}

// WithIgnoreTLS skips STARTTLS even when the server offers it.
func WithIgnoreTLS(ignore bool) Option {
	return func(o *Options) { o.Transport.IgnoreTLS = ignore }
}

// WithRequireTLS fails the connection when STARTTLS is not offered.
func WithRequireTLS(require bool) Option {
	return func(o *Options) { o.Transport.RequireTLS = require }
}

// WithConnectionTimeout bounds the TCP (and implicit TLS) connect.
func WithConnectionTimeout(d time.Duration) Option {
	return func(o *Options) { o.Transport.ConnectionTimeout = d }
}

// WithGreetingTimeout bounds the wait for the server greeting.
func WithGreetingTimeout(d time.Duration) Option {
	return func(o *Options) { o.Transport.GreetingTimeout = d }
}

// WithSocketTimeout bounds one delivery on an open connection.
func WithSocketTimeout(d time.Duration) Option {
	return func(o *Options) { o.Transport.SocketTimeout = d }
}

// WithTLSConfig sets the TLS settings for implicit TLS and STARTTLS.
// ServerName defaults to the host.
func WithTLSConfig(c *tls.Config) Option {
	return func(o *Options) { o.Transport.TLSConfig = c }
}

// WithTextFromHTML derives a text part from the HTML body when the
// message has none.
func WithTextFromHTML(enabled bool) Option {
	return func(o *Options) { o.Transport.TextFromHTML = enabled }
}

// WithOpportunisticTLS falls back to plain text when STARTTLS fails.
func WithOpportunisticTLS(enabled bool) Option {
	return func(o *Options) { o.Transport.OpportunisticTLS = enabled }
}

// WithMaxMessages caps the messages sent over one pooled connection.
// Zero removes the cap.
func WithMaxMessages(n int) Option {
	return func(o *Options) { o.Transport.MaxMessages = n }
}

// WithDebug logs the SMTP conversation at debug level.
func WithDebug(enabled bool) Option {
	return func(o *Options) { o.Transport.Debug = enabled }
}

// WithSubject sets the subject.
func WithSubject(subject string) Option {
	return func(o *Options) { o.Message.Subject = subject }
}

// WithFrom sets the sender.
func WithFrom(from string) Option {
	return func(o *Options) { o.Message.From = from }
}

// WithTo sets the To list, replacing any default. Builder.To appends
// instead.
func WithTo(addrs ...string) Option {
	return func(o *Options) { o.Message.To = slices.Clone(addrs) }
}

// WithCc sets the Cc list, replacing any default.
func WithCc(addrs ...string) Option {
	return func(o *Options) { o.Message.Cc = slices.Clone(addrs) }
}

// WithBcc sets the Bcc list, replacing any default.
func WithBcc(addrs ...string) Option {
	return func(o *Options) { o.Message.Bcc = slices.Clone(addrs) }
}

// WithText sets the plain-text body.
func WithText(text string) Option {
	return func(o *Options) { o.Message.Text = text }
}

// WithHTML sets the HTML body.
func WithHTML(html string) Option {
	return func(o *Options) { o.Message.HTML = html }
}

// WithHeaders sets the custom headers, replacing any default.
func WithHeaders(headers ...Header) Option {
	return func(o *Options) { o.Message.Headers = slices.Clone(headers) }
}

// WithAttachments sets the attached file paths, replacing any default.
func WithAttachments(paths ...string) Option {
	return func(o *Options) {
		a := make([]Attachment, 0, len(paths))
		for _, p := range paths {
			a = append(a, Attachment{Path: p})
		}
		o.Message.Attachments = a
	}
}

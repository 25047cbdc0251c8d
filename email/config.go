package email

import (
	"fmt"
	"slices"
	"sync"

	"dario.cat/mergo"
)

// Config holds the defaults every Builder starts from, along with the
// collaborators builders need to reach a transport. Create one with
// NewConfig at startup and share it. Changes made with Init or Merge are
// seen by builders created afterwards, never by existing ones.
type Config struct {
	mu       sync.RWMutex
	defaults Options
	dial     DialFunc
	pool     *Pool
	journal  *Journal
}

// NewConfig returns a Config with the built-in defaults overlaid by opts.
// It sends through NewSMTPTransport and pools with a private Pool until
// SetDialer or SetPool say otherwise.
func NewConfig(opts ...Option) *Config {
	d := builtinDefaults()
	apply(&d, opts)
	return &Config{
		defaults: d,
		dial:     NewSMTPTransport,
		pool:     NewPool(),
	}
}

// Init overlays opts onto the current defaults. Last write wins.
func (c *Config) Init(opts ...Option) {
	c.mu.Lock()
	defer c.mu.Unlock()
	apply(&c.defaults, opts)
}

// Merge overlays o onto the current defaults. Fields of o holding their zero
// value are skipped, so a partially filled Options (for example one decoded
// from a file) only changes what it actually carries. Use Init to set a
// field back to its zero value.
func (c *Config) Merge(o Options) error {
	src := o.clone()
	src.Transport.Auth.Normalize()
	// tls.Config carries locks and function fields; it is swapped, never
	// merged field by field.
	tlsConf := src.Transport.TLSConfig
	src.Transport.TLSConfig = nil

	c.mu.Lock()
	defer c.mu.Unlock()

	dst := c.defaults.clone()
	keepTLS := dst.Transport.TLSConfig
	dst.Transport.TLSConfig = nil
	if err := mergo.Merge(&dst, src, mergo.WithOverride); err != nil {
		return fmt.Errorf("can't merge the email defaults: %w", err)
	}
	dst.Transport.TLSConfig = keepTLS
	if tlsConf != nil {
		dst.Transport.TLSConfig = tlsConf
	}
	c.defaults = dst
	return nil
}

// Defaults returns a deep copy of the current defaults.
func (c *Config) Defaults() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaults.clone()
}

// SetDialer replaces the function used to create transports.
func (c *Config) SetDialer(d DialFunc) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dial = d
	return c
}

// SetPool replaces the pool consulted by builders whose options enable
// pooling. Builders created earlier keep the pool they started with.
func (c *Config) SetPool(p *Pool) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pool = p
	return c
}

// SetJournal makes every Builder created from c record its delivery results
// in j. A nil j turns recording off.
func (c *Config) SetJournal(j *Journal) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.journal = j
	return c
}

// Pool returns the pool builders created from c will use.
func (c *Config) Pool() *Pool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool
}

// New starts a message with the given subject. opts override the defaults
// for this message only.
func (c *Config) New(subject string, opts ...Option) *Builder {
	return c.NewWithOptions(append(slices.Clip(opts), WithSubject(subject))...)
}

// NewWithOptions starts a message whose subject, if any, comes from
// WithSubject or the configured default.
func (c *Config) NewWithOptions(opts ...Option) *Builder {
	c.mu.RLock()
	eff := c.defaults.clone()
	b := &Builder{
		dial:    c.dial,
		pool:    c.pool,
		journal: c.journal,
	}
	c.mu.RUnlock()

	apply(&eff, opts)
	// An explicit or configured sender wins over the login name.
	if eff.Message.From == "" {
		eff.Message.From = eff.Transport.Auth.Username
	}

	b.opts = eff.Transport
	b.msg = eff.Message
	return b
}

package email

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// PoolKey identifies the connection described by opts:
// scheme://[username[:password]@]host:port, where scheme is smtps for
// implicit TLS and smtp otherwise. An empty host or port is keyed as the
// localhost:25 the SMTP transport falls back to.
func PoolKey(opts TransportOptions) string {
	opts = withDialDefaults(opts)
	a := opts.Auth

	var b strings.Builder
	if opts.Secure {
		b.WriteString("smtps://")
	} else {
		b.WriteString("smtp://")
	}
	// Userinfo is written verbatim, not URL-escaped, so addresses used as
	// usernames stay readable in the key.
	if a.Username != "" {
		b.WriteString(a.Username)
		if a.Password != "" {
			b.WriteString(":" + a.Password)
		}
		b.WriteString("@")
	}
	b.WriteString(opts.Host + ":" + strconv.Itoa(opts.Port))
	return b.String()
}

// Pool shares transports between builders whose options produce the same
// PoolKey. Pooled transports live until Close.
type Pool struct {
	mu    sync.Mutex
	conns map[string]Transport
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{conns: make(map[string]Transport)}
}

// Acquire returns the transport stored under key, creating it with dial if
// there is none yet. dial runs under the pool's lock, so concurrent callers
// asking for the same key get the same transport.
func (p *Pool) Acquire(key string, dial func() (Transport, error)) (Transport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.conns[key]; ok {
		return t, nil
	}
	t, err := dial()
	if err != nil {
		return nil, err
	}
	p.conns[key] = t
	log.Debug().Int("size", len(p.conns)).Msg("added a transport to the pool")
	return t, nil
}

// Release is a no-op: pooled transports stay open for the life of the Pool.
func (p *Pool) Release(Transport) {}

// Len returns the number of pooled transports.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Close closes and forgets every pooled transport.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for k, t := range p.conns {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("can't close a pooled transport: %w", err))
		}
		delete(p.conns, k)
	}
	return errors.Join(errs...)
}

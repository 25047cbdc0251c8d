package email

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Builder accumulates one message. Create it with Config.New or
// Config.NewWithOptions, chain the setters, then call Send. A Builder is not
// safe for concurrent use, and its message must not be changed while a Send
// is in flight.
type Builder struct {
	opts TransportOptions
	msg  MessageFields

	dial      DialFunc
	pool      *Pool
	journal   *Journal
	transport Transport
}

// From replaces the sender.
func (b *Builder) From(address string) *Builder {
	b.msg.From = address
	return b
}

// Subject replaces the subject.
func (b *Builder) Subject(subject string) *Builder {
	b.msg.Subject = subject
	return b
}

// To appends recipients. Pass a slice as To(list...).
func (b *Builder) To(addresses ...string) *Builder {
	b.msg.To = append(b.msg.To, addresses...)
	return b
}

// Cc appends carbon-copy recipients.
func (b *Builder) Cc(addresses ...string) *Builder {
	b.msg.Cc = append(b.msg.Cc, addresses...)
	return b
}

// Bcc appends blind carbon-copy recipients.
func (b *Builder) Bcc(addresses ...string) *Builder {
	b.msg.Bcc = append(b.msg.Bcc, addresses...)
	return b
}

// Text replaces the plain-text body.
func (b *Builder) Text(content string) *Builder {
	b.msg.Text = content
	return b
}

// HTML replaces the HTML body.
func (b *Builder) HTML(content string) *Builder {
	b.msg.HTML = content
	return b
}

// Attachment appends a file to attach. The file is read at send time.
func (b *Builder) Attachment(path string) *Builder {
	b.msg.Attachments = append(b.msg.Attachments, Attachment{Path: path})
	return b
}

// Header appends a header line. Repeating a key adds another value; nothing
// is replaced.
func (b *Builder) Header(key, value string) *Builder {
	b.msg.Headers = append(b.msg.Headers, Header{Key: key, Value: value})
	return b
}

// Options returns a copy of the builder's effective transport options.
func (b *Builder) Options() TransportOptions {
	o := b.opts
	if o.TLSConfig != nil {
		o.TLSConfig = o.TLSConfig.Clone()
	}
	return o
}

// Message returns a copy of the message as accumulated so far.
func (b *Builder) Message() MessageFields {
	return b.msg.Clone()
}

// Transport returns the transport the builder sends through, creating it on
// first use. With pooling enabled the transport comes from the shared Pool
// and may be the same value other builders use.
func (b *Builder) Transport() (Transport, error) {
	if b.transport != nil {
		return b.transport, nil
	}
	if b.dial == nil {
		return nil, fmt.Errorf("email: no dialer configured")
	}

	opts := b.Options()
	dial := func() (Transport, error) { return b.dial(opts) }

	var (
		t   Transport
		err error
	)
	if b.opts.Pool && b.pool != nil {
		t, err = b.pool.Acquire(PoolKey(opts), dial)
	} else {
		t, err = dial()
	}
	if err != nil {
		return nil, err
	}
	b.transport = t
	return t, nil
}

// Send hands the current message to the transport and returns whatever the
// transport returns. It may be called again to resend the message as it is
// at that time.
func (b *Builder) Send(ctx context.Context) (*Result, error) {
	t, err := b.Transport()
	if err != nil {
		return nil, err
	}

	msg := b.Message()
	log.Debug().
		Str("subject", msg.Subject).
		Int("recipients", len(msg.Recipients())).
		Int("attachments", len(msg.Attachments)).
		Msg("sending a message")

	res, err := t.Send(ctx, &msg)
	if err == nil && res != nil && b.journal != nil {
		if jerr := b.journal.Record(res); jerr != nil {
			log.Warn().
				Err(jerr).
				Str("messageId", res.MessageID).
				Msg("could not record the delivery in the journal")
		}
	}
	return res, err
}

package email

import (
	"bytes"
	"fmt"
	"mime"
	"net/mail"
	"net/textproto"
	"os"
	"strings"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"

	"github.com/hyurl/sfn-mail/html"
)

// envelope derives the SMTP envelope from msg. Display names are dropped
// and duplicate recipients are sent to once.
func envelope(msg *MessageFields) (Envelope, error) {
	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return Envelope{}, fmt.Errorf("invalid sender %q: %w", msg.From, err)
	}

	env := Envelope{From: from.Address, To: []string{}}
	seen := make(map[string]struct{})
	for _, r := range msg.Recipients() {
		a, err := mail.ParseAddress(r)
		if err != nil {
			return Envelope{}, fmt.Errorf("invalid recipient %q: %w", r, err)
		}
		if _, ok := seen[a.Address]; ok {
			continue
		}
		seen[a.Address] = struct{}{}
		env.To = append(env.To, a.Address)
	}
	if len(env.To) == 0 {
		return Envelope{}, ErrNoRecipients
	}
	return env, nil
}

// newMessageID returns an RFC 5322 message id in angle brackets. The
// domain is taken from the envelope sender.
func newMessageID(sender string) string {
	domain := "localhost"
	if i := strings.LastIndex(sender, "@"); i >= 0 && i < len(sender)-1 {
		domain = sender[i+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// compose renders msg as RFC 5322 bytes. id must include the angle
// brackets.
func compose(msg *MessageFields, id string, textFromHTML bool) ([]byte, error) {
	m := gomail.NewMsg(gomail.WithNoDefaultUserAgent())

	if err := m.From(msg.From); err != nil {
		return nil, err
	}
	if len(msg.To) > 0 {
		if err := m.To(msg.To...); err != nil {
			return nil, err
		}
	}
	if len(msg.Cc) > 0 {
		if err := m.Cc(msg.Cc...); err != nil {
			return nil, err
		}
	}
	// Bcc is kept on the Msg for completeness; go-mail never writes it out.
	if len(msg.Bcc) > 0 {
		if err := m.Bcc(msg.Bcc...); err != nil {
			return nil, err
		}
	}
	if msg.Subject != "" {
		m.Subject(msg.Subject)
	}
	m.SetMessageIDWithValue(strings.Trim(id, "<>"))
	m.SetDate()

	text := msg.Text
	if text == "" && msg.HTML != "" && textFromHTML {
		t, err := html.ToText(strings.NewReader(msg.HTML))
		if err != nil {
			return nil, fmt.Errorf("can't derive a text body from the HTML: %w", err)
		}
		text = t
	}
	switch {
	case text != "" && msg.HTML != "":
		m.SetBodyString(gomail.TypeTextPlain, text)
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	default:
		m.SetBodyString(gomail.TypeTextPlain, text)
	}

	for _, a := range msg.Attachments {
		// AttachFile skips files it cannot stat, so check first.
		if _, err := os.Stat(a.Path); err != nil {
			return nil, fmt.Errorf("can't attach %q: %w", a.Path, err)
		}
		m.AttachFile(a.Path)
	}

	// go-mail keeps one entry per header name and sorts them, so custom
	// headers are written ahead of its header block, one line per entry.
	var buf bytes.Buffer
	if err := writeHeaders(&buf, msg.Headers); err != nil {
		return nil, err
	}
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Headers compose derives from MessageFields. Custom headers can't set them.
var reservedHeaders = map[string]struct{}{
	"From": {}, "To": {}, "Cc": {}, "Bcc": {}, "Subject": {}, "Date": {},
	"Message-Id": {}, "Mime-Version": {}, "Content-Type": {},
	"Content-Transfer-Encoding": {},
}

// writeHeaders writes one header line per entry in call order. Values with
// non-ASCII text are Q-encoded and line breaks are replaced with spaces.
func writeHeaders(w *bytes.Buffer, headers []Header) error {
	for _, h := range headers {
		if !validHeaderName(h.Key) {
			return fmt.Errorf("invalid header name %q", h.Key)
		}
		if _, ok := reservedHeaders[textproto.CanonicalMIMEHeaderKey(h.Key)]; ok {
			return fmt.Errorf("header %q comes from the message fields and can't be set directly", h.Key)
		}
		v := strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(h.Value)
		fmt.Fprintf(w, "%s: %s\r\n", h.Key, mime.QEncoding.Encode("UTF-8", v))
	}
	return nil
}

// validHeaderName reports whether name only has printable ASCII other than
// the colon (RFC 5322 section 2.2).
func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if c := name[i]; c < 33 || c > 126 || c == ':' {
			return false
		}
	}
	return true
}

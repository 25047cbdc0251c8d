package userconfig

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyurl/sfn-mail/email"
	"github.com/hyurl/sfn-mail/storage"

	yaml "gopkg.in/yaml.v2"
)

// Port used when the config enables implicit TLS without naming a port.
const defaultSecurePort = 465

// Meta represents all current config options that the application can use,
// i.e., after validation and parsing
type Meta struct {
	Transport Transport `yaml:"transport"`
	Message   Message   `yaml:"message"`
	// Journal is optional. Without it, delivery results are not kept.
	Journal *storage.KVConfig `yaml:"journal"`
}

// Auth holds SMTP credentials. user and pass are accepted as aliases for
// username and password.
type Auth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	User     string `yaml:"user"`
	Pass     string `yaml:"pass"`
}

// Transport contains the connection settings for the SMTP server.
type Transport struct {
	Host         string
	Port         int
	Secure       bool
	Pool         bool
	Name         string
	IgnoreTLS    bool
	RequireTLS   bool
	TextFromHTML bool
	Auth         Auth

	OpportunisticTLS bool
	Debug            bool
	// MaxMessages of zero keeps the library default.
	MaxMessages int

	ConnectionTimeout time.Duration
	GreetingTimeout   time.Duration
	SocketTimeout     time.Duration
}

// UnmarshalYAML parses the transport section. Timeouts are written as
// duration strings, e.g., "30s".
func (t *Transport) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		Secure       bool   `yaml:"secure"`
		Pool         bool   `yaml:"pool"`
		Name         string `yaml:"name"`
		IgnoreTLS    bool   `yaml:"ignoreTLS"`
		RequireTLS   bool   `yaml:"requireTLS"`
		TextFromHTML bool   `yaml:"textFromHTML"`
		Auth         Auth   `yaml:"auth"`

		OpportunisticTLS bool `yaml:"opportunisticTLS"`
		Debug            bool `yaml:"debug"`
		MaxMessages      int  `yaml:"maxMessages"`

		ConnectionTimeout string `yaml:"connectionTimeout"`
		GreetingTimeout   string `yaml:"greetingTimeout"`
		SocketTimeout     string `yaml:"socketTimeout"`
	}
	if err := unmarshal(&raw); err != nil {
		return fmt.Errorf("can't parse the transport config: %v", err)
	}

	ct, err := parseDuration("connectionTimeout", raw.ConnectionTimeout)
	if err != nil {
		return err
	}
	gt, err := parseDuration("greetingTimeout", raw.GreetingTimeout)
	if err != nil {
		return err
	}
	st, err := parseDuration("socketTimeout", raw.SocketTimeout)
	if err != nil {
		return err
	}

	*t = Transport{
		Host:              raw.Host,
		Port:              raw.Port,
		Secure:            raw.Secure,
		Pool:              raw.Pool,
		Name:              raw.Name,
		IgnoreTLS:         raw.IgnoreTLS,
		RequireTLS:        raw.RequireTLS,
		TextFromHTML:      raw.TextFromHTML,
		Auth:              raw.Auth,
		OpportunisticTLS:  raw.OpportunisticTLS,
		Debug:             raw.Debug,
		MaxMessages:       raw.MaxMessages,
		ConnectionTimeout: ct,
		GreetingTimeout:   gt,
		SocketTimeout:     st,
	}
	return nil
}

// parseDuration treats an absent value as zero, meaning "keep the default".
func parseDuration(key, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("can't parse the %v as a duration: %v", key, err)
	}
	return d, nil
}

// CheckAndSetDefaults validates t and either returns a copy of t with default
// settings applied or returns an error due to an invalid configuration
func (t *Transport) CheckAndSetDefaults() (Transport, error) {
	c := *t

	if c.Port < 0 || c.Port > 65535 {
		return Transport{}, fmt.Errorf("the port must be between 0 and 65535, not %v", c.Port)
	}
	if c.Port == 0 {
		c.Port = email.DefaultPort
		if c.Secure {
			c.Port = defaultSecurePort
		}
	}

	for k, d := range map[string]time.Duration{
		"connectionTimeout": c.ConnectionTimeout,
		"greetingTimeout":   c.GreetingTimeout,
		"socketTimeout":     c.SocketTimeout,
	} {
		if d < 0 {
			return Transport{}, fmt.Errorf("the %v can't be negative", k)
		}
	}

	if c.MaxMessages < 0 {
		return Transport{}, fmt.Errorf("the maxMessages can't be negative, got %v", c.MaxMessages)
	}

	if c.IgnoreTLS && c.RequireTLS {
		return Transport{}, errors.New("ignoreTLS and requireTLS can't both be set")
	}
	if c.Secure && c.IgnoreTLS {
		return Transport{}, errors.New("a secure connection can't ignore TLS")
	}

	a := c.Auth
	if a.Username == "" && a.User == "" && (a.Password != "" || a.Pass != "") {
		return Transport{}, errors.New("the auth section has a password but no username")
	}

	return c, nil
}

// Headers is a list of message headers. In YAML it may be written either as
// a mapping or as a list of {key, value} items; only the list form can
// repeat a key.
type Headers []email.Header

// UnmarshalYAML accepts both header forms, keeping the order of the file.
func (h *Headers) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var ms yaml.MapSlice
	if err := unmarshal(&ms); err == nil {
		r := make(Headers, 0, len(ms))
		for _, item := range ms {
			r = append(r, email.Header{
				Key:   fmt.Sprint(item.Key),
				Value: fmt.Sprint(item.Value),
			})
		}
		*h = r
		return nil
	}

	var list []struct {
		Key   string `yaml:"key"`
		Value string `yaml:"value"`
	}
	if err := unmarshal(&list); err != nil {
		return errors.New("headers must be a mapping or a list of key/value items")
	}
	r := make(Headers, 0, len(list))
	for _, item := range list {
		r = append(r, email.Header{Key: item.Key, Value: item.Value})
	}
	*h = r
	return nil
}

// Message contains the defaults for every message sent with this config.
type Message struct {
	Subject     string   `yaml:"subject"`
	From        string   `yaml:"from"`
	To          []string `yaml:"to"`
	Cc          []string `yaml:"cc"`
	Bcc         []string `yaml:"bcc"`
	Text        string   `yaml:"text"`
	HTML        string   `yaml:"html"`
	Headers     Headers  `yaml:"headers"`
	Attachments []string `yaml:"attachments"`
}

// CheckAndSetDefaults validates m and either returns a copy of m with default
// settings applied or returns an error due to an invalid configuration
func (m *Message) CheckAndSetDefaults() (Message, error) {
	for _, h := range m.Headers {
		if h.Key == "" {
			return Message{}, errors.New("message headers must have a name")
		}
	}
	for _, a := range m.Attachments {
		if a == "" {
			return Message{}, errors.New("attachment paths can't be empty")
		}
	}
	return *m, nil
}

// CheckAndSetDefaults validates m and either returns a copy of m with default
// settings applied or returns an error due to an invalid configuration
func (m *Meta) CheckAndSetDefaults() (Meta, error) {
	c := Meta{}

	t, err := m.Transport.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.Transport = t

	msg, err := m.Message.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.Message = msg

	if m.Journal != nil {
		j := *m.Journal
		c.Journal = &j
	}

	return c, nil
}

// Options converts m into email defaults. Settings the file leaves out stay
// at their zero value, so merging the result into an email.Config only
// changes what the file actually sets.
func (m *Meta) Options() email.Options {
	t := m.Transport
	auth := email.Auth{
		Username: t.Auth.Username,
		Password: t.Auth.Password,
		User:     t.Auth.User,
		Pass:     t.Auth.Pass,
	}
	auth.Normalize()

	var attachments []email.Attachment
	for _, p := range m.Message.Attachments {
		attachments = append(attachments, email.Attachment{Path: p})
	}

	return email.Options{
		Transport: email.TransportOptions{
			Host:              t.Host,
			Port:              t.Port,
			Secure:            t.Secure,
			Pool:              t.Pool,
			Auth:              auth,
			Name:              t.Name,
			IgnoreTLS:         t.IgnoreTLS,
			RequireTLS:        t.RequireTLS,
			OpportunisticTLS:  t.OpportunisticTLS,
			MaxMessages:       t.MaxMessages,
			Debug:             t.Debug,
			ConnectionTimeout: t.ConnectionTimeout,
			GreetingTimeout:   t.GreetingTimeout,
			SocketTimeout:     t.SocketTimeout,
			TextFromHTML:      t.TextFromHTML,
		},
		Message: email.MessageFields{
			Subject:     m.Message.Subject,
			From:        m.Message.From,
			To:          m.Message.To,
			Cc:          m.Message.Cc,
			Bcc:         m.Message.Bcc,
			Text:        m.Message.Text,
			HTML:        m.Message.HTML,
			Headers:     []email.Header(m.Message.Headers),
			Attachments: attachments,
		},
	}
}

// Parse generates usable configurations from possibly arbitrary user input.
// An error indicates a problem with parsing or validation. The Reader r
// can be either JSON or YAML.
func Parse(r io.Reader) (*Meta, error) {
	var m Meta
	err := yaml.NewDecoder(r).Decode(&m)
	if err != nil {
		return &Meta{}, fmt.Errorf("can't read the config file as YAML: %v", err)
	}

	if m.Transport == (Transport{}) {
		return &Meta{}, errors.New("must include a \"transport\" section")
	}

	if m.Journal == nil {
		log.Debug().Msg(
			"no journal configured, delivery results won't be kept",
		)
	}

	return &m, nil
}

package email

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthNormalize(t *testing.T) {
	testCases := []struct {
		description string
		input       Auth
		expected    Auth
	}{
		{
			description: "canonical names only",
			input:       Auth{Username: "u", Password: "p"},
			expected:    Auth{Username: "u", Password: "p"},
		},
		{
			description: "legacy aliases only",
			input:       Auth{User: "u", Pass: "p"},
			expected:    Auth{Username: "u", Password: "p"},
		},
		{
			description: "canonical names win over aliases",
			input:       Auth{Username: "u", Password: "p", User: "alias", Pass: "alias-pw"},
			expected:    Auth{Username: "u", Password: "p"},
		},
		{
			description: "mixed",
			input:       Auth{Username: "u", Pass: "p"},
			expected:    Auth{Username: "u", Password: "p"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			a := tc.input
			a.Normalize()
			if a != tc.expected {
				t.Errorf("%v: expected %+v but got %+v", tc.description, tc.expected, a)
			}
		})
	}
}

func TestNewConfigDefaults(t *testing.T) {
	d := NewConfig().Defaults()

	assert.Equal(t, TransportOptions{
		Port:              DefaultPort,
		ConnectionTimeout: DefaultConnectionTimeout,
		GreetingTimeout:   DefaultGreetingTimeout,
		SocketTimeout:     DefaultSocketTimeout,
		MaxMessages:       DefaultMaxMessages,
	}, d.Transport)
	assert.Equal(t, MessageFields{
		To:          []string{},
		Cc:          []string{},
		Bcc:         []string{},
		Headers:     []Header{},
		Attachments: []Attachment{},
	}, d.Message)
}

// The scenario every consumer of the package starts with: defaults set once,
// then a builder that overrides the sender.
func TestInitThenNew(t *testing.T) {
	cfg := NewConfig()
	cfg.Init(
		WithHost("smtp.example.com"),
		WithPort(25),
		WithFrom("test@example.com"),
		WithAuth(Auth{Username: "test@example.com", Password: "pw"}),
	)

	b := cfg.New("Test Email", WithFrom("Tester <test@example.com>"))

	assert.Equal(t, TransportOptions{
		Host:              "smtp.example.com",
		Port:              25,
		Secure:            false,
		Pool:              false,
		Auth:              Auth{Username: "test@example.com", Password: "pw"},
		ConnectionTimeout: DefaultConnectionTimeout,
		GreetingTimeout:   DefaultGreetingTimeout,
		SocketTimeout:     DefaultSocketTimeout,
		MaxMessages:       DefaultMaxMessages,
	}, b.Options())
	assert.Equal(t, MessageFields{
		Subject:     "Test Email",
		From:        "Tester <test@example.com>",
		To:          []string{},
		Cc:          []string{},
		Bcc:         []string{},
		Headers:     []Header{},
		Attachments: []Attachment{},
	}, b.Message())
}

func TestInitLastWriteWins(t *testing.T) {
	cfg := NewConfig(WithHost("a.example.com"), WithPort(2525))
	cfg.Init(WithHost("b.example.com"))
	cfg.Init(WithHost("c.example.com"), WithSecure(true))

	d := cfg.Defaults()
	assert.Equal(t, "c.example.com", d.Transport.Host)
	assert.Equal(t, 2525, d.Transport.Port, "keys absent from later calls keep their value")
	assert.True(t, d.Transport.Secure)

	cfg.Init(WithSecure(false))
	assert.False(t, cfg.Defaults().Transport.Secure, "an explicit false is a write like any other")
}

func TestInitIsNotRetroactive(t *testing.T) {
	cfg := NewConfig(WithHost("before.example.com"), WithFrom("before@example.com"))
	b := cfg.New("subject")

	cfg.Init(WithHost("after.example.com"), WithFrom("after@example.com"))

	assert.Equal(t, "before.example.com", b.Options().Host)
	assert.Equal(t, "before@example.com", b.Message().From)
	assert.Equal(t, "after.example.com", cfg.New("subject").Options().Host)
}

func TestMergeSkipsZeroValues(t *testing.T) {
	cfg := NewConfig(
		WithHost("smtp.example.com"),
		WithPort(587),
		WithCredentials("user", "secret"),
		WithFrom("noreply@example.com"),
	)

	err := cfg.Merge(Options{
		Transport: TransportOptions{
			Pool: true,
			Auth: Auth{Pass: "rotated"},
		},
		Message: MessageFields{
			Headers: []Header{{Key: "X-Mailer", Value: "sfn-mail"}},
		},
	})
	require.NoError(t, err)

	d := cfg.Defaults()
	assert.Equal(t, "smtp.example.com", d.Transport.Host)
	assert.Equal(t, 587, d.Transport.Port)
	assert.True(t, d.Transport.Pool)
	assert.Equal(t, Auth{Username: "user", Password: "rotated"}, d.Transport.Auth)
	assert.Equal(t, DefaultSocketTimeout, d.Transport.SocketTimeout)
	assert.Equal(t, "noreply@example.com", d.Message.From)
	assert.Equal(t, []Header{{Key: "X-Mailer", Value: "sfn-mail"}}, d.Message.Headers)
}

func TestMergeTLSConfig(t *testing.T) {
	tc := &tls.Config{ServerName: "mail.example.com", MinVersion: tls.VersionTLS12}
	cfg := NewConfig(WithTLSConfig(tc))

	require.NoError(t, cfg.Merge(Options{Transport: TransportOptions{Host: "x"}}))
	got := cfg.Defaults().Transport.TLSConfig
	require.NotNil(t, got)
	assert.Equal(t, "mail.example.com", got.ServerName, "a merge without TLS settings keeps the old ones")

	require.NoError(t, cfg.Merge(Options{Transport: TransportOptions{
		TLSConfig: &tls.Config{ServerName: "other.example.com"},
	}}))
	assert.Equal(t, "other.example.com", cfg.Defaults().Transport.TLSConfig.ServerName)
}

func TestDefaultsAreCopies(t *testing.T) {
	cfg := NewConfig(WithHeaders(Header{Key: "X-A", Value: "1"}), WithTo("a@example.com"))

	d := cfg.Defaults()
	d.Message.Headers[0].Value = "changed"
	d.Message.To = append(d.Message.To, "b@example.com")

	b := cfg.New("s")
	b.Header("X-B", "2").To("c@example.com")

	again := cfg.Defaults()
	assert.Equal(t, []Header{{Key: "X-A", Value: "1"}}, again.Message.Headers)
	assert.Equal(t, []string{"a@example.com"}, again.Message.To)
}

func TestTimeoutOptions(t *testing.T) {
	b := NewConfig().New("s",
		WithConnectionTimeout(time.Second),
		WithGreetingTimeout(2*time.Second),
		WithSocketTimeout(3*time.Second),
	)
	o := b.Options()
	assert.Equal(t, time.Second, o.ConnectionTimeout)
	assert.Equal(t, 2*time.Second, o.GreetingTimeout)
	assert.Equal(t, 3*time.Second, o.SocketTimeout)
}

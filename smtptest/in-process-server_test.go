package smtptest

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func send(t *testing.T, srv Server, to ...string) error {
	t.Helper()
	return smtp.SendMail(
		srv.Address(),
		nil,
		"sender@example.com",
		to,
		strings.NewReader("Subject: test\r\n\r\nhello\r\n"),
	)
}

func TestRetrieveEmails(t *testing.T) {
	srv := StartServer(t, Options{})

	require.NoError(t, send(t, srv, "a@example.com"))
	mark := time.Now().UnixNano()
	require.NoError(t, send(t, srv, "b@example.com"))

	all, err := srv.RetrieveEmails(0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	if n := srv.Connections(); n != 2 {
		t.Errorf("expected 2 connections but got %v", n)
	}

	later, err := srv.RetrieveEmails(mark)
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Contains(t, later[0], "hello")

	msgs := srv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "sender@example.com", msgs[0].From)
	assert.Equal(t, []string{"a@example.com"}, msgs[0].To)
}

func TestRecipientPolicies(t *testing.T) {
	srv := StartServer(t, Options{
		Reject: []string{"bad@example.com"},
		Defer:  []string{"busy@example.com"},
	})

	assert.Error(t, send(t, srv, "bad@example.com"))
	assert.Error(t, send(t, srv, "busy@example.com"))
	require.NoError(t, send(t, srv, "good@example.com"))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"good@example.com"}, msgs[0].To)
}

func TestRequireAuth(t *testing.T) {
	srv := StartServer(t, Options{RequireAuth: true})

	assert.Error(t, send(t, srv, "a@example.com"))
	assert.Empty(t, srv.Messages())
	assert.Empty(t, srv.Logins())
}

func TestGenerateTLSFiles(t *testing.T) {
	key, cert, err := GenerateTLSFiles(t)
	require.NoError(t, err)
	assert.FileExists(t, key)
	assert.FileExists(t, cert)

	srv, err := NewInProcessServer(Options{KeyPath: key, CertPath: cert})
	require.NoError(t, err)
	srv.Close()
}

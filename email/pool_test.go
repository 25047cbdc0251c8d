package email

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolKey(t *testing.T) {
	testCases := []struct {
		description string
		opts        TransportOptions
		expected    string
	}{
		{
			description: "no credentials",
			opts:        TransportOptions{Host: "smtp.example.com", Port: 25},
			expected:    "smtp://smtp.example.com:25",
		},
		{
			description: "username and password",
			opts: TransportOptions{
				Host: "smtp.example.com",
				Port: 25,
				Auth: Auth{Username: "test@example.com", Password: "pw"},
			},
			expected: "smtp://test@example.com:pw@smtp.example.com:25",
		},
		{
			description: "username only",
			opts: TransportOptions{
				Host: "smtp.example.com",
				Port: 587,
				Auth: Auth{Username: "test"},
			},
			expected: "smtp://test@smtp.example.com:587",
		},
		{
			description: "implicit TLS",
			opts:        TransportOptions{Host: "smtp.example.com", Port: 465, Secure: true},
			expected:    "smtps://smtp.example.com:465",
		},
		{
			description: "legacy auth aliases",
			opts: TransportOptions{
				Host: "smtp.example.com",
				Port: 25,
				Auth: Auth{User: "u", Pass: "p"},
			},
			expected: "smtp://u:p@smtp.example.com:25",
		},
		{
			description: "empty host is the localhost the transport dials",
			opts:        TransportOptions{Port: 25},
			expected:    "smtp://localhost:25",
		},
		{
			description: "empty port is the default port",
			opts:        TransportOptions{Host: "smtp.example.com"},
			expected:    "smtp://smtp.example.com:25",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			if k := PoolKey(tc.opts); k != tc.expected {
				t.Errorf(
					"%v: expected the key %v but got %v",
					tc.description,
					tc.expected,
					k,
				)
			}
		})
	}
}

func TestEmptyHostSharesLocalhostTransport(t *testing.T) {
	d := &fakeDialer{}
	cfg := NewConfig(WithPool(true)).SetDialer(d.dial)

	a, err := cfg.New("a").Transport()
	require.NoError(t, err)
	b, err := cfg.New("b", WithHost("localhost")).Transport()
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Len(t, d.dials, 1)
}

func TestPoolAcquire(t *testing.T) {
	p := NewPool()
	dials := 0
	dial := func() (Transport, error) {
		dials++
		return &fakeTransport{}, nil
	}

	a, err := p.Acquire("smtp://a:25", dial)
	require.NoError(t, err)
	b, err := p.Acquire("smtp://a:25", dial)
	require.NoError(t, err)
	c, err := p.Acquire("smtp://b:25", dial)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, dials)
	assert.Equal(t, 2, p.Len())
}

func TestPoolAcquireDialError(t *testing.T) {
	p := NewPool()
	_, err := p.Acquire("smtp://a:25", func() (Transport, error) {
		return nil, errors.New("refused")
	})
	assert.EqualError(t, err, "refused")
	assert.Equal(t, 0, p.Len(), "failed dials are not pooled")
}

func TestPoolClose(t *testing.T) {
	p := NewPool()
	var made []*fakeTransport
	for _, k := range []string{"smtp://a:25", "smtp://b:25"} {
		_, err := p.Acquire(k, func() (Transport, error) {
			f := &fakeTransport{}
			made = append(made, f)
			return f, nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, p.Close())
	assert.Equal(t, 0, p.Len())
	for _, f := range made {
		assert.True(t, f.closed)
	}
}

func TestBuildersSharePooledTransports(t *testing.T) {
	d := &fakeDialer{}
	cfg := NewConfig(
		WithHost("smtp.example.com"),
		WithPort(25),
		WithCredentials("test@example.com", "pw"),
		WithPool(true),
	).SetDialer(d.dial)

	a, err := cfg.New("a").Transport()
	require.NoError(t, err)
	b, err := cfg.New("b").Transport()
	require.NoError(t, err)
	other, err := cfg.New("c", WithPort(587)).Transport()
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
	assert.Len(t, d.dials, 2)
	assert.Equal(t, 2, cfg.Pool().Len())
}

func TestUnpooledBuildersGetTheirOwnTransport(t *testing.T) {
	d := &fakeDialer{}
	cfg := NewConfig(WithHost("smtp.example.com")).SetDialer(d.dial)

	a, err := cfg.New("a").Transport()
	require.NoError(t, err)
	b, err := cfg.New("b").Transport()
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 0, cfg.Pool().Len())
}

func TestSetPool(t *testing.T) {
	d := &fakeDialer{}
	p := NewPool()
	cfg := NewConfig(WithPool(true)).SetDialer(d.dial).SetPool(p)

	_, err := cfg.New("a").Transport()
	require.NoError(t, err)
	assert.Same(t, p, cfg.Pool())
	assert.Equal(t, 1, p.Len())
}

package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mensylisir/xmguest/logger"
)

// Dialer establishes connections to hosts.
type Dialer interface {
	Dial(ctx context.Context, host Host) (Connection, error)
}

type sshDialer struct {
	sudoPrompt     string
	maxElapsedTime time.Duration
	connect        func(cfg Config) (Connection, error)
}

type DialerOption func(*sshDialer)

// WithSudoPrompt sets the prompt answered with the host password during Exec.
func WithSudoPrompt(prompt string) DialerOption {
	return func(d *sshDialer) { d.sudoPrompt = prompt }
}

// WithMaxElapsedTime bounds how long Dial keeps retrying. Zero disables retries.
func WithMaxElapsedTime(d time.Duration) DialerOption {
	return func(s *sshDialer) { s.maxElapsedTime = d }
}

// WithConnectFunc replaces the function that opens a single connection.
func WithConnectFunc(fn func(cfg Config) (Connection, error)) DialerOption {
	return func(d *sshDialer) { d.connect = fn }
}

func NewDialer(opts ...DialerOption) Dialer {
	d := &sshDialer{
		maxElapsedTime: 30 * time.Second,
		connect:        NewConnection,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ConfigFromHost builds the ssh Config for host.
func ConfigFromHost(host Host, sudoPrompt string) Config {
	return Config{
		Username:   host.GetUser(),
		Password:   host.GetPassword(),
		Address:    host.GetAddress(),
		Port:       host.GetPort(),
		PrivateKey: host.GetPrivateKey(),
		KeyFile:    host.GetPrivateKeyPath(),
		Timeout:    host.GetTimeout(),
		SudoPrompt: sudoPrompt,
	}
}

// Dial retries transient connection failures with exponential backoff.
// Invalid parameters fail immediately.
func (d *sshDialer) Dial(ctx context.Context, host Host) (Connection, error) {
	if host == nil {
		return nil, fmt.Errorf("host cannot be nil for Dial")
	}
	cfg := ConfigFromHost(host, d.sudoPrompt)
	if _, err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid connection parameters for host %s: %w", host.ID(), err)
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if d.maxElapsedTime > 0 {
		b = backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(500*time.Millisecond),
			backoff.WithMaxInterval(5*time.Second),
			backoff.WithMaxElapsedTime(d.maxElapsedTime),
		)
	}

	attempt := 0
	conn, err := backoff.RetryWithData(func() (Connection, error) {
		attempt++
		c, err := d.connect(cfg)
		if err != nil {
			logger.Log.DebugfHost(host.ID(), "connection attempt %d failed: %v", attempt, err)
			return nil, err
		}
		return c, nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to host %s after %d attempt(s): %w", host.ID(), attempt, err)
	}
	return conn, nil
}

var _ Dialer = (*sshDialer)(nil)

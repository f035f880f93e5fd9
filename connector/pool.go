package connector

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Pool caches one Connection per host ID.
type Pool struct {
	dialer Dialer
	logger *logrus.Entry

	mu    sync.Mutex
	conns map[string]Connection
}

func NewPool(dialer Dialer, baseLogger *logrus.Entry) *Pool {
	if baseLogger == nil {
		baseLogger = logrus.NewEntry(logrus.New())
	}
	return &Pool{
		dialer: dialer,
		logger: baseLogger,
		conns:  make(map[string]Connection),
	}
}

// Get returns the cached connection for host, dialing a new one when absent.
func (p *Pool) Get(ctx context.Context, host Host) (Connection, error) {
	if host == nil {
		return nil, fmt.Errorf("host cannot be nil for Get")
	}
	if p.dialer == nil {
		return nil, fmt.Errorf("pool has no Dialer configured")
	}
	hostID := host.ID()

	p.mu.Lock()
	if conn, found := p.conns[hostID]; found {
		p.mu.Unlock()
		p.logger.Debugf("Using cached connection for host: %s (%s)", host.GetName(), host.GetAddress())
		return conn, nil
	}
	// Unlock before dialing so other hosts are not blocked.
	p.mu.Unlock()

	p.logger.Debugf("Creating new connection for host: %s (%s)", host.GetName(), host.GetAddress())
	conn, err := p.dialer.Dial(ctx, host)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, found := p.conns[hostID]; found {
		_ = conn.Close()
		return existing, nil
	}
	p.conns[hostID] = conn
	return conn, nil
}

// Release closes and forgets the connection for host.
func (p *Pool) Release(host Host) error {
	hostID := host.ID()
	p.mu.Lock()
	conn, found := p.conns[hostID]
	delete(p.conns, hostID)
	p.mu.Unlock()
	if !found {
		return nil
	}
	return conn.Close()
}

// Close closes every cached connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]Connection)
	p.mu.Unlock()

	var errs []string
	for id, conn := range conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", id, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close connections: %s", strings.Join(errs, "; "))
	}
	return nil
}

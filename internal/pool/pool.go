// internal/pool/pool.go
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config for the connection pool.
type Config struct {
	DefaultPort    int
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
	Serial         SerialConfig

	// Dial overrides the goburrow dialer (tests).
	Dial DialFunc
}

// Pool owns at most one connection per address.
// It is the only place sockets are opened or closed.
type Pool struct {
	cfg    Config
	logger zerolog.Logger

	mu    sync.Mutex
	conns map[string]*Conn
}

// New creates an empty pool. Nothing is dialed until Acquire.
func New(cfg Config, logger zerolog.Logger) (*Pool, error) {
	if cfg.DefaultPort <= 0 || cfg.DefaultPort > 65535 {
		return nil, errors.New("pool: default port out of range")
	}
	if cfg.ConnectTimeout <= 0 {
		return nil, errors.New("pool: connect timeout must be > 0")
	}
	if cfg.Dial == nil {
		cfg.Dial = GoburrowDialer(cfg.ConnectTimeout, cfg.IdleTimeout, cfg.Serial)
	}
	return &Pool{
		cfg:    cfg,
		logger: logger.With().Str("component", "pool").Logger(),
		conns:  make(map[string]*Conn),
	}, nil
}

// Acquire returns the conn for address, connecting it if it is not
// Connected. Every successful Acquire must be paired with Release.
// A failed connect returns an error wrapping fleet.ErrUnreachable.
func (p *Pool) Acquire(ctx context.Context, address string) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, err := NormalizeAddress(address, p.cfg.DefaultPort)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	c, ok := p.conns[key]
	if !ok {
		c = &Conn{pool: p, address: key}
		p.conns[key] = c
	}
	c.borrowed++
	p.mu.Unlock()

	wasConnected := c.State() == Connected
	if err := c.ensure(); err != nil {
		p.release(c)
		return nil, err
	}
	if !wasConnected {
		p.logger.Debug().Str("address", key).Msg("connected")
	}
	return c, nil
}

func (p *Pool) release(c *Conn) {
	p.mu.Lock()
	if c.borrowed > 0 {
		c.borrowed--
	}
	closeNow := c.retired && c.borrowed == 0
	p.mu.Unlock()

	if closeNow {
		if err := c.close(); err != nil {
			p.logger.Warn().Err(err).Str("address", c.address).Msg("close of retired connection failed")
		}
	}
}

// ReleaseAll closes every idle conn. Conns still borrowed are retired:
// removed from the pool and closed by their last Release.
func (p *Pool) ReleaseAll() {
	p.mu.Lock()
	var idle []*Conn
	retired := 0
	for key, c := range p.conns {
		delete(p.conns, key)
		if c.borrowed == 0 {
			idle = append(idle, c)
			continue
		}
		c.retired = true
		retired++
	}
	p.mu.Unlock()

	for _, c := range idle {
		if err := c.close(); err != nil {
			p.logger.Warn().Err(err).Str("address", c.address).Msg("close failed")
		}
	}

	p.logger.Info().
		Int("closed", len(idle)).
		Int("retired_in_use", retired).
		Msg("connections released")
}

// Len reports the number of pooled addresses.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// internal/pool/conn.go
package pool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/modbus-fleetmon/internal/codec"
	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
)

// State of a pooled connection.
type State int32

const (
	Disconnected State = iota
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Conn is the single transport bound to one address.
// Requests are serialized because the unit id is set per request.
type Conn struct {
	pool    *Pool
	address string

	mu        sync.Mutex
	transport Transport
	state     State

	// guarded by pool.mu
	borrowed int
	retired  bool
}

// Address returns the normalized address the conn is bound to.
func (c *Conn) Address() string { return c.address }

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Release hands the conn back to the pool. It never closes a live conn
// unless the pool retired it while borrowed.
func (c *Conn) Release() {
	c.pool.release(c)
}

// ensure connects if needed. One attempt, bounded by the dial timeout.
func (c *Conn) ensure() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Connected && c.transport != nil {
		return nil
	}

	if c.transport != nil {
		_ = c.transport.Close()
		c.transport = nil
	}

	t, err := c.pool.cfg.Dial(c.address)
	if err != nil {
		c.state = Failed
		return fmt.Errorf("%w: %s: %v", fleet.ErrUnreachable, c.address, err)
	}
	if err := t.Connect(); err != nil {
		_ = t.Close()
		c.state = Failed
		return fmt.Errorf("%w: %s: %v", fleet.ErrUnreachable, c.address, err)
	}

	c.transport = t
	c.state = Connected
	return nil
}

// close tears the transport down. Caller must not hold c.mu.
func (c *Conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = Disconnected
	if c.transport == nil {
		return nil
	}
	err := c.transport.Close()
	c.transport = nil
	return err
}

// ReadHoldingRegisters reads qty holding registers (FC 3).
func (c *Conn) ReadHoldingRegisters(unitID uint8, addr, qty uint16) ([]uint16, error) {
	return c.read(unitID, fleet.Holding, addr, qty)
}

// ReadInputRegisters reads qty input registers (FC 4).
func (c *Conn) ReadInputRegisters(unitID uint8, addr, qty uint16) ([]uint16, error) {
	return c.read(unitID, fleet.Input, addr, qty)
}

func (c *Conn) read(unitID uint8, space fleet.Space, addr, qty uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		return nil, fmt.Errorf("%w: %s not connected", fleet.ErrReadFailed, c.address)
	}

	c.transport.SetUnit(unitID)

	var (
		raw []byte
		err error
	)
	switch space {
	case fleet.Holding:
		raw, err = c.transport.ReadHoldingRegisters(addr, qty)
	case fleet.Input:
		raw, err = c.transport.ReadInputRegisters(addr, qty)
	default:
		return nil, fmt.Errorf("%w: unsupported space %s", fleet.ErrReadFailed, space)
	}
	if err != nil {
		c.fail(err)
		return nil, fmt.Errorf("%w: %s %s %d+%d: %v", fleet.ErrReadFailed, c.address, space, addr, qty, err)
	}

	words := codec.Words(raw)
	if len(words) != int(qty) {
		return nil, fmt.Errorf("%w: %s %s %d: got %d words want %d",
			fleet.ErrReadFailed, c.address, space, addr, len(words), qty)
	}
	return words, nil
}

// WriteRegister writes one holding register (FC 6).
func (c *Conn) WriteRegister(unitID uint8, addr, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		return fmt.Errorf("%w: %s not connected", fleet.ErrWriteFailed, c.address)
	}

	c.transport.SetUnit(unitID)

	if _, err := c.transport.WriteSingleRegister(addr, value); err != nil {
		c.fail(err)
		return fmt.Errorf("%w: %s reg %d=%d: %v", fleet.ErrWriteFailed, c.address, addr, value, err)
	}
	return nil
}

// fail marks the conn for reconnect unless the device answered with an
// exception, which proves the link is alive. Caller holds c.mu.
func (c *Conn) fail(err error) {
	var exc *modbus.ModbusError
	if errors.As(err, &exc) {
		return
	}
	c.state = Failed
}

// internal/pool/transport.go
package pool

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/goburrow/modbus"
)

// Transport is one goburrow handler paired with its client.
// The handler owns the socket; the client speaks PDUs over it.
type Transport interface {
	modbus.Client
	Connect() error
	Close() error
	SetUnit(id uint8)
}

// DialFunc builds (but does not connect) a transport for an address.
type DialFunc func(address string) (Transport, error)

type tcpTransport struct {
	*modbus.TCPClientHandler
	modbus.Client
}

func (t *tcpTransport) SetUnit(id uint8) { t.SlaveId = id }

type rtuTransport struct {
	*modbus.RTUClientHandler
	modbus.Client
}

func (t *rtuTransport) SetUnit(id uint8) { t.SlaveId = id }

// SerialConfig carries line settings for rtu:// addresses.
type SerialConfig struct {
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
}

const rtuScheme = "rtu://"

// GoburrowDialer returns the production DialFunc.
// "rtu:///dev/ttyUSB0" selects the serial handler; anything else is TCP.
func GoburrowDialer(timeout, idle time.Duration, serial SerialConfig) DialFunc {
	return func(address string) (Transport, error) {
		if strings.HasPrefix(address, rtuScheme) {
			h := modbus.NewRTUClientHandler(strings.TrimPrefix(address, rtuScheme))
			h.BaudRate = serial.BaudRate
			h.DataBits = serial.DataBits
			h.Parity = serial.Parity
			h.StopBits = serial.StopBits
			h.Timeout = timeout
			h.IdleTimeout = idle
			return &rtuTransport{RTUClientHandler: h, Client: modbus.NewClient(h)}, nil
		}

		h := modbus.NewTCPClientHandler(address)
		h.Timeout = timeout
		h.IdleTimeout = idle
		return &tcpTransport{TCPClientHandler: h, Client: modbus.NewClient(h)}, nil
	}
}

// NormalizeAddress appends the default port to bare hosts.
// Serial addresses are returned unchanged.
func NormalizeAddress(address string, defaultPort int) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("pool: empty address")
	}
	if strings.HasPrefix(address, rtuScheme) {
		return address, nil
	}
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address, nil
	}
	return net.JoinHostPort(address, fmt.Sprint(defaultPort)), nil
}

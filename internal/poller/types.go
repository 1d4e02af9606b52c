// internal/poller/types.go
package poller

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
	"github.com/tamzrod/modbus-fleetmon/internal/status"
	"github.com/tamzrod/modbus-fleetmon/internal/writer"
)

// State is the position of a poller in its cycle.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateReading
	StateEvaluating
	StatePublished
	StateSleeping
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReading:
		return "reading"
	case StateEvaluating:
		return "evaluating"
	case StatePublished:
		return "published"
	case StateSleeping:
		return "sleeping"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// Lease is a borrowed connection. The poller depends on geometry only.
type Lease interface {
	ReadHoldingRegisters(unitID uint8, addr, qty uint16) ([]uint16, error) // FC 3
	ReadInputRegisters(unitID uint8, addr, qty uint16) ([]uint16, error)   // FC 4
	WriteRegister(unitID uint8, addr, value uint16) error                  // FC 6
	Release()
}

// AcquireFunc borrows the connection for an address.
type AcquireFunc func(ctx context.Context, address string) (Lease, error)

// Controls is the shared operator state every poller reads each cycle.
type Controls interface {
	Active() bool
	AutoControl() bool
	SetpointPermitted() bool
	Threshold(device string) float64
}

// Publisher receives finished snapshots.
type Publisher interface {
	Publish(s status.Snapshot)
}

// EventSink receives state deltas. Record must not block.
type EventSink interface {
	Record(e fleet.Event)
}

// Observer receives per-cycle counters.
type Observer interface {
	CycleCompleted(device string, health status.Health)
	ReadFailed(device, group string)
	CommandWritten(device, kind string, err error)
}

// Reading is the raw outcome of one register group read.
type Reading struct {
	Group fleet.Group
	Words []uint16
	Err   error
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Device   fleet.Device
	Profile  fleet.Profile
	Interval time.Duration
	Cooldown time.Duration

	// Now is the clock (tests).
	Now func() time.Time
}

// Deps are the shared collaborators handed in by the supervisor.
type Deps struct {
	Acquire   AcquireFunc
	Controls  Controls
	Writer    *writer.Writer
	Publisher Publisher
	Events    EventSink
	Observer  Observer
	Logger    zerolog.Logger
}

// ---- no-op collaborators ----

type nopPublisher struct{}

func (nopPublisher) Publish(status.Snapshot) {}

type nopEvents struct{}

func (nopEvents) Record(fleet.Event) {}

type nopObserver struct{}

func (nopObserver) CycleCompleted(string, status.Health) {}
func (nopObserver) ReadFailed(string, string)            {}
func (nopObserver) CommandWritten(string, string, error) {}

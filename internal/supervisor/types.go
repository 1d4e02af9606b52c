// internal/supervisor/types.go
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-fleetmon/internal/alarm"
	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
	"github.com/tamzrod/modbus-fleetmon/internal/poller"
	"github.com/tamzrod/modbus-fleetmon/internal/pool"
	"github.com/tamzrod/modbus-fleetmon/internal/status"
	"github.com/tamzrod/modbus-fleetmon/internal/writer"
)

// Connector hands out pooled connections.
type Connector interface {
	Acquire(ctx context.Context, address string) (poller.Lease, error)
	ReleaseAll()
}

// Observer extends the per-cycle counters with lifecycle outcomes.
type Observer interface {
	poller.Observer
	WorkerStuck(device string)
	DeviceRemoved(device string)
}

// Config is the fleet-wide runtime config.
type Config struct {
	Interval    time.Duration
	Cooldown    time.Duration
	StopTimeout time.Duration
	Profiles    map[fleet.Class]fleet.Profile

	Threshold      float64
	ThresholdRange alarm.Range
	SetpointRange  alarm.Range

	AutoControl bool
	Maintenance bool
}

// Deps are the shared collaborators.
type Deps struct {
	Connector Connector
	Writer    *writer.Writer
	Publisher *status.Publisher
	Events    poller.EventSink
	Observer  Observer
	Logger    zerolog.Logger
}

// StopReport lists which workers exited in time.
type StopReport struct {
	Stopped []string `json:"stopped"`
	Stuck   []string `json:"stuck"`
}

// PoolConnector adapts a connection pool to Connector.
func PoolConnector(p *pool.Pool) Connector {
	return poolConnector{p: p}
}

type poolConnector struct {
	p *pool.Pool
}

func (c poolConnector) Acquire(ctx context.Context, address string) (poller.Lease, error) {
	conn, err := c.p.Acquire(ctx, address)
	if err != nil {
		// A nil *Conn inside a non-nil interface would defeat the caller's check.
		return nil, err
	}
	return conn, nil
}

func (c poolConnector) ReleaseAll() { c.p.ReleaseAll() }

// ---- no-op collaborators ----

type nopEvents struct{}

func (nopEvents) Record(fleet.Event) {}

type nopObserver struct{}

func (nopObserver) CycleCompleted(string, status.Health) {}
func (nopObserver) ReadFailed(string, string)            {}
func (nopObserver) CommandWritten(string, string, error) {}
func (nopObserver) WorkerStuck(string)                   {}
func (nopObserver) DeviceRemoved(string)                 {}

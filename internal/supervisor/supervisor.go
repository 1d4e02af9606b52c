// internal/supervisor/supervisor.go
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-fleetmon/internal/alarm"
	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
	"github.com/tamzrod/modbus-fleetmon/internal/poller"
	"github.com/tamzrod/modbus-fleetmon/internal/status"
)

type worker struct {
	poller *poller.Poller
	cancel context.CancelFunc
}

// Supervisor starts one poller per device and owns the fleet-wide flags.
type Supervisor struct {
	cfg    Config
	deps   Deps
	events poller.EventSink
	obs    Observer
	log    zerolog.Logger

	active      atomic.Bool
	auto        atomic.Bool
	maintenance atomic.Bool
	threshold   atomic.Uint64 // float64 bits

	thMu      sync.RWMutex
	overrides map[string]float64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	workers map[string]*worker
	devices map[string]fleet.Device
}

// New validates the config and prepares an idle supervisor.
func New(cfg Config, deps Deps) (*Supervisor, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("supervisor: interval must be > 0")
	}
	if cfg.StopTimeout <= 0 {
		return nil, errors.New("supervisor: stop timeout must be > 0")
	}
	if len(cfg.Profiles) == 0 {
		return nil, errors.New("supervisor: no register maps")
	}
	if deps.Connector == nil {
		return nil, errors.New("supervisor: connector required")
	}
	if deps.Writer == nil {
		return nil, errors.New("supervisor: writer required")
	}
	if deps.Publisher == nil {
		return nil, errors.New("supervisor: publisher required")
	}
	if err := cfg.ThresholdRange.Check("threshold", cfg.Threshold); err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}

	s := &Supervisor{
		cfg:       cfg,
		deps:      deps,
		events:    deps.Events,
		obs:       deps.Observer,
		log:       deps.Logger.With().Str("component", "supervisor").Logger(),
		overrides: make(map[string]float64),
		workers:   make(map[string]*worker),
		devices:   make(map[string]fleet.Device),
	}
	if s.events == nil {
		s.events = nopEvents{}
	}
	if s.obs == nil {
		s.obs = nopObserver{}
	}

	s.threshold.Store(math.Float64bits(cfg.Threshold))
	s.auto.Store(cfg.AutoControl)
	s.maintenance.Store(cfg.Maintenance)
	return s, nil
}

// Running reports whether monitoring is active.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches one poller per device. A second Start while running is a
// no-op. Pollers are all built before any is started.
func (s *Supervisor) Start(ctx context.Context, devices []fleet.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Debug().Msg("start ignored: already running")
		return nil
	}

	deps := poller.Deps{
		Acquire:   s.deps.Connector.Acquire,
		Controls:  s,
		Writer:    s.deps.Writer,
		Publisher: s.deps.Publisher,
		Events:    s.events,
		Observer:  s.obs,
		Logger:    s.deps.Logger,
	}

	built := make(map[string]*poller.Poller, len(devices))
	for _, d := range devices {
		if _, dup := built[d.Name]; dup {
			return fmt.Errorf("supervisor: duplicate device %q", d.Name)
		}
		if d.Threshold != 0 {
			if err := alarm.CheckThreshold(s.cfg.ThresholdRange, d.Threshold); err != nil {
				return fmt.Errorf("supervisor: %s: %w", d.Name, err)
			}
		}
		p, err := poller.Build(d, s.cfg.Profiles, s.cfg.Interval, s.cfg.Cooldown, deps)
		if err != nil {
			return fmt.Errorf("supervisor: %w", err)
		}
		built[d.Name] = p
	}

	var stale []string
	for name := range s.devices {
		if _, keep := built[name]; !keep {
			stale = append(stale, name)
		}
	}
	sort.Strings(stale)

	s.devices = make(map[string]fleet.Device, len(devices))
	s.thMu.Lock()
	for _, name := range stale {
		delete(s.overrides, name)
	}
	for _, d := range devices {
		s.devices[d.Name] = d
		if d.Threshold != 0 {
			if _, set := s.overrides[d.Name]; !set {
				s.overrides[d.Name] = d.Threshold
			}
		}
	}
	s.thMu.Unlock()

	// Devices that left the fleet since the last run take their state with them.
	for _, name := range stale {
		s.deps.Publisher.Remove(name)
		s.obs.DeviceRemoved(name)
		s.log.Info().Str("device", name).Msg("device dropped from fleet")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.active.Store(true)
	s.running = true

	for _, d := range devices {
		wctx, wcancel := context.WithCancel(runCtx)
		w := &worker{poller: built[d.Name], cancel: wcancel}
		s.workers[d.Name] = w
		go w.poller.Run(wctx)
	}

	s.log.Info().Int("devices", len(devices)).Dur("interval", s.cfg.Interval).Msg("monitoring started")
	return nil
}

// Stop flips the fleet inactive, cancels every poller and waits for each
// up to timeoutPerDevice. Workers that miss their deadline are reported
// and left behind. Connections are released last; any still borrowed
// close when their borrower lets go.
func (s *Supervisor) Stop(timeoutPerDevice time.Duration) StopReport {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return StopReport{}
	}

	s.active.Store(false)
	s.cancel()

	workers := s.workers
	s.workers = make(map[string]*worker)
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	names := make([]string, 0, len(workers))
	for name := range workers {
		names = append(names, name)
	}
	sort.Strings(names)

	var rep StopReport
	for _, name := range names {
		if wait(workers[name].poller.Done(), timeoutPerDevice) {
			rep.Stopped = append(rep.Stopped, name)
			continue
		}
		rep.Stuck = append(rep.Stuck, name)
		s.obs.WorkerStuck(name)
		s.log.Warn().Str("device", name).Dur("timeout", timeoutPerDevice).Msg("poller did not terminate")
	}

	s.deps.Connector.ReleaseAll()

	s.log.Info().Int("stopped", len(rep.Stopped)).Int("stuck", len(rep.Stuck)).Msg("monitoring stopped")
	return rep
}

// Remove stops a single device and discards its snapshot.
func (s *Supervisor) Remove(device string) error {
	s.mu.Lock()
	w, ok := s.workers[device]
	if ok {
		delete(s.workers, device)
	}
	_, known := s.devices[device]
	delete(s.devices, device)
	s.mu.Unlock()

	if !ok && !known {
		return fmt.Errorf("%w: %s", fleet.ErrUnknownDevice, device)
	}

	if ok {
		w.cancel()
		if !wait(w.poller.Done(), s.cfg.StopTimeout) {
			s.obs.WorkerStuck(device)
			s.log.Warn().Str("device", device).Msg("poller did not terminate")
		}
	}

	s.thMu.Lock()
	delete(s.overrides, device)
	s.thMu.Unlock()

	s.deps.Publisher.Remove(device)
	s.obs.DeviceRemoved(device)
	s.log.Info().Str("device", device).Msg("device removed")
	return nil
}

func wait(done <-chan struct{}, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// ---- operator surface ----

// Acknowledge queues an acknowledgment for one alert class of a device.
// It is applied by the device's poller on its next cycle.
func (s *Supervisor) Acknowledge(device, class string) error {
	s.mu.Lock()
	w, ok := s.workers[device]
	d, known := s.devices[device]
	running := s.running
	s.mu.Unlock()

	if !known {
		return fmt.Errorf("%w: %s", fleet.ErrUnknownDevice, device)
	}
	if !running || !ok {
		return fmt.Errorf("%w: %s", fleet.ErrNotRunning, device)
	}
	if !hasAlert(s.cfg.Profiles[d.Class], class) {
		return fmt.Errorf("%w: %s on %s", fleet.ErrUnknownAlert, class, device)
	}
	if !w.poller.Acknowledge(class) {
		return fmt.Errorf("supervisor: %s: acknowledgment queue full", device)
	}
	return nil
}

func hasAlert(p fleet.Profile, class string) bool {
	for _, c := range p.AlertClasses() {
		if c == class {
			return true
		}
	}
	return false
}

// WriteSetpoint validates and writes a setpoint (arm, then value).
// The returned command id ties the write to its journal entry; it is set
// whenever a write was attempted.
func (s *Supervisor) WriteSetpoint(ctx context.Context, device string, v float64) (string, error) {
	d, ok := s.device(device)
	if !ok {
		return "", fmt.Errorf("%w: %s", fleet.ErrUnknownDevice, device)
	}
	if _, ok := s.cfg.Profiles[d.Class].Setpoint(); !ok {
		return "", fmt.Errorf("%w: %s (%s) has no setpoint register", fleet.ErrUnsupported, device, d.Class)
	}
	if !s.SetpointPermitted() {
		return "", fmt.Errorf("%w: %s", fleet.ErrNotPermitted, device)
	}
	value, err := alarm.CheckSetpoint(s.cfg.SetpointRange, v)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	log := s.log.With().Str("device", device).Str("command_id", id).Uint16("value", value).Logger()

	lease, err := s.deps.Connector.Acquire(ctx, d.Address)
	if err == nil {
		err = s.deps.Writer.WriteSetpoint(lease, d.UnitID, value)
		lease.Release()
	}
	s.obs.CommandWritten(device, "setpoint", err)

	e := fleet.Event{
		At:        time.Now(),
		Device:    device,
		Metric:    "setpoint",
		Type:      fleet.EventSetpointWrite,
		Value:     fmtFloat(float64(value)),
		CommandID: id,
	}
	if err != nil {
		e.Type = fleet.EventSetpointFailed
		e.Detail = err.Error()
		s.events.Record(e)
		log.Warn().Err(err).Msg("setpoint write failed")
		return id, err
	}

	s.events.Record(e)
	log.Info().Msg("setpoint written")
	return id, nil
}

// WriteCommand issues the command write on operator request, outside the
// auto-control trigger. Only classes with a primary metric carry the
// command register.
func (s *Supervisor) WriteCommand(ctx context.Context, device string) (string, error) {
	d, ok := s.device(device)
	if !ok {
		return "", fmt.Errorf("%w: %s", fleet.ErrUnknownDevice, device)
	}
	if _, ok := s.cfg.Profiles[d.Class].Primary(); !ok {
		return "", fmt.Errorf("%w: %s (%s) has no command register", fleet.ErrUnsupported, device, d.Class)
	}

	id := uuid.NewString()
	log := s.log.With().Str("device", device).Str("command_id", id).Logger()

	lease, err := s.deps.Connector.Acquire(ctx, d.Address)
	if err == nil {
		err = s.deps.Writer.WriteCommand(lease, d.UnitID)
		lease.Release()
	}
	s.obs.CommandWritten(device, "manual", err)

	plan := s.deps.Writer.Plan()
	e := fleet.Event{
		At:        time.Now(),
		Device:    device,
		Type:      fleet.EventCommandWrite,
		Value:     strconv.FormatUint(uint64(plan.CommandValue), 10),
		Detail:    "manual",
		CommandID: id,
	}
	if err != nil {
		e.Type = fleet.EventCommandFailed
		e.Detail = "manual: " + err.Error()
		s.events.Record(e)
		log.Warn().Err(err).Msg("manual command failed")
		return id, err
	}

	s.events.Record(e)
	log.Info().Msg("manual command written")
	return id, nil
}

// Snapshots returns the latest snapshot of every device.
func (s *Supervisor) Snapshots() []status.Snapshot {
	return s.deps.Publisher.All()
}

// Snapshot returns the latest snapshot of one device.
func (s *Supervisor) Snapshot(device string) (status.Snapshot, error) {
	snap, ok := s.deps.Publisher.Latest(device)
	if !ok {
		if _, known := s.device(device); known {
			return status.Snapshot{}, fmt.Errorf("%w: %s has not completed a cycle", fleet.ErrNotRunning, device)
		}
		return status.Snapshot{}, fmt.Errorf("%w: %s", fleet.ErrUnknownDevice, device)
	}
	return snap, nil
}

// Devices lists the configured devices ordered by name.
func (s *Supervisor) Devices() []fleet.Device {
	s.mu.Lock()
	out := make([]fleet.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Supervisor) device(name string) (fleet.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[name]
	return d, ok
}

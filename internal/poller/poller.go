// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-fleetmon/internal/alarm"
	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
	"github.com/tamzrod/modbus-fleetmon/internal/status"
)

// ackBuffer bounds pending acknowledgments per device.
const ackBuffer = 16

type value struct {
	v     float64
	known bool // fresh this cycle
	seen  bool // ever decoded
}

// Poller owns one device: its cycle counter, last values, alarm and
// cooldown state. Everything below is touched only by the goroutine that
// calls PollOnce/Run; other goroutines talk to it through Acknowledge.
type Poller struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	defs    map[string]fleet.MetricDef
	primary *fleet.MetricDef

	state atomic.Int32
	done  chan struct{}
	acks  chan string

	cycle     uint64
	values    map[string]value
	bands     map[string]alarm.Band
	ackState  alarm.Acks
	trigger   alarm.Trigger
	lastCmd   time.Time
	reachable int8 // -1 unknown, 0 no, 1 yes
}

// New creates a poller with immutable config.
func New(cfg Config, deps Deps) (*Poller, error) {
	if cfg.Device.Name == "" {
		return nil, errors.New("poller: device name required")
	}
	if cfg.Device.Address == "" {
		return nil, fmt.Errorf("poller: %s: address required", cfg.Device.Name)
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.Profile.Class != cfg.Device.Class {
		return nil, fmt.Errorf("poller: %s: profile %q does not match class %q",
			cfg.Device.Name, cfg.Profile.Class, cfg.Device.Class)
	}
	if err := cfg.Profile.Validate(); err != nil {
		return nil, fmt.Errorf("poller: %s: %w", cfg.Device.Name, err)
	}
	if deps.Acquire == nil {
		return nil, errors.New("poller: acquire func required")
	}
	if deps.Controls == nil {
		return nil, errors.New("poller: controls required")
	}

	p := &Poller{
		cfg:       cfg,
		deps:      deps,
		defs:      make(map[string]fleet.MetricDef, len(cfg.Profile.Metrics)),
		done:      make(chan struct{}),
		acks:      make(chan string, ackBuffer),
		values:    make(map[string]value),
		bands:     make(map[string]alarm.Band),
		trigger:   alarm.Trigger{Cooldown: cfg.Cooldown},
		reachable: -1,
	}

	for _, m := range cfg.Profile.Metrics {
		p.defs[m.Name] = m
	}
	if m, ok := cfg.Profile.Primary(); ok {
		if deps.Writer == nil {
			return nil, fmt.Errorf("poller: %s: writer required for auto-control", cfg.Device.Name)
		}
		p.primary = &m
	}

	if p.cfg.Now == nil {
		p.cfg.Now = time.Now
	}
	if p.deps.Publisher == nil {
		p.deps.Publisher = nopPublisher{}
	}
	if p.deps.Events == nil {
		p.deps.Events = nopEvents{}
	}
	if p.deps.Observer == nil {
		p.deps.Observer = nopObserver{}
	}

	p.log = deps.Logger.With().
		Str("component", "poller").
		Str("device", cfg.Device.Name).
		Str("address", cfg.Device.Address).
		Logger()

	return p, nil
}

// Device returns the device this poller owns.
func (p *Poller) Device() fleet.Device { return p.cfg.Device }

// State returns the current cycle position.
func (p *Poller) State() State { return State(p.state.Load()) }

func (p *Poller) setState(s State) { p.state.Store(int32(s)) }

// Done is closed when Run returns.
func (p *Poller) Done() <-chan struct{} { return p.done }

// Acknowledge queues an acknowledgment for an alert class. It is applied
// at the start of the next cycle. Reports false when the queue is full.
func (p *Poller) Acknowledge(class string) bool {
	select {
	case p.acks <- class:
		return true
	default:
		return false
	}
}

func (p *Poller) stopping(ctx context.Context) bool {
	return ctx.Err() != nil || !p.deps.Controls.Active()
}

// PollOnce performs exactly one cycle. Reports false when the cycle was
// abandoned because monitoring stopped; nothing is published then.
//
// Read failures are per group: a failed group marks its metrics unknown
// and the rest of the cycle proceeds.
func (p *Poller) PollOnce(ctx context.Context) (status.Snapshot, bool) {
	if p.stopping(ctx) {
		return status.Snapshot{}, false
	}

	p.cycle++
	now := p.cfg.Now()
	p.drainAcks(now)

	threshold := p.deps.Controls.Threshold(p.cfg.Device.Name)
	p.trigger.Threshold = threshold
	privileged := p.deps.Controls.SetpointPermitted()

	// ------------------------------------------------------------
	// CONNECT
	// ------------------------------------------------------------
	p.setState(StateConnecting)
	lease, err := p.deps.Acquire(ctx, p.cfg.Device.Address)
	if err != nil {
		if p.stopping(ctx) {
			return status.Snapshot{}, false
		}
		p.noteReachability(false, now, err)
		p.forgetAll()

		p.setState(StateEvaluating)
		snap := p.evaluate(now, threshold, privileged, status.HealthUnreachable)
		if !p.publish(ctx, snap) {
			return status.Snapshot{}, false
		}
		return snap, true
	}
	defer lease.Release()

	if p.stopping(ctx) {
		return status.Snapshot{}, false
	}
	p.noteReachability(true, now, nil)

	// ------------------------------------------------------------
	// READ
	// ------------------------------------------------------------
	p.setState(StateReading)
	readings := p.read(lease, privileged)
	health := p.commit(readings)

	// ------------------------------------------------------------
	// EVALUATE
	// ------------------------------------------------------------
	p.setState(StateEvaluating)
	snap := p.evaluate(now, threshold, privileged, health)

	// ------------------------------------------------------------
	// CONTROL
	// ------------------------------------------------------------
	if p.control(ctx, lease, now) {
		snap.LastCommand = p.lastCmd
	}

	if !p.publish(ctx, snap) {
		return status.Snapshot{}, false
	}
	return snap, true
}

// publish hands the snapshot out unless the poller was stopped or removed
// while the cycle was in flight.
func (p *Poller) publish(ctx context.Context, snap status.Snapshot) bool {
	if p.stopping(ctx) {
		return false
	}
	p.deps.Publisher.Publish(snap)
	p.deps.Observer.CycleCompleted(p.cfg.Device.Name, snap.Health)
	p.setState(StatePublished)
	return true
}

// read issues one request per register group.
func (p *Poller) read(lease Lease, privileged bool) []Reading {
	unit := p.cfg.Device.UnitID
	groups := p.cfg.Profile.Groups(privileged)
	out := make([]Reading, 0, len(groups))

	for _, g := range groups {
		var (
			words []uint16
			err   error
		)
		switch g.Space {
		case fleet.Holding:
			words, err = lease.ReadHoldingRegisters(unit, g.Address, g.Count)
		case fleet.Input:
			words, err = lease.ReadInputRegisters(unit, g.Address, g.Count)
		default:
			err = fmt.Errorf("%w: unsupported space %s", fleet.ErrReadFailed, g.Space)
		}
		if err == nil && len(words) < int(g.Count) {
			err = fmt.Errorf("%w: %s: got %d words want %d", fleet.ErrReadFailed, g.Key(), len(words), g.Count)
		}
		out = append(out, Reading{Group: g, Words: words, Err: err})
	}
	return out
}

// commit decodes successful readings into the value table. Failed groups
// keep their previous value but lose freshness. A non-finite decode counts
// as a failed read of that metric.
func (p *Poller) commit(readings []Reading) status.Health {
	failed, garbled := 0, 0

	for _, m := range p.cfg.Profile.Metrics {
		v := p.values[m.Name]
		v.known = false
		p.values[m.Name] = v
	}

	for _, r := range readings {
		if r.Err != nil {
			failed++
			p.deps.Observer.ReadFailed(p.cfg.Device.Name, r.Group.Key())
			p.log.Debug().Err(r.Err).Str("group", r.Group.Key()).Msg("group read failed")
			continue
		}
		for _, name := range r.Group.Members {
			v := decode(p.defs[name], r.Words)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				garbled++
				p.deps.Observer.ReadFailed(p.cfg.Device.Name, r.Group.Key())
				p.log.Debug().Str("metric", name).Str("group", r.Group.Key()).Msg("non-finite value discarded")
				continue
			}
			p.values[name] = value{v: v, known: true, seen: true}
		}
	}

	if failed > 0 || garbled > 0 {
		p.log.Warn().Int("failed", failed).Int("non_finite", garbled).Int("groups", len(readings)).Msg("partial read")
		return status.HealthDegraded
	}
	return status.HealthOK
}

func (p *Poller) forgetAll() {
	for name, v := range p.values {
		v.known = false
		p.values[name] = v
	}
}

// evaluate classifies every published metric and folds alert classes.
func (p *Poller) evaluate(now time.Time, threshold float64, privileged bool, health status.Health) status.Snapshot {
	env := alarm.Env{
		Threshold: threshold,
		Lookup: func(name string) (float64, bool) {
			v := p.values[name]
			return v.v, v.known
		},
	}

	metrics := make([]status.MetricState, 0, len(p.cfg.Profile.Metrics))
	byClass := make(map[string][]alarm.Band)

	for _, m := range p.cfg.Profile.Metrics {
		if m.Privileged && !privileged {
			continue
		}

		v := p.values[m.Name]
		st := status.MetricState{
			Name:  m.Name,
			Label: m.Label,
			Unit:  m.Unit,
			Value: v.v,
			Band:  alarm.Unknown,
		}
		if v.seen {
			st.Text = alarm.Text(m, v.v)
		}
		if v.known {
			st.Known = true
			st.Band = alarm.Classify(m, v.v, env)
			st.Flashing = alarm.Flashing(m.Flash, st.Band)
		}
		st.Lit = alarm.Lit(st.Flashing, p.cycle)

		p.noteBand(m.Name, st.Band, st.Text, now)
		metrics = append(metrics, st)

		if m.Alert != "" {
			byClass[m.Alert] = append(byClass[m.Alert], st.Band)
		}
	}

	classes := p.cfg.Profile.AlertClasses()
	alerts := make([]alarm.Indicator, 0, len(classes))
	for _, class := range classes {
		members := byClass[class]
		if p.ackState.Reconcile(class, members) {
			p.log.Info().Str("class", class).Msg("acknowledgment cleared")
			p.record(fleet.Event{At: now, Type: fleet.EventAckCleared, Metric: class})
		}
		alerts = append(alerts, alarm.Aggregate(class, members, p.ackState.Has(class), p.cycle))
	}

	snap := status.Snapshot{
		Device:      p.cfg.Device.Name,
		Class:       p.cfg.Device.Class,
		Assignment:  p.cfg.Device.Assignment,
		Cycle:       p.cycle,
		At:          now,
		Health:      health,
		Metrics:     metrics,
		Alerts:      alerts,
		AutoControl: p.deps.Controls.AutoControl(),
		LastCommand: p.lastCmd,
	}
	if p.primary != nil {
		snap.Threshold = threshold
	}
	return snap
}

// control issues the auto-control command when the primary metric is at
// or above the threshold and the cooldown has elapsed. Reports whether a
// write was attempted.
func (p *Poller) control(ctx context.Context, lease Lease, now time.Time) bool {
	if p.primary == nil || !p.deps.Controls.AutoControl() {
		return false
	}
	v := p.values[p.primary.Name]
	if !v.known || !p.trigger.Fires(v.v, now) {
		return false
	}

	// A stop requested during this cycle wins over a pending write.
	if p.stopping(ctx) {
		return false
	}

	err := p.deps.Writer.WriteCommand(lease, p.cfg.Device.UnitID)
	p.trigger.Record(now)
	p.lastCmd = now
	p.deps.Observer.CommandWritten(p.cfg.Device.Name, "command", err)

	detail := fmt.Sprintf("%s=%s threshold=%s", p.primary.Name, fmtFloat(v.v), fmtFloat(p.trigger.Threshold))
	if err != nil {
		p.log.Warn().Err(err).Float64("value", v.v).Msg("auto-control write failed")
		p.record(fleet.Event{At: now, Type: fleet.EventCommandFailed, Metric: p.primary.Name, Detail: detail + ": " + err.Error()})
		return true
	}

	p.log.Info().Float64("value", v.v).Float64("threshold", p.trigger.Threshold).Msg("auto-control command written")
	p.record(fleet.Event{At: now, Type: fleet.EventCommandWrite, Metric: p.primary.Name, Detail: detail})
	return true
}

func (p *Poller) drainAcks(now time.Time) {
	for {
		select {
		case class := <-p.acks:
			if p.ackState.Set(class) {
				p.log.Info().Str("class", class).Msg("alert acknowledged")
				p.record(fleet.Event{At: now, Type: fleet.EventAckSet, Metric: class})
			}
		default:
			return
		}
	}
}

// noteBand records transitions between known bands. Dropping to Unknown
// is covered by reachability events and is not journaled per metric.
func (p *Poller) noteBand(name string, b alarm.Band, text string, now time.Time) {
	if b == alarm.Unknown {
		return
	}
	prev, ok := p.bands[name]
	p.bands[name] = b
	if ok && prev == b {
		return
	}
	if !ok && b == alarm.Normal {
		return
	}

	e := fleet.Event{At: now, Type: fleet.EventBandChange, Metric: name, Value: b.String(), Detail: text}
	if ok {
		e.Previous = prev.String()
	}
	p.record(e)
}

func (p *Poller) noteReachability(ok bool, now time.Time, err error) {
	var next int8
	if ok {
		next = 1
	}
	prev := p.reachable
	p.reachable = next
	if prev == next {
		if !ok {
			p.log.Debug().Err(err).Msg("still unreachable")
		}
		return
	}

	if !ok {
		p.log.Warn().Err(err).Msg("device unreachable")
		e := fleet.Event{At: now, Type: fleet.EventUnreachable}
		if err != nil {
			e.Detail = err.Error()
		}
		p.record(e)
		return
	}

	p.log.Info().Msg("device reachable")
	if prev == 0 {
		p.record(fleet.Event{At: now, Type: fleet.EventReachable})
	}
}

func (p *Poller) record(e fleet.Event) {
	e.Device = p.cfg.Device.Name
	p.deps.Events.Record(e)
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

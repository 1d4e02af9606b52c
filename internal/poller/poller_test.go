// internal/poller/poller_test.go
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-fleetmon/internal/alarm"
	"github.com/tamzrod/modbus-fleetmon/internal/codec"
	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
	"github.com/tamzrod/modbus-fleetmon/internal/status"
	"github.com/tamzrod/modbus-fleetmon/internal/writer"
)

// ---- fakes ----

type regKey struct {
	space fleet.Space
	addr  uint16
}

type write struct {
	unit  uint8
	addr  uint16
	value uint16
}

type fakeLease struct {
	mu       sync.Mutex
	regs     map[regKey][]uint16
	fail     map[regKey]bool
	writeErr error
	writes   []write
	reads    []regKey
	released int

	// onRead runs before each read, outside the lock.
	onRead func()
}

func newFakeLease() *fakeLease {
	return &fakeLease{regs: make(map[regKey][]uint16), fail: make(map[regKey]bool)}
}

func (f *fakeLease) set(space fleet.Space, addr uint16, words ...uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[regKey{space, addr}] = words
}

func (f *fakeLease) failAt(space fleet.Space, addr uint16, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[regKey{space, addr}] = on
}

func (f *fakeLease) read(space fleet.Space, addr, qty uint16) ([]uint16, error) {
	if f.onRead != nil {
		f.onRead()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := regKey{space, addr}
	f.reads = append(f.reads, k)
	if f.fail[k] {
		return nil, fleet.ErrReadFailed
	}
	out := make([]uint16, qty)
	copy(out, f.regs[k])
	return out, nil
}

func (f *fakeLease) ReadHoldingRegisters(_ uint8, addr, qty uint16) ([]uint16, error) {
	return f.read(fleet.Holding, addr, qty)
}

func (f *fakeLease) ReadInputRegisters(_ uint8, addr, qty uint16) ([]uint16, error) {
	return f.read(fleet.Input, addr, qty)
}

func (f *fakeLease) WriteRegister(unit uint8, addr, value uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, write{unit, addr, value})
	return f.writeErr
}

func (f *fakeLease) Release() {
	f.mu.Lock()
	f.released++
	f.mu.Unlock()
}

func (f *fakeLease) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeLease) readAt(space fleet.Space, addr uint16) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.reads {
		if k.space == space && k.addr == addr {
			return true
		}
	}
	return false
}

type fakeControls struct {
	active     atomic.Bool
	auto       atomic.Bool
	privileged atomic.Bool
	threshold  float64
}

func newControls() *fakeControls {
	c := &fakeControls{threshold: 1050}
	c.active.Store(true)
	return c
}

func (c *fakeControls) Active() bool             { return c.active.Load() }
func (c *fakeControls) AutoControl() bool        { return c.auto.Load() }
func (c *fakeControls) SetpointPermitted() bool  { return c.privileged.Load() }
func (c *fakeControls) Threshold(string) float64 { return c.threshold }

type eventLog struct {
	mu     sync.Mutex
	events []fleet.Event
}

func (l *eventLog) Record(e fleet.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) count(t fleet.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

// ---- helpers ----

func testWriter(t *testing.T) *writer.Writer {
	t.Helper()
	w, err := writer.New(writer.Plan{
		CommandRegister:  fleet.RegCommand,
		CommandValue:     fleet.CommandActive,
		ArmRegister:      fleet.RegArm,
		ArmValue:         fleet.ArmValue,
		SetpointRegister: fleet.RegSetpoint,
	})
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	return w
}

// healthyPrime loads a lease with an all-normal Prime unit.
func healthyPrime(l *fakeLease) {
	l.set(fleet.Input, 2075, 1000) // turbo_temp
	l.set(fleet.Input, 2027, 80)   // battery
	l.set(fleet.Holding, fleet.RegSetpoint, 75)
	l.set(fleet.Input, 5, 0) // plc ok
	l.set(fleet.Holding, fleet.RegCommand, 0)
	l.set(fleet.Holding, 370, 1500) // rpm
	l.set(fleet.Input, 2044, 5)     // envolts
	hi, lo := codec.EncodeFloat32BE(40)
	l.set(fleet.Holding, 494, hi, lo)
	l.set(fleet.Input, 2033, hi, lo)
	l.set(fleet.Input, 2035, 110)       // gas
	l.set(fleet.Holding, 270, 3)        // gear
	l.set(fleet.Input, 2002, 1<<5|1<<7) // valve_1 + glt
}

type harness struct {
	p        *Poller
	lease    *fakeLease
	controls *fakeControls
	events   *eventLog
	clock    *clock
	pub      *status.Publisher

	acquireErr error
}

func newHarness(t *testing.T, class fleet.Class) *harness {
	t.Helper()

	h := &harness{
		lease:    newFakeLease(),
		controls: newControls(),
		events:   &eventLog{},
		clock:    &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		pub:      status.NewPublisher(),
	}

	dev := fleet.Device{Name: "unit-1", Address: "10.0.0.1:502", Class: class, UnitID: 1}
	p, err := Build(dev, fleet.DefaultProfiles(), 1500*time.Millisecond, 10*time.Second, Deps{
		Acquire: func(ctx context.Context, address string) (Lease, error) {
			if h.acquireErr != nil {
				return nil, h.acquireErr
			}
			return h.lease, nil
		},
		Controls:  h.controls,
		Writer:    testWriter(t),
		Publisher: h.pub,
		Events:    h.events,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	p.cfg.Now = h.clock.Now
	h.p = p
	return h
}

func (h *harness) poll(t *testing.T) status.Snapshot {
	t.Helper()
	snap, ok := h.p.PollOnce(context.Background())
	if !ok {
		t.Fatalf("cycle abandoned")
	}
	return snap
}

func mustMetric(t *testing.T, s status.Snapshot, name string) status.MetricState {
	t.Helper()
	m, ok := s.Metric(name)
	if !ok {
		t.Fatalf("metric %s missing from snapshot", name)
	}
	return m
}

// ---- tests ----

func TestPollOnce_HealthyPrime(t *testing.T) {
	h := newHarness(t, fleet.ClassA)
	healthyPrime(h.lease)

	snap := h.poll(t)

	if snap.Health != status.HealthOK || snap.Cycle != 1 {
		t.Fatalf("unexpected health/cycle: %s/%d", snap.Health, snap.Cycle)
	}
	for _, m := range snap.Metrics {
		if !m.Known || m.Band == alarm.Unknown {
			t.Fatalf("%s not known: %+v", m.Name, m)
		}
		if m.Band == alarm.Fault {
			t.Fatalf("%s unexpectedly in fault", m.Name)
		}
	}
	if v := mustMetric(t, snap, "pe_oil"); v.Text != "40.0" {
		t.Fatalf("pe_oil text %q", v.Text)
	}
	if v := mustMetric(t, snap, "valve_1"); v.Text != "ON" {
		t.Fatalf("valve_1 text %q", v.Text)
	}
	if v := mustMetric(t, snap, "valve_2"); v.Text != "OFF" {
		t.Fatalf("valve_2 text %q", v.Text)
	}
	if _, ok := snap.Metric("setpoint"); ok {
		t.Fatalf("privileged metric published while gate closed")
	}
	if snap.Threshold != 1050 {
		t.Fatalf("threshold not carried: %v", snap.Threshold)
	}
	if _, ok := h.pub.Latest("unit-1"); !ok {
		t.Fatalf("snapshot not published")
	}
	if h.lease.released != 1 {
		t.Fatalf("lease released %d times", h.lease.released)
	}
}

func TestPollOnce_PartialFailureKeepsPriorValueUnknown(t *testing.T) {
	h := newHarness(t, fleet.ClassA)
	healthyPrime(h.lease)
	h.poll(t)

	h.lease.failAt(fleet.Input, 2027, true)
	h.lease.set(fleet.Input, 2075, 1010)

	snap := h.poll(t)

	if snap.Health != status.HealthDegraded {
		t.Fatalf("health %s, want degraded", snap.Health)
	}

	bat := mustMetric(t, snap, "battery")
	if bat.Known || bat.Band != alarm.Unknown || bat.Value != 80 {
		t.Fatalf("failed group should keep prior value as unknown: %+v", bat)
	}

	turbo := mustMetric(t, snap, "turbo_temp")
	if !turbo.Known || turbo.Value != 1010 {
		t.Fatalf("healthy group should be fresh: %+v", turbo)
	}
}

func TestPollOnce_UnreachablePublishesUnknown(t *testing.T) {
	h := newHarness(t, fleet.ClassA)
	healthyPrime(h.lease)
	h.poll(t)

	h.acquireErr = errors.Join(fleet.ErrUnreachable, errors.New("dial timeout"))
	snap := h.poll(t)

	if snap.Health != status.HealthUnreachable {
		t.Fatalf("health %s", snap.Health)
	}
	for _, m := range snap.Metrics {
		if m.Known || m.Band != alarm.Unknown {
			t.Fatalf("%s should be unknown while unreachable", m.Name)
		}
	}
	h.poll(t)
	if n := h.events.count(fleet.EventUnreachable); n != 1 {
		t.Fatalf("unreachable events %d, want 1", n)
	}

	h.acquireErr = nil
	if snap := h.poll(t); snap.Health != status.HealthOK {
		t.Fatalf("did not recover: %s", snap.Health)
	}
	if n := h.events.count(fleet.EventReachable); n != 1 {
		t.Fatalf("reachable events %d, want 1", n)
	}
}

func TestPollOnce_AutoControlSequence(t *testing.T) {
	h := newHarness(t, fleet.ClassA)
	healthyPrime(h.lease)
	h.controls.auto.Store(true)

	seq := []uint16{1040, 1049, 1051, 1052, 1053, 1051, 1040}
	var last status.Snapshot

	for i, v := range seq {
		h.lease.set(fleet.Input, 2075, v)
		last = h.poll(t)

		want := 0
		if i >= 2 {
			want = 1
		}
		if got := h.lease.writeCount(); got != want {
			t.Fatalf("cycle %d: %d writes, want %d", i+1, got, want)
		}
		h.clock.advance(1500 * time.Millisecond)
	}

	w := h.lease.writes[0]
	if w.addr != fleet.RegCommand || w.value != fleet.CommandActive || w.unit != 1 {
		t.Fatalf("unexpected write %+v", w)
	}
	if b := mustMetric(t, last, "turbo_temp").Band; b != alarm.Normal {
		t.Fatalf("cycle 7 turbo band %s, want normal", b)
	}
	if last.LastCommand.IsZero() {
		t.Fatalf("last command time not published")
	}
	if n := h.events.count(fleet.EventCommandWrite); n != 1 {
		t.Fatalf("command events %d", n)
	}
}

func TestPollOnce_AutoControlDisabledNeverWrites(t *testing.T) {
	h := newHarness(t, fleet.ClassA)
	healthyPrime(h.lease)
	h.lease.set(fleet.Input, 2075, 1100)

	for i := 0; i < 3; i++ {
		snap := h.poll(t)
		if b := mustMetric(t, snap, "turbo_temp").Band; b != alarm.Fault {
			t.Fatalf("turbo band %s, want fault", b)
		}
		h.clock.advance(11 * time.Second)
	}
	if n := h.lease.writeCount(); n != 0 {
		t.Fatalf("%d writes with auto-control off", n)
	}
}

func TestPollOnce_FailedWriteStillStartsCooldown(t *testing.T) {
	h := newHarness(t, fleet.ClassA)
	healthyPrime(h.lease)
	h.controls.auto.Store(true)
	h.lease.set(fleet.Input, 2075, 1100)
	h.lease.writeErr = errors.New("no ack")

	for i := 0; i < 6; i++ {
		h.poll(t)
		h.clock.advance(1500 * time.Millisecond)
	}
	if n := h.lease.writeCount(); n != 1 {
		t.Fatalf("%d write attempts inside one cooldown, want 1", n)
	}
	if n := h.events.count(fleet.EventCommandFailed); n != 1 {
		t.Fatalf("failed-command events %d", n)
	}

	h.clock.advance(2 * time.Second)
	h.poll(t)
	if n := h.lease.writeCount(); n != 2 {
		t.Fatalf("expected a retry after the cooldown, got %d attempts", n)
	}
}

func TestPollOnce_StoppedDoesNothing(t *testing.T) {
	h := newHarness(t, fleet.ClassA)
	healthyPrime(h.lease)
	h.controls.auto.Store(true)
	h.lease.set(fleet.Input, 2075, 1100)
	h.controls.active.Store(false)

	if _, ok := h.p.PollOnce(context.Background()); ok {
		t.Fatalf("cycle ran after stop")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.controls.active.Store(true)
	if _, ok := h.p.PollOnce(ctx); ok {
		t.Fatalf("cycle ran with cancelled context")
	}

	if len(h.lease.reads) != 0 || h.lease.writeCount() != 0 {
		t.Fatalf("stopped poller touched the device")
	}
	if _, ok := h.pub.Latest("unit-1"); ok {
		t.Fatalf("stopped poller published")
	}
}

func TestPollOnce_StopDuringCycleSkipsWrite(t *testing.T) {
	h := newHarness(t, fleet.ClassA)
	healthyPrime(h.lease)
	h.controls.auto.Store(true)
	h.lease.set(fleet.Input, 2075, 1100)
	h.lease.onRead = func() { h.controls.active.Store(false) }

	if _, ok := h.p.PollOnce(context.Background()); ok {
		t.Fatalf("cycle reported complete after stop")
	}
	if len(h.lease.reads) == 0 {
		t.Fatalf("stop flipped before the read; cycle never reached the device")
	}
	if h.lease.writeCount() != 0 {
		t.Fatalf("command written after stop: %v", h.lease.writes)
	}
	if h.events.count(fleet.EventCommandWrite) != 0 || h.events.count(fleet.EventCommandFailed) != 0 {
		t.Fatalf("command event recorded after stop")
	}
	if !h.p.trigger.Last().IsZero() {
		t.Fatalf("cooldown started without a write")
	}
}

func TestPollOnce_CancelledMidCycleDoesNotPublish(t *testing.T) {
	h := newHarness(t, fleet.ClassA)
	healthyPrime(h.lease)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.lease.onRead = cancel

	if _, ok := h.p.PollOnce(ctx); ok {
		t.Fatalf("cancelled cycle reported complete")
	}
	if _, ok := h.pub.Latest("unit-1"); ok {
		t.Fatalf("cancelled cycle published a snapshot")
	}
}

func TestPollOnce_NonFiniteFloatIsUnknown(t *testing.T) {
	h := newHarness(t, fleet.ClassA)
	healthyPrime(h.lease)
	h.poll(t)

	h.lease.set(fleet.Holding, 494, 0x7FC0, 0x0000) // NaN
	h.lease.set(fleet.Input, 2033, 0x7F80, 0x0000)  // +Inf

	snap := h.poll(t)

	if snap.Health != status.HealthDegraded {
		t.Fatalf("health %s, want degraded", snap.Health)
	}
	for _, name := range []string{"pe_oil", "gb_oil"} {
		m := mustMetric(t, snap, name)
		if m.Known || m.Band != alarm.Unknown || m.Value != 40 {
			t.Fatalf("%s: non-finite decode should keep prior value as unknown: %+v", name, m)
		}
	}
	if _, err := status.Encode(snap); err != nil {
		t.Fatalf("snapshot not encodable: %v", err)
	}
}

func TestPollOnce_PrivilegedReadGating(t *testing.T) {
	h := newHarness(t, fleet.ClassA)
	healthyPrime(h.lease)

	h.poll(t)
	if h.lease.readAt(fleet.Holding, fleet.RegSetpoint) {
		t.Fatalf("setpoint read while gate closed")
	}

	h.controls.privileged.Store(true)
	snap := h.poll(t)
	if !h.lease.readAt(fleet.Holding, fleet.RegSetpoint) {
		t.Fatalf("setpoint not read while gate open")
	}
	if m := mustMetric(t, snap, "setpoint"); m.Value != 75 || !m.Known {
		t.Fatalf("setpoint %+v", m)
	}
}

func TestPollOnce_AcknowledgeLifecycle(t *testing.T) {
	h := newHarness(t, fleet.ClassA)
	healthyPrime(h.lease)
	h.lease.set(fleet.Input, 5, 1<<2) // plc fault

	a := h.poll(t)
	b := h.poll(t)
	ia, _ := a.Alert(fleet.AlertPLC)
	ib, _ := b.Alert(fleet.AlertPLC)
	if !ia.Active || ia.Lit == ib.Lit {
		t.Fatalf("unacknowledged alert must alternate: %+v %+v", ia, ib)
	}

	if !h.p.Acknowledge(fleet.AlertPLC) {
		t.Fatalf("ack queue rejected")
	}
	for i := 0; i < 3; i++ {
		ind, _ := h.poll(t).Alert(fleet.AlertPLC)
		if !ind.Acknowledged || !ind.Lit {
			t.Fatalf("acknowledged alert must stay lit: %+v", ind)
		}
	}

	// Fault clears, ack goes with it.
	h.lease.set(fleet.Input, 5, 0)
	if ind, _ := h.poll(t).Alert(fleet.AlertPLC); ind.Active || ind.Acknowledged {
		t.Fatalf("alert should be inactive: %+v", ind)
	}

	// Fault returns unacknowledged.
	h.lease.set(fleet.Input, 5, 1<<2)
	if ind, _ := h.poll(t).Alert(fleet.AlertPLC); !ind.Active || ind.Acknowledged {
		t.Fatalf("returning fault must need a new ack: %+v", ind)
	}

	if h.events.count(fleet.EventAckSet) != 1 || h.events.count(fleet.EventAckCleared) != 1 {
		t.Fatalf("ack events not recorded")
	}
}

func TestPollOnce_AckSurvivesUnreachableCycle(t *testing.T) {
	h := newHarness(t, fleet.ClassA)
	healthyPrime(h.lease)
	h.lease.set(fleet.Input, 5, 1<<2)

	h.p.Acknowledge(fleet.AlertPLC)
	h.poll(t)

	h.acquireErr = fleet.ErrUnreachable
	h.poll(t)

	h.acquireErr = nil
	if ind, _ := h.poll(t).Alert(fleet.AlertPLC); !ind.Acknowledged {
		t.Fatalf("ack lost across an unreachable cycle: %+v", ind)
	}
}

func TestPollOnce_FlashingFollowsCycleParity(t *testing.T) {
	h := newHarness(t, fleet.ClassA)
	healthyPrime(h.lease)
	h.lease.set(fleet.Input, 2027, 30) // battery caution

	var lit []bool
	for i := 0; i < 4; i++ {
		m := mustMetric(t, h.poll(t), "battery")
		if m.Band != alarm.Caution || !m.Flashing {
			t.Fatalf("battery %+v", m)
		}
		lit = append(lit, m.Lit)
	}
	if lit[0] == lit[1] || lit[0] != lit[2] || lit[1] != lit[3] {
		t.Fatalf("lit pattern %v does not alternate", lit)
	}

	if m := mustMetric(t, h.poll(t), "rpm"); m.Flashing || !m.Lit {
		t.Fatalf("steady metric should be lit: %+v", m)
	}
}

func TestPollOnce_LFPCGasSubFollowsGear(t *testing.T) {
	h := newHarness(t, fleet.ClassB)
	h.lease.set(fleet.Holding, 270, 0)
	h.lease.set(fleet.Holding, 250, 0)
	h.lease.set(fleet.Holding, 370, 900)
	h.controls.auto.Store(true)

	if b := mustMetric(t, h.poll(t), "gas_sub").Band; b != alarm.Normal {
		t.Fatalf("neutral gas_sub %s", b)
	}

	h.lease.set(fleet.Holding, 270, 2)
	snap := h.poll(t)
	if b := mustMetric(t, snap, "gas_sub").Band; b != alarm.Fault {
		t.Fatalf("engaged gas_sub %s", b)
	}
	if ind, _ := snap.Alert(fleet.AlertOperations); !ind.Active {
		t.Fatalf("operations alert should be active")
	}
	if snap.Threshold != 0 || h.lease.writeCount() != 0 {
		t.Fatalf("lfpc has no primary metric to act on")
	}
}

func TestPollOnce_BandChangeEvents(t *testing.T) {
	h := newHarness(t, fleet.ClassA)
	healthyPrime(h.lease)
	h.poll(t)
	if n := h.events.count(fleet.EventBandChange); n != 0 {
		t.Fatalf("all-normal start journaled %d band changes", n)
	}

	h.lease.set(fleet.Input, 2035, 90) // gas caution
	h.poll(t)
	h.poll(t)
	if n := h.events.count(fleet.EventBandChange); n != 1 {
		t.Fatalf("band changes %d, want 1", n)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, fleet.ClassA)
	healthyPrime(h.lease)

	ctx, cancel := context.WithCancel(context.Background())
	go h.p.Run(ctx)

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := h.pub.Latest("unit-1"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("no snapshot from running poller")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-h.p.Done():
	case <-time.After(time.Second):
		t.Fatalf("poller did not stop")
	}
	if h.p.State() != StateIdle {
		t.Fatalf("state %s after stop", h.p.State())
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	prof := fleet.DefaultProfiles()[fleet.ClassA]
	dev := fleet.Device{Name: "x", Address: "h:502", Class: fleet.ClassA}
	deps := Deps{
		Acquire:  func(context.Context, string) (Lease, error) { return nil, nil },
		Controls: newControls(),
		Writer:   testWriter(t),
	}

	if _, err := New(Config{Device: dev, Profile: prof}, deps); err == nil {
		t.Fatalf("zero interval accepted")
	}
	if _, err := New(Config{Device: dev, Profile: fleet.DefaultProfiles()[fleet.ClassB], Interval: time.Second}, deps); err == nil {
		t.Fatalf("class mismatch accepted")
	}
	noWriter := deps
	noWriter.Writer = nil
	if _, err := New(Config{Device: dev, Profile: prof, Interval: time.Second}, noWriter); err == nil {
		t.Fatalf("primary metric without writer accepted")
	}
	if _, err := Build(fleet.Device{Name: "y", Address: "h", Class: "zzz"}, fleet.DefaultProfiles(), time.Second, 0, deps); err == nil {
		t.Fatalf("unknown class accepted")
	}
}

func TestReadIdentity(t *testing.T) {
	l := newFakeLease()
	l.set(fleet.Holding, fleet.RegIdentityName, 'P'<<8|'1', '2'<<8|'3')
	l.set(fleet.Holding, fleet.RegIdentityRev, 22)

	id, err := ReadIdentity(l, 1)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if id.Name != "P123" || id.RevisionText() != "v8" {
		t.Fatalf("identity %+v (%s)", id, id.RevisionText())
	}

	l.failAt(fleet.Holding, fleet.RegIdentityRev, true)
	if _, err := ReadIdentity(l, 1); !errors.Is(err, fleet.ErrReadFailed) {
		t.Fatalf("expected read failure, got %v", err)
	}
}

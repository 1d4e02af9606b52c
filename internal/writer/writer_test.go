// internal/writer/writer_test.go
package writer

import (
	"errors"
	"testing"

	cfg "github.com/tamzrod/modbus-fleetmon/internal/config"
	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
)

// ---- fake client ----

type fakeClient struct {
	writes []writeCall
	failAt map[uint16]error
}

type writeCall struct {
	unitID uint8
	addr   uint16
	value  uint16
}

func (f *fakeClient) WriteRegister(unitID uint8, addr, value uint16) error {
	if err := f.failAt[addr]; err != nil {
		return err
	}
	f.writes = append(f.writes, writeCall{unitID: unitID, addr: addr, value: value})
	return nil
}

func defaultPlan() Plan {
	return Plan{
		CommandRegister:  fleet.RegCommand,
		CommandValue:     fleet.CommandActive,
		ArmRegister:      fleet.RegArm,
		ArmValue:         fleet.ArmValue,
		SetpointRegister: fleet.RegSetpoint,
	}
}

// ---- tests ----

func TestWriteSetpoint_ArmThenValue(t *testing.T) {
	w, err := New(defaultPlan())
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	fake := &fakeClient{}

	if err := w.WriteSetpoint(fake, 1, 75); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fake.writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(fake.writes))
	}
	if fake.writes[0].addr != 509 || fake.writes[0].value != 3 {
		t.Fatalf("first write must arm 509=3, got %+v", fake.writes[0])
	}
	if fake.writes[1].addr != 1212 || fake.writes[1].value != 75 {
		t.Fatalf("second write must be 1212=75, got %+v", fake.writes[1])
	}
}

func TestWriteSetpoint_ArmFailureBlocksValue(t *testing.T) {
	w, _ := New(defaultPlan())
	fake := &fakeClient{failAt: map[uint16]error{509: errors.New("timeout")}}

	err := w.WriteSetpoint(fake, 1, 75)
	if !errors.Is(err, fleet.ErrArmFailed) {
		t.Fatalf("expected ErrArmFailed, got %v", err)
	}
	if len(fake.writes) != 0 {
		t.Fatalf("value write must not be sent after a failed arm, got %+v", fake.writes)
	}
}

func TestWriteSetpoint_ValueFailure(t *testing.T) {
	w, _ := New(defaultPlan())
	fake := &fakeClient{failAt: map[uint16]error{1212: errors.New("exception 2")}}

	err := w.WriteSetpoint(fake, 1, 75)
	if !errors.Is(err, fleet.ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}
	if errors.Is(err, fleet.ErrArmFailed) {
		t.Fatalf("value failure must not report arm failure")
	}
}

func TestWriteCommand_SingleWrite(t *testing.T) {
	w, _ := New(defaultPlan())
	fake := &fakeClient{}

	if err := w.WriteCommand(fake, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.writes) != 1 || fake.writes[0] != (writeCall{unitID: 4, addr: 1000, value: 100}) {
		t.Fatalf("unexpected writes %+v", fake.writes)
	}

	fake.failAt = map[uint16]error{1000: errors.New("refused")}
	if err := w.WriteCommand(fake, 4); !errors.Is(err, fleet.ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}
	if len(fake.writes) != 1 {
		t.Fatalf("failed command must not be retried")
	}
}

func TestNew_RejectsSharedRegister(t *testing.T) {
	p := defaultPlan()
	p.ArmRegister = p.SetpointRegister
	if _, err := New(p); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestBuild_FromNormalizedConfig(t *testing.T) {
	c := &cfg.Config{Devices: []cfg.DeviceConfig{{Name: "a", Address: "h", Class: "prime"}}}
	if _, err := Build(c.Control); err == nil {
		t.Fatalf("expected error before normalize, got nil")
	}

	cfg.Normalize(c)
	w, err := Build(c.Control)
	if err != nil {
		t.Fatalf("Build err=%v", err)
	}
	if w.Plan() != defaultPlan() {
		t.Fatalf("unexpected plan %+v", w.Plan())
	}
}

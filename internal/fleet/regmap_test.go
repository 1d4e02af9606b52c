// internal/fleet/regmap_test.go
package fleet

import "testing"

func TestDefaultProfiles_Valid(t *testing.T) {
	for class, p := range DefaultProfiles() {
		if err := p.Validate(); err != nil {
			t.Fatalf("profile %s: %v", class, err)
		}
	}
}

func TestGroups_BitsShareOneRead(t *testing.T) {
	p := DefaultProfiles()[ClassA]

	var status *Group
	groups := p.Groups(false)
	for i := range groups {
		if groups[i].Space == Input && groups[i].Address == 2002 {
			status = &groups[i]
		}
	}
	if status == nil {
		t.Fatalf("status word group missing")
	}
	if len(status.Members) != 3 {
		t.Fatalf("expected 3 bit metrics on word 2002, got %v", status.Members)
	}
}

func TestGroups_PrivilegedSkipped(t *testing.T) {
	p := DefaultProfiles()[ClassA]

	for _, g := range p.Groups(false) {
		if g.Space == Holding && g.Address == RegSetpoint {
			t.Fatalf("setpoint readback must not be read without privilege")
		}
	}

	found := false
	for _, g := range p.Groups(true) {
		if g.Space == Holding && g.Address == RegSetpoint {
			found = true
		}
	}
	if !found {
		t.Fatalf("setpoint readback expected with privilege")
	}
}

func TestGroups_FloatSpansTwoRegisters(t *testing.T) {
	p := DefaultProfiles()[ClassA]
	for _, g := range p.Groups(false) {
		if g.Address == 494 && g.Count != 2 {
			t.Fatalf("pe_oil group count=%d want 2", g.Count)
		}
	}
}

func TestValidate_RejectsSecondPrimary(t *testing.T) {
	p := Profile{
		Class: ClassA,
		Metrics: []MetricDef{
			{Name: "a", Space: Input, Kind: KindUint16, Rule: Rule{Kind: RuleAtOrAbove}, Primary: true},
			{Name: "b", Space: Input, Kind: KindUint16, Rule: Rule{Kind: RuleAtOrAbove}, Primary: true},
		},
	}
	if err := p.Validate(); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidate_RejectsDanglingRef(t *testing.T) {
	p := Profile{
		Class: ClassB,
		Metrics: []MetricDef{
			{Name: "gas_sub", Space: Holding, Kind: KindUint16, Rule: Rule{Kind: RuleZeroWhenEngaged, Ref: "gear"}},
		},
	}
	if err := p.Validate(); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestLFPC_HasNoPrimary(t *testing.T) {
	if _, ok := DefaultProfiles()[ClassB].Primary(); ok {
		t.Fatalf("lfpc profile must not carry a control-eligible metric")
	}
}

func TestParseClass(t *testing.T) {
	cases := map[string]Class{"prime": ClassA, "A": ClassA, "LFPC": ClassB, " b ": ClassB}
	for in, want := range cases {
		got, err := ParseClass(in)
		if err != nil || got != want {
			t.Fatalf("ParseClass(%q)=%q,%v want %q", in, got, err, want)
		}
	}
	if _, err := ParseClass("c"); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestProfileCapabilities(t *testing.T) {
	prime := DefaultProfiles()[ClassA]
	if _, ok := prime.Setpoint(); !ok {
		t.Fatalf("prime must accept setpoints")
	}
	if _, ok := prime.Primary(); !ok {
		t.Fatalf("prime must have a primary metric")
	}

	lfpc := DefaultProfiles()[ClassB]
	if _, ok := lfpc.Setpoint(); ok {
		t.Fatalf("lfpc has no setpoint register")
	}
	if _, ok := lfpc.Primary(); ok {
		t.Fatalf("lfpc has no primary metric")
	}
}

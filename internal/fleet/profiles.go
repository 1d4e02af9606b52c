// internal/fleet/profiles.go
package fleet

// Wire-level register maps of the two unit families.
// Addresses and bit offsets are fixed by the controllers' firmware.

// Write-back registers shared by both families.
const (
	RegCommand      uint16 = 1000 // auto-control command register
	CommandActive   uint16 = 100  // value written to RegCommand
	RegArm          uint16 = 509  // mode register armed before a setpoint write
	ArmValue        uint16 = 3
	RegSetpoint     uint16 = 1212
	RegIdentityName uint16 = 128 // 10 registers, ASCII
	RegIdentityRev  uint16 = 138
)

func limit(v float64) *float64 { return &v }

// DefaultProfiles returns fresh copies of the built-in register maps.
func DefaultProfiles() map[Class]Profile {
	return map[Class]Profile{
		ClassA: primeProfile(),
		ClassB: lfpcProfile(),
	}
}

func primeProfile() Profile {
	return Profile{
		Class: ClassA,
		Metrics: []MetricDef{
			{
				Name: "turbo_temp", Label: "Turbo Temp", Unit: "°F",
				Space: Input, Address: 2075, Kind: KindUint16,
				Rule:    Rule{Kind: RuleAtOrAbove},
				Flash:   FlashFault,
				Primary: true,
			},
			{
				Name: "battery", Label: "Battery", Unit: "%",
				Space: Input, Address: 2027, Kind: KindUint16,
				Rule:  Rule{Kind: RuleBelow, Fault: 20, Caution: limit(50)},
				Flash: FlashCaution,
			},
			{
				Name: "setpoint", Label: "Setpoint", Unit: "%",
				Space: Holding, Address: RegSetpoint, Kind: KindUint16,
				Rule:       Rule{Kind: RuleNone},
				Privileged: true,
			},
			{
				Name: "plc_health", Label: "PLC Status",
				Space: Input, Address: 5, Kind: KindBit, Bit: 2,
				Rule:  Rule{Kind: RuleBitFault},
				Flash: FlashFault,
				Alert: AlertPLC,
			},
			{
				Name: "fan_command", Label: "Fan",
				Space: Holding, Address: RegCommand, Kind: KindUint16,
				Rule:  Rule{Kind: RuleActiveCaution, Expected: float64(CommandActive)},
				Flash: FlashCaution,
			},
			{
				Name: "rpm", Label: "RPM",
				Space: Holding, Address: 370, Kind: KindUint16,
				Rule:  Rule{Kind: RuleBelow, Fault: 1200},
				Alert: AlertOperations,
			},
			{
				Name: "envolts", Label: "Envolts",
				Space: Input, Address: 2044, Kind: KindUint16,
				Rule:  Rule{Kind: RuleEquals, Expected: 5},
				Alert: AlertOperations,
			},
			{
				Name: "pe_oil", Label: "PE Oil", Unit: "GPM",
				Space: Holding, Address: 494, Kind: KindFloat32,
				Rule:  Rule{Kind: RuleBelow, Fault: 34},
				Alert: AlertOperations,
			},
			{
				Name: "gb_oil", Label: "GB Oil", Unit: "GPM",
				Space: Input, Address: 2033, Kind: KindFloat32,
				Rule:  Rule{Kind: RuleBelow, Fault: 34},
				Alert: AlertOperations,
			},
			{
				Name: "gas_psi", Label: "Gas PSI", Unit: "psi",
				Space: Input, Address: 2035, Kind: KindUint16,
				Rule:  Rule{Kind: RuleBelow, Fault: 85, Caution: limit(100)},
				Flash: FlashCaution,
				Alert: AlertOperations,
			},
			{
				Name: "gear", Label: "Gear",
				Space: Holding, Address: 270, Kind: KindUint16,
				Rule: Rule{Kind: RuleGear},
			},
			{
				Name: "valve_1", Label: "V1",
				Space: Input, Address: 2002, Kind: KindBit, Bit: 5,
				Rule: Rule{Kind: RuleNone},
			},
			{
				Name: "valve_2", Label: "V2",
				Space: Input, Address: 2002, Kind: KindBit, Bit: 6,
				Rule: Rule{Kind: RuleNone},
			},
			{
				Name: "glt", Label: "GLT",
				Space: Input, Address: 2002, Kind: KindBit, Bit: 7,
				Rule: Rule{Kind: RuleNone},
			},
		},
	}
}

func lfpcProfile() Profile {
	return Profile{
		Class: ClassB,
		Metrics: []MetricDef{
			{
				Name: "plc_health", Label: "PLC Status",
				Space: Input, Address: 5, Kind: KindBit, Bit: 2,
				Rule:  Rule{Kind: RuleBitFault},
				Flash: FlashFault,
				Alert: AlertPLC,
			},
			{
				Name: "gear", Label: "Gear",
				Space: Holding, Address: 270, Kind: KindUint16,
				Rule: Rule{Kind: RuleGear},
			},
			{
				Name: "gas_sub", Label: "Gas Sub", Unit: "%",
				Space: Holding, Address: 250, Kind: KindUint16,
				Rule:  Rule{Kind: RuleZeroWhenEngaged, Ref: "gear"},
				Alert: AlertOperations,
			},
			{
				Name: "rpm", Label: "RPM",
				Space: Holding, Address: 370, Kind: KindUint16,
				Rule:  Rule{Kind: RuleBelow, Fault: 1},
				Alert: AlertOperations,
			},
			{
				Name: "load", Label: "Load", Unit: "%",
				Space: Holding, Address: 373, Kind: KindUint16,
				Rule: Rule{Kind: RuleNone},
			},
		},
	}
}

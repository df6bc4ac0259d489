package isobus

import "fmt"

// DDI is a Data Description Index: the ISO 11783-11 identifier for a
// measured or commanded quantity (e.g. 141 = "Actual Work State").
type DDI uint16

// DDIs used by this implement. Values follow the ISO 11783-11 data
// dictionary; 57344-65534 is the proprietary range.
const (
	DDISetpointVolumePerAreaRate DDI = 1   // mm³/m²
	DDIActualVolumePerAreaRate   DDI = 2   // mm³/m²
	DDIMaximumVolumeContent      DDI = 48  // ml
	DDIActualVolumeContent       DDI = 49  // ml
	DDIActualWorkingWidth        DDI = 67  // mm
	DDITotalArea                 DDI = 116 // m²
	DDIEffectiveTotalTime        DDI = 119 // s
	DDIDeviceElementOffsetX      DDI = 134 // mm
	DDIDeviceElementOffsetY      DDI = 135 // mm
	DDIDeviceElementOffsetZ      DDI = 136 // mm
	DDISetpointWorkState         DDI = 140
	DDIActualWorkState           DDI = 141
	DDIConnectorType             DDI = 157
	DDIPrescriptionControlState  DDI = 158
	DDISectionControlState       DDI = 160

	// DDIActualCondensedWorkState1To16 is the first of 16 consecutive DDIs
	// (161..176) covering actual work state for section blocks 1-16 through
	// 241-256.
	DDIActualCondensedWorkState1To16 DDI = 161

	DDIActualCulturalPractice         DDI = 179
	DDILifetimeApplicationTotalVolume DDI = 271 // ml

	// DDISetpointCondensedWorkState1To16 is the first of 16 consecutive
	// DDIs (290..305), the commandable counterpart of the actual condensed
	// work states.
	DDISetpointCondensedWorkState1To16 DDI = 290

	// DDIRequestDefaultProcessData asks the implement to send every process
	// data object flagged as a member of the default set.
	DDIRequestDefaultProcessData DDI = 57343

	// DDIProprietaryStart and DDIProprietaryEnd bound the manufacturer
	// proprietary DDI range.
	DDIProprietaryStart DDI = 57344
	DDIProprietaryEnd   DDI = 65534

	// DDIAuthenticationResult is the proprietary DDI carrying the most
	// recent GNSS authentication result parsed from the $PHTG sentence.
	DDIAuthenticationResult DDI = 65432
)

// condensedBlockCount is the number of condensed work-state DDIs per
// family; together they cover 16 blocks × 16 sections = 256 sections.
const condensedBlockCount = 16

// DDIDef describes one dictionary entry: designator, display unit, and
// the resolution applied when presenting raw values. This is the single
// authoritative list of quantities the implement exchanges; the DDOP
// builder, dispatcher, and telemetry bridge all resolve designators here.
type DDIDef struct {
	DDI        DDI
	Designator string
	Unit       string
	Resolution float32 // multiplier from raw to display units (0 = unitless)
}

// StandardDDIs lists every dictionary entry this implement exchanges.
// Condensed families are represented by their first member; block
// designators are derived in LookupDDI.
var StandardDDIs = []DDIDef{
	// ── Application rate ─────────────────────────────────────
	{DDI: DDISetpointVolumePerAreaRate, Designator: "Setpoint Volume Per Area Application Rate", Unit: "mm³/m²", Resolution: 1},
	{DDI: DDIActualVolumePerAreaRate, Designator: "Actual Volume Per Area Application Rate", Unit: "mm³/m²", Resolution: 1},

	// ── Tank content ─────────────────────────────────────────
	{DDI: DDIMaximumVolumeContent, Designator: "Maximum Volume Content", Unit: "ml", Resolution: 1},
	{DDI: DDIActualVolumeContent, Designator: "Actual Volume Content", Unit: "ml", Resolution: 1},

	// ── Geometry ─────────────────────────────────────────────
	{DDI: DDIActualWorkingWidth, Designator: "Actual Working Width", Unit: "mm", Resolution: 1},
	{DDI: DDIDeviceElementOffsetX, Designator: "Device Element Offset X", Unit: "mm", Resolution: 1},
	{DDI: DDIDeviceElementOffsetY, Designator: "Device Element Offset Y", Unit: "mm", Resolution: 1},
	{DDI: DDIDeviceElementOffsetZ, Designator: "Device Element Offset Z", Unit: "mm", Resolution: 1},

	// ── Work state ───────────────────────────────────────────
	{DDI: DDISetpointWorkState, Designator: "Setpoint Work State"},
	{DDI: DDIActualWorkState, Designator: "Actual Work State"},
	{DDI: DDIActualCondensedWorkState1To16, Designator: "Actual Condensed Work State 1-16"},
	{DDI: DDISetpointCondensedWorkState1To16, Designator: "Setpoint Condensed Work State 1-16"},

	// ── Control modes ────────────────────────────────────────
	{DDI: DDISectionControlState, Designator: "Section Control State"},
	{DDI: DDIPrescriptionControlState, Designator: "Prescription Control State"},
	{DDI: DDIActualCulturalPractice, Designator: "Actual Cultural Practice"},

	// ── Totals ───────────────────────────────────────────────
	{DDI: DDITotalArea, Designator: "Total Area", Unit: "m²", Resolution: 1},
	{DDI: DDIEffectiveTotalTime, Designator: "Effective Total Time", Unit: "s", Resolution: 1},
	{DDI: DDILifetimeApplicationTotalVolume, Designator: "Lifetime Application Total Volume", Unit: "ml", Resolution: 1},

	// ── Connector ────────────────────────────────────────────
	{DDI: DDIConnectorType, Designator: "Connector Type"},

	// ── Special ──────────────────────────────────────────────
	{DDI: DDIRequestDefaultProcessData, Designator: "Request Default Process Data"},
	{DDI: DDIAuthenticationResult, Designator: "Authentication Result"},
}

// ddiByNumber is built once at init.
var ddiByNumber map[DDI]*DDIDef

func init() {
	ddiByNumber = make(map[DDI]*DDIDef, len(StandardDDIs))
	for i := range StandardDDIs {
		def := &StandardDDIs[i]
		ddiByNumber[def.DDI] = def
	}
}

// LookupDDI returns the dictionary entry for a DDI, resolving condensed
// work-state family members to a per-block definition. Returns nil for
// DDIs outside the dictionary.
func LookupDDI(d DDI) *DDIDef {
	if def, ok := ddiByNumber[d]; ok {
		return def
	}
	if block, ok := ActualCondensedBlock(d); ok {
		return &DDIDef{DDI: d, Designator: fmt.Sprintf("Actual Condensed Work State %d-%d", block*SectionsPerCondensedBlock+1, (block+1)*SectionsPerCondensedBlock)}
	}
	if block, ok := SetpointCondensedBlock(d); ok {
		return &DDIDef{DDI: d, Designator: fmt.Sprintf("Setpoint Condensed Work State %d-%d", block*SectionsPerCondensedBlock+1, (block+1)*SectionsPerCondensedBlock)}
	}
	return nil
}

// String renders a DDI as its decimal number plus the dictionary
// designator when known.
func (d DDI) String() string {
	if def := LookupDDI(d); def != nil {
		return fmt.Sprintf("%d (%s)", uint16(d), def.Designator)
	}
	return fmt.Sprintf("%d", uint16(d))
}

// IsProprietary reports whether the DDI falls in the manufacturer
// proprietary range.
func (d DDI) IsProprietary() bool {
	return d >= DDIProprietaryStart && d <= DDIProprietaryEnd
}

// ActualCondensedWorkStateDDI returns the actual condensed work-state DDI
// for a 16-section block. Block 0 covers sections 1-16, block 15 covers
// sections 241-256. Panics if block is outside [0,16).
func ActualCondensedWorkStateDDI(block int) DDI {
	if block < 0 || block >= condensedBlockCount {
		panic(fmt.Sprintf("isobus: condensed block %d out of range [0,%d)", block, condensedBlockCount))
	}
	return DDIActualCondensedWorkState1To16 + DDI(block)
}

// SetpointCondensedWorkStateDDI returns the setpoint condensed work-state
// DDI for a 16-section block. Panics if block is outside [0,16).
func SetpointCondensedWorkStateDDI(block int) DDI {
	if block < 0 || block >= condensedBlockCount {
		panic(fmt.Sprintf("isobus: condensed block %d out of range [0,%d)", block, condensedBlockCount))
	}
	return DDISetpointCondensedWorkState1To16 + DDI(block)
}

// ActualCondensedBlock reports whether d is an actual condensed
// work-state DDI and which block it addresses.
func ActualCondensedBlock(d DDI) (block int, ok bool) {
	if d >= DDIActualCondensedWorkState1To16 && d < DDIActualCondensedWorkState1To16+condensedBlockCount {
		return int(d - DDIActualCondensedWorkState1To16), true
	}
	return 0, false
}

// SetpointCondensedBlock reports whether d is a setpoint condensed
// work-state DDI and which block it addresses.
func SetpointCondensedBlock(d DDI) (block int, ok bool) {
	if d >= DDISetpointCondensedWorkState1To16 && d < DDISetpointCondensedWorkState1To16+condensedBlockCount {
		return int(d - DDISetpointCondensedWorkState1To16), true
	}
	return 0, false
}

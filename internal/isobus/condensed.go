package isobus

// Condensed work-state encoding constants.
//
// A condensed work-state value packs one 16-section block into a 32-bit
// integer, two bits per section. The bit patterns follow ISO 11783-10:
const (
	// SectionsPerCondensedBlock is the number of sections described by one
	// condensed work-state value.
	SectionsPerCondensedBlock = 16

	// MaxSections is the largest number of sections addressable by the 16
	// condensed work-state DDIs of one family.
	MaxSections = SectionsPerCondensedBlock * condensedBlockCount

	// sectionStateOff means the section exists and is off.
	sectionStateOff = 0b00

	// sectionStateOn means the section exists and is on.
	sectionStateOn = 0b01

	// sectionStateNotInstalled marks a field beyond the installed section
	// count. The remaining pattern 0b10 is reserved by the standard; this
	// implement decodes it as off rather than inventing an error state.
	sectionStateNotInstalled = 0b11

	// sectionStateBits is the width of one section field.
	sectionStateBits = 2

	// sectionStateMask extracts one section field.
	sectionStateMask = 0b11
)

// EncodeCondensedWorkState packs up to 16 section states into one
// condensed work-state value. stateOf is consulted for indices below
// sectionCount; fields at or beyond sectionCount are set to the
// "not installed" pattern so a task controller sees exactly which of the
// 16 slots exist. sectionCount values above 16 are treated as 16: the
// caller selects the block by passing a block-local predicate.
//
// Parameters:
//   - sectionCount: Number of installed sections in this block (0-16)
//   - stateOf: Reports whether section i of this block is on
//
// Returns:
//   - uint32: Condensed value, section i in bits [2i, 2i+1]
func EncodeCondensedWorkState(sectionCount int, stateOf func(int) bool) uint32 {
	if sectionCount > SectionsPerCondensedBlock {
		sectionCount = SectionsPerCondensedBlock
	}

	var value uint32
	for i := 0; i < SectionsPerCondensedBlock; i++ {
		field := uint32(sectionStateNotInstalled)
		if i < sectionCount {
			field = sectionStateOff
			if stateOf(i) {
				field = sectionStateOn
			}
		}
		value |= field << (sectionStateBits * i)
	}
	return value
}

// DecodeCondensedWorkState unpacks a condensed work-state value into
// per-section booleans. A section is on iff its field is exactly 0b01;
// 0b10 (reserved) and 0b11 (not installed) both decode as off. Fields at
// or beyond sectionCount are ignored. sectionCount values above 16 yield
// 16 results; negative counts yield none.
//
// Parameters:
//   - value: Condensed value, section i in bits [2i, 2i+1]
//   - sectionCount: Number of installed sections in this block
//
// Returns:
//   - []bool: On/off state per installed section, index-aligned
func DecodeCondensedWorkState(value uint32, sectionCount int) []bool {
	if sectionCount > SectionsPerCondensedBlock {
		sectionCount = SectionsPerCondensedBlock
	}
	if sectionCount < 0 {
		sectionCount = 0
	}

	states := make([]bool, sectionCount)
	for i := 0; i < sectionCount; i++ {
		field := (value >> (sectionStateBits * i)) & sectionStateMask
		states[i] = field == sectionStateOn
	}
	return states
}

// CondensedBlocks returns the number of condensed work-state values
// needed to describe sectionCount sections (always at least 1 so an
// implement with zero configured sections still reports one block).
func CondensedBlocks(sectionCount int) int {
	if sectionCount <= SectionsPerCondensedBlock {
		return 1
	}
	return (sectionCount + SectionsPerCondensedBlock - 1) / SectionsPerCondensedBlock
}

// BlockSectionCount returns how many installed sections fall in the given
// 16-section block: 16 for full blocks, the remainder for the last one,
// zero for blocks past the end.
func BlockSectionCount(sectionCount, block int) int {
	remaining := sectionCount - block*SectionsPerCondensedBlock
	switch {
	case remaining <= 0:
		return 0
	case remaining > SectionsPerCondensedBlock:
		return SectionsPerCondensedBlock
	default:
		return remaining
	}
}

package implement

import (
	"fmt"
	"sync/atomic"

	"github.com/bresilla/tractor-isobus/internal/isobus"
)

// SectionBank holds the run-time state of the implement's sections: the
// setpoint sequence commanded by the task controller and the operator's
// manual switch positions. The auto/manual mode selector decides which
// sequence is "actual".
//
// The section count is fixed at construction. Index accesses are bounds
// checked and panic on violation: an out-of-range section index is a
// programming error in the caller, not a run-time condition to recover
// from.
//
// Thread Safety: every field is atomic. The command callback goroutine
// writes, the request callback goroutine reads, the feed and API
// goroutines may read concurrently; none of them block each other.
type SectionBank struct {
	count    int
	setpoint []atomic.Bool
	switches []atomic.Bool

	autoMode   atomic.Bool
	targetRate atomic.Int32
}

// NewSectionBank creates a bank of count sections, all off, in auto mode,
// with a zero target rate.
//
// Parameters:
//   - count: Number of physical sections, 1 to 256
//
// Returns:
//   - *SectionBank: Ready bank
//   - error: ErrSectionCount when count is outside [1, 256]
func NewSectionBank(count int) (*SectionBank, error) {
	if count < 1 || count > isobus.MaxSections {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrSectionCount, count, isobus.MaxSections)
	}
	bank := &SectionBank{
		count:    count,
		setpoint: make([]atomic.Bool, count),
		switches: make([]atomic.Bool, count),
	}
	bank.autoMode.Store(true)
	return bank, nil
}

// Count returns the number of sections.
func (b *SectionBank) Count() int { return b.count }

// SetpointState returns the task controller's commanded state for
// section i. Panics if i is out of range.
func (b *SectionBank) SetpointState(i int) bool {
	b.checkIndex(i)
	return b.setpoint[i].Load()
}

// SetSetpointState records the commanded state for section i. Panics if
// i is out of range.
func (b *SectionBank) SetSetpointState(i int, on bool) {
	b.checkIndex(i)
	b.setpoint[i].Store(on)
}

// SwitchState returns the operator's manual switch position for section
// i. Panics if i is out of range.
func (b *SectionBank) SwitchState(i int) bool {
	b.checkIndex(i)
	return b.switches[i].Load()
}

// SetSwitchState records the manual switch position for section i.
// Panics if i is out of range.
func (b *SectionBank) SetSwitchState(i int, on bool) {
	b.checkIndex(i)
	b.switches[i].Store(on)
}

// ActualState returns the effective state of section i: the setpoint in
// auto mode, the manual switch otherwise. Panics if i is out of range.
func (b *SectionBank) ActualState(i int) bool {
	b.checkIndex(i)
	if b.autoMode.Load() {
		return b.setpoint[i].Load()
	}
	return b.switches[i].Load()
}

// ActualSectionsOn returns how many sections are effectively on.
func (b *SectionBank) ActualSectionsOn() int {
	on := 0
	for i := 0; i < b.count; i++ {
		if b.ActualState(i) {
			on++
		}
	}
	return on
}

// AnySectionOn reports whether at least one section is effectively on.
func (b *SectionBank) AnySectionOn() bool {
	for i := 0; i < b.count; i++ {
		if b.ActualState(i) {
			return true
		}
	}
	return false
}

// TargetRate returns the commanded application rate.
func (b *SectionBank) TargetRate() int32 {
	return b.targetRate.Load()
}

// SetTargetRate records the commanded application rate.
func (b *SectionBank) SetTargetRate(rate int32) {
	b.targetRate.Store(rate)
}

// ActualRate returns the effective application rate: the target rate
// while at least one section is on, zero otherwise. The implement only
// applies product through open sections.
func (b *SectionBank) ActualRate() int32 {
	if b.AnySectionOn() {
		return b.targetRate.Load()
	}
	return 0
}

// AutoMode reports whether section control follows the task controller's
// setpoints rather than the manual switches.
func (b *SectionBank) AutoMode() bool {
	return b.autoMode.Load()
}

// SetAutoMode selects between setpoint-driven (true) and switch-driven
// (false) section control. Takes effect on the next read.
func (b *SectionBank) SetAutoMode(auto bool) {
	b.autoMode.Store(auto)
}

// checkIndex panics when i does not address a configured section.
func (b *SectionBank) checkIndex(i int) {
	if i < 0 || i >= b.count {
		panic(fmt.Sprintf("implement: section index %d out of range [0,%d)", i, b.count))
	}
}

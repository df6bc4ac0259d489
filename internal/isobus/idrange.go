package isobus

import "fmt"

// ObjectID is a pool-unique 16-bit DDOP object identifier.
type ObjectID uint16

// NullObjectID is the reserved "no object" reference (0xFFFF). It is
// valid as a presentation reference meaning "none" but can never be
// assigned to an object.
const NullObjectID ObjectID = 0xFFFF

// IDRange is a contiguous span of object IDs reserved for one purpose,
// e.g. one ID per section for a per-section attribute.
type IDRange struct {
	name     string
	start    ObjectID
	capacity uint16
}

// Name returns the purpose the range was reserved under.
func (r IDRange) Name() string { return r.name }

// First returns the first ID of the range.
func (r IDRange) First() ObjectID { return r.start }

// Capacity returns the number of IDs the range spans.
func (r IDRange) Capacity() uint16 { return r.capacity }

// At returns the i-th ID of the range. Indexing past the reserved
// capacity is a programming error and panics.
func (r IDRange) At(i int) ObjectID {
	if i < 0 || i >= int(r.capacity) {
		panic(fmt.Sprintf("isobus: id range %q index %d out of range [0,%d)", r.name, i, r.capacity))
	}
	return r.start + ObjectID(i)
}

// Contains reports whether id falls inside the range.
func (r IDRange) Contains(id ObjectID) bool {
	return id >= r.start && id < r.start+ObjectID(r.capacity)
}

// IDPlan reserves contiguous object-ID ranges by declared capacity.
//
// It replaces hand-numbered ID enumerations: each object or object family
// reserves a named range up front, the plan guarantees ranges never
// overlap and never spill past the 16-bit ID space, and builders index
// into ranges instead of doing ID arithmetic.
//
// Thread Safety: IDPlan is not safe for concurrent use; reserve all
// ranges during construction, then share the plan read-only.
type IDPlan struct {
	next    ObjectID
	ranges  []IDRange
	byName  map[string]int
	overrun bool
}

// NewIDPlan creates an empty plan allocating from object ID 0.
func NewIDPlan() *IDPlan {
	return &IDPlan{byName: make(map[string]int)}
}

// Reserve allocates the next contiguous range of the given capacity.
//
// Parameters:
//   - name: Unique purpose label for the range
//   - capacity: Number of IDs to reserve (must be >= 1)
//
// Returns:
//   - IDRange: The reserved range
//   - error: ErrRangeOverlap if the name is already taken, ErrRangeExhausted
//     if the ID space (0-65534) cannot hold the range
func (p *IDPlan) Reserve(name string, capacity uint16) (IDRange, error) {
	if capacity == 0 {
		return IDRange{}, fmt.Errorf("%w: range %q needs capacity >= 1", ErrRangeOverlap, name)
	}
	if _, exists := p.byName[name]; exists {
		return IDRange{}, fmt.Errorf("%w: range %q reserved twice", ErrRangeOverlap, name)
	}

	// NullObjectID (0xFFFF) must stay unassigned, so the usable space is
	// [0, 0xFFFE]. Detect wrap-around via the overrun flag because the
	// next counter itself is 16-bit.
	remaining := uint32(NullObjectID) - uint32(p.next)
	if p.overrun || uint32(capacity) > remaining {
		return IDRange{}, fmt.Errorf("%w: range %q capacity %d, %d ids left", ErrRangeExhausted, name, capacity, remaining)
	}

	r := IDRange{name: name, start: p.next, capacity: capacity}
	p.byName[name] = len(p.ranges)
	p.ranges = append(p.ranges, r)

	if uint32(capacity) == remaining {
		p.overrun = true
	}
	p.next += ObjectID(capacity)
	return r, nil
}

// ReserveOne allocates a single-ID range and returns its only ID.
func (p *IDPlan) ReserveOne(name string) (ObjectID, error) {
	r, err := p.Reserve(name, 1)
	if err != nil {
		return NullObjectID, err
	}
	return r.First(), nil
}

// Range looks up a previously reserved range by name.
func (p *IDPlan) Range(name string) (IDRange, error) {
	i, ok := p.byName[name]
	if !ok {
		return IDRange{}, fmt.Errorf("%w: %q", ErrRangeUnknown, name)
	}
	return p.ranges[i], nil
}

// Reserved returns the total number of IDs handed out so far.
func (p *IDPlan) Reserved() int {
	total := 0
	for _, r := range p.ranges {
		total += int(r.capacity)
	}
	return total
}

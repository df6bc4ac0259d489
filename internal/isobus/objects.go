package isobus

import "fmt"

// Object field limits from ISO 11783-10.
const (
	// maxDesignatorLength is the longest designator accepted for any pool
	// object.
	maxDesignatorLength = 32

	// StructureLabelLength is the fixed wire size of the device structure
	// label; shorter labels are space padded.
	StructureLabelLength = 7

	// LocalizationLabelLength is the fixed wire size of the device
	// localization label.
	LocalizationLabelLength = 7
)

// ObjectType is the three-character table ID identifying a pool object's
// variant on the wire and in task-data XML.
type ObjectType string

// Pool object variants.
const (
	ObjectTypeDevice       ObjectType = "DVC"
	ObjectTypeElement      ObjectType = "DET"
	ObjectTypeProcessData  ObjectType = "DPD"
	ObjectTypeProperty     ObjectType = "DPT"
	ObjectTypePresentation ObjectType = "DVP"
)

// DeviceElementType tags the role of a DeviceElement in the implement's
// physical structure.
type DeviceElementType uint8

// Device element types from ISO 11783-10 table A.2.
const (
	ElementTypeDevice     DeviceElementType = 1
	ElementTypeFunction   DeviceElementType = 2
	ElementTypeBin        DeviceElementType = 3
	ElementTypeSection    DeviceElementType = 4
	ElementTypeUnit       DeviceElementType = 5
	ElementTypeConnector  DeviceElementType = 6
	ElementTypeNavigation DeviceElementType = 7
)

// String returns the element type name used in logs and the API.
func (t DeviceElementType) String() string {
	switch t {
	case ElementTypeDevice:
		return "device"
	case ElementTypeFunction:
		return "function"
	case ElementTypeBin:
		return "bin"
	case ElementTypeSection:
		return "section"
	case ElementTypeUnit:
		return "unit"
	case ElementTypeConnector:
		return "connector"
	case ElementTypeNavigation:
		return "navigation"
	default:
		return fmt.Sprintf("type-%d", uint8(t))
	}
}

// valid reports whether the element type is one of the defined values.
func (t DeviceElementType) valid() bool {
	return t >= ElementTypeDevice && t <= ElementTypeNavigation
}

// PropertyFlags is the DeviceProcessData properties bitmask.
type PropertyFlags uint8

// Property bits.
const (
	// PropertyMemberOfDefaultSet marks data the implement reports when the
	// task controller requests the default set.
	PropertyMemberOfDefaultSet PropertyFlags = 1

	// PropertySettable marks data the task controller may command.
	PropertySettable PropertyFlags = 2

	// PropertyControlSource marks data for which the implement can act as
	// control source (version 4 pools).
	PropertyControlSource PropertyFlags = 4
)

// TriggerFlags is the DeviceProcessData available-trigger-methods bitmask
// describing when the implement may report a value unsolicited.
type TriggerFlags uint8

// Trigger method bits.
const (
	TriggerTimeInterval     TriggerFlags = 1
	TriggerDistanceInterval TriggerFlags = 2
	TriggerThresholdLimits  TriggerFlags = 4
	TriggerOnChange         TriggerFlags = 8
	TriggerTotal            TriggerFlags = 16
)

// Object is one node of the DDOP graph.
type Object interface {
	// ObjectID returns the pool-unique 16-bit ID.
	ObjectID() ObjectID

	// TableID returns the object's variant tag.
	TableID() ObjectType
}

// Device is the single root object describing the implement itself.
type Device struct {
	ID                ObjectID
	Designator        string
	SoftwareVersion   string
	SerialNumber      string
	StructureLabel    string // <= 7 bytes, space padded on the wire
	LocalizationLabel [LocalizationLabelLength]byte
	ClientName        NAME
}

func (d *Device) ObjectID() ObjectID  { return d.ID }
func (d *Device) TableID() ObjectType { return ObjectTypeDevice }

func (d *Device) validate() error {
	if err := checkDesignator(d.Designator); err != nil {
		return err
	}
	if len(d.SoftwareVersion) > maxDesignatorLength {
		return fmt.Errorf("%w: software version %q exceeds %d bytes", ErrInvalidObject, d.SoftwareVersion, maxDesignatorLength)
	}
	if len(d.SerialNumber) > maxDesignatorLength {
		return fmt.Errorf("%w: serial number %q exceeds %d bytes", ErrInvalidObject, d.SerialNumber, maxDesignatorLength)
	}
	if len(d.StructureLabel) > StructureLabelLength {
		return fmt.Errorf("%w: structure label %q exceeds %d bytes", ErrInvalidObject, d.StructureLabel, StructureLabelLength)
	}
	return nil
}

// DeviceElement is a structural node: the implement root, a boom, a
// section, a connector, or a product bin. Children holds ordered
// references to process data, properties, and nested elements; edges are
// added after all nodes exist, so forward references are fine.
type DeviceElement struct {
	ID            ObjectID
	ElementType   DeviceElementType
	Designator    string
	ElementNumber uint16
	Parent        ObjectID
	Children      []ObjectID
}

func (e *DeviceElement) ObjectID() ObjectID  { return e.ID }
func (e *DeviceElement) TableID() ObjectType { return ObjectTypeElement }

func (e *DeviceElement) validate() error {
	if !e.ElementType.valid() {
		return fmt.Errorf("%w: element %d has unknown type %d", ErrInvalidObject, e.ID, e.ElementType)
	}
	return checkDesignator(e.Designator)
}

// DeviceProcessData describes one measurable or commandable quantity of
// its parent element.
type DeviceProcessData struct {
	ID           ObjectID
	DDI          DDI
	Designator   string
	Properties   PropertyFlags
	Triggers     TriggerFlags
	Presentation ObjectID // NullObjectID when the value has no display scaling
}

func (p *DeviceProcessData) ObjectID() ObjectID  { return p.ID }
func (p *DeviceProcessData) TableID() ObjectType { return ObjectTypeProcessData }

func (p *DeviceProcessData) validate() error {
	return checkDesignator(p.Designator)
}

// DeviceProperty is a static attribute of its parent element, e.g. a
// connector type or a section's fixed width.
type DeviceProperty struct {
	ID           ObjectID
	DDI          DDI
	Designator   string
	Value        int32
	Presentation ObjectID
}

func (p *DeviceProperty) ObjectID() ObjectID  { return p.ID }
func (p *DeviceProperty) TableID() ObjectType { return ObjectTypeProperty }

func (p *DeviceProperty) validate() error {
	return checkDesignator(p.Designator)
}

// DeviceValuePresentation defines display scaling for raw values:
// display = (raw + offset) * scale, shown with the given decimals.
type DeviceValuePresentation struct {
	ID       ObjectID
	Offset   int32
	Scale    float32
	Decimals uint8
	Unit     string
}

func (p *DeviceValuePresentation) ObjectID() ObjectID  { return p.ID }
func (p *DeviceValuePresentation) TableID() ObjectType { return ObjectTypePresentation }

func (p *DeviceValuePresentation) validate() error {
	if len(p.Unit) > maxDesignatorLength {
		return fmt.Errorf("%w: unit designator %q exceeds %d bytes", ErrInvalidObject, p.Unit, maxDesignatorLength)
	}
	return nil
}

// checkDesignator enforces the common designator length limit.
func checkDesignator(designator string) error {
	if len(designator) > maxDesignatorLength {
		return fmt.Errorf("%w: designator %q exceeds %d bytes", ErrInvalidObject, designator, maxDesignatorLength)
	}
	return nil
}

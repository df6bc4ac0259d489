package implement

import (
	"errors"
	"fmt"

	"github.com/bresilla/tractor-isobus/internal/isobus"
)

// Defaults applied by NewBuilder when Config fields are zero.
const (
	defaultDeviceName      = "HASHTAG"
	defaultSoftwareVersion = "1.42.0"
	defaultSerialNumber    = "WAZZZAAAAAA"
	defaultStructureLabel  = "SP1.11"
	defaultBoomWidthMM     = 9144
	defaultTankCapacityML  = 4_000_000
)

// defaultLocalization declares English, metric units throughout.
var defaultLocalization = [isobus.LocalizationLabelLength]byte{'e', 'n', 0x50, 0x00, 0x55, 0x55, 0xFF}

// defaultClientName identifies the implement as a self-configurable rate
// control function on an agricultural sprayer.
var defaultClientName = isobus.NAMEFields{
	IdentityNumber:   2,
	ManufacturerCode: 1407,
	Function:         isobus.FunctionRateControl,
	DeviceClass:      isobus.DeviceClassSprayer,
	IndustryGroup:    isobus.IndustryGroupAgriculture,
	SelfConfigurable: true,
}.Pack()

// connectorType is the DDI 157 value reported for the implement's hitch.
const connectorType = 9

// Fixed element numbers of the implement structure. Sections follow the
// boom, the product bin comes after the last section.
const (
	mainElementNumber      uint16 = 0
	connectorElementNumber uint16 = 1
	boomElementNumber      uint16 = 2
	firstSectionElement    uint16 = 3
)

// Config describes the implement whose descriptor the Builder constructs.
// Zero fields take the package defaults.
type Config struct {
	// DeviceName is the designator shown on task controller displays.
	DeviceName string

	// SoftwareVersion, SerialNumber, and StructureLabel identify this
	// descriptor revision to the task controller's pool cache.
	SoftwareVersion string
	SerialNumber    string
	StructureLabel  string

	// Localization is the 7-byte language/units label.
	Localization [isobus.LocalizationLabelLength]byte

	// ClientName is the 64-bit ISO NAME of the implement's control
	// function.
	ClientName isobus.NAME

	// SectionCount is the number of physical boom sections.
	SectionCount int

	// MaxSections sizes the per-section object-ID ranges. Defaults to
	// SectionCount rounded up to a whole 16-section block.
	MaxSections int

	// BoomWidthMM is the total working width. Sections split it evenly.
	BoomWidthMM int32

	// TankCapacityML is the product tank's maximum volume.
	TankCapacityML int32
}

// applyDefaults fills zero fields in place.
func (c *Config) applyDefaults() {
	if c.DeviceName == "" {
		c.DeviceName = defaultDeviceName
	}
	if c.SoftwareVersion == "" {
		c.SoftwareVersion = defaultSoftwareVersion
	}
	if c.SerialNumber == "" {
		c.SerialNumber = defaultSerialNumber
	}
	if c.StructureLabel == "" {
		c.StructureLabel = defaultStructureLabel
	}
	if c.Localization == ([isobus.LocalizationLabelLength]byte{}) {
		c.Localization = defaultLocalization
	}
	if c.ClientName == 0 {
		c.ClientName = defaultClientName
	}
	if c.MaxSections == 0 {
		c.MaxSections = isobus.CondensedBlocks(c.SectionCount) * isobus.SectionsPerCondensedBlock
	}
	if c.BoomWidthMM == 0 {
		c.BoomWidthMM = defaultBoomWidthMM
	}
	if c.TankCapacityML == 0 {
		c.TankCapacityML = defaultTankCapacityML
	}
}

// validate checks the configuration after defaults are applied.
func (c Config) validate() error {
	if c.SectionCount < 1 || c.SectionCount > isobus.MaxSections {
		return fmt.Errorf("%w: section count %d not in [1, %d]", ErrSectionCount, c.SectionCount, isobus.MaxSections)
	}
	if c.MaxSections < c.SectionCount || c.MaxSections > isobus.MaxSections {
		return fmt.Errorf("%w: max sections %d not in [%d, %d]", ErrInvalidConfig, c.MaxSections, c.SectionCount, isobus.MaxSections)
	}
	if c.BoomWidthMM <= 0 {
		return fmt.Errorf("%w: boom width %d mm", ErrInvalidConfig, c.BoomWidthMM)
	}
	if c.TankCapacityML <= 0 {
		return fmt.Errorf("%w: tank capacity %d ml", ErrInvalidConfig, c.TankCapacityML)
	}
	return nil
}

// DeviceLayout records where Build placed everything: the element numbers
// the task controller will use to address process data, and the geometry
// derived from the configuration. The dispatcher and the default handlers
// key their registrations on these numbers.
type DeviceLayout struct {
	MainElement      uint16
	ConnectorElement uint16
	BoomElement      uint16
	ProductElement   uint16

	// FirstSection is the element number of section 0; section i is
	// FirstSection + i.
	FirstSection uint16

	SectionCount int

	// Blocks is the number of condensed work-state blocks in use.
	Blocks int

	BoomWidthMM    int32
	SectionWidthMM int32
	TankCapacityML int32
}

// SectionElement returns the element number of section i. Panics if i is
// out of range.
func (l *DeviceLayout) SectionElement(i int) uint16 {
	if i < 0 || i >= l.SectionCount {
		panic(fmt.Sprintf("implement: section index %d out of range [0,%d)", i, l.SectionCount))
	}
	return l.FirstSection + uint16(i)
}

// idLayout holds the reserved object-ID ranges. Per-section ranges are
// sized to the configured maximum so the numbering stays stable when the
// installed section count changes within that maximum.
type idLayout struct {
	device            isobus.ObjectID
	elements          isobus.IDRange // main, connector, boom, product
	mainData          isobus.IDRange
	connectorData     isobus.IDRange
	connectorProps    isobus.IDRange
	boomData          isobus.IDRange
	boomProps         isobus.IDRange
	condensedActual   isobus.IDRange
	condensedSetpoint isobus.IDRange
	sectionElements   isobus.IDRange
	sectionXOffsets   isobus.IDRange
	sectionYOffsets   isobus.IDRange
	sectionWidths     isobus.IDRange
	productData       isobus.IDRange
	presentations     isobus.IDRange
}

// Indices into the elements range.
const (
	elementMain = iota
	elementConnector
	elementBoom
	elementProduct
	elementCount
)

// Indices into the mainData range.
const (
	mainActualWorkState = iota
	mainSetpointWorkState
	mainTotalTime
	mainRequestDefault
	mainAuthResult
	mainDataCount
)

// Indices into the boomData range.
const (
	boomWorkingWidth = iota
	boomSectionControlState
	boomTotalArea
	boomDataCount
)

// Indices into the productData range.
const (
	productTankCapacity = iota
	productTankVolume
	productLifetimeVolume
	productPrescriptionState
	productCulturalPractice
	productSetpointRate
	productActualRate
	productDataCount
)

// Indices into the presentations range.
const (
	presentationMM = iota
	presentationLiters
	presentationLitersPerHectare
	presentationHectares
	presentationMinutes
	presentationCount
)

// newIDLayout reserves every range the builder draws from.
func newIDLayout(maxSections int) (*idLayout, error) {
	plan := isobus.NewIDPlan()
	ids := &idLayout{}
	blocks := isobus.CondensedBlocks(maxSections)

	var err error
	reserve := func(dst *isobus.IDRange, name string, capacity int) {
		if err != nil {
			return
		}
		*dst, err = plan.Reserve(name, uint16(capacity))
	}

	ids.device, err = plan.ReserveOne("device")
	reserve(&ids.elements, "elements", elementCount)
	reserve(&ids.mainData, "main-data", mainDataCount)
	reserve(&ids.connectorData, "connector-data", 2)
	reserve(&ids.connectorProps, "connector-properties", 1)
	reserve(&ids.boomData, "boom-data", boomDataCount)
	reserve(&ids.boomProps, "boom-properties", 3)
	reserve(&ids.condensedActual, "condensed-actual", blocks)
	reserve(&ids.condensedSetpoint, "condensed-setpoint", blocks)
	reserve(&ids.sectionElements, "section-elements", maxSections)
	reserve(&ids.sectionXOffsets, "section-x-offsets", maxSections)
	reserve(&ids.sectionYOffsets, "section-y-offsets", maxSections)
	reserve(&ids.sectionWidths, "section-widths", maxSections)
	reserve(&ids.productData, "product-data", productDataCount)
	reserve(&ids.presentations, "presentations", presentationCount)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Builder constructs the implement's device descriptor object pool: one
// device, a main element carrying the device-wide process data, a
// connector, a boom with per-section geometry and condensed work states,
// and a product bin with tank and rate data.
type Builder struct {
	cfg Config
	ids *idLayout
}

// NewBuilder validates the configuration and reserves the object-ID plan.
//
// Parameters:
//   - cfg: Implement description; zero fields take package defaults
//
// Returns:
//   - *Builder: Ready builder
//   - error: ErrSectionCount or ErrInvalidConfig on bad configuration
func NewBuilder(cfg Config) (*Builder, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	ids, err := newIDLayout(cfg.MaxSections)
	if err != nil {
		return nil, err
	}
	return &Builder{cfg: cfg, ids: ids}, nil
}

// Config returns the builder's configuration with defaults applied.
func (b *Builder) Config() Config { return b.cfg }

// Build populates the pool with the full descriptor graph and wires every
// parent to child reference. The pool is cleared first, so building twice
// yields an identical graph.
//
// Insertion failures do not abort the build: every object is attempted and
// all failures are reported together, so one bad designator surfaces every
// violation in a single pass. A pool that failed to build is partially
// populated and must not be handed to a task controller client.
//
// Parameters:
//   - pool: Destination pool, cleared before use
//
// Returns:
//   - *DeviceLayout: Element numbers and geometry of the built descriptor
//   - error: ErrBuildFailed wrapping every insertion or validation failure
func (b *Builder) Build(pool *isobus.ObjectPool) (*DeviceLayout, error) {
	pool.Clear()

	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	b.buildDevice(pool, add)
	b.buildPresentations(pool, add)
	b.buildMain(pool, add)
	b.buildConnector(pool, add)
	b.buildBoom(pool, add)
	b.buildSections(pool, add)
	b.buildProduct(pool, add)

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, errors.Join(errs...))
	}
	if err := pool.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}
	return b.layout(), nil
}

// layout derives the element numbering and geometry from the config.
func (b *Builder) layout() *DeviceLayout {
	width := b.cfg.BoomWidthMM / int32(b.cfg.SectionCount)
	return &DeviceLayout{
		MainElement:      mainElementNumber,
		ConnectorElement: connectorElementNumber,
		BoomElement:      boomElementNumber,
		ProductElement:   b.productElementNumber(),
		FirstSection:     firstSectionElement,
		SectionCount:     b.cfg.SectionCount,
		Blocks:           isobus.CondensedBlocks(b.cfg.SectionCount),
		BoomWidthMM:      b.cfg.BoomWidthMM,
		SectionWidthMM:   width,
		TankCapacityML:   b.cfg.TankCapacityML,
	}
}

// productElementNumber places the product bin after the last section.
func (b *Builder) productElementNumber() uint16 {
	return firstSectionElement + uint16(b.cfg.SectionCount)
}

func (b *Builder) buildDevice(pool *isobus.ObjectPool, add func(error)) {
	add(pool.AddDevice(
		b.cfg.DeviceName,
		b.cfg.SoftwareVersion,
		b.cfg.SerialNumber,
		b.cfg.StructureLabel,
		b.cfg.Localization,
		b.cfg.ClientName,
		b.ids.device,
	))
}

func (b *Builder) buildPresentations(pool *isobus.ObjectPool, add func(error)) {
	pres := b.ids.presentations
	add(pool.AddDeviceValuePresentation("mm", 0, 1, 0, pres.At(presentationMM)))
	add(pool.AddDeviceValuePresentation("L", 0, 0.001, 1, pres.At(presentationLiters)))
	add(pool.AddDeviceValuePresentation("L/ha", 0, 0.0001, 1, pres.At(presentationLitersPerHectare)))
	add(pool.AddDeviceValuePresentation("ha", 0, 0.0001, 2, pres.At(presentationHectares)))
	add(pool.AddDeviceValuePresentation("minutes", 0, 0.0166667, 1, pres.At(presentationMinutes)))
}

// buildMain adds the root element and the device-wide process data: work
// states, the effective time total, the default-set request marker, and
// the proprietary authentication result.
func (b *Builder) buildMain(pool *isobus.ObjectPool, add func(error)) {
	el := b.ids.elements.At(elementMain)
	data := b.ids.mainData
	minutes := b.ids.presentations.At(presentationMinutes)

	add(pool.AddDeviceElement(b.cfg.DeviceName, mainElementNumber, b.ids.device, isobus.ElementTypeDevice, el))

	add(pool.AddDeviceProcessData("Actual Work State", isobus.DDIActualWorkState, isobus.NullObjectID,
		isobus.PropertyMemberOfDefaultSet, isobus.TriggerOnChange, data.At(mainActualWorkState)))
	add(pool.AddDeviceProcessData("Setpoint Work State", isobus.DDISetpointWorkState, isobus.NullObjectID,
		isobus.PropertyMemberOfDefaultSet|isobus.PropertySettable, isobus.TriggerOnChange, data.At(mainSetpointWorkState)))
	add(pool.AddDeviceProcessData("Effective Total Time", isobus.DDIEffectiveTotalTime, minutes,
		isobus.PropertyMemberOfDefaultSet, isobus.TriggerTotal, data.At(mainTotalTime)))
	add(pool.AddDeviceProcessData("Request Default Process Data", isobus.DDIRequestDefaultProcessData, isobus.NullObjectID,
		0, 0, data.At(mainRequestDefault)))
	add(pool.AddDeviceProcessData("Authentication Result", isobus.DDIAuthenticationResult, isobus.NullObjectID,
		isobus.PropertyMemberOfDefaultSet, isobus.TriggerOnChange, data.At(mainAuthResult)))

	for i := 0; i < mainDataCount; i++ {
		add(pool.AddChildReference(el, data.At(i)))
	}
}

// buildConnector adds the hitch element: commandable X/Y offsets and the
// fixed connector type.
func (b *Builder) buildConnector(pool *isobus.ObjectPool, add func(error)) {
	el := b.ids.elements.At(elementConnector)
	data := b.ids.connectorData
	prop := b.ids.connectorProps.At(0)
	mm := b.ids.presentations.At(presentationMM)

	add(pool.AddDeviceElement("Connector", connectorElementNumber, b.ids.elements.At(elementMain),
		isobus.ElementTypeConnector, el))

	add(pool.AddDeviceProcessData("Connector X", isobus.DDIDeviceElementOffsetX, mm,
		isobus.PropertySettable, isobus.TriggerOnChange, data.At(0)))
	add(pool.AddDeviceProcessData("Connector Y", isobus.DDIDeviceElementOffsetY, mm,
		isobus.PropertySettable, isobus.TriggerOnChange, data.At(1)))
	add(pool.AddDeviceProperty("Connector Type", connectorType, isobus.DDIConnectorType, isobus.NullObjectID, prop))

	add(pool.AddChildReference(el, data.At(0)))
	add(pool.AddChildReference(el, data.At(1)))
	add(pool.AddChildReference(el, prop))
}

// buildBoom adds the boom element: fixed offsets, the working width, the
// section control state, the area total, and one actual plus one setpoint
// condensed work state per 16-section block in use.
func (b *Builder) buildBoom(pool *isobus.ObjectPool, add func(error)) {
	el := b.ids.elements.At(elementBoom)
	data := b.ids.boomData
	props := b.ids.boomProps
	mm := b.ids.presentations.At(presentationMM)
	ha := b.ids.presentations.At(presentationHectares)
	blocks := isobus.CondensedBlocks(b.cfg.SectionCount)

	add(pool.AddDeviceElement("Boom", boomElementNumber, b.ids.elements.At(elementMain),
		isobus.ElementTypeFunction, el))

	add(pool.AddDeviceProperty("Offset X", 0, isobus.DDIDeviceElementOffsetX, mm, props.At(0)))
	add(pool.AddDeviceProperty("Offset Y", 0, isobus.DDIDeviceElementOffsetY, mm, props.At(1)))
	add(pool.AddDeviceProperty("Offset Z", 0, isobus.DDIDeviceElementOffsetZ, mm, props.At(2)))

	add(pool.AddDeviceProcessData("Actual Working Width", isobus.DDIActualWorkingWidth, mm,
		isobus.PropertyMemberOfDefaultSet, isobus.TriggerOnChange, data.At(boomWorkingWidth)))
	add(pool.AddDeviceProcessData("Section Control State", isobus.DDISectionControlState, isobus.NullObjectID,
		isobus.PropertyMemberOfDefaultSet|isobus.PropertySettable, isobus.TriggerOnChange, data.At(boomSectionControlState)))
	add(pool.AddDeviceProcessData("Total Area", isobus.DDITotalArea, ha,
		isobus.PropertyMemberOfDefaultSet, isobus.TriggerTotal, data.At(boomTotalArea)))

	for block := 0; block < blocks; block++ {
		first := block*isobus.SectionsPerCondensedBlock + 1
		last := (block + 1) * isobus.SectionsPerCondensedBlock
		add(pool.AddDeviceProcessData(
			fmt.Sprintf("Actual Work State %d-%d", first, last),
			isobus.ActualCondensedWorkStateDDI(block), isobus.NullObjectID,
			isobus.PropertyMemberOfDefaultSet, isobus.TriggerOnChange,
			b.ids.condensedActual.At(block)))
		add(pool.AddDeviceProcessData(
			fmt.Sprintf("Setpoint Work State %d-%d", first, last),
			isobus.SetpointCondensedWorkStateDDI(block), isobus.NullObjectID,
			isobus.PropertySettable, isobus.TriggerOnChange,
			b.ids.condensedSetpoint.At(block)))
	}

	for i := 0; i < 3; i++ {
		add(pool.AddChildReference(el, props.At(i)))
	}
	for i := 0; i < boomDataCount; i++ {
		add(pool.AddChildReference(el, data.At(i)))
	}
	for block := 0; block < blocks; block++ {
		add(pool.AddChildReference(el, b.ids.condensedActual.At(block)))
		add(pool.AddChildReference(el, b.ids.condensedSetpoint.At(block)))
	}
}

// buildSections adds one element per installed section with its geometry:
// X offset zero, Y offset measured from the boom centre, and an even
// share of the boom width. Only installed sections emit objects; the ID
// ranges keep room for the configured maximum.
func (b *Builder) buildSections(pool *isobus.ObjectPool, add func(error)) {
	boom := b.ids.elements.At(elementBoom)
	mm := b.ids.presentations.At(presentationMM)
	width := b.cfg.BoomWidthMM / int32(b.cfg.SectionCount)

	for i := 0; i < b.cfg.SectionCount; i++ {
		el := b.ids.sectionElements.At(i)
		yOffset := int32(i)*width - b.cfg.BoomWidthMM/2 + width/2

		add(pool.AddDeviceElement(fmt.Sprintf("Section %d", i+1),
			firstSectionElement+uint16(i), boom, isobus.ElementTypeSection, el))

		add(pool.AddDeviceProperty("Offset X", 0, isobus.DDIDeviceElementOffsetX, mm, b.ids.sectionXOffsets.At(i)))
		add(pool.AddDeviceProperty("Offset Y", yOffset, isobus.DDIDeviceElementOffsetY, mm, b.ids.sectionYOffsets.At(i)))
		add(pool.AddDeviceProperty("Width", width, isobus.DDIActualWorkingWidth, mm, b.ids.sectionWidths.At(i)))

		add(pool.AddChildReference(el, b.ids.sectionXOffsets.At(i)))
		add(pool.AddChildReference(el, b.ids.sectionYOffsets.At(i)))
		add(pool.AddChildReference(el, b.ids.sectionWidths.At(i)))
	}
}

// buildProduct adds the tank element: capacity, current volume, the
// lifetime total, control states, and the application rate pair.
func (b *Builder) buildProduct(pool *isobus.ObjectPool, add func(error)) {
	el := b.ids.elements.At(elementProduct)
	data := b.ids.productData
	liters := b.ids.presentations.At(presentationLiters)
	rate := b.ids.presentations.At(presentationLitersPerHectare)

	add(pool.AddDeviceElement("Product", b.productElementNumber(), b.ids.elements.At(elementMain),
		isobus.ElementTypeBin, el))

	add(pool.AddDeviceProcessData("Maximum Volume Content", isobus.DDIMaximumVolumeContent, liters,
		isobus.PropertyMemberOfDefaultSet, 0, data.At(productTankCapacity)))
	add(pool.AddDeviceProcessData("Actual Volume Content", isobus.DDIActualVolumeContent, liters,
		isobus.PropertyMemberOfDefaultSet, isobus.TriggerTimeInterval, data.At(productTankVolume)))
	add(pool.AddDeviceProcessData("Lifetime Total Volume", isobus.DDILifetimeApplicationTotalVolume, liters,
		0, isobus.TriggerTotal, data.At(productLifetimeVolume)))
	add(pool.AddDeviceProcessData("Prescription Control State", isobus.DDIPrescriptionControlState, isobus.NullObjectID,
		isobus.PropertyMemberOfDefaultSet|isobus.PropertySettable, isobus.TriggerOnChange, data.At(productPrescriptionState)))
	add(pool.AddDeviceProcessData("Actual Cultural Practice", isobus.DDIActualCulturalPractice, isobus.NullObjectID,
		isobus.PropertyMemberOfDefaultSet, isobus.TriggerOnChange, data.At(productCulturalPractice)))
	add(pool.AddDeviceProcessData("Setpoint Application Rate", isobus.DDISetpointVolumePerAreaRate, rate,
		isobus.PropertyMemberOfDefaultSet|isobus.PropertySettable, isobus.TriggerOnChange, data.At(productSetpointRate)))
	add(pool.AddDeviceProcessData("Actual Application Rate", isobus.DDIActualVolumePerAreaRate, rate,
		isobus.PropertyMemberOfDefaultSet, isobus.TriggerOnChange|isobus.TriggerTimeInterval, data.At(productActualRate)))

	for i := 0; i < productDataCount; i++ {
		add(pool.AddChildReference(el, data.At(i)))
	}
}

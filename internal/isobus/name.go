package isobus

import "fmt"

// NAME is the 64-bit ISO 11783-5 control function NAME, transmitted
// little-endian in the device object. The bit layout, LSB first:
//
//	bits  0-20  identity number
//	bits 21-31  manufacturer code
//	bits 32-34  ECU instance
//	bits 35-39  function instance
//	bits 40-47  function
//	bit  48     reserved (0)
//	bits 49-55  device class
//	bits 56-59  device class instance
//	bits 60-62  industry group
//	bit  63     self-configurable address
type NAME uint64

// NAME field widths and positions.
const (
	nameIdentityBits     = 21
	nameManufacturerBits = 11
	nameECUInstanceBits  = 3
	nameFuncInstanceBits = 5
	nameFunctionBits     = 8
	nameDeviceClassBits  = 7
	nameClassInstBits    = 4
	nameIndustryBits     = 3

	nameManufacturerShift = nameIdentityBits
	nameECUInstanceShift  = nameManufacturerShift + nameManufacturerBits
	nameFuncInstanceShift = nameECUInstanceShift + nameECUInstanceBits
	nameFunctionShift     = nameFuncInstanceShift + nameFuncInstanceBits
	nameDeviceClassShift  = nameFunctionShift + nameFunctionBits + 1 // +1 reserved bit
	nameClassInstShift    = nameDeviceClassShift + nameDeviceClassBits
	nameIndustryShift     = nameClassInstShift + nameClassInstBits
	nameSelfConfigShift   = nameIndustryShift + nameIndustryBits
)

// Well-known NAME field values for this implement class.
const (
	// IndustryGroupAgriculture is industry group 2, agricultural and
	// forestry equipment.
	IndustryGroupAgriculture = 2

	// FunctionRateControl is the rate control function code (128).
	FunctionRateControl = 128

	// DeviceClassSprayer is device class 6, sprayers.
	DeviceClassSprayer = 6
)

// NAMEFields holds the unpacked NAME parameters. Values wider than their
// field are truncated on Pack, matching the forgiving behavior of CAN
// stacks that mask rather than reject.
type NAMEFields struct {
	IdentityNumber      uint32 // 21 bits
	ManufacturerCode    uint16 // 11 bits
	ECUInstance         uint8  // 3 bits
	FunctionInstance    uint8  // 5 bits
	Function            uint8  // 8 bits
	DeviceClass         uint8  // 7 bits
	DeviceClassInstance uint8  // 4 bits
	IndustryGroup       uint8  // 3 bits
	SelfConfigurable    bool
}

// Pack assembles the fields into a 64-bit NAME.
func (f NAMEFields) Pack() NAME {
	var n uint64
	n |= uint64(f.IdentityNumber) & mask(nameIdentityBits)
	n |= (uint64(f.ManufacturerCode) & mask(nameManufacturerBits)) << nameManufacturerShift
	n |= (uint64(f.ECUInstance) & mask(nameECUInstanceBits)) << nameECUInstanceShift
	n |= (uint64(f.FunctionInstance) & mask(nameFuncInstanceBits)) << nameFuncInstanceShift
	n |= (uint64(f.Function) & mask(nameFunctionBits)) << nameFunctionShift
	n |= (uint64(f.DeviceClass) & mask(nameDeviceClassBits)) << nameDeviceClassShift
	n |= (uint64(f.DeviceClassInstance) & mask(nameClassInstBits)) << nameClassInstShift
	n |= (uint64(f.IndustryGroup) & mask(nameIndustryBits)) << nameIndustryShift
	if f.SelfConfigurable {
		n |= 1 << nameSelfConfigShift
	}
	return NAME(n)
}

// Fields unpacks the NAME into its parameters.
func (n NAME) Fields() NAMEFields {
	v := uint64(n)
	return NAMEFields{
		IdentityNumber:      uint32(v & mask(nameIdentityBits)),
		ManufacturerCode:    uint16((v >> nameManufacturerShift) & mask(nameManufacturerBits)),
		ECUInstance:         uint8((v >> nameECUInstanceShift) & mask(nameECUInstanceBits)),
		FunctionInstance:    uint8((v >> nameFuncInstanceShift) & mask(nameFuncInstanceBits)),
		Function:            uint8((v >> nameFunctionShift) & mask(nameFunctionBits)),
		DeviceClass:         uint8((v >> nameDeviceClassShift) & mask(nameDeviceClassBits)),
		DeviceClassInstance: uint8((v >> nameClassInstShift) & mask(nameClassInstBits)),
		IndustryGroup:       uint8((v >> nameIndustryShift) & mask(nameIndustryBits)),
		SelfConfigurable:    v>>nameSelfConfigShift&1 == 1,
	}
}

// String renders the NAME as 16 uppercase hex digits, the form used in
// task-data XML.
func (n NAME) String() string {
	return fmt.Sprintf("%016X", uint64(n))
}

// mask returns a bits-wide all-ones mask.
func mask(bits int) uint64 {
	return (1 << bits) - 1
}

package isobus

import (
	"fmt"
	"math"
)

// Estimated bytes per object for the initial image allocation.
const approxObjectSize = 24

// Bytes renders the pool as the ISO 11783-10 Annex B binary image the
// task controller receives during object pool transfer. Objects appear
// in insertion order; all multi-byte fields are little-endian.
//
// Returns:
//   - []byte: Complete pool image
//   - error: ErrPoolInvalid wrapping the validation failure
func (p *ObjectPool) Bytes() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPoolInvalid, err)
	}

	buf := make([]byte, 0, len(p.objects)*approxObjectSize)
	for _, obj := range p.objects {
		switch o := obj.(type) {
		case *Device:
			buf = appendDevice(buf, o)
		case *DeviceElement:
			buf = appendElement(buf, o)
		case *DeviceProcessData:
			buf = appendProcessData(buf, o)
		case *DeviceProperty:
			buf = appendProperty(buf, o)
		case *DeviceValuePresentation:
			buf = appendPresentation(buf, o)
		}
	}
	return buf, nil
}

func appendDevice(buf []byte, d *Device) []byte {
	buf = append(buf, ObjectTypeDevice...)
	buf = appendObjectID(buf, d.ID)
	buf = appendCountedString(buf, d.Designator)
	buf = appendCountedString(buf, d.SoftwareVersion)
	buf = appendUint64(buf, uint64(d.ClientName))
	buf = appendCountedString(buf, d.SerialNumber)
	buf = appendPaddedLabel(buf, d.StructureLabel)
	buf = append(buf, d.LocalizationLabel[:]...)
	return buf
}

func appendElement(buf []byte, e *DeviceElement) []byte {
	buf = append(buf, ObjectTypeElement...)
	buf = appendObjectID(buf, e.ID)
	buf = append(buf, byte(e.ElementType))
	buf = appendCountedString(buf, e.Designator)
	buf = appendUint16(buf, e.ElementNumber)
	buf = appendObjectID(buf, e.Parent)
	buf = appendUint16(buf, uint16(len(e.Children)))
	for _, child := range e.Children {
		buf = appendObjectID(buf, child)
	}
	return buf
}

func appendProcessData(buf []byte, pd *DeviceProcessData) []byte {
	buf = append(buf, ObjectTypeProcessData...)
	buf = appendObjectID(buf, pd.ID)
	buf = appendUint16(buf, uint16(pd.DDI))
	buf = append(buf, byte(pd.Properties), byte(pd.Triggers))
	buf = appendCountedString(buf, pd.Designator)
	buf = appendObjectID(buf, pd.Presentation)
	return buf
}

func appendProperty(buf []byte, prop *DeviceProperty) []byte {
	buf = append(buf, ObjectTypeProperty...)
	buf = appendObjectID(buf, prop.ID)
	buf = appendUint16(buf, uint16(prop.DDI))
	buf = appendInt32(buf, prop.Value)
	buf = appendCountedString(buf, prop.Designator)
	buf = appendObjectID(buf, prop.Presentation)
	return buf
}

func appendPresentation(buf []byte, pres *DeviceValuePresentation) []byte {
	buf = append(buf, ObjectTypePresentation...)
	buf = appendObjectID(buf, pres.ID)
	buf = appendInt32(buf, pres.Offset)
	buf = appendUint32(buf, math.Float32bits(pres.Scale))
	buf = append(buf, pres.Decimals)
	buf = appendCountedString(buf, pres.Unit)
	return buf
}

func appendObjectID(buf []byte, id ObjectID) []byte {
	return appendUint16(buf, uint16(id))
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendInt32(buf []byte, v int32) []byte {
	return appendUint32(buf, uint32(v))
}

func appendUint64(buf []byte, v uint64) []byte {
	buf = appendUint32(buf, uint32(v))
	return appendUint32(buf, uint32(v>>32))
}

// appendCountedString writes a length byte followed by the string bytes.
// Lengths are pre-validated to fit in one byte by the object validators.
func appendCountedString(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}

// appendPaddedLabel writes the structure label space padded to its fixed
// wire size.
func appendPaddedLabel(buf []byte, label string) []byte {
	buf = append(buf, label...)
	for i := len(label); i < StructureLabelLength; i++ {
		buf = append(buf, ' ')
	}
	return buf
}

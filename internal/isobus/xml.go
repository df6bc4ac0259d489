package isobus

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
)

// Task-data XML header attributes. Version 4 is the ISO 11783-10:2015
// schema generation; origin 1 marks the file as FMIS-created.
const (
	taskDataVersionMajor  = 4
	taskDataVersionMinor  = 0
	taskDataOrigin        = 1
	taskDataManufacturer  = "tractor-isobus"
	taskDataSoftwareLevel = "1.0"
)

// xmlIndent is the indentation used for generated task-data files.
const xmlIndent = "    "

type xmlTaskData struct {
	XMLName                        xml.Name  `xml:"ISO11783_TaskData"`
	VersionMajor                   int       `xml:"VersionMajor,attr"`
	VersionMinor                   int       `xml:"VersionMinor,attr"`
	ManagementSoftwareManufacturer string    `xml:"ManagementSoftwareManufacturer,attr"`
	ManagementSoftwareVersion      string    `xml:"ManagementSoftwareVersion,attr"`
	DataTransferOrigin             int       `xml:"DataTransferOrigin,attr"`
	Device                         xmlDevice `xml:"DVC"`
}

type xmlDevice struct {
	ID                string               `xml:"A,attr"`
	Designator        string               `xml:"B,attr"`
	SoftwareVersion   string               `xml:"C,attr"`
	ClientName        string               `xml:"D,attr"`
	SerialNumber      string               `xml:"E,attr"`
	StructureLabel    string               `xml:"F,attr"`
	LocalizationLabel string               `xml:"G,attr"`
	Elements          []xmlDeviceElement   `xml:"DET"`
	ProcessData       []xmlProcessData     `xml:"DPD"`
	Properties        []xmlProperty        `xml:"DPT"`
	Presentations     []xmlValuePresention `xml:"DVP"`
}

type xmlDeviceElement struct {
	ID         string         `xml:"A,attr"`
	ObjectID   uint16         `xml:"B,attr"`
	Type       uint8          `xml:"C,attr"`
	Designator string         `xml:"D,attr"`
	Number     uint16         `xml:"E,attr"`
	Parent     uint16         `xml:"F,attr"`
	References []xmlObjectRef `xml:"DOR"`
}

type xmlObjectRef struct {
	ObjectID uint16 `xml:"A,attr"`
}

type xmlProcessData struct {
	ObjectID     uint16 `xml:"A,attr"`
	DDI          string `xml:"B,attr"`
	Properties   uint8  `xml:"C,attr"`
	Triggers     uint8  `xml:"D,attr"`
	Designator   string `xml:"E,attr,omitempty"`
	Presentation string `xml:"F,attr,omitempty"`
}

type xmlProperty struct {
	ObjectID     uint16 `xml:"A,attr"`
	DDI          string `xml:"B,attr"`
	Value        int32  `xml:"C,attr"`
	Designator   string `xml:"D,attr,omitempty"`
	Presentation string `xml:"E,attr,omitempty"`
}

type xmlValuePresention struct {
	ObjectID uint16 `xml:"A,attr"`
	Offset   int32  `xml:"B,attr"`
	Scale    string `xml:"C,attr"`
	Decimals uint8  `xml:"D,attr"`
	Unit     string `xml:"E,attr,omitempty"`
}

// WriteXML renders the pool as an ISO 11783-10 task-data document, the
// format an FMIS or terminal reads DDOPs from. The rendering is
// deterministic: the device's elements, process data, properties, and
// presentations each appear grouped in insertion order.
//
// Parameters:
//   - w: Destination writer
//
// Returns:
//   - error: ErrPoolInvalid wrapping the validation failure, or a write error
func (p *ObjectPool) WriteXML(w io.Writer) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrPoolInvalid, err)
	}

	dev, _ := p.Device()
	doc := xmlTaskData{
		VersionMajor:                   taskDataVersionMajor,
		VersionMinor:                   taskDataVersionMinor,
		ManagementSoftwareManufacturer: taskDataManufacturer,
		ManagementSoftwareVersion:      taskDataSoftwareLevel,
		DataTransferOrigin:             taskDataOrigin,
		Device: xmlDevice{
			ID:                "DVC-1",
			Designator:        dev.Designator,
			SoftwareVersion:   dev.SoftwareVersion,
			ClientName:        dev.ClientName.String(),
			SerialNumber:      dev.SerialNumber,
			StructureLabel:    hexLabel(appendPaddedLabel(nil, dev.StructureLabel)),
			LocalizationLabel: hexLabel(dev.LocalizationLabel[:]),
		},
	}

	elementIndex := 0
	for _, obj := range p.objects {
		switch o := obj.(type) {
		case *DeviceElement:
			elementIndex++
			el := xmlDeviceElement{
				ID:         fmt.Sprintf("DET-%d", elementIndex),
				ObjectID:   uint16(o.ID),
				Type:       uint8(o.ElementType),
				Designator: o.Designator,
				Number:     o.ElementNumber,
				Parent:     uint16(o.Parent),
			}
			for _, child := range o.Children {
				el.References = append(el.References, xmlObjectRef{ObjectID: uint16(child)})
			}
			doc.Device.Elements = append(doc.Device.Elements, el)
		case *DeviceProcessData:
			doc.Device.ProcessData = append(doc.Device.ProcessData, xmlProcessData{
				ObjectID:     uint16(o.ID),
				DDI:          ddiHex(o.DDI),
				Properties:   uint8(o.Properties),
				Triggers:     uint8(o.Triggers),
				Designator:   o.Designator,
				Presentation: presentationAttr(o.Presentation),
			})
		case *DeviceProperty:
			doc.Device.Properties = append(doc.Device.Properties, xmlProperty{
				ObjectID:     uint16(o.ID),
				DDI:          ddiHex(o.DDI),
				Value:        o.Value,
				Designator:   o.Designator,
				Presentation: presentationAttr(o.Presentation),
			})
		case *DeviceValuePresentation:
			doc.Device.Presentations = append(doc.Device.Presentations, xmlValuePresention{
				ObjectID: uint16(o.ID),
				Offset:   o.Offset,
				Scale:    strconv.FormatFloat(float64(o.Scale), 'f', -1, 32),
				Decimals: o.Decimals,
				Unit:     o.Unit,
			})
		}
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("writing xml header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", xmlIndent)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding task data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flushing task data: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// XML renders the pool as task-data XML in memory.
func (p *ObjectPool) XML() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.WriteXML(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ddiHex formats a DDI as the 4-digit uppercase hex string task-data
// files use.
func ddiHex(d DDI) string {
	return fmt.Sprintf("%04X", uint16(d))
}

// presentationAttr formats a presentation reference, empty for the null
// object so the attribute is omitted.
func presentationAttr(id ObjectID) string {
	if id == NullObjectID {
		return ""
	}
	return strconv.Itoa(int(id))
}

// hexLabel renders a label as uppercase hex, the task-data encoding for
// binary labels.
func hexLabel(label []byte) string {
	return fmt.Sprintf("%X", label)
}

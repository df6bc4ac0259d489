package isobus

import (
	"bytes"
	"errors"
	"testing"
)

// ─── Pool Image ────────────────────────────────────────────────────

func TestBytesMatchesAnnexBLayout(t *testing.T) {
	p := newTestPool(t)

	got, err := p.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	var want []byte
	// Device: table id, object id, designator, software version, NAME,
	// serial, structure label (space padded to 7), localization label.
	want = append(want, 'D', 'V', 'C', 0x00, 0x00)
	want = append(want, 0x04, 'P', 'U', 'M', 'P')
	want = append(want, 0x03, '1', '.', '0')
	want = append(want, 0x02, 0x00, 0xE0, 0xAF, 0x00, 0x80, 0x0C, 0xA0) // 0xA00C8000AFE00002 LE
	want = append(want, 0x02, 'S', '1')
	want = append(want, 'S', 'T', 'R', 'U', 'C', 'T', '1')
	want = append(want, 0x65, 0x6E, 0x50, 0x00, 0x55, 0x55, 0xFF)
	// Element: table id, object id, type, designator, element number,
	// parent, child count, children.
	want = append(want, 'D', 'E', 'T', 0x01, 0x00, 0x01)
	want = append(want, 0x04, 'M', 'a', 'i', 'n')
	want = append(want, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x02, 0x00)
	// Process data: table id, object id, DDI, properties, triggers,
	// designator, presentation.
	want = append(want, 'D', 'P', 'D', 0x02, 0x00, 0x8D, 0x00, 0x01, 0x08)
	want = append(want, 0x0A, 'W', 'o', 'r', 'k', ' ', 'S', 't', 'a', 't', 'e')
	want = append(want, 0x03, 0x00)
	// Presentation: table id, object id, offset, scale (float32 bits),
	// decimals, unit.
	want = append(want, 'D', 'V', 'P', 0x03, 0x00)
	want = append(want, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x80, 0x3F, 0x00)
	want = append(want, 0x02, 'm', 'm')

	if !bytes.Equal(got, want) {
		t.Errorf("Bytes() mismatch\n got %X\nwant %X", got, want)
	}
}

func TestBytesEncodesProperty(t *testing.T) {
	p := newTestPool(t)
	if err := p.AddDeviceProperty("Offset", -5, DDIDeviceElementOffsetY, NullObjectID, 4); err != nil {
		t.Fatalf("AddDeviceProperty() error = %v", err)
	}

	got, err := p.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	// Property row: table id, object id, DDI 135, value -5 (two's
	// complement LE), designator, null presentation.
	want := []byte{
		'D', 'P', 'T', 0x04, 0x00, 0x87, 0x00,
		0xFB, 0xFF, 0xFF, 0xFF,
		0x06, 'O', 'f', 'f', 's', 'e', 't',
		0xFF, 0xFF,
	}
	if !bytes.HasSuffix(got, want) {
		t.Errorf("Bytes() does not end with property row\n got %X\nwant suffix %X", got, want)
	}
}

func TestBytesRejectsInvalidPool(t *testing.T) {
	p := NewObjectPool()
	if _, err := p.Bytes(); !errors.Is(err, ErrPoolInvalid) {
		t.Errorf("Bytes() error = %v, want %v", err, ErrPoolInvalid)
	}

	p = newTestPool(t)
	p.AddDeviceElement("Orphan", 1, 42, ElementTypeFunction, 5)
	if _, err := p.Bytes(); !errors.Is(err, ErrPoolInvalid) {
		t.Errorf("Bytes() with orphan error = %v, want %v", err, ErrPoolInvalid)
	}
}

func TestBytesIsDeterministic(t *testing.T) {
	p := newTestPool(t)

	first, err := p.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	second, err := p.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("Bytes() changed between calls on an unchanged pool")
	}
}

func TestBytesPadsShortStructureLabel(t *testing.T) {
	p := NewObjectPool()
	if err := p.AddDevice("PUMP", "1.0", "S1", "V2", testLocalization, testName, 0); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	if err := p.AddDeviceElement("Main", 0, 0, ElementTypeDevice, 1); err != nil {
		t.Fatalf("AddDeviceElement() error = %v", err)
	}

	got, err := p.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	// "V2" space padded to seven bytes, directly before the
	// localization label.
	padded := []byte{'V', '2', ' ', ' ', ' ', ' ', ' '}
	if !bytes.Contains(got, append(padded, testLocalization[:]...)) {
		t.Errorf("Bytes() missing padded structure label, image %X", got)
	}
}

package isobus

import "fmt"

// ObjectPool holds the DDOP object graph in insertion order.
//
// Objects are added node-first; parent→child references are wired
// afterwards with AddChildReference, so an object may be referenced
// before the edge exists but never before the node does. Validate checks
// the finished graph; Bytes and WriteXML refuse an invalid pool.
//
// Thread Safety: not safe for concurrent mutation. Build from one
// goroutine, then share read-only.
type ObjectPool struct {
	objects []Object
	index   map[ObjectID]int
	device  ObjectID
	hasDev  bool
}

// NewObjectPool creates an empty pool.
func NewObjectPool() *ObjectPool {
	return &ObjectPool{index: make(map[ObjectID]int)}
}

// Clear removes every object, returning the pool to its empty state.
// Builders call this first so rebuilding is idempotent.
func (p *ObjectPool) Clear() {
	p.objects = p.objects[:0]
	p.index = make(map[ObjectID]int)
	p.device = 0
	p.hasDev = false
}

// Len returns the number of objects in the pool.
func (p *ObjectPool) Len() int { return len(p.objects) }

// Objects returns the pool's objects in insertion order. The slice is
// shared; callers must treat it as read-only.
func (p *ObjectPool) Objects() []Object { return p.objects }

// Object returns the object with the given ID.
func (p *ObjectPool) Object(id ObjectID) (Object, bool) {
	i, ok := p.index[id]
	if !ok {
		return nil, false
	}
	return p.objects[i], true
}

// Device returns the pool's device object, if one was added.
func (p *ObjectPool) Device() (*Device, bool) {
	if !p.hasDev {
		return nil, false
	}
	obj, ok := p.Object(p.device)
	if !ok {
		return nil, false
	}
	dev, ok := obj.(*Device)
	return dev, ok
}

// Element returns the element with the given ID.
func (p *ObjectPool) Element(id ObjectID) (*DeviceElement, bool) {
	obj, ok := p.Object(id)
	if !ok {
		return nil, false
	}
	el, ok := obj.(*DeviceElement)
	return el, ok
}

// AddDevice adds the device root object. A pool holds exactly one.
//
// Parameters:
//   - designator: Device name shown on the task controller (<= 32 bytes)
//   - softwareVersion: Implement software version string
//   - serialNumber: Implement serial number
//   - structureLabel: Pool structure version label (<= 7 bytes)
//   - localization: 7-byte localization label (language, units, formats)
//   - clientName: 64-bit ISO NAME of the implement's control function
//   - id: Object ID for the device
//
// Returns:
//   - error: ErrInvalidObject on field violations, ErrDuplicateObjectID on
//     an occupied ID or a second device
func (p *ObjectPool) AddDevice(designator, softwareVersion, serialNumber, structureLabel string, localization [LocalizationLabelLength]byte, clientName NAME, id ObjectID) error {
	if p.hasDev {
		return fmt.Errorf("%w: pool already has device object %d", ErrDuplicateObjectID, p.device)
	}
	dev := &Device{
		ID:                id,
		Designator:        designator,
		SoftwareVersion:   softwareVersion,
		SerialNumber:      serialNumber,
		StructureLabel:    structureLabel,
		LocalizationLabel: localization,
		ClientName:        clientName,
	}
	if err := dev.validate(); err != nil {
		return err
	}
	if err := p.insert(dev); err != nil {
		return err
	}
	p.device = id
	p.hasDev = true
	return nil
}

// AddDeviceElement adds a structural element. The parent must be the
// device object (for the root element) or another element; the edge from
// parent designation is checked during Validate, not here, so elements
// may be added in any order.
func (p *ObjectPool) AddDeviceElement(designator string, elementNumber uint16, parent ObjectID, elementType DeviceElementType, id ObjectID) error {
	el := &DeviceElement{
		ID:            id,
		ElementType:   elementType,
		Designator:    designator,
		ElementNumber: elementNumber,
		Parent:        parent,
	}
	if err := el.validate(); err != nil {
		return err
	}
	return p.insert(el)
}

// AddDeviceProcessData adds a measurable/commandable quantity object.
// presentation may be NullObjectID for unscaled values.
func (p *ObjectPool) AddDeviceProcessData(designator string, ddi DDI, presentation ObjectID, properties PropertyFlags, triggers TriggerFlags, id ObjectID) error {
	pd := &DeviceProcessData{
		ID:           id,
		DDI:          ddi,
		Designator:   designator,
		Properties:   properties,
		Triggers:     triggers,
		Presentation: presentation,
	}
	if err := pd.validate(); err != nil {
		return err
	}
	return p.insert(pd)
}

// AddDeviceProperty adds a static attribute object.
func (p *ObjectPool) AddDeviceProperty(designator string, value int32, ddi DDI, presentation ObjectID, id ObjectID) error {
	prop := &DeviceProperty{
		ID:           id,
		DDI:          ddi,
		Designator:   designator,
		Value:        value,
		Presentation: presentation,
	}
	if err := prop.validate(); err != nil {
		return err
	}
	return p.insert(prop)
}

// AddDeviceValuePresentation adds a display-scaling object.
func (p *ObjectPool) AddDeviceValuePresentation(unit string, offset int32, scale float32, decimals uint8, id ObjectID) error {
	pres := &DeviceValuePresentation{
		ID:       id,
		Offset:   offset,
		Scale:    scale,
		Decimals: decimals,
		Unit:     unit,
	}
	if err := pres.validate(); err != nil {
		return err
	}
	return p.insert(pres)
}

// AddChildReference records a parent→child edge on an element. Both ends
// must already exist; the child may be any non-device object.
func (p *ObjectPool) AddChildReference(parent, child ObjectID) error {
	el, ok := p.Element(parent)
	if !ok {
		return fmt.Errorf("%w: parent element %d", ErrObjectNotFound, parent)
	}
	childObj, ok := p.Object(child)
	if !ok {
		return fmt.Errorf("%w: child %d referenced from element %d", ErrObjectNotFound, child, parent)
	}
	if childObj.TableID() == ObjectTypeDevice {
		return fmt.Errorf("%w: element %d cannot reference the device object", ErrInvalidObject, parent)
	}
	el.Children = append(el.Children, child)
	return nil
}

// insert places an object into the pool, enforcing ID uniqueness.
func (p *ObjectPool) insert(obj Object) error {
	id := obj.ObjectID()
	if id == NullObjectID {
		return fmt.Errorf("%w: object id %d is the null id", ErrInvalidObject, id)
	}
	if _, exists := p.index[id]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateObjectID, id)
	}
	p.index[id] = len(p.objects)
	p.objects = append(p.objects, obj)
	return nil
}

// Validate checks the finished graph:
//
//  1. Exactly one device object exists.
//  2. Every element's parent is the device or another element.
//  3. Every child reference resolves to an object in the pool.
//  4. Every presentation reference is NullObjectID or resolves to a
//     DeviceValuePresentation.
//  5. The element graph contains no cycles.
//
// Returns:
//   - error: The first violation found, wrapped in the matching sentinel
func (p *ObjectPool) Validate() error {
	if !p.hasDev {
		return fmt.Errorf("%w: no device object", ErrObjectNotFound)
	}

	for _, obj := range p.objects {
		switch o := obj.(type) {
		case *DeviceElement:
			if err := p.validateElement(o); err != nil {
				return err
			}
		case *DeviceProcessData:
			if err := p.validatePresentationRef(o.ID, o.Presentation); err != nil {
				return err
			}
		case *DeviceProperty:
			if err := p.validatePresentationRef(o.ID, o.Presentation); err != nil {
				return err
			}
		}
	}

	return p.validateAcyclic()
}

// validateElement checks one element's parent and child references.
func (p *ObjectPool) validateElement(el *DeviceElement) error {
	parent, ok := p.Object(el.Parent)
	if !ok {
		return fmt.Errorf("%w: element %d parent %d", ErrDanglingReference, el.ID, el.Parent)
	}
	switch parent.TableID() {
	case ObjectTypeDevice, ObjectTypeElement:
	default:
		return fmt.Errorf("%w: element %d parent %d is a %s", ErrInvalidObject, el.ID, el.Parent, parent.TableID())
	}

	for _, child := range el.Children {
		if _, ok := p.Object(child); !ok {
			return fmt.Errorf("%w: element %d child %d", ErrDanglingReference, el.ID, child)
		}
	}
	return nil
}

// validatePresentationRef checks a process-data/property presentation
// reference.
func (p *ObjectPool) validatePresentationRef(owner, presentation ObjectID) error {
	if presentation == NullObjectID {
		return nil
	}
	obj, ok := p.Object(presentation)
	if !ok {
		return fmt.Errorf("%w: object %d presentation %d", ErrDanglingReference, owner, presentation)
	}
	if obj.TableID() != ObjectTypePresentation {
		return fmt.Errorf("%w: object %d presentation %d is a %s", ErrInvalidObject, owner, presentation, obj.TableID())
	}
	return nil
}

// validateAcyclic walks element→element edges from every element and
// rejects cycles. Colors: 0 unvisited, 1 on stack, 2 done.
func (p *ObjectPool) validateAcyclic() error {
	colors := make(map[ObjectID]int, len(p.objects))

	var visit func(id ObjectID) error
	visit = func(id ObjectID) error {
		switch colors[id] {
		case 1:
			return fmt.Errorf("%w: element %d", ErrCyclicReference, id)
		case 2:
			return nil
		}
		colors[id] = 1

		el, ok := p.Element(id)
		if ok {
			for _, child := range el.Children {
				if _, isElement := p.Element(child); isElement {
					if err := visit(child); err != nil {
						return err
					}
				}
			}
		}
		colors[id] = 2
		return nil
	}

	for _, obj := range p.objects {
		el, ok := obj.(*DeviceElement)
		if !ok {
			continue
		}
		if colors[el.ID] == 0 {
			if err := visit(el.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

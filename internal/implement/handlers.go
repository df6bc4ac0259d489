package implement

import (
	"errors"
	"fmt"

	"github.com/bresilla/tractor-isobus/internal/isobus"
)

// defaultTankVolumeML is reported for the tank level until a live gauge
// source is wired in.
const defaultTankVolumeML = 3_000_000

// HandlerSources supplies the live data the default handlers read and
// write. Sections and State are required; the totals closures are
// optional and fall back to fixed values when nil.
type HandlerSources struct {
	Sections *SectionBank
	State    *SharedState

	// TotalTimeSeconds reports the accumulated effective working time.
	TotalTimeSeconds func() int32

	// TotalAreaM2 reports the accumulated worked area.
	TotalAreaM2 func() int32

	// LifetimeVolumeML reports the lifetime applied volume.
	LifetimeVolumeML func() int32

	// TankVolumeML reports the current tank level.
	TankVolumeML func() int32
}

// RegisterDefaultHandlers wires the full set of request and command
// handlers for the descriptor Build produces, one per process-data object
// keyed by its element number and DDI.
//
// Requests read the section bank, the shared state, and the totals
// sources. Commands write the setpoint sequence (condensed blocks), the
// target rate, the work-state setpoint, and the auto-mode flag (section
// and prescription control state, value != 0 meaning auto).
//
// Parameters:
//   - d: Destination dispatcher, normally freshly constructed
//   - layout: Element numbering from Build
//   - src: Live data sources, Sections and State required
//
// Returns:
//   - error: ErrInvalidConfig on missing sources or a section count
//     mismatch, ErrDuplicateHandler if the dispatcher already holds one
//     of the pairs
func RegisterDefaultHandlers(d *Dispatcher, layout *DeviceLayout, src HandlerSources) error {
	if layout == nil || src.Sections == nil || src.State == nil {
		return fmt.Errorf("%w: handler registration needs a layout, a section bank, and shared state", ErrInvalidConfig)
	}
	if src.Sections.Count() != layout.SectionCount {
		return fmt.Errorf("%w: section bank has %d sections, layout has %d", ErrInvalidConfig, src.Sections.Count(), layout.SectionCount)
	}

	if src.TotalTimeSeconds == nil {
		src.TotalTimeSeconds = zeroValue
	}
	if src.TotalAreaM2 == nil {
		src.TotalAreaM2 = zeroValue
	}
	if src.LifetimeVolumeML == nil {
		src.LifetimeVolumeML = zeroValue
	}
	if src.TankVolumeML == nil {
		src.TankVolumeML = func() int32 { return defaultTankVolumeML }
	}

	bank := src.Sections
	state := src.State

	var errs []error
	req := func(element uint16, ddi isobus.DDI, h RequestHandler) {
		if err := d.RegisterRequest(element, ddi, h); err != nil {
			errs = append(errs, err)
		}
	}
	cmd := func(element uint16, ddi isobus.DDI, h CommandHandler) {
		if err := d.RegisterCommand(element, ddi, h); err != nil {
			errs = append(errs, err)
		}
	}

	// Main element: device-wide work states, the time total, and the
	// authentication result from the positioning feed.
	req(layout.MainElement, isobus.DDIActualWorkState, func() int32 {
		return boolValue(bank.AnySectionOn())
	})
	req(layout.MainElement, isobus.DDISetpointWorkState, func() int32 {
		return boolValue(state.SetpointWorkState())
	})
	req(layout.MainElement, isobus.DDIEffectiveTotalTime, src.TotalTimeSeconds)
	req(layout.MainElement, isobus.DDIRequestDefaultProcessData, zeroValue)
	req(layout.MainElement, isobus.DDIAuthenticationResult, state.AuthResult)

	cmd(layout.MainElement, isobus.DDISetpointWorkState, func(value int32) {
		state.SetSetpointWorkState(value == 1)
	})

	// Connector element: offsets are fixed at the hitch point.
	req(layout.ConnectorElement, isobus.DDIDeviceElementOffsetX, zeroValue)
	req(layout.ConnectorElement, isobus.DDIDeviceElementOffsetY, zeroValue)

	// Boom element: geometry, control mode, the area total, and one
	// condensed work-state pair per 16-section block.
	req(layout.BoomElement, isobus.DDIActualWorkingWidth, func() int32 {
		return layout.BoomWidthMM
	})
	req(layout.BoomElement, isobus.DDISectionControlState, func() int32 {
		return boolValue(bank.AutoMode())
	})
	req(layout.BoomElement, isobus.DDITotalArea, src.TotalAreaM2)

	cmd(layout.BoomElement, isobus.DDISectionControlState, func(value int32) {
		bank.SetAutoMode(value != 0)
	})

	for block := 0; block < layout.Blocks; block++ {
		base := block * isobus.SectionsPerCondensedBlock
		inBlock := isobus.BlockSectionCount(layout.SectionCount, block)

		req(layout.BoomElement, isobus.ActualCondensedWorkStateDDI(block), func() int32 {
			return int32(isobus.EncodeCondensedWorkState(inBlock, func(i int) bool {
				return bank.ActualState(base + i)
			}))
		})
		req(layout.BoomElement, isobus.SetpointCondensedWorkStateDDI(block), func() int32 {
			return int32(isobus.EncodeCondensedWorkState(inBlock, func(i int) bool {
				return bank.SetpointState(base + i)
			}))
		})
		cmd(layout.BoomElement, isobus.SetpointCondensedWorkStateDDI(block), func(value int32) {
			for i, on := range isobus.DecodeCondensedWorkState(uint32(value), inBlock) {
				bank.SetSetpointState(base+i, on)
			}
		})
	}

	// Product element: tank volumes, the lifetime total, control states,
	// and the application rate pair.
	req(layout.ProductElement, isobus.DDIMaximumVolumeContent, func() int32 {
		return layout.TankCapacityML
	})
	req(layout.ProductElement, isobus.DDIActualVolumeContent, src.TankVolumeML)
	req(layout.ProductElement, isobus.DDILifetimeApplicationTotalVolume, src.LifetimeVolumeML)
	req(layout.ProductElement, isobus.DDIPrescriptionControlState, func() int32 {
		return boolValue(bank.AutoMode())
	})
	req(layout.ProductElement, isobus.DDIActualCulturalPractice, zeroValue)
	req(layout.ProductElement, isobus.DDISetpointVolumePerAreaRate, bank.TargetRate)
	req(layout.ProductElement, isobus.DDIActualVolumePerAreaRate, bank.ActualRate)

	cmd(layout.ProductElement, isobus.DDISetpointVolumePerAreaRate, bank.SetTargetRate)
	cmd(layout.ProductElement, isobus.DDIPrescriptionControlState, func(value int32) {
		bank.SetAutoMode(value != 0)
	})

	return errors.Join(errs...)
}

// zeroValue is the neutral response for quantities with no live source.
func zeroValue() int32 { return 0 }

// boolValue renders a boolean as the 0/1 wire convention.
func boolValue(on bool) int32 {
	if on {
		return 1
	}
	return 0
}

// Package isobus models the ISO 11783-10 Device Descriptor Object Pool
// (DDOP) and its wire encodings.
//
// A task controller learns what an implement can measure and control from
// the implement's DDOP: a directed object graph of a Device, its
// DeviceElements (boom, sections, connector, product bin), the
// DeviceProcessData each element reports or accepts, static
// DeviceProperties, and DeviceValuePresentations for display scaling.
//
// # Architecture
//
//	┌──────────────┐   objects    ┌──────────────┐   Bytes()/XML   ┌────────────────┐
//	│ DDOP builder │─────────────►│  ObjectPool  │────────────────►│ task controller│
//	│ (implement)  │              │  (this pkg)  │                 │   / FMIS file  │
//	└──────────────┘              └──────────────┘                 └────────────────┘
//
// # Key Responsibilities
//
//   - Object model for DVC/DET/DPD/DPT/DVP pool objects
//   - Object-ID range planning with overlap and capacity validation
//   - Pool consistency validation (unique IDs, no dangling references,
//     acyclic element graph)
//   - Annex B binary pool image and ISO 11783-10 task-data XML rendering
//   - The DDI dictionary for quantities this implement works with
//   - The condensed work-state codec (16 two-bit section states per
//     32-bit value)
//   - 64-bit ISO NAME packing for the device's client NAME
//
// # Object IDs
//
// Every object carries a pool-unique 16-bit object ID in [0, 65534];
// 65535 is the null ID used for "no reference". IDs are planned up front
// with an IDPlan so that per-section attributes get contiguous ranges:
//
//	plan := isobus.NewIDPlan()
//	sections, err := plan.Reserve("sections", 256)
//	if err != nil {
//	    return err
//	}
//	first := sections.At(0)
//
// # Thread Safety
//
// ObjectPool is not safe for concurrent mutation; build the pool from a
// single goroutine, then treat it as read-only. The condensed codec and
// all encode/decode helpers are pure functions and safe for concurrent
// use.
//
// # References
//
//   - ISO 11783-10: Task controller and management information system
//     data interchange
//   - ISO 11783-11: Data dictionary (DDI database)
package isobus

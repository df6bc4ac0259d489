// Package totals accumulates the implement's lifetime counters: effective
// working time, worked area, and applied product volume, plus the current
// tank level the volume drains from.
//
// The implement has no ground-speed sensor, so area and volume are
// integrated from the section model at a fixed cadence using a nominal
// working speed: worked width is the section width times the number of
// sections effectively on, area is width times speed, and volume is the
// actual application rate over that area. Time accumulates whenever at
// least one section is on.
//
// Components:
//   - Accumulator: samples the section bank on a ticker, integrates the
//     counters, and periodically persists them
//   - Repository / SQLiteRepository: single-row store so the counters
//     survive restarts
//
// The Accumulator's getters return int32 values in the units the process
// data dictionary uses (seconds, square metres, millilitres) and plug
// straight into the request handler sources.
package totals

package implement

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bresilla/tractor-isobus/internal/isobus"
)

// RequestHandler produces the current value of one quantity. Handlers run
// on the task controller client's callback goroutine and must not block,
// sleep, or perform I/O.
type RequestHandler func() int32

// CommandHandler applies a value commanded by the task controller. Same
// execution rules as RequestHandler.
type CommandHandler func(value int32)

// Logger matches the logging subset this package emits. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
}

// dispatchKey addresses one process-data quantity.
type dispatchKey struct {
	element uint16
	ddi     isobus.DDI
}

// Target identifies a registered quantity, for callers that enumerate
// what the implement reports.
type Target struct {
	Element uint16
	DDI     isobus.DDI
}

// DispatcherStats is a point-in-time snapshot of dispatch counters.
type DispatcherStats struct {
	RequestsTotal uint64
	RequestMisses uint64
	CommandsTotal uint64
	CommandMisses uint64
}

// Dispatcher routes the task controller's value requests and value
// commands to handlers keyed by (element number, DDI).
//
// Register every handler at startup, before the callbacks are handed to
// the client; the handler maps are read-only afterwards so lookups take
// no locks. Unknown quantities are not errors: a request for an
// unregistered pair returns 0 and a command for one is dropped, matching
// permissive implement behavior in the field. Both show up in Stats.
type Dispatcher struct {
	requests map[dispatchKey]RequestHandler
	commands map[dispatchKey]CommandHandler

	logger   Logger
	loggerMu sync.RWMutex

	requestsTotal atomic.Uint64
	requestMisses atomic.Uint64
	commandsTotal atomic.Uint64
	commandMisses atomic.Uint64
}

// NewDispatcher creates a dispatcher with no handlers.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		requests: make(map[dispatchKey]RequestHandler),
		commands: make(map[dispatchKey]CommandHandler),
	}
}

// RegisterRequest installs the value producer for one quantity.
//
// Returns:
//   - error: ErrDuplicateHandler if the pair already has a producer,
//     ErrInvalidConfig on a nil handler
func (d *Dispatcher) RegisterRequest(element uint16, ddi isobus.DDI, h RequestHandler) error {
	if h == nil {
		return fmt.Errorf("%w: nil request handler for element %d ddi %v", ErrInvalidConfig, element, ddi)
	}
	key := dispatchKey{element: element, ddi: ddi}
	if _, exists := d.requests[key]; exists {
		return fmt.Errorf("%w: request element %d ddi %v", ErrDuplicateHandler, element, ddi)
	}
	d.requests[key] = h
	return nil
}

// RegisterCommand installs the value consumer for one quantity.
//
// Returns:
//   - error: ErrDuplicateHandler if the pair already has a consumer,
//     ErrInvalidConfig on a nil handler
func (d *Dispatcher) RegisterCommand(element uint16, ddi isobus.DDI, h CommandHandler) error {
	if h == nil {
		return fmt.Errorf("%w: nil command handler for element %d ddi %v", ErrInvalidConfig, element, ddi)
	}
	key := dispatchKey{element: element, ddi: ddi}
	if _, exists := d.commands[key]; exists {
		return fmt.Errorf("%w: command element %d ddi %v", ErrDuplicateHandler, element, ddi)
	}
	d.commands[key] = h
	return nil
}

// RequestValue returns the current value of a quantity. Unregistered
// pairs return 0; the request never fails.
func (d *Dispatcher) RequestValue(element uint16, ddi isobus.DDI) int32 {
	d.requestsTotal.Add(1)
	h, ok := d.requests[dispatchKey{element: element, ddi: ddi}]
	if !ok {
		d.requestMisses.Add(1)
		d.logDebug("unhandled value request", "element", element, "ddi", ddi.String())
		return 0
	}
	return h()
}

// CommandValue applies a commanded value. Commands for unregistered pairs
// are accepted and dropped.
func (d *Dispatcher) CommandValue(element uint16, ddi isobus.DDI, value int32) {
	d.commandsTotal.Add(1)
	h, ok := d.commands[dispatchKey{element: element, ddi: ddi}]
	if !ok {
		d.commandMisses.Add(1)
		d.logDebug("unhandled value command", "element", element, "ddi", ddi.String(), "value", value)
		return
	}
	h(value)
}

// RequestTargets returns every registered request pair ordered by element
// number, then DDI. Trigger schedulers iterate this to push unsolicited
// reports.
func (d *Dispatcher) RequestTargets() []Target {
	targets := make([]Target, 0, len(d.requests))
	for key := range d.requests {
		targets = append(targets, Target{Element: key.element, DDI: key.ddi})
	}
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].Element != targets[j].Element {
			return targets[i].Element < targets[j].Element
		}
		return targets[i].DDI < targets[j].DDI
	})
	return targets
}

// HandlesRequest reports whether a value producer is registered for the
// pair.
func (d *Dispatcher) HandlesRequest(element uint16, ddi isobus.DDI) bool {
	_, ok := d.requests[dispatchKey{element: element, ddi: ddi}]
	return ok
}

// Stats returns a snapshot of the dispatch counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		RequestsTotal: d.requestsTotal.Load(),
		RequestMisses: d.requestMisses.Load(),
		CommandsTotal: d.commandsTotal.Load(),
		CommandMisses: d.commandMisses.Load(),
	}
}

// SetLogger installs a logger for unhandled-pair diagnostics. Safe to
// call at any time; nil disables logging.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.loggerMu.Lock()
	d.logger = logger
	d.loggerMu.Unlock()
}

func (d *Dispatcher) logDebug(msg string, args ...any) {
	d.loggerMu.RLock()
	logger := d.logger
	d.loggerMu.RUnlock()
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

package tc

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bresilla/tractor-isobus/internal/implement"
	"github.com/bresilla/tractor-isobus/internal/isobus"
)

// Reporting cadences applied when SchedulerConfig leaves them zero.
const (
	// DefaultReportInterval is the cadence for time-interval and total
	// quantities.
	DefaultReportInterval = 2 * time.Second

	// SensorReportInterval is the slower cadence for tank-sensor
	// readings. Wire it per DDI through SchedulerConfig.Intervals.
	SensorReportInterval = 5500 * time.Millisecond

	// defaultResolution is the scheduler's sampling tick. Change-driven
	// quantities are polled at this rate.
	defaultResolution = 500 * time.Millisecond
)

// SchedulerConfig tunes the reporting plan derived from the descriptor.
type SchedulerConfig struct {
	// DefaultInterval is the periodic reporting cadence.
	// Default: 2 seconds.
	DefaultInterval time.Duration

	// Resolution is the sampling tick for change detection and due-time
	// checks. Default: 500 milliseconds.
	Resolution time.Duration

	// Intervals overrides the periodic cadence per DDI.
	Intervals map[isobus.DDI]time.Duration

	// Thresholds sets the minimum absolute change per DDI before a
	// change-driven report fires. Unlisted DDIs report on any change.
	Thresholds map[isobus.DDI]int32
}

// applyDefaults fills zero fields in place.
func (c *SchedulerConfig) applyDefaults() {
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = DefaultReportInterval
	}
	if c.Resolution <= 0 {
		c.Resolution = defaultResolution
	}
}

// ValueReader produces current process-data values.
// This is satisfied by *implement.Dispatcher.
type ValueReader interface {
	RequestValue(element uint16, ddi isobus.DDI) int32
}

// Ensure the dispatcher satisfies ValueReader.
var _ ValueReader = (*implement.Dispatcher)(nil)

// PublishFunc delivers one sampled value. The scheduler calls it from
// its own goroutine; implementations must not block.
type PublishFunc func(target implement.Target, value int32)

// scheduleEntry is one quantity's reporting plan.
type scheduleEntry struct {
	target implement.Target

	// interval is the periodic reporting cadence; 0 means the entry is
	// change-driven only.
	interval time.Duration

	// onChange reports the quantity whenever the sampled value moves by
	// at least threshold since the last report.
	onChange  bool
	threshold int32

	nextDue       time.Time
	lastPublished int32
	hasPublished  bool
}

// shouldReportChange reports whether a change-driven entry must publish
// the sampled value. The first sample always publishes.
func (e *scheduleEntry) shouldReportChange(value int32) bool {
	if !e.hasPublished {
		return true
	}
	if value == e.lastPublished {
		return false
	}
	delta := int64(value) - int64(e.lastPublished)
	if delta < 0 {
		delta = -delta
	}
	return delta >= int64(e.threshold)
}

// SchedulerStats contains reporting counters for the diagnostics API.
type SchedulerStats struct {
	Entries       int
	TimedReports  uint64
	ChangeReports uint64
}

// Scheduler drives unsolicited process-data reports. It stands in for
// the measurement commands a wire-level task controller would send:
// instead of waiting for a TC server to subscribe, the plan is derived
// from the descriptor itself. Quantities flagged member-of-default-set,
// plus totals, are reported; time-interval and total trigger methods
// yield periodic reports, on-change and threshold methods yield
// change-driven ones.
//
// Entries are touched only by the scheduler goroutine; Stats and
// Targets are safe to call from anywhere.
type Scheduler struct {
	cfg     SchedulerConfig
	entries []scheduleEntry
	reader  ValueReader
	publish PublishFunc

	timedReports  atomic.Uint64
	changeReports atomic.Uint64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewScheduler derives the reporting plan from a built descriptor pool.
//
// Parameters:
//   - cfg: Cadence and threshold tuning (zero fields take defaults)
//   - pool: The validated device descriptor to derive the plan from
//   - reader: Source of current values, normally the dispatcher
//   - publish: Delivery callback for every report
//
// Returns:
//   - *Scheduler: Ready to start (call Start to begin reporting)
//   - error: ErrInvalidOptions when a dependency is missing
func NewScheduler(cfg SchedulerConfig, pool *isobus.ObjectPool, reader ValueReader, publish PublishFunc) (*Scheduler, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: descriptor pool is required", ErrInvalidOptions)
	}
	if reader == nil {
		return nil, fmt.Errorf("%w: value reader is required", ErrInvalidOptions)
	}
	if publish == nil {
		return nil, fmt.Errorf("%w: publish callback is required", ErrInvalidOptions)
	}

	cfg.applyDefaults()

	return &Scheduler{
		cfg:     cfg,
		entries: buildSchedule(pool, cfg),
		reader:  reader,
		publish: publish,
		done:    make(chan struct{}),
	}, nil
}

// buildSchedule walks element children and plans every reportable
// process-data quantity, ordered by element number then DDI.
func buildSchedule(pool *isobus.ObjectPool, cfg SchedulerConfig) []scheduleEntry {
	var entries []scheduleEntry

	for _, obj := range pool.Objects() {
		el, ok := obj.(*isobus.DeviceElement)
		if !ok {
			continue
		}
		for _, childID := range el.Children {
			child, ok := pool.Object(childID)
			if !ok {
				continue
			}
			pd, ok := child.(*isobus.DeviceProcessData)
			if !ok {
				continue
			}
			if entry, ok := planEntry(el.ElementNumber, pd, cfg); ok {
				entries = append(entries, entry)
			}
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].target.Element != entries[j].target.Element {
			return entries[i].target.Element < entries[j].target.Element
		}
		return entries[i].target.DDI < entries[j].target.DDI
	})
	return entries
}

// planEntry derives one quantity's plan from its descriptor flags.
// Default-set members and totals are reported unsolicited; everything
// else only answers direct requests.
func planEntry(element uint16, pd *isobus.DeviceProcessData, cfg SchedulerConfig) (scheduleEntry, bool) {
	reported := pd.Properties&isobus.PropertyMemberOfDefaultSet != 0 ||
		pd.Triggers&isobus.TriggerTotal != 0
	if !reported {
		return scheduleEntry{}, false
	}

	entry := scheduleEntry{target: implement.Target{Element: element, DDI: pd.DDI}}

	if pd.Triggers&(isobus.TriggerTimeInterval|isobus.TriggerTotal) != 0 {
		entry.interval = cfg.DefaultInterval
		if override, ok := cfg.Intervals[pd.DDI]; ok && override > 0 {
			entry.interval = override
		}
	}
	if pd.Triggers&(isobus.TriggerOnChange|isobus.TriggerThresholdLimits) != 0 {
		entry.onChange = true
		entry.threshold = cfg.Thresholds[pd.DDI]
	}

	if entry.interval == 0 && !entry.onChange {
		return scheduleEntry{}, false
	}
	return entry, true
}

// Start begins scheduled reporting. The first tick samples and reports
// every entry, seeding the value cache and any retained topics.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop halts reporting and waits for the loop to exit. Safe to call
// multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

// Targets returns every scheduled quantity ordered by element number,
// then DDI.
func (s *Scheduler) Targets() []implement.Target {
	targets := make([]implement.Target, len(s.entries))
	for i, entry := range s.entries {
		targets[i] = entry.target
	}
	return targets
}

// Stats returns a snapshot of the reporting counters.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Entries:       len(s.entries),
		TimedReports:  s.timedReports.Load(),
		ChangeReports: s.changeReports.Load(),
	}
}

// loop runs the sampling ticks.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Resolution)
	defer ticker.Stop()

	s.tick(time.Now())

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.tick(time.Now())
		}
	}
}

// tick samples due and change-driven entries once. Periodic reports win
// over change reports when both apply, and reset the change baseline.
func (s *Scheduler) tick(now time.Time) {
	for i := range s.entries {
		entry := &s.entries[i]

		timedDue := entry.interval > 0 && !now.Before(entry.nextDue)
		if !timedDue && !entry.onChange {
			continue
		}

		value := s.reader.RequestValue(entry.target.Element, entry.target.DDI)

		switch {
		case timedDue:
			s.report(entry, value, &s.timedReports)
			entry.nextDue = now.Add(entry.interval)
		case entry.shouldReportChange(value):
			s.report(entry, value, &s.changeReports)
		}
	}
}

// report publishes one sample and advances the entry's baseline.
func (s *Scheduler) report(entry *scheduleEntry, value int32, counter *atomic.Uint64) {
	s.publish(entry.target, value)
	entry.lastPublished = value
	entry.hasPublished = true
	counter.Add(1)
}

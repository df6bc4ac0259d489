package totals

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bresilla/tractor-isobus/internal/implement"
)

// Sampling defaults and bounds.
const (
	// DefaultSampleInterval is how often the section model is sampled.
	DefaultSampleInterval = time.Second

	// DefaultSaveInterval is how often dirty counters are persisted.
	DefaultSaveInterval = 15 * time.Second

	// DefaultNominalSpeedMMs is the assumed forward speed in mm/s when
	// no ground-speed source exists (2 m/s, a typical spraying pace).
	DefaultNominalSpeedMMs = 2000

	// DefaultInitialTankML is the tank level on the very first run,
	// before anything has been persisted.
	DefaultInitialTankML = 3_000_000

	// maxSampleGap caps the time credited to one sample. A stalled
	// scheduler (suspend, debugger) must not book phantom work.
	maxSampleGap = 10 * time.Second

	// saveTimeout bounds each persistence call.
	saveTimeout = 5 * time.Second
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config tunes the accumulator. Zero fields select the defaults above.
type Config struct {
	// SampleInterval is the integration cadence.
	SampleInterval time.Duration

	// SaveInterval is the persistence cadence.
	SaveInterval time.Duration

	// NominalSpeedMMs is the assumed forward speed in mm per second.
	NominalSpeedMMs int32

	// InitialTankML seeds the tank level when no state was persisted.
	InitialTankML int32
}

// applyDefaults fills zero fields in place.
func (c *Config) applyDefaults() {
	if c.SampleInterval <= 0 {
		c.SampleInterval = DefaultSampleInterval
	}
	if c.SaveInterval <= 0 {
		c.SaveInterval = DefaultSaveInterval
	}
	if c.NominalSpeedMMs <= 0 {
		c.NominalSpeedMMs = DefaultNominalSpeedMMs
	}
	if c.InitialTankML <= 0 {
		c.InitialTankML = DefaultInitialTankML
	}
}

// Stats is a point-in-time picture of the accumulator's activity.
type Stats struct {
	Samples  uint64
	Saves    uint64
	LastSave time.Time
}

// Accumulator integrates the lifetime counters from the section bank at
// a fixed cadence and persists them through a Repository.
//
// Thread Safety: the counters are guarded by a mutex; the sampling loop,
// the request handlers reading the getters, and the API all access them
// concurrently.
type Accumulator struct {
	cfg    Config
	bank   *implement.SectionBank
	layout *implement.DeviceLayout
	repo   Repository
	logger Logger

	mu       sync.Mutex
	state    State
	lastTick time.Time
	dirty    bool
	samples  uint64
	saves    uint64
	lastSave time.Time

	started  atomic.Bool
	stopped  atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates an accumulator over the given section bank and device
// layout. The repository may be nil, in which case the counters live
// only for the process lifetime. Call Load before Start to pick up
// persisted state.
func New(cfg Config, bank *implement.SectionBank, layout *implement.DeviceLayout, repo Repository, logger Logger) (*Accumulator, error) {
	if bank == nil || layout == nil {
		return nil, ErrInvalidConfig
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = noopLogger{}
	}
	return &Accumulator{
		cfg:    cfg,
		bank:   bank,
		layout: layout,
		repo:   repo,
		logger: logger,
		state:  State{TankVolumeML: float64(cfg.InitialTankML)},
		done:   make(chan struct{}),
	}, nil
}

// Load replaces the counters with the persisted state, if any. Without a
// repository, or on the first ever run, the counters keep their initial
// values. Call before Start.
func (a *Accumulator) Load(ctx context.Context) error {
	if a.repo == nil {
		return nil
	}
	s, found, err := a.repo.Load(ctx)
	if err != nil {
		return err
	}
	if !found {
		a.logger.Info("no persisted totals, starting fresh",
			"tank_ml", a.cfg.InitialTankML)
		return nil
	}

	a.mu.Lock()
	a.state = s
	a.mu.Unlock()

	a.logger.Info("totals loaded",
		"time_s", int64(s.EffectiveTimeS),
		"area_m2", int64(s.TotalAreaM2),
		"volume_ml", int64(s.LifetimeVolumeML),
		"tank_ml", int64(s.TankVolumeML))
	return nil
}

// Start launches the sampling loop. Returns ErrRunning on a second call.
func (a *Accumulator) Start(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrRunning
	}

	a.mu.Lock()
	a.lastTick = time.Now().UTC()
	a.mu.Unlock()

	a.wg.Add(1)
	go a.run(ctx)

	a.logger.Info("totals accumulator started",
		"sample_interval", a.cfg.SampleInterval,
		"save_interval", a.cfg.SaveInterval,
		"nominal_speed_mms", a.cfg.NominalSpeedMMs)
	return nil
}

// Stop halts the loop and persists the final counters. Safe to call more
// than once.
func (a *Accumulator) Stop() {
	if !a.started.Load() || !a.stopped.CompareAndSwap(false, true) {
		return
	}
	a.stopOnce.Do(func() {
		close(a.done)
	})
	a.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	a.saveNow(ctx)

	a.logger.Info("totals accumulator stopped")
}

// run is the sampling loop. It exits on context cancellation or Stop.
func (a *Accumulator) run(ctx context.Context) {
	defer a.wg.Done()

	sample := time.NewTicker(a.cfg.SampleInterval)
	defer sample.Stop()
	save := time.NewTicker(a.cfg.SaveInterval)
	defer save.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case now := <-sample.C:
			a.sample(now.UTC())
		case <-save.C:
			sctx, cancel := context.WithTimeout(ctx, saveTimeout)
			a.saveNow(sctx)
			cancel()
		}
	}
}

// sample integrates the interval since the previous sample. Time counts
// while at least one section is on; area follows the width of the
// sections that are on at the nominal speed; volume follows the actual
// rate over that area and drains the tank. No product flows from an
// empty tank.
func (a *Accumulator) sample(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	dt := now.Sub(a.lastTick)
	a.lastTick = now
	if dt <= 0 {
		return
	}
	if dt > maxSampleGap {
		dt = maxSampleGap
	}
	a.samples++

	on := a.bank.ActualSectionsOn()
	if on == 0 {
		return
	}

	seconds := dt.Seconds()
	widthM := float64(on) * float64(a.layout.SectionWidthMM) / 1000.0
	speedMps := float64(a.cfg.NominalSpeedMMs) / 1000.0
	areaM2 := widthM * speedMps * seconds

	// Rate is mm³/m²; 1000 mm³ to the millilitre.
	appliedML := float64(a.bank.ActualRate()) * areaM2 / 1000.0
	if appliedML > a.state.TankVolumeML {
		appliedML = a.state.TankVolumeML
	}

	a.state.EffectiveTimeS += seconds
	a.state.TotalAreaM2 += areaM2
	a.state.LifetimeVolumeML += appliedML
	a.state.TankVolumeML -= appliedML
	a.dirty = true
}

// saveNow persists the counters if they changed since the last save.
// A failed save leaves the counters marked dirty for the next attempt.
func (a *Accumulator) saveNow(ctx context.Context) {
	if a.repo == nil {
		return
	}

	a.mu.Lock()
	if !a.dirty {
		a.mu.Unlock()
		return
	}
	snapshot := a.state
	a.dirty = false
	a.mu.Unlock()

	if err := a.repo.Save(ctx, snapshot); err != nil {
		a.logger.Error("saving totals failed", "error", err)
		a.mu.Lock()
		a.dirty = true
		a.mu.Unlock()
		return
	}

	a.mu.Lock()
	a.saves++
	a.lastSave = time.Now().UTC()
	a.mu.Unlock()
}

// Refill sets the tank back to the layout's capacity and returns the new
// level.
func (a *Accumulator) Refill() int32 {
	a.mu.Lock()
	a.state.TankVolumeML = float64(a.layout.TankCapacityML)
	a.dirty = true
	level := a.state.TankVolumeML
	a.mu.Unlock()

	a.logger.Info("tank refilled", "tank_ml", int64(level))
	return toInt32(level)
}

// Snapshot returns a copy of the current counters.
func (a *Accumulator) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.state
	s.UpdatedAt = a.lastSave
	return s
}

// Stats returns sampling and persistence counters.
func (a *Accumulator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Samples:  a.samples,
		Saves:    a.saves,
		LastSave: a.lastSave,
	}
}

// TimeSeconds returns the effective working time in whole seconds.
func (a *Accumulator) TimeSeconds() int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return toInt32(a.state.EffectiveTimeS)
}

// AreaM2 returns the worked area in whole square metres.
func (a *Accumulator) AreaM2() int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return toInt32(a.state.TotalAreaM2)
}

// LifetimeVolumeML returns the applied volume in whole millilitres.
func (a *Accumulator) LifetimeVolumeML() int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return toInt32(a.state.LifetimeVolumeML)
}

// TankVolumeML returns the tank level in whole millilitres.
func (a *Accumulator) TankVolumeML() int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return toInt32(a.state.TankVolumeML)
}

// toInt32 rounds a non-negative counter down to the int32 wire range.
func toInt32(v float64) int32 {
	if v <= 0 {
		return 0
	}
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(v)
}

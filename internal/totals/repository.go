package totals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// State is one snapshot of the lifetime counters. The float fields carry
// sub-second and sub-unit fractions between samples; the wire-facing
// getters on the Accumulator round them to the dictionary units.
type State struct {
	// EffectiveTimeS is the accumulated working time in seconds.
	EffectiveTimeS float64 `json:"effective_time_s"`

	// TotalAreaM2 is the accumulated worked area in square metres.
	TotalAreaM2 float64 `json:"total_area_m2"`

	// LifetimeVolumeML is the total applied product volume in millilitres.
	LifetimeVolumeML float64 `json:"lifetime_volume_ml"`

	// TankVolumeML is the current tank level in millilitres.
	TankVolumeML float64 `json:"tank_volume_ml"`

	// UpdatedAt is when this state was last persisted.
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository persists the lifetime counters across restarts.
// The SQLite implementation below is the production store; tests use
// in-memory databases or fakes.
type Repository interface {
	// Load returns the persisted state. The boolean is false when no
	// state has ever been saved.
	Load(ctx context.Context) (State, bool, error)

	// Save writes the state, replacing any previous one.
	Save(ctx context.Context, s State) error
}

// SQLiteRepository implements Repository on the lifetime_totals table.
// The table holds exactly one row; Save upserts it.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Load retrieves the single totals row.
func (r *SQLiteRepository) Load(ctx context.Context) (State, bool, error) {
	query := `
		SELECT effective_time_s, total_area_m2, lifetime_volume_ml, tank_volume_ml, updated_at
		FROM lifetime_totals
		WHERE id = 1`

	var s State
	var updatedAt string
	err := r.db.QueryRowContext(ctx, query).Scan(
		&s.EffectiveTimeS,
		&s.TotalAreaM2,
		&s.LifetimeVolumeML,
		&s.TankVolumeML,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("querying totals: %w", err)
	}

	// Parse timestamp - format is controlled by Save
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled
	return s, true, nil
}

// Save upserts the single totals row and stamps it with the current time.
func (r *SQLiteRepository) Save(ctx context.Context, s State) error {
	query := `
		INSERT INTO lifetime_totals (id, effective_time_s, total_area_m2, lifetime_volume_ml, tank_volume_ml, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			effective_time_s = excluded.effective_time_s,
			total_area_m2 = excluded.total_area_m2,
			lifetime_volume_ml = excluded.lifetime_volume_ml,
			tank_volume_ml = excluded.tank_volume_ml,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		s.EffectiveTimeS,
		s.TotalAreaM2,
		s.LifetimeVolumeML,
		s.TankVolumeML,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving totals: %w", err)
	}
	return nil
}

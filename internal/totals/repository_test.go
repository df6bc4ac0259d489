package totals

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the totals schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}

	// Create the lifetime_totals table (matches migration)
	schema := `
		CREATE TABLE lifetime_totals (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			effective_time_s REAL NOT NULL DEFAULT 0,
			total_area_m2 REAL NOT NULL DEFAULT 0,
			lifetime_volume_ml REAL NOT NULL DEFAULT 0,
			tank_volume_ml REAL NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		) STRICT;`

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteRepositoryLoadEmpty(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	s, found, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if found {
		t.Error("Load() on empty table reported a row")
	}
	if s != (State{}) {
		t.Errorf("Load() state = %+v, want zero", s)
	}
}

func TestSQLiteRepositorySaveLoad(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	want := State{
		EffectiveTimeS:   1234.5,
		TotalAreaM2:      8200.25,
		LifetimeVolumeML: 1_500_000.5,
		TankVolumeML:     2_500_000,
	}
	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, found, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !found {
		t.Fatal("Load() missed the saved row")
	}
	if got.EffectiveTimeS != want.EffectiveTimeS {
		t.Errorf("EffectiveTimeS = %v, want %v", got.EffectiveTimeS, want.EffectiveTimeS)
	}
	if got.TotalAreaM2 != want.TotalAreaM2 {
		t.Errorf("TotalAreaM2 = %v, want %v", got.TotalAreaM2, want.TotalAreaM2)
	}
	if got.LifetimeVolumeML != want.LifetimeVolumeML {
		t.Errorf("LifetimeVolumeML = %v, want %v", got.LifetimeVolumeML, want.LifetimeVolumeML)
	}
	if got.TankVolumeML != want.TankVolumeML {
		t.Errorf("TankVolumeML = %v, want %v", got.TankVolumeML, want.TankVolumeML)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
	if age := time.Since(got.UpdatedAt); age < 0 || age > time.Minute {
		t.Errorf("UpdatedAt %v implausibly far from now", got.UpdatedAt)
	}
}

func TestSQLiteRepositorySaveUpserts(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Save(ctx, State{EffectiveTimeS: 10}); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	if err := repo.Save(ctx, State{EffectiveTimeS: 20, TotalAreaM2: 366}); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, _, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.EffectiveTimeS != 20 {
		t.Errorf("EffectiveTimeS = %v, want 20", got.EffectiveTimeS)
	}
	if got.TotalAreaM2 != 366 {
		t.Errorf("TotalAreaM2 = %v, want 366", got.TotalAreaM2)
	}

	var count int
	if err := repo.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lifetime_totals").Scan(&count); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}
}

func TestAccumulatorWithSQLiteRepository(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	acc, _ := newTestAccumulator(t, Config{}, repo)
	ctx := context.Background()

	if err := acc.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	step(acc, time.Now().UTC())
	acc.saveNow(ctx)

	// A second accumulator over the same store resumes the counters.
	resumed, _ := newTestAccumulator(t, Config{}, repo)
	if err := resumed.Load(ctx); err != nil {
		t.Fatalf("resumed Load() error = %v", err)
	}
	if got := resumed.TimeSeconds(); got != 1 {
		t.Errorf("resumed TimeSeconds() = %d, want 1", got)
	}
	if got := resumed.LifetimeVolumeML(); got != 1828 {
		t.Errorf("resumed LifetimeVolumeML() = %d, want 1828", got)
	}
}

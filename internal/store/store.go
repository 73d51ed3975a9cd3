package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/awaistahir/smart-run-planner/internal/engine"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultHousehold is the only household the binaries manage today.
const DefaultHousehold = "default"

// ErrNotFound is returned when a tariff or appliance does not exist.
var ErrNotFound = errors.New("not found")

// Store handles persistent storage using SQLite
type Store struct {
	db *sql.DB
}

// Tariff is the stored price curve and power budget of a household
type Tariff struct {
	Prices    []float64 `json:"prices"`
	BudgetKW  float64   `json:"budget_kw"`
	Region    string    `json:"region,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Appliance is a stored appliance request
type Appliance struct {
	ID string `json:"id"`
	engine.ApplianceRequest
	Position int `json:"position"`
}

// NewStore creates a new store and initializes the database
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// initialize creates the database schema
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tariffs (
		household_id TEXT PRIMARY KEY,
		prices TEXT NOT NULL,
		budget_kw REAL NOT NULL,
		region TEXT DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS appliances (
		id TEXT PRIMARY KEY,
		household_id TEXT NOT NULL,
		name TEXT NOT NULL,
		power_kw REAL NOT NULL,
		runtime_hours INTEGER NOT NULL,
		window_start INTEGER NOT NULL,
		window_end INTEGER NOT NULL,
		fixed INTEGER DEFAULT 0,
		priority INTEGER DEFAULT 0,
		position INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT,
		UNIQUE(household_id, name)
	);

	CREATE INDEX IF NOT EXISTS idx_appliances_household ON appliances(household_id, position);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveTariff validates and saves the household tariff
func (s *Store) SaveTariff(householdID string, t *Tariff) error {
	if _, err := engine.NewPriceCurve(t.Prices); err != nil {
		return err
	}
	if _, err := engine.NewPowerBudget(t.BudgetKW); err != nil {
		return err
	}
	pricesJSON, err := json.Marshal(t.Prices)
	if err != nil {
		return fmt.Errorf("encoding prices: %w", err)
	}

	t.UpdatedAt = time.Now().UTC()
	query := `INSERT OR REPLACE INTO tariffs (household_id, prices, budget_kw, region, updated_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err = s.db.Exec(query, householdID, string(pricesJSON), t.BudgetKW, t.Region, t.UpdatedAt.Format(time.RFC3339))
	return err
}

// GetTariff retrieves the household tariff
func (s *Store) GetTariff(householdID string) (*Tariff, error) {
	query := `SELECT prices, budget_kw, region, updated_at FROM tariffs WHERE household_id = ?`

	var t Tariff
	var pricesJSON, updatedAt string
	err := s.db.QueryRow(query, householdID).Scan(&pricesJSON, &t.BudgetKW, &t.Region, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tariff for %s: %w", householdID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pricesJSON), &t.Prices); err != nil {
		return nil, fmt.Errorf("decoding prices: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("decoding updated_at: %w", err)
	}
	return &t, nil
}

// SaveAppliance validates and saves an appliance. New appliances get an ID and are
// placed after every existing one; updates keep their position.
func (s *Store) SaveAppliance(a *Appliance, householdID string) error {
	if err := a.Validate(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	var position int
	var owner string
	err = tx.QueryRow(`SELECT household_id, position FROM appliances WHERE id = ?`, a.ID).Scan(&owner, &position)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := tx.QueryRow(`SELECT COALESCE(MAX(position), -1) + 1 FROM appliances WHERE household_id = ?`,
			householdID).Scan(&position); err != nil {
			return err
		}
	case err != nil:
		return err
	case owner != householdID:
		return fmt.Errorf("appliance %s: %w", a.ID, ErrNotFound)
	}

	var clash string
	err = tx.QueryRow(`SELECT id FROM appliances WHERE household_id = ? AND name = ? AND id != ?`,
		householdID, a.Name, a.ID).Scan(&clash)
	if err == nil {
		return &engine.ValidationError{Field: "name", Reason: fmt.Sprintf("duplicate appliance %q", a.Name)}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	query := `INSERT OR REPLACE INTO appliances
		(id, household_id, name, power_kw, runtime_hours, window_start, window_end, fixed, priority, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := tx.Exec(query, a.ID, householdID, a.Name, a.PowerKW, a.Runtime, a.Window.Start, a.Window.End,
		boolToInt(a.Fixed), a.Priority, position, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	a.Position = position
	return nil
}

const applianceColumns = `id, name, power_kw, runtime_hours, window_start, window_end, fixed, priority, position`

type scanner interface {
	Scan(dest ...any) error
}

func scanAppliance(row scanner) (*Appliance, error) {
	var a Appliance
	var fixedInt int
	if err := row.Scan(&a.ID, &a.Name, &a.PowerKW, &a.Runtime, &a.Window.Start, &a.Window.End,
		&fixedInt, &a.Priority, &a.Position); err != nil {
		return nil, err
	}
	a.Fixed = fixedInt == 1
	return &a, nil
}

// GetAppliances retrieves all appliances for a household in registration order
func (s *Store) GetAppliances(householdID string) ([]*Appliance, error) {
	query := `SELECT ` + applianceColumns + ` FROM appliances WHERE household_id = ? ORDER BY position`

	rows, err := s.db.Query(query, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appliances := []*Appliance{}
	for rows.Next() {
		a, err := scanAppliance(rows)
		if err != nil {
			return nil, err
		}
		appliances = append(appliances, a)
	}
	return appliances, rows.Err()
}

// GetAppliance retrieves a single appliance of a household by ID
func (s *Store) GetAppliance(id, householdID string) (*Appliance, error) {
	query := `SELECT ` + applianceColumns + ` FROM appliances WHERE id = ? AND household_id = ?`

	a, err := scanAppliance(s.db.QueryRow(query, id, householdID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("appliance %s: %w", id, ErrNotFound)
	}
	return a, err
}

// DeleteAppliance deletes an appliance of a household by ID
func (s *Store) DeleteAppliance(id, householdID string) error {
	res, err := s.db.Exec(`DELETE FROM appliances WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("appliance %s: %w", id, ErrNotFound)
	}
	return nil
}

// LoadPlanner builds a planner from the stored tariff and appliances of a household.
func (s *Store) LoadPlanner(householdID string, opts ...engine.Option) (*engine.Planner, error) {
	t, err := s.GetTariff(householdID)
	if err != nil {
		return nil, err
	}
	appliances, err := s.GetAppliances(householdID)
	if err != nil {
		return nil, err
	}

	p := engine.NewPlanner(opts...)
	if err := p.Register(t.Prices, t.BudgetKW); err != nil {
		return nil, err
	}
	for _, a := range appliances {
		if _, err := p.AddRequest(a.ApplianceRequest); err != nil {
			return nil, fmt.Errorf("loading appliance %s: %w", a.ID, err)
		}
	}
	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai-workout-planner/internal/database"
	"ai-workout-planner/internal/intake"
	"ai-workout-planner/internal/workout"
)

// ErrNotFound is returned when a user has no record yet.
var ErrNotFound = errors.New("plan record not found")

// Record is an authenticated user's intake and plan.
type Record struct {
	ID        int64
	UserID    string
	State     workout.State
	Fields    intake.Fields
	Plan      *workout.Plan
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository stores plan records in SQLite. Writes are last-write-wins.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Create inserts an empty INTAKE record for userID.
func (r *Repository) Create(ctx context.Context, userID string) (*Record, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO plan_records (user_id, state, fields, created_at, updated_at) VALUES (?, ?, '{}', ?, ?)`,
		userID, workout.StateIntake, database.FormatTime(now), database.FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to create plan record for user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Record{
		ID:        id,
		UserID:    userID,
		State:     workout.StateIntake,
		Fields:    intake.Fields{},
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Latest returns the most recently created record for userID.
func (r *Repository) Latest(ctx context.Context, userID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, state, fields, plan, created_at, updated_at
		   FROM plan_records
		  WHERE user_id = ?
		  ORDER BY created_at DESC, id DESC
		  LIMIT 1`, userID)

	var (
		rec                  Record
		fields               string
		plan                 sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.State, &fields, &plan, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest plan record: %w", err)
	}

	if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
		return nil, fmt.Errorf("corrupt fields on plan record %d: %w", rec.ID, err)
	}
	if rec.Fields == nil {
		rec.Fields = intake.Fields{}
	}
	if plan.Valid && plan.String != "" {
		var p workout.Plan
		if err := json.Unmarshal([]byte(plan.String), &p); err != nil {
			return nil, fmt.Errorf("corrupt plan on plan record %d: %w", rec.ID, err)
		}
		rec.Plan = &p
	}
	if rec.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindOrCreateLatest returns the latest record, creating one if the user has
// none.
func (r *Repository) FindOrCreateLatest(ctx context.Context, userID string) (*Record, error) {
	rec, err := r.Latest(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return r.Create(ctx, userID)
	}
	return rec, err
}

// Save overwrites the record's state, fields and plan.
func (r *Repository) Save(ctx context.Context, rec *Record) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return err
	}
	var plan sql.NullString
	if rec.Plan != nil {
		b, err := json.Marshal(rec.Plan)
		if err != nil {
			return err
		}
		plan = sql.NullString{String: string(b), Valid: true}
	}

	rec.UpdatedAt = r.now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE plan_records SET state = ?, fields = ?, plan = ?, updated_at = ? WHERE id = ?`,
		rec.State, string(fields), plan, database.FormatTime(rec.UpdatedAt), rec.ID)
	if err != nil {
		return fmt.Errorf("failed to save plan record %d: %w", rec.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

package session

import (
	"context"
	"errors"
	"time"

	"ai-workout-planner/internal/intake"
	"ai-workout-planner/internal/workout"
)

// StoreType selects the session store driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
	ErrVersionConflict  = errors.New("session version conflict")
	ErrNotFound         = errors.New("session not found")
	ErrAlreadyExists    = errors.New("session already exists")
)

// GuestSession is everything remembered about an anonymous caller.
type GuestSession struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Version   int64         `json:"version"` // bumped on every update
	Fields    intake.Fields `json:"fields"`
	State     workout.State `json:"state"`
	Plan      *workout.Plan `json:"plan,omitempty"`
	Attempts  int           `json:"attempts"`
}

// Clone returns a copy that shares no memory with s.
func (s *GuestSession) Clone() *GuestSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Fields = s.Fields.Merge(nil)
	if s.Plan != nil {
		p := s.Plan.Clone()
		out.Plan = &p
	}
	return &out
}

// Store persists guest sessions with optimistic locking.
type Store interface {
	// Create stores a new session with Version 1. Returns ErrAlreadyExists
	// when the id is taken.
	Create(ctx context.Context, data *GuestSession) error

	// Get returns nil, nil when the session does not exist.
	Get(ctx context.Context, id string) (*GuestSession, error)

	// Update writes data when its Version matches the stored one, then
	// increments Version. Returns ErrVersionConflict or ErrNotFound.
	Update(ctx context.Context, data *GuestSession) error

	Delete(ctx context.Context, id string) error
	Close() error
}

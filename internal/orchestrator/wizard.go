package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ai-workout-planner/internal/apierr"
	"ai-workout-planner/internal/intake"
	"ai-workout-planner/internal/records"
	"ai-workout-planner/internal/session"
	"ai-workout-planner/internal/workout"
)

// SaveIntake stores one wizard step for the caller and returns the spec as
// it now stands.
func (o *Orchestrator) SaveIntake(ctx context.Context, caller Caller, stepName string, raw intake.Fields) (workout.PlanSpec, error) {
	step, ok := intake.LookupStep(stepName)
	if !ok {
		return workout.PlanSpec{}, apierr.New(http.StatusNotFound, apierr.CodeUnknownStep, fmt.Errorf("unknown step %q", stepName))
	}
	fields, err := step.Extract(raw)
	switch {
	case errors.Is(err, intake.ErrInvalidLevel):
		return workout.PlanSpec{}, apierr.New(http.StatusBadRequest, apierr.CodeInvalidLevel, err)
	case errors.Is(err, intake.ErrMissingGoal):
		return workout.PlanSpec{}, apierr.New(http.StatusBadRequest, apierr.CodeMissingGoal, err)
	case err != nil:
		return workout.PlanSpec{}, err
	}

	if caller.Authenticated() {
		rec, err := o.records.FindOrCreateLatest(ctx, caller.UserID)
		if err != nil {
			return workout.PlanSpec{}, fmt.Errorf("failed to load record: %w", err)
		}
		rec.Fields = rec.Fields.Merge(fields)
		if err := o.records.Save(ctx, rec); err != nil {
			return workout.PlanSpec{}, fmt.Errorf("failed to save step %s: %w", step.Name, err)
		}
		return intake.Normalize(rec.Fields), nil
	}

	if caller.GuestID == "" {
		return workout.PlanSpec{}, apierr.New(http.StatusBadRequest, apierr.CodeNoSession, errors.New("missing guest session"))
	}
	sess, err := o.updateGuest(ctx, caller.GuestID, func(s *session.GuestSession) error {
		s.Fields = s.Fields.Merge(fields)
		return nil
	})
	if err != nil {
		return workout.PlanSpec{}, fmt.Errorf("failed to save step %s: %w", step.Name, err)
	}
	return intake.Normalize(sess.Fields), nil
}

// Status reports where the caller is in the intake/generation flow.
func (o *Orchestrator) Status(ctx context.Context, caller Caller) (workout.State, error) {
	if caller.Authenticated() {
		rec, err := o.records.Latest(ctx, caller.UserID)
		if errors.Is(err, records.ErrNotFound) {
			return workout.StateIntake, nil
		}
		if err != nil {
			return "", apierr.New(http.StatusInternalServerError, apierr.CodeStatusFailed, err)
		}
		return stateOrIntake(rec.State), nil
	}

	if caller.GuestID == "" {
		return workout.StateIntake, nil
	}
	sess, err := o.guests.Get(ctx, caller.GuestID)
	if err != nil {
		return "", apierr.New(http.StatusInternalServerError, apierr.CodeStatusFailed, err)
	}
	if sess == nil {
		return workout.StateIntake, nil
	}
	return stateOrIntake(sess.State), nil
}

func stateOrIntake(s workout.State) workout.State {
	if s == "" {
		return workout.StateIntake
	}
	return s
}

// Output returns the caller's stored plan. Guests also learn how many free
// plans they have left; users always see 0.
func (o *Orchestrator) Output(ctx context.Context, caller Caller) (Output, error) {
	if caller.Authenticated() {
		rec, err := o.records.Latest(ctx, caller.UserID)
		if errors.Is(err, records.ErrNotFound) {
			return Output{}, apierr.ErrNoPlan
		}
		if err != nil {
			return Output{}, fmt.Errorf("failed to load record: %w", err)
		}
		if rec.Plan == nil {
			return Output{}, apierr.ErrNoPlan
		}
		return Output{Plan: *rec.Plan, State: stateOrIntake(rec.State)}, nil
	}

	if caller.GuestID == "" {
		return Output{}, apierr.ErrNoPlan
	}
	sess, err := o.guests.Get(ctx, caller.GuestID)
	if err != nil {
		return Output{}, fmt.Errorf("failed to load guest session: %w", err)
	}
	if sess == nil || sess.Plan == nil {
		return Output{}, apierr.ErrNoPlan
	}
	return Output{
		Plan:           *sess.Plan,
		State:          stateOrIntake(sess.State),
		GuestRemaining: max(0, GuestAttemptLimit-sess.Attempts),
	}, nil
}

// Latest returns an authenticated user's most recent record.
func (o *Orchestrator) Latest(ctx context.Context, userID string) (*records.Record, error) {
	if userID == "" {
		return nil, apierr.ErrNotAuthenticated
	}
	rec, err := o.records.Latest(ctx, userID)
	if errors.Is(err, records.ErrNotFound) {
		return nil, apierr.ErrNoPlan
	}
	return rec, err
}

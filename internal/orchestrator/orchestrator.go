package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ai-workout-planner/internal/apierr"
	"ai-workout-planner/internal/intake"
	"ai-workout-planner/internal/logger"
	"ai-workout-planner/internal/media"
	"ai-workout-planner/internal/observability"
	"ai-workout-planner/internal/planner"
	"ai-workout-planner/internal/records"
	"ai-workout-planner/internal/rules"
	"ai-workout-planner/internal/session"
	"ai-workout-planner/internal/shared"
	"ai-workout-planner/internal/workout"
)

// GuestAttemptLimit is how many plans an anonymous caller may generate.
const GuestAttemptLimit = 1

// guestUpdateRetries bounds how often a guest update is retried after a
// concurrent write.
const guestUpdateRetries = 3

// Caller identifies who is asking. UserID wins when both are set.
type Caller struct {
	UserID  string
	GuestID string
}

func (c Caller) Authenticated() bool { return strings.TrimSpace(c.UserID) != "" }

// Kind labels the caller in metrics.
func (c Caller) Kind() string {
	if c.Authenticated() {
		return "user"
	}
	return "guest"
}

// PlanGenerator produces a plan and never fails.
type PlanGenerator interface {
	Generate(ctx context.Context, spec workout.PlanSpec) planner.Result
}

// RecordStore holds authenticated users' records.
type RecordStore interface {
	Latest(ctx context.Context, userID string) (*records.Record, error)
	FindOrCreateLatest(ctx context.Context, userID string) (*records.Record, error)
	Save(ctx context.Context, rec *records.Record) error
}

// MetricsRecorder receives one row per generation.
type MetricsRecorder interface {
	RecordMeta(ctx context.Context, caller string, retries int, meta shared.AgentMeta) error
}

// Output is what the plan view shows.
type Output struct {
	Plan           workout.Plan
	State          workout.State
	GuestRemaining int
}

// Orchestrator picks an engine for each request and walks the user and guest
// state machines around it.
type Orchestrator struct {
	records    RecordStore
	guests     session.Store
	generator  PlanGenerator
	rules      func(workout.PlanSpec) workout.Plan
	forceRules bool
	metrics    MetricsRecorder
	log        *logger.Logger
	tracer     trace.Tracer
}

type Option func(*Orchestrator)

// WithGenerator enables generative plans. Without it every plan comes from
// the rule engine.
func WithGenerator(g PlanGenerator) Option {
	return func(o *Orchestrator) { o.generator = g }
}

func WithForceRules(force bool) Option {
	return func(o *Orchestrator) { o.forceRules = force }
}

func WithMetrics(m MetricsRecorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(log *logger.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

func WithRules(fn func(workout.PlanSpec) workout.Plan) Option {
	return func(o *Orchestrator) { o.rules = fn }
}

func New(recs RecordStore, guests session.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		records: recs,
		guests:  guests,
		rules:   rules.Generate,
		log:     logger.Nop(),
		tracer:  observability.Tracer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With("component", "orchestrator")
	return o
}

// produce runs the selected engine and adds media links.
func (o *Orchestrator) produce(ctx context.Context, spec workout.PlanSpec) (workout.Plan, shared.AgentMeta) {
	var (
		plan workout.Plan
		meta shared.AgentMeta
	)
	if o.forceRules || o.generator == nil {
		start := time.Now()
		plan = o.rules(spec)
		meta = shared.AgentMeta{AgentName: string(workout.SourceRules), Latency: time.Since(start)}
	} else {
		res := o.generator.Generate(ctx, spec)
		plan, meta = res.Plan, res.Meta
	}
	return media.Enrich(plan), meta
}

func (o *Orchestrator) recordMetrics(ctx context.Context, caller Caller, plan workout.Plan, meta shared.AgentMeta) {
	if o.metrics == nil {
		return
	}
	retries := 0
	if plan.Meta.Retries != nil {
		retries = *plan.Meta.Retries
	}
	if meta.AgentName == "" {
		meta.AgentName = string(plan.Meta.Source)
	}
	if err := o.metrics.RecordMeta(ctx, caller.Kind(), retries, meta); err != nil {
		o.log.Warn("failed to record generation metric", "error", err)
	}
}

func (o *Orchestrator) startSpan(ctx context.Context, name string, caller Caller) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("caller.kind", caller.Kind())))
}

func endSpan(span trace.Span, plan workout.Plan, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.String("plan.source", string(plan.Meta.Source)),
			attribute.Int("plan.days", len(plan.Plan)),
		)
	}
	span.End()
}

// GenerateForUser builds a plan for an authenticated user from their latest
// record with overrides applied.
func (o *Orchestrator) GenerateForUser(ctx context.Context, userID string, overrides intake.Fields) (plan workout.Plan, err error) {
	if strings.TrimSpace(userID) == "" {
		return workout.Plan{}, apierr.ErrNotAuthenticated
	}
	caller := Caller{UserID: userID}
	ctx, span := o.startSpan(ctx, "orchestrator.GenerateForUser", caller)
	defer func() { endSpan(span, plan, err) }()

	plan, err = o.generateForUser(ctx, caller, overrides)
	if err != nil {
		o.log.Error("user plan generation failed", "user_id", userID, "error", err)
		o.markUserError(ctx, userID)
		return workout.Plan{}, err
	}
	return plan, nil
}

func (o *Orchestrator) generateForUser(ctx context.Context, caller Caller, overrides intake.Fields) (workout.Plan, error) {
	rec, err := o.records.FindOrCreateLatest(ctx, caller.UserID)
	if err != nil {
		return workout.Plan{}, fmt.Errorf("failed to load record: %w", err)
	}
	rec.Fields = rec.Fields.Merge(overrides.Only(intake.Keys()...))
	rec.State = workout.StatePlanning
	if err := o.records.Save(ctx, rec); err != nil {
		return workout.Plan{}, fmt.Errorf("failed to mark planning: %w", err)
	}

	plan, meta := o.produce(ctx, intake.Normalize(rec.Fields))

	rec.Plan = &plan
	rec.State = workout.StatePlanReady
	if err := o.records.Save(ctx, rec); err != nil {
		return workout.Plan{}, fmt.Errorf("failed to store plan: %w", err)
	}
	o.recordMetrics(ctx, caller, plan, meta)
	o.log.Info("plan generated", "user_id", caller.UserID, "source", plan.Meta.Source, "days", len(plan.Plan))
	return plan, nil
}

// markUserError is best-effort: the caller already has an error to report.
func (o *Orchestrator) markUserError(ctx context.Context, userID string) {
	ctx = context.WithoutCancel(ctx)
	rec, err := o.records.Latest(ctx, userID)
	if err != nil {
		o.log.Warn("could not reload record to mark error", "user_id", userID, "error", err)
		return
	}
	rec.State = workout.StateError
	if err := o.records.Save(ctx, rec); err != nil {
		o.log.Warn("could not mark record as error", "user_id", userID, "error", err)
	}
}

// GenerateForGuest builds the single plan an anonymous caller is allowed.
func (o *Orchestrator) GenerateForGuest(ctx context.Context, guestID string, overrides intake.Fields) (plan workout.Plan, err error) {
	if strings.TrimSpace(guestID) == "" {
		return workout.Plan{}, apierr.New(http.StatusBadRequest, apierr.CodeNoSession, errors.New("missing guest session"))
	}
	caller := Caller{GuestID: guestID}
	ctx, span := o.startSpan(ctx, "orchestrator.GenerateForGuest", caller)
	defer func() { endSpan(span, plan, err) }()

	fields := overrides.Only(intake.Keys()...)
	claimed, err := o.updateGuest(ctx, guestID, func(s *session.GuestSession) error {
		if s.Attempts >= GuestAttemptLimit {
			return apierr.ErrLoginRequired
		}
		s.Fields = s.Fields.Merge(fields)
		s.Attempts++
		s.State = workout.StatePlanning
		return nil
	})
	if errors.Is(err, session.ErrVersionConflict) {
		return workout.Plan{}, o.claimConflict(ctx, guestID, err)
	}
	if err != nil {
		return workout.Plan{}, err
	}

	plan, meta := o.produce(ctx, intake.Normalize(claimed.Fields))

	_, err = o.updateGuest(ctx, guestID, func(s *session.GuestSession) error {
		s.Plan = &plan
		s.State = workout.StatePlanReady
		return nil
	})
	if err != nil {
		o.log.Error("guest plan generation failed", "guest_id", guestID, "error", err)
		o.failGuest(ctx, guestID)
		return workout.Plan{}, fmt.Errorf("failed to store guest plan: %w", err)
	}
	o.recordMetrics(ctx, caller, plan, meta)
	o.log.Info("guest plan generated", "guest_id", guestID, "source", plan.Meta.Source, "days", len(plan.Plan))
	return plan, nil
}

// claimConflict reports a claim that kept losing write races. Only a
// session whose attempt is already spent means login_required; anything
// else is safe to retry.
func (o *Orchestrator) claimConflict(ctx context.Context, guestID string, conflict error) error {
	sess, err := o.guests.Get(ctx, guestID)
	if err == nil && sess != nil && sess.Attempts >= GuestAttemptLimit {
		return apierr.New(http.StatusTooManyRequests, apierr.CodeLoginRequired, conflict)
	}
	o.log.Warn("guest claim kept conflicting", "guest_id", guestID, "error", conflict)
	return apierr.New(http.StatusConflict, apierr.CodeSessionBusy, conflict)
}

// failGuest marks the session ERROR and gives the attempt back.
func (o *Orchestrator) failGuest(ctx context.Context, guestID string) {
	_, err := o.updateGuest(context.WithoutCancel(ctx), guestID, func(s *session.GuestSession) error {
		s.State = workout.StateError
		if s.Attempts > 0 {
			s.Attempts--
		}
		return nil
	})
	if err != nil {
		o.log.Warn("could not mark guest session as error", "guest_id", guestID, "error", err)
	}
}

// updateGuest loads (or creates) the guest session, applies mutate and
// writes it back, retrying on concurrent writes. mutate sees fresh state on
// every try and may abort with an error.
func (o *Orchestrator) updateGuest(ctx context.Context, guestID string, mutate func(*session.GuestSession) error) (*session.GuestSession, error) {
	var err error
	for i := 0; i < guestUpdateRetries; i++ {
		var sess *session.GuestSession
		sess, err = o.loadGuest(ctx, guestID)
		if err != nil {
			return nil, err
		}
		if err = mutate(sess); err != nil {
			return nil, err
		}
		err = o.guests.Update(ctx, sess)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, session.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to update guest session: %w", err)
		}
	}
	return nil, err
}

func (o *Orchestrator) loadGuest(ctx context.Context, guestID string) (*session.GuestSession, error) {
	sess, err := o.guests.Get(ctx, guestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load guest session: %w", err)
	}
	if sess != nil {
		if sess.Fields == nil {
			sess.Fields = intake.Fields{}
		}
		return sess, nil
	}
	sess = &session.GuestSession{ID: guestID, State: workout.StateIntake, Fields: intake.Fields{}}
	err = o.guests.Create(ctx, sess)
	if errors.Is(err, session.ErrAlreadyExists) {
		// Lost a creation race; the winner's copy is the one to update.
		return o.loadGuest(ctx, guestID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create guest session: %w", err)
	}
	return sess, nil
}

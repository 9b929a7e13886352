package planner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"ai-workout-planner/internal/llm"
	"ai-workout-planner/internal/workout"
)

// ParseError means the upstream text could not be read as a plan. It is
// never retried on the same model.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "unparseable plan: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// flexInt accepts numbers or numeric strings and rounds. Anything else
// decodes to zero.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		n = p
	default:
		return nil
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || math.Abs(n) > math.MaxInt32 {
		return nil
	}
	*f = flexInt(math.Round(n))
	return nil
}

// flexString accepts strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		*f = flexString(strings.TrimSpace(t))
	case float64:
		*f = flexString(strconv.FormatFloat(t, 'f', -1, 64))
	}
	return nil
}

type upstreamExercise struct {
	Exercise  flexString `json:"exercise"`
	Sets      flexInt    `json:"sets"`
	Reps      flexString `json:"reps"`
	RIR       flexInt    `json:"rir"`
	VideoURL  flexString `json:"videoUrl"`
	GifSearch flexString `json:"gifSearch"`
}

type upstreamDay struct {
	Day         flexString      `json:"day"`
	DurationMin flexInt         `json:"durationMin"`
	Warmup      flexString      `json:"warmup"`
	Workout     json.RawMessage `json:"workout"`
	Finisher    flexString      `json:"finisher"`
	Cooldown    flexString      `json:"cooldown"`
}

type upstreamPlan struct {
	Plan        json.RawMessage `json:"plan"`
	Progression flexString      `json:"progression"`
	MedicalNote flexString      `json:"medicalNote"`
}

// decodeObject parses raw as a JSON object, falling back to the slice
// between the first '{' and the last '}'.
func decodeObject(raw string) (upstreamPlan, error) {
	var up upstreamPlan
	err := strictObject([]byte(raw), &up)
	if err == nil {
		return up, nil
	}
	sub, ok := llm.ExtractJSONObject(raw)
	if !ok {
		return upstreamPlan{}, &ParseError{Err: err}
	}
	if err := strictObject([]byte(sub), &up); err != nil {
		return upstreamPlan{}, &ParseError{Err: err}
	}
	return up, nil
}

func strictObject(b []byte, v *upstreamPlan) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return fmt.Errorf("expected a JSON object")
	}
	return json.Unmarshal(b, v)
}

// ParsePlan reads an upstream response into the plan shape for spec:
// weeks and daysPerWeek are forced, surplus days are dropped and missing
// days are left missing.
func ParsePlan(raw string, spec workout.PlanSpec) (workout.Plan, error) {
	up, err := decodeObject(raw)
	if err != nil {
		return workout.Plan{}, err
	}

	// A plan that is not an array counts as no days.
	var days []upstreamDay
	_ = json.Unmarshal(up.Plan, &days)
	if len(days) > spec.DaysPerWeek {
		days = days[:spec.DaysPerWeek]
	}

	plan := workout.Plan{
		Weeks:       1,
		DaysPerWeek: spec.DaysPerWeek,
		Plan:        make([]workout.Day, 0, len(days)),
		Progression: string(up.Progression),
		MedicalNote: string(up.MedicalNote),
	}
	for i, d := range days {
		plan.Plan = append(plan.Plan, convertDay(i+1, d, spec))
	}
	return plan, nil
}

func convertDay(n int, d upstreamDay, spec workout.PlanSpec) workout.Day {
	day := workout.Day{
		Day:         string(d.Day),
		DurationMin: int(d.DurationMin),
		Warmup:      string(d.Warmup),
		Finisher:    string(d.Finisher),
		Cooldown:    string(d.Cooldown),
		Workout:     []workout.Exercise{},
	}
	if day.Day == "" {
		day.Day = fmt.Sprintf("Day %d", n)
	}
	if day.DurationMin <= 0 {
		day.DurationMin = spec.DurationMin
	}

	var exercises []upstreamExercise
	_ = json.Unmarshal(d.Workout, &exercises)
	for _, ex := range exercises {
		day.Workout = append(day.Workout, workout.Exercise{
			Exercise:  string(ex.Exercise),
			Sets:      int(ex.Sets),
			Reps:      string(ex.Reps),
			RIR:       int(ex.RIR),
			VideoURL:  string(ex.VideoURL),
			GifSearch: string(ex.GifSearch),
		})
	}
	return day
}

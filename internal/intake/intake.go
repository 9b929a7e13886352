package intake

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"ai-workout-planner/internal/workout"
)

const (
	DefaultUserName    = "friend"
	DefaultGoal        = "general fitness"
	DefaultConstraints = "none"
	DefaultDays        = 1
	DefaultDuration    = 15

	MinDays, MaxDays         = 1, 7
	MinDuration, MaxDuration = 5, 60
	maxAge                   = 120
)

// Fields holds raw intake values as they arrive from forms, JSON bodies,
// query strings or chat commands.
type Fields map[string]any

// Merge returns a new Fields with the non-blank values of other laid over f.
func (f Fields) Merge(other Fields) Fields {
	out := make(Fields, len(f)+len(other))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range other {
		if !isBlank(v) {
			out[k] = v
		}
	}
	return out
}

// Only keeps the given keys.
func (f Fields) Only(keys ...string) Fields {
	out := make(Fields, len(keys))
	for _, k := range keys {
		if v, ok := f[k]; ok {
			out[k] = v
		}
	}
	return out
}

// field is one allow-listed intake entry. names lists the accepted keys in
// precedence order; the first non-blank one wins.
type field struct {
	names []string
	apply func(spec *workout.PlanSpec, raw any)
}

var fieldTable = []field{
	{names: []string{"name", "userName"}, apply: func(s *workout.PlanSpec, raw any) {
		if v := toText(raw); v != "" {
			s.UserName = v
		}
	}},
	{names: []string{"age"}, apply: func(s *workout.PlanSpec, raw any) {
		n, ok := toInt(raw)
		if !ok {
			return
		}
		if n <= 0 {
			s.Age = nil
			return
		}
		n = clamp(n, 1, maxAge)
		s.Age = &n
	}},
	{names: []string{"goal"}, apply: func(s *workout.PlanSpec, raw any) {
		if v := CanonicalGoal(toText(raw)); v != "" {
			s.Goal = v
		}
	}},
	{names: []string{"level"}, apply: func(s *workout.PlanSpec, raw any) {
		s.Level = ParseLevel(toText(raw))
	}},
	{names: []string{"constraints"}, apply: func(s *workout.PlanSpec, raw any) {
		if v := toText(raw); v != "" {
			s.Constraints = v
		}
	}},
	{names: []string{"daysPerWeek", "days"}, apply: func(s *workout.PlanSpec, raw any) {
		if n, ok := toInt(raw); ok {
			s.DaysPerWeek = clamp(n, MinDays, MaxDays)
		}
	}},
	{names: []string{"durationMin", "duration"}, apply: func(s *workout.PlanSpec, raw any) {
		if n, ok := toInt(raw); ok {
			s.DurationMin = clamp(n, MinDuration, MaxDuration)
		}
	}},
	{names: []string{"equipment"}, apply: func(s *workout.PlanSpec, raw any) {
		if eq := ParseEquipment(raw); len(eq) > 0 {
			s.Equipment = eq
		}
	}},
}

// Keys returns every accepted field key, aliases included.
func Keys() []string {
	var out []string
	for _, f := range fieldTable {
		out = append(out, f.names...)
	}
	return out
}

// Defaults is the spec used when nothing was collected.
func Defaults() workout.PlanSpec {
	return workout.PlanSpec{
		UserName:    DefaultUserName,
		Goal:        DefaultGoal,
		Level:       workout.LevelBeginner,
		Constraints: DefaultConstraints,
		DaysPerWeek: DefaultDays,
		DurationMin: DefaultDuration,
		Equipment:   []string{"bodyweight"},
	}
}

// Normalize turns raw intake into a bounded spec. It never fails.
func Normalize(raw Fields) workout.PlanSpec {
	return Apply(Defaults(), raw)
}

// Apply lays the present, non-blank values of raw over spec. Values that
// cannot be parsed leave the current value in place.
func Apply(spec workout.PlanSpec, raw Fields) workout.PlanSpec {
	out := spec.Clone()
	for _, f := range fieldTable {
		for _, name := range f.names {
			v, ok := raw[name]
			if !ok || isBlank(v) {
				continue
			}
			f.apply(&out, v)
			break
		}
	}
	return out
}

// ToFields is the inverse of Normalize for persistence and merging.
func ToFields(spec workout.PlanSpec) Fields {
	f := Fields{
		"name":        spec.UserName,
		"goal":        spec.Goal,
		"level":       string(spec.Level),
		"constraints": spec.Constraints,
		"daysPerWeek": spec.DaysPerWeek,
		"durationMin": spec.DurationMin,
		"equipment":   append([]string(nil), spec.Equipment...),
	}
	if spec.Age != nil {
		f["age"] = *spec.Age
	}
	return f
}

var goalAliases = map[string]string{
	"weight loss/fat burn":    workout.GoalWeightLoss,
	"muscle gain/strength":    workout.GoalMuscleGain,
	"endurance/cardio":        workout.GoalEndurance,
	"flexibility/mobility":    workout.GoalMobility,
	"core strength/stability": workout.GoalCore,
	"weight loss":             workout.GoalWeightLoss,
	"fat loss":                workout.GoalWeightLoss,
	"muscle gain":             workout.GoalMuscleGain,
	workout.GoalWeightLoss:    workout.GoalWeightLoss,
	workout.GoalMuscleGain:    workout.GoalMuscleGain,
	workout.GoalEndurance:     workout.GoalEndurance,
	workout.GoalMobility:      workout.GoalMobility,
	workout.GoalCore:          workout.GoalCore,
}

// CanonicalGoal maps intake labels and tags to a canonical tag. Anything
// else passes through trimmed.
func CanonicalGoal(raw string) string {
	g := strings.TrimSpace(raw)
	if tag, ok := goalAliases[strings.ToLower(g)]; ok {
		return tag
	}
	return g
}

// ParseLevel lowercases raw and falls back to beginner.
func ParseLevel(raw string) workout.Level {
	l := workout.Level(strings.ToLower(strings.TrimSpace(raw)))
	if l.Valid() {
		return l
	}
	return workout.LevelBeginner
}

// ParseEquipment accepts a list or a comma-separated string. Entries are
// trimmed, blanks dropped and case-insensitive duplicates removed.
func ParseEquipment(raw any) []string {
	var items []string
	switch v := raw.(type) {
	case []string:
		items = v
	case []any:
		for _, it := range v {
			items = append(items, toText(it))
		}
	case string:
		items = strings.Split(v, ",")
	case nil:
	default:
		items = strings.Split(fmt.Sprint(v), ",")
	}

	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		key := strings.ToLower(it)
		if it == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

func toText(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []string:
		return strings.TrimSpace(strings.Join(v, ", "))
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func toInt(raw any) (int, bool) {
	var f float64
	switch v := raw.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		f = float64(v)
	case float32:
		f = float64(v)
	case float64:
		f = v
	case json.Number:
		p, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Round(f)
	if f > math.MaxInt32 {
		return math.MaxInt32, true
	}
	if f < math.MinInt32 {
		return math.MinInt32, true
	}
	return int(f), true
}

func clamp(n, lo, hi int) int {
	return max(lo, min(hi, n))
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

package intake

import (
	"errors"
	"strings"

	"ai-workout-planner/internal/workout"
)

var (
	// ErrInvalidLevel is returned when the level step receives an unknown level.
	ErrInvalidLevel = errors.New("invalid_level")
	ErrMissingGoal  = errors.New("missing_goal")
)

// Step is one page of the intake wizard.
type Step struct {
	Name   string
	Fields []string
	// Next is the step the wizard moves to after a successful save.
	Next string
}

var steps = []Step{
	{Name: "name-age", Fields: []string{"name", "age"}, Next: "fitness-level"},
	{Name: "fitness-level", Fields: []string{"level"}, Next: "fitnessgoal"},
	{Name: "fitnessgoal", Fields: []string{"goal"}, Next: "healthimplication"},
	{Name: "healthimplication", Fields: []string{"constraints"}, Next: "equipment"},
	{Name: "equipment", Fields: []string{"equipment"}, Next: "duration"},
	{Name: "duration", Fields: []string{"durationMin", "daysPerWeek"}, Next: "output"},
}

// Older pages posted to the name of the page they led to.
var stepAliases = map[string]string{
	"fitness-goal":   "fitness-level",
	"health-goal":    "fitnessgoal",
	"equipment-goal": "healthimplication",
	"duration-goal":  "equipment",
	"output-goal":    "duration",
}

// LookupStep resolves a step by name or legacy alias.
func LookupStep(name string) (Step, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := stepAliases[name]; ok {
		name = canonical
	}
	for _, s := range steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// Steps lists the wizard in order.
func Steps() []Step {
	return append([]Step(nil), steps...)
}

// Extract keeps only the fields this step accepts and validates them.
func (s Step) Extract(raw Fields) (Fields, error) {
	out := raw.Only(s.Fields...)
	if s.Name == "fitnessgoal" && isBlank(out["goal"]) {
		return nil, ErrMissingGoal
	}
	if lvl, ok := out["level"]; ok && !isBlank(lvl) {
		l := workout.Level(strings.ToLower(toText(lvl)))
		if !l.Valid() {
			return nil, ErrInvalidLevel
		}
		out["level"] = string(l)
	}
	return out, nil
}

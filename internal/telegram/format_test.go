package telegram

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"ai-workout-planner/internal/intake"
	"ai-workout-planner/internal/workout"
)

func TestParsePlanArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    intake.Fields
		unknown []string
	}{
		{"empty", "", intake.Fields{}, nil},
		{"bare words are the goal", "lose some weight", intake.Fields{"goal": "lose some weight"}, nil},
		{"multi-word values", "goal=muscle gain level=Beginner duration=45", intake.Fields{"goal": "muscle gain", "level": "Beginner", "duration": "45"}, nil},
		{"keys are case-insensitive", "DAYSPERWEEK=4", intake.Fields{"daysPerWeek": "4"}, nil},
		{"unknown keys swallow their words", "mood=very happy days=2", intake.Fields{"days": "2"}, []string{"mood"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, unknown := parsePlanArgs(tt.args)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.unknown, unknown)
		})
	}
}

func TestFormatPlanMarkdown(t *testing.T) {
	plan := samplePlan()
	plan.MedicalNote = "Check with a doctor"
	parts := formatPlanMarkdown(plan)

	assert.Len(t, parts, 1)
	out := parts[0]
	assert.Contains(t, out, "🏋️ *Your 2-day plan*")
	assert.Contains(t, out, "_Source: generative, gemini-2.5-flash_")
	assert.Contains(t, out, "*Day 1* (30 min)")
	assert.Contains(t, out, "Warm-up: 5 min march")
	assert.Contains(t, out, "[form](https://www.youtube.com/results?search_query=Goblet%20Squat)")
	assert.Contains(t, out, "• Plank: 3 × 30s\n")
	assert.Contains(t, out, "Cool-down: Stretch")
	assert.Contains(t, out, "📈 *Progression:* Add one rep each week")
	assert.Contains(t, out, "⚕️ _Check with a doctor_")
}

func TestFormatPlanMarkdownEscapes(t *testing.T) {
	plan := workout.Plan{DaysPerWeek: 1, Plan: []workout.Day{{Day: "Day_1", Workout: []workout.Exercise{{Exercise: "*Star* jumps", Sets: 2, Reps: "10"}}}}}
	out := formatPlanMarkdown(plan)[0]
	assert.Contains(t, out, `*Day\_1*`)
	assert.Contains(t, out, `\*Star\* jumps`)
}

func TestFormatPlanMarkdownSplitsLongPlans(t *testing.T) {
	plan := workout.Plan{DaysPerWeek: 7, Meta: workout.Meta{Source: workout.SourceRules}}
	for i := 1; i <= 7; i++ {
		day := workout.Day{Day: fmt.Sprintf("Day %d", i), DurationMin: 60}
		for j := 0; j < 12; j++ {
			day.Workout = append(day.Workout, workout.Exercise{Exercise: strings.Repeat("Long exercise name ", 3), Sets: 3, Reps: "10"})
		}
		plan.Plan = append(plan.Plan, day)
	}

	parts := formatPlanMarkdown(plan)
	assert.Greater(t, len(parts), 1)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), maxMessageLen)
	}
	assert.Contains(t, strings.Join(parts, "\n"), "*Day 7*")
}

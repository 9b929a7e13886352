package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ai-workout-planner/internal/intake"
	"ai-workout-planner/internal/workout"
)

// Telegram rejects messages over 4096 characters.
const maxMessageLen = 4000

// parsePlanArgs reads "key=value" pairs. A value runs until the next key, so
// "goal=fat loss days=3" works without quoting. Leading words without a key
// are the goal.
func parsePlanArgs(args string) (intake.Fields, []string) {
	known := make(map[string]string)
	for _, k := range intake.Keys() {
		known[strings.ToLower(k)] = k
	}

	fields := intake.Fields{}
	var (
		unknown []string
		current string
		skip    bool
	)
	appendTo := func(key, word string) {
		prev, _ := fields[key].(string)
		fields[key] = strings.TrimSpace(prev + " " + word)
	}
	for _, tok := range strings.Fields(args) {
		key, value, ok := strings.Cut(tok, "=")
		if ok && key != "" {
			canonical, found := known[strings.ToLower(key)]
			if !found {
				unknown = append(unknown, key)
				skip = true
				continue
			}
			current, skip = canonical, false
			fields[current] = value
			continue
		}
		if skip {
			continue
		}
		if current == "" {
			current = "goal"
		}
		appendTo(current, tok)
	}
	return fields, unknown
}

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// formatPlanMarkdown renders plan as one or more messages, splitting between
// days when a message would get too long.
func formatPlanMarkdown(plan workout.Plan) []string {
	var header strings.Builder
	fmt.Fprintf(&header, "🏋️ *Your %d-day plan*\n", plan.DaysPerWeek)
	source := string(plan.Meta.Source)
	if plan.Meta.Model != nil {
		source += ", " + *plan.Meta.Model
	}
	fmt.Fprintf(&header, "_Source: %s_\n", esc(source))

	blocks := []string{header.String()}
	for _, d := range plan.Plan {
		blocks = append(blocks, formatDay(d))
	}

	var footer strings.Builder
	if plan.Progression != "" {
		fmt.Fprintf(&footer, "📈 *Progression:* %s\n", esc(plan.Progression))
	}
	if plan.MedicalNote != "" {
		fmt.Fprintf(&footer, "⚕️ _%s_\n", esc(plan.MedicalNote))
	}
	if footer.Len() > 0 {
		blocks = append(blocks, footer.String())
	}

	var (
		parts []string
		cur   strings.Builder
	)
	for _, block := range blocks {
		if cur.Len() > 0 && cur.Len()+len(block)+1 > maxMessageLen {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n")
		}
		cur.WriteString(block)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

func formatDay(d workout.Day) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s* (%d min)\n", esc(d.Day), d.DurationMin)
	if d.Warmup != "" {
		fmt.Fprintf(&sb, "Warm-up: %s\n", esc(d.Warmup))
	}
	for _, ex := range d.Workout {
		fmt.Fprintf(&sb, "• %s: %d × %s", esc(ex.Exercise), ex.Sets, esc(ex.Reps))
		if ex.RIR > 0 {
			fmt.Fprintf(&sb, " (RIR %d)", ex.RIR)
		}
		if ex.VideoURL != "" {
			fmt.Fprintf(&sb, " [form](%s)", ex.VideoURL)
		}
		sb.WriteString("\n")
	}
	if d.Finisher != "" {
		fmt.Fprintf(&sb, "Finisher: %s\n", esc(d.Finisher))
	}
	if d.Cooldown != "" {
		fmt.Fprintf(&sb, "Cool-down: %s\n", esc(d.Cooldown))
	}
	return sb.String()
}

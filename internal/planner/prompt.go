package planner

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"text/template"

	"ai-workout-planner/internal/intake"
	"ai-workout-planner/internal/workout"
)

//go:embed plan_prompt.md
var planPrompt string

//go:embed request_prompt.md
var requestPrompt string

var (
	systemTmpl  = template.Must(template.New("System").Parse(planPrompt))
	requestTmpl = template.Must(template.New("Request").Parse(requestPrompt))
)

// SystemPrompt is the instruction every model receives alongside the request.
func SystemPrompt() string {
	var buf bytes.Buffer
	_ = systemTmpl.Execute(&buf, struct{ MinDuration, MaxDuration int }{intake.MinDuration, intake.MaxDuration})
	return buf.String()
}

func buildRequestPrompt(spec workout.PlanSpec) (string, error) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = requestTmpl.Execute(&buf, struct {
		SpecJSON    string
		DaysPerWeek int
		DurationMin int
	}{string(specJSON), spec.DaysPerWeek, spec.DurationMin})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

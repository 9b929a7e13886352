package rules

import (
	"fmt"
	"regexp"
	"strings"

	"ai-workout-planner/internal/workout"
)

// conservativeAge switches volume to the conservative profile.
const conservativeAge = 55

type dayKind string

const (
	dayStrength  dayKind = "Strength"
	dayEndurance dayKind = "Endurance"
	dayMobility  dayKind = "Mobility"
	dayCore      dayKind = "Core"
)

type slot struct {
	category Category
	n        int
}

var rotations = map[string][]dayKind{
	workout.GoalCore:       {dayCore, dayStrength},
	workout.GoalWeightLoss: {dayEndurance, dayStrength, dayEndurance, dayCore},
	workout.GoalMuscleGain: {dayStrength, dayCore, dayStrength, dayMobility},
	workout.GoalEndurance:  {dayEndurance, dayMobility, dayEndurance, dayStrength},
	workout.GoalMobility:   {dayMobility, dayCore, dayMobility, dayStrength},
	"":                     {dayStrength, dayCore, dayEndurance, dayMobility},
}

// Free-text goals are matched in this order.
var goalKeywords = []struct {
	re  *regexp.Regexp
	tag string
}{
	{regexp.MustCompile(`(?i)core`), workout.GoalCore},
	{regexp.MustCompile(`(?i)mobility|flex`), workout.GoalMobility},
	{regexp.MustCompile(`(?i)endurance|cardio`), workout.GoalEndurance},
	{regexp.MustCompile(`(?i)muscle|strength`), workout.GoalMuscleGain},
	{regexp.MustCompile(`(?i)weight|fat|lose`), workout.GoalWeightLoss},
}

func rotationFor(goal string) []dayKind {
	if r, ok := rotations[goal]; ok && goal != "" {
		return r
	}
	for _, kw := range goalKeywords {
		if kw.re.MatchString(goal) {
			return rotations[kw.tag]
		}
	}
	return rotations[""]
}

// Engine builds plans from the exercise library without any I/O.
type Engine struct {
	lib        Library
	classifier Classifier
}

type Option func(*Engine)

func WithLibrary(lib Library) Option {
	return func(e *Engine) { e.lib = lib }
}

func WithClassifier(c Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{lib: DefaultLibrary(), classifier: NewKeywordClassifier()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type volume struct {
	sets         int
	rir          int
	reps         string
	hold         string
	interval     string
	conservative bool
}

func volumeFor(spec workout.PlanSpec, flags Flags) volume {
	v := volume{sets: 2, rir: 3, reps: "8–12", hold: "20–40s hold", interval: "30s on / 30s off"}
	switch spec.Level {
	case workout.LevelIntermediate:
		v.sets, v.rir = 3, 2
	case workout.LevelAdvanced:
		v.sets, v.rir = 4, 1
	}
	if (spec.Age != nil && *spec.Age >= conservativeAge) || flags.Has(FlagHypertension) {
		v.conservative = true
		v.rir++
		v.reps = "10–15"
		v.hold = "15–30s hold"
		v.interval = "20s on / 40s off"
	}
	return v
}

func (v volume) prescribe(e Entry) workout.Exercise {
	reps := v.reps
	switch e.Mode {
	case ModeHold:
		reps = v.hold
	case ModeInterval:
		reps = v.interval
	}
	return workout.Exercise{Exercise: e.Name, Sets: v.sets, Reps: reps, RIR: v.rir}
}

// Generate produces a plan for spec. The same spec always yields the same plan.
func (e *Engine) Generate(spec workout.PlanSpec) workout.Plan {
	flags := e.classifier.Classify(spec.Constraints)
	tier := ResolveTier(spec.Equipment)
	vol := volumeFor(spec, flags)
	rotation := rotationFor(spec.Goal)

	days := make([]workout.Day, 0, spec.DaysPerWeek)
	for i := 1; i <= spec.DaysPerWeek; i++ {
		kind := rotation[(i-1)%len(rotation)]
		days = append(days, e.buildDay(i, kind, spec, tier, flags, vol))
	}

	return workout.Plan{
		Weeks:       1,
		DaysPerWeek: spec.DaysPerWeek,
		Plan:        days,
		Progression: progressionFor(spec.Level, vol.conservative),
		MedicalNote: medicalNote(spec, flags),
		Meta: workout.Meta{
			Source: workout.SourceRules,
			Tier:   string(tier),
			Flags:  flags.Strings(),
		},
	}
}

func slotsFor(kind dayKind, durationMin int) []slot {
	switch kind {
	case dayEndurance:
		return []slot{{CategoryEndurance, 3}}
	case dayMobility:
		return []slot{{CategoryMobility, 3}, {CategoryBalance, 1}}
	case dayCore:
		return []slot{{CategoryCore, 3}}
	}
	s := []slot{{CategorySquat, 1}, {CategoryPush, 1}, {CategoryHinge, 1}}
	if durationMin >= 20 {
		s = append(s, slot{CategoryPull, 1})
	}
	return s
}

func (e *Engine) buildDay(n int, kind dayKind, spec workout.PlanSpec, tier Tier, flags Flags, vol volume) workout.Day {
	var exercises []workout.Exercise
	for _, s := range slotsFor(kind, spec.DurationMin) {
		for _, entry := range e.lib.Pick(s.category, s.n, tier, flags) {
			exercises = append(exercises, vol.prescribe(entry))
		}
	}

	day := workout.Day{
		Day:         fmt.Sprintf("Day %d - %s", n, kind),
		DurationMin: spec.DurationMin,
		Warmup:      warmups[kind],
		Workout:     exercises,
		Cooldown:    cooldowns[kind],
	}
	if spec.DurationMin >= 30 && (kind == dayStrength || kind == dayEndurance) {
		day.Finisher = finishers[kind]
		if vol.conservative {
			day.Finisher = "3 min: easy walk or march, conversational pace"
		}
	}
	return day
}

var warmups = map[dayKind]string{
	dayStrength:  "3 min: march in place (60s), arm circles (30s), hip hinge drill (60s), shallow squats (30s)",
	dayEndurance: "3 min: easy marching building to a brisk pace",
	dayMobility:  "2 min: slow breathing, neck rolls, shoulder rolls",
	dayCore:      "2 min: march in place (60s), standing side bends (60s)",
}

var cooldowns = map[dayKind]string{
	dayStrength:  "2 min: easy walk, then stretch whatever feels tight",
	dayEndurance: "2 min: slow walk until breathing settles",
	dayMobility:  "1 min: slow nasal breathing",
	dayCore:      "2 min: gentle stretching and slow breathing",
}

var finishers = map[dayKind]string{
	dayStrength:  "5 min: easy circuit of the first two exercises, one set each",
	dayEndurance: "4 min: steady brisk marching at a pace you could hold a conversation at",
}

func progressionFor(level workout.Level, conservative bool) string {
	var p string
	switch level {
	case workout.LevelAdvanced:
		p = "Progress load or tempo weekly while keeping the listed reps in reserve."
	case workout.LevelIntermediate:
		p = "Work to the top of each rep range, then add a set or slow the tempo."
	default:
		p = "Add 1 rep each session; when the top of the range feels easy, add a set."
	}
	if conservative {
		p += " Progress slowly and keep effort comfortable."
	}
	return p
}

var flagNotes = map[Flag]string{
	FlagKnee:         "Knee: deep knee bending and impact were left out; keep movements pain-free.",
	FlagBack:         "Back: loaded spinal flexion and heavy hinging were left out; brace gently and move slowly.",
	FlagShoulder:     "Shoulder: overhead and heavy pressing were left out; stay in a comfortable range.",
	FlagWrist:        "Wrist: weight-bearing on the hands was left out.",
	FlagAnkle:        "Ankle: jumping and single-leg balance work were left out.",
	FlagHypertension: "Blood pressure: avoid breath-holding and long isometric holds; keep effort moderate.",
	FlagOsteoporosis: "Bone density: twisting, spinal flexion and impact were left out.",
	FlagPregnant:     "Pregnancy: lying on the back or front and high-impact work were left out; get clearance from your clinician.",
}

const screeningCaveat = "Constraints were screened with a simple keyword check, not a medical assessment. Stop anything that hurts and talk to a clinician before starting."

func medicalNote(spec workout.PlanSpec, flags Flags) string {
	lines := []string{screeningCaveat}
	for _, f := range AllFlags {
		if flags.Has(f) {
			lines = append(lines, flagNotes[f])
		}
	}
	if spec.Age != nil && *spec.Age >= conservativeAge {
		lines = append(lines, "Age 55+: volume and effort are kept conservative.")
	}
	return strings.Join(lines, " ")
}

var defaultEngine = NewEngine()

// Generate builds a plan with the embedded library and keyword classifier.
func Generate(spec workout.PlanSpec) workout.Plan {
	return defaultEngine.Generate(spec)
}

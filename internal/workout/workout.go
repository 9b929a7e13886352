package workout

// Level is the self-reported training level.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// Canonical goal tags. Goals outside this set are kept as free text.
const (
	GoalWeightLoss = "weight_loss"
	GoalMuscleGain = "muscle_gain"
	GoalEndurance  = "endurance"
	GoalMobility   = "mobility"
	GoalCore       = "core"
)

// State tracks a caller's progress through intake and generation.
type State string

const (
	StateIntake    State = "INTAKE"
	StatePlanning  State = "PLANNING"
	StatePlanReady State = "PLAN_READY"
	StateError     State = "ERROR"
)

// Source marks which engine produced a plan.
type Source string

const (
	SourceGenerative Source = "generative"
	SourceRules      Source = "rules"
)

// PlanSpec is the normalized intake for one generation request.
type PlanSpec struct {
	UserName    string   `json:"userName"`
	Age         *int     `json:"age,omitempty"`
	Goal        string   `json:"goal"`
	Level       Level    `json:"level"`
	Constraints string   `json:"constraints"`
	DaysPerWeek int      `json:"daysPerWeek"`
	DurationMin int      `json:"durationMin"`
	Equipment   []string `json:"equipment"`
}

// Clone returns a copy that shares no memory with s.
func (s PlanSpec) Clone() PlanSpec {
	out := s
	if s.Age != nil {
		age := *s.Age
		out.Age = &age
	}
	out.Equipment = append([]string(nil), s.Equipment...)
	return out
}

// Plan is a one-week workout plan.
type Plan struct {
	Weeks       int    `json:"weeks"`
	DaysPerWeek int    `json:"daysPerWeek"`
	Plan        []Day  `json:"plan"`
	Progression string `json:"progression"`
	MedicalNote string `json:"medicalNote,omitempty"`
	Meta        Meta   `json:"meta"`
}

type Day struct {
	Day         string     `json:"day"`
	DurationMin int        `json:"durationMin"`
	Warmup      string     `json:"warmup,omitempty"`
	Workout     []Exercise `json:"workout"`
	Finisher    string     `json:"finisher,omitempty"`
	Cooldown    string     `json:"cooldown,omitempty"`
}

type Exercise struct {
	Exercise  string `json:"exercise"`
	Sets      int    `json:"sets"`
	Reps      string `json:"reps"`
	RIR       int    `json:"rir"`
	VideoURL  string `json:"videoUrl,omitempty"`
	GifSearch string `json:"gifSearch,omitempty"`
}

// Meta is provenance. Model is serialized as null for rule-based plans.
type Meta struct {
	Source  Source   `json:"source"`
	Model   *string  `json:"model"`
	Retries *int     `json:"retries,omitempty"`
	Tier    string   `json:"tier,omitempty"`
	Flags   []string `json:"flags,omitempty"`
}

// Clone returns a deep copy of p.
func (p Plan) Clone() Plan {
	out := p
	if p.Plan != nil {
		out.Plan = make([]Day, len(p.Plan))
		for i, d := range p.Plan {
			out.Plan[i] = d
			if d.Workout != nil {
				out.Plan[i].Workout = append([]Exercise(nil), d.Workout...)
			}
		}
	}
	if p.Meta.Model != nil {
		m := *p.Meta.Model
		out.Meta.Model = &m
	}
	if p.Meta.Retries != nil {
		r := *p.Meta.Retries
		out.Meta.Retries = &r
	}
	if p.Meta.Flags != nil {
		out.Meta.Flags = append([]string(nil), p.Meta.Flags...)
	}
	return out
}

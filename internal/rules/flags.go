package rules

import (
	"regexp"
	"strings"
)

// Flag is a health or injury indicator raised from free-text constraints.
type Flag string

const (
	FlagKnee         Flag = "knee"
	FlagBack         Flag = "back"
	FlagShoulder     Flag = "shoulder"
	FlagWrist        Flag = "wrist"
	FlagAnkle        Flag = "ankle"
	FlagHypertension Flag = "hypertension"
	FlagOsteoporosis Flag = "osteoporosis"
	FlagPregnant     Flag = "pregnant"

	// FlagNone is reported when nothing else fires. It never gates an exercise.
	FlagNone Flag = "none"
)

// AllFlags lists the real flags in reporting order.
var AllFlags = []Flag{
	FlagKnee, FlagBack, FlagShoulder, FlagWrist, FlagAnkle,
	FlagHypertension, FlagOsteoporosis, FlagPregnant,
}

func (f Flag) valid() bool {
	for _, known := range AllFlags {
		if f == known {
			return true
		}
	}
	return false
}

// Flags is a set of raised flags.
type Flags map[Flag]bool

// Has reports whether f is raised.
func (fs Flags) Has(f Flag) bool { return fs[f] }

// Any reports whether any of the given flags is raised.
func (fs Flags) Any(flags []Flag) bool {
	for _, f := range flags {
		if fs[f] {
			return true
		}
	}
	return false
}

// Strings renders the set in fixed order, or ["none"] when empty.
func (fs Flags) Strings() []string {
	var out []string
	for _, f := range AllFlags {
		if fs[f] {
			out = append(out, string(f))
		}
	}
	if len(out) == 0 {
		return []string{string(FlagNone)}
	}
	return out
}

// Classifier turns free-text constraints into flags.
type Classifier interface {
	Classify(text string) Flags
}

// KeywordClassifier matches fixed keyword groups. It is a screening
// heuristic and misses anything phrased outside its vocabulary.
type KeywordClassifier struct {
	patterns []flagPattern
}

type flagPattern struct {
	flag Flag
	re   *regexp.Regexp
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{patterns: []flagPattern{
		{FlagKnee, regexp.MustCompile(`(?i)\bknees?\b|\bacl\b|\bmcl\b|menisc|patell`)},
		{FlagBack, regexp.MustCompile(`(?i)\b(lower |upper )?back\b|lumbar|spin(e|al)|\bdiscs?\b|sciatica|herniat`)},
		{FlagShoulder, regexp.MustCompile(`(?i)shoulder|rotator|impingement`)},
		{FlagWrist, regexp.MustCompile(`(?i)wrist|carpal`)},
		{FlagAnkle, regexp.MustCompile(`(?i)ankle|achilles|plantar`)},
		{FlagHypertension, regexp.MustCompile(`(?i)hypertens|high blood pressure|\bhbp\b|\bhigh bp\b`)},
		{FlagOsteoporosis, regexp.MustCompile(`(?i)osteopor|osteopenia|brittle bones?|bone density`)},
		{FlagPregnant, regexp.MustCompile(`(?i)pregnan|prenatal|postpartum|post-partum|expecting`)},
	}}
}

func (c *KeywordClassifier) Classify(text string) Flags {
	flags := Flags{}
	text = strings.TrimSpace(text)
	if text == "" {
		return flags
	}
	for _, p := range c.patterns {
		if p.re.MatchString(text) {
			flags[p.flag] = true
		}
	}
	return flags
}

package rules

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed exercises.yaml
var exercisesYAML []byte

// Category is a movement pattern.
type Category string

const (
	CategorySquat     Category = "squat"
	CategoryHinge     Category = "hinge"
	CategoryPush      Category = "push"
	CategoryPull      Category = "pull"
	CategoryCore      Category = "core"
	CategoryEndurance Category = "endurance"
	CategoryMobility  Category = "mobility"
	CategoryBalance   Category = "balance"
)

var categories = []Category{
	CategorySquat, CategoryHinge, CategoryPush, CategoryPull,
	CategoryCore, CategoryEndurance, CategoryMobility, CategoryBalance,
}

// Mode controls how the prescription is written.
type Mode string

const (
	ModeReps     Mode = "reps"
	ModeHold     Mode = "hold"
	ModeInterval Mode = "interval"
)

// Entry is one exercise in the library.
type Entry struct {
	Name  string `yaml:"name"`
	Tier  Tier   `yaml:"tier"`
	Mode  Mode   `yaml:"mode"`
	Avoid []Flag `yaml:"avoid"`
}

// Eligible reports whether the entry may be prescribed at tier with flags.
func (e Entry) Eligible(tier Tier, flags Flags) bool {
	return tier.Unlocks(e.Tier) && !flags.Any(e.Avoid)
}

// Library maps each category to its entries in declared order.
type Library map[Category][]Entry

// LoadLibrary decodes and validates a YAML library.
func LoadLibrary(data []byte) (Library, error) {
	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("failed to decode exercise library: %w", err)
	}
	for _, c := range categories {
		if len(lib[c]) == 0 {
			return nil, fmt.Errorf("exercise library: category %q is empty", c)
		}
	}
	for c, entries := range lib {
		for i := range entries {
			e := &entries[i]
			if e.Name == "" {
				return nil, fmt.Errorf("exercise library: %s[%d] has no name", c, i)
			}
			if e.Tier.rank() < 0 {
				return nil, fmt.Errorf("exercise library: %q has unknown tier %q", e.Name, e.Tier)
			}
			if e.Mode == "" {
				e.Mode = ModeReps
			}
			for _, f := range e.Avoid {
				if !f.valid() {
					return nil, fmt.Errorf("exercise library: %q avoids unknown flag %q", e.Name, f)
				}
			}
		}
	}
	return lib, nil
}

// Pick walks the category in declared order and returns the first n
// eligible entries. It may return fewer than n.
func (l Library) Pick(c Category, n int, tier Tier, flags Flags) []Entry {
	var out []Entry
	for _, e := range l[c] {
		if len(out) == n {
			break
		}
		if e.Eligible(tier, flags) {
			out = append(out, e)
		}
	}
	return out
}

func mustLoadDefault() Library {
	lib, err := LoadLibrary(exercisesYAML)
	if err != nil {
		panic(err)
	}
	return lib
}

var defaultLibrary = mustLoadDefault()

// DefaultLibrary returns the embedded library.
func DefaultLibrary() Library { return defaultLibrary }

package rules

import "regexp"

// Tier is an equipment capability class.
type Tier string

const (
	TierBodyweight Tier = "bw"
	TierMinimal    Tier = "min"
	TierGym        Tier = "gym"
)

func (t Tier) rank() int {
	switch t {
	case TierGym:
		return 2
	case TierMinimal:
		return 1
	case TierBodyweight:
		return 0
	}
	return -1
}

// Unlocks reports whether equipment at tier t covers exercises needing other.
func (t Tier) Unlocks(other Tier) bool {
	return other.rank() >= 0 && t.rank() >= other.rank()
}

var (
	gymEquipment = regexp.MustCompile(`(?i)barbell|rack|bench|cable|machine|smith|leg press`)
	minEquipment = regexp.MustCompile(`(?i)dumbbell|kettlebell|\bbands?\b|resistance band`)
)

// ResolveTier classifies an equipment list into exactly one tier.
func ResolveTier(equipment []string) Tier {
	tier := TierBodyweight
	for _, item := range equipment {
		switch {
		case gymEquipment.MatchString(item):
			return TierGym
		case minEquipment.MatchString(item):
			tier = TierMinimal
		}
	}
	return tier
}

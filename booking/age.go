/*
age.go - Passenger age tiers and the Age Classifier

PURPOSE:
  Maps a passenger's date of birth to a pricing tier. Each tier carries a
  multiplier in [0, 1] applied to the adult base fare.

RULE SETS:
  Two rule sets exist in the fare rules we inherited and they disagree:

    ThreeTierRules (default): infant <2 -> 0.10, child 2-11 -> 0.75, adult -> 1.00
    TwoTierRules:             infant <2 -> 0.50,                    adult -> 1.00

  Neither is silently merged into the other. The active set is chosen by
  the rate card (age_rules.name) and passed in as configuration.

AGE ARITHMETIC:
  Whole elapsed years, calendar-correct: the naive year difference is
  decremented when the reference month/day precedes the birth month/day.
  No days/365 division.

FAIL CLOSED:
  An unparseable (or future) date of birth classifies as the highest-cost
  tier. Never the cheapest.
*/
package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the only accepted date of birth format.
const DateLayout = "2006-01-02"

// ErrInvalidRuleSet is returned when an age rule set is malformed.
var ErrInvalidRuleSet = errors.New("invalid age rule set")

// =============================================================================
// AGE TIERS
// =============================================================================

type TierName string

const (
	TierInfant TierName = "infant"
	TierChild  TierName = "child"
	TierAdult  TierName = "adult"
)

// AgeTier is one band of a rule set. A passenger belongs to the tier with
// the largest MinAge not exceeding their age.
type AgeTier struct {
	Name       TierName
	MinAge     int
	Multiplier decimal.Decimal
}

// AgeRuleSet is an ordered list of tiers.
type AgeRuleSet struct {
	Name  string
	Tiers []AgeTier
}

const (
	RuleSetThreeTier = "three_tier"
	RuleSetTwoTier   = "two_tier"
)

// ThreeTierRules is the default rule set.
func ThreeTierRules() AgeRuleSet {
	return AgeRuleSet{
		Name: RuleSetThreeTier,
		Tiers: []AgeTier{
			{Name: TierInfant, MinAge: 0, Multiplier: decimal.RequireFromString("0.10")},
			{Name: TierChild, MinAge: 2, Multiplier: decimal.RequireFromString("0.75")},
			{Name: TierAdult, MinAge: 12, Multiplier: decimal.NewFromInt(1)},
		},
	}
}

// TwoTierRules has no child band.
func TwoTierRules() AgeRuleSet {
	return AgeRuleSet{
		Name: RuleSetTwoTier,
		Tiers: []AgeTier{
			{Name: TierInfant, MinAge: 0, Multiplier: decimal.RequireFromString("0.50")},
			{Name: TierAdult, MinAge: 2, Multiplier: decimal.NewFromInt(1)},
		},
	}
}

// RuleSetByName returns one of the built-in rule sets.
func RuleSetByName(name string) (AgeRuleSet, error) {
	switch name {
	case "", RuleSetThreeTier:
		return ThreeTierRules(), nil
	case RuleSetTwoTier:
		return TwoTierRules(), nil
	default:
		return AgeRuleSet{}, fmt.Errorf("%w: unknown rule set %q", ErrInvalidRuleSet, name)
	}
}

// Validate checks the tiers are usable: a tier starting at age 0, strictly
// increasing boundaries, unique names and multipliers in [0, 1].
func (rs AgeRuleSet) Validate() error {
	if len(rs.Tiers) == 0 {
		return fmt.Errorf("%w: no tiers", ErrInvalidRuleSet)
	}
	one := decimal.NewFromInt(1)
	seen := make(map[TierName]bool, len(rs.Tiers))
	for i, t := range rs.Tiers {
		if t.Name == "" {
			return fmt.Errorf("%w: tier %d has no name", ErrInvalidRuleSet, i)
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: duplicate tier %q", ErrInvalidRuleSet, t.Name)
		}
		seen[t.Name] = true
		if t.Multiplier.IsNegative() || t.Multiplier.GreaterThan(one) {
			return fmt.Errorf("%w: tier %q multiplier %s outside [0, 1]", ErrInvalidRuleSet, t.Name, t.Multiplier)
		}
		if i == 0 && t.MinAge != 0 {
			return fmt.Errorf("%w: first tier must start at age 0", ErrInvalidRuleSet)
		}
		if i > 0 && t.MinAge <= rs.Tiers[i-1].MinAge {
			return fmt.Errorf("%w: tier boundaries must increase", ErrInvalidRuleSet)
		}
	}
	return nil
}

// sorted returns the tiers ordered by MinAge without touching the receiver.
func (rs AgeRuleSet) sorted() []AgeTier {
	tiers := append([]AgeTier(nil), rs.Tiers...)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinAge < tiers[j].MinAge })
	return tiers
}

// HighestCost returns the tier with the largest multiplier. Ties go to the
// older tier. An empty rule set yields a full-fare adult.
func (rs AgeRuleSet) HighestCost() AgeTier {
	tiers := rs.sorted()
	if len(tiers) == 0 {
		return AgeTier{Name: TierAdult, Multiplier: decimal.NewFromInt(1)}
	}
	best := tiers[len(tiers)-1]
	for _, t := range tiers {
		if t.Multiplier.GreaterThan(best.Multiplier) {
			best = t
		}
	}
	return best
}

// TierByName finds a tier for pre-classified passengers.
func (rs AgeRuleSet) TierByName(name string) (AgeTier, bool) {
	n := TierName(strings.ToLower(strings.TrimSpace(name)))
	for _, t := range rs.Tiers {
		if t.Name == n {
			return t, true
		}
	}
	return AgeTier{}, false
}

// ForAge returns the tier for a whole-year age.
func (rs AgeRuleSet) ForAge(age int) AgeTier {
	if age < 0 {
		return rs.HighestCost()
	}
	tiers := rs.sorted()
	match := rs.HighestCost()
	for _, t := range tiers {
		if age >= t.MinAge {
			match = t
		}
	}
	return match
}

// =============================================================================
// CLASSIFIER
// =============================================================================

// WholeYears returns completed years between dob and ref.
func WholeYears(dob, ref time.Time) int {
	years := ref.Year() - dob.Year()
	if ref.Month() < dob.Month() || (ref.Month() == dob.Month() && ref.Day() < dob.Day()) {
		years--
	}
	return years
}

// ClassifyDate classifies a parsed date of birth.
func (rs AgeRuleSet) ClassifyDate(dob, ref time.Time) AgeTier {
	return rs.ForAge(WholeYears(dob, ref))
}

// Classify parses a YYYY-MM-DD date of birth and classifies it. Anything
// unparseable is priced as the highest-cost tier.
func (rs AgeRuleSet) Classify(dob string, ref time.Time) AgeTier {
	d, err := time.Parse(DateLayout, strings.TrimSpace(dob))
	if err != nil {
		return rs.HighestCost()
	}
	return rs.ClassifyDate(d, ref)
}

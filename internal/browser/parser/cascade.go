// internal/browser/parser/cascade.go
package parser

import (
	"sort"
)

// Origin is the cascade origin of a rule.
type Origin int

const (
	OriginUserAgent Origin = iota
	OriginAuthor
)

// Specificity is the (a, b, c) triple of a complex selector.
type Specificity [3]int

// Less orders specificities lexicographically.
func (s Specificity) Less(o Specificity) bool {
	for i := range s {
		if s[i] != o[i] {
			return s[i] < o[i]
		}
	}
	return false
}

// Rule is one complex selector with its declarations, ready for matching.
// A rule set with a selector list flattens into one Rule per selector.
type Rule struct {
	Selector     ComplexSelector
	Declarations []Declaration
	Origin       Origin
	Specificity  Specificity
	Order        int
}

// Flatten turns style sheets into rules tagged with origin and source order.
// order continues the numbering so several calls can be combined.
func Flatten(origin Origin, order int, sheets ...StyleSheet) ([]Rule, int) {
	var rules []Rule
	for _, sheet := range sheets {
		for _, rs := range sheet.Rules {
			for _, sel := range rs.Selectors {
				a, b, c := sel.CalculateSpecificity()
				rules = append(rules, Rule{
					Selector:     sel,
					Declarations: rs.Declarations,
					Origin:       origin,
					Specificity:  Specificity{a, b, c},
					Order:        order,
				})
				order++
			}
		}
	}
	return rules, order
}

// SortRules orders rules by cascade priority, lowest first, so that applying
// them in order lets later rules win.
func SortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		r1, r2 := rules[i], rules[j]
		if r1.Origin != r2.Origin {
			return r1.Origin < r2.Origin
		}
		if r1.Specificity != r2.Specificity {
			return r1.Specificity.Less(r2.Specificity)
		}
		return r1.Order < r2.Order
	})
}

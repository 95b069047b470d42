// Package match implements the alert rule matching engine.
package match

import (
	"sort"
	"strings"

	"dealalert/internal/model"
)

// Match returns the subset of rules that the item satisfies.
// It is pure and deterministic: the result is ordered by rule ID,
// so shuffling the input never changes the output.
//
// Predicates by kind:
//   - category, coupon, affiliate_store: exact, case-sensitive equality
//     against the item's category label. All three compare the same
//     field; coupon and store rules are category aliases in the current
//     data model.
//   - keyword: case-insensitive substring of title or description.
//
// A rule of unrecognized kind matches nothing.
func Match(item model.Item, rules []model.AlertRule) []model.AlertRule {
	var matched []model.AlertRule
	for _, r := range rules {
		if Matches(item, r) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched
}

// Matches reports whether a single rule is satisfied by the item.
func Matches(item model.Item, r model.AlertRule) bool {
	switch r.Kind {
	case model.KindCategory, model.KindCoupon, model.KindAffiliateStore:
		return r.Value == item.Category
	case model.KindKeyword:
		needle := strings.ToLower(r.Value)
		if needle == "" {
			return false
		}
		return strings.Contains(strings.ToLower(item.Title), needle) ||
			strings.Contains(strings.ToLower(item.Description), needle)
	}
	return false
}

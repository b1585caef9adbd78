package integration

import "strings"

// SplitDisjunction splits a top-level "A OR B OR C" query into its
// individual terms. It only splits on the literal token " OR " (with
// surrounding spaces), matching spec behavior that this is a best-effort
// textual split, not a boolean-expression parser.
func SplitDisjunction(query string) []string {
	parts := strings.Split(query, " OR ")
	terms := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			terms = append(terms, p)
		}
	}
	return terms
}

// MergeByID unions result sets from repeated single-term queries,
// deduplicating by Item.ID (falling back to Item.URL when ID is empty)
// and preserving first-seen order.
func MergeByID(results ...[]Item) []Item {
	seen := make(map[string]struct{})
	var merged []Item
	for _, items := range results {
		for _, item := range items {
			key := item.ID
			if key == "" {
				key = item.URL
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, item)
		}
	}
	return merged
}

// ExecuteBooleanHostile runs a query against an upstream that rejects
// composite boolean expressions. It first tries the query verbatim; if
// that returns zero items or the upstream signals refusal (via
// refused), it splits on " OR " and unions the per-term results.
func ExecuteBooleanHostile(
	query string,
	runOne func(term string) ([]Item, bool, error),
) ([]Item, error) {
	items, refused, err := runOne(query)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 && !refused {
		return items, nil
	}

	terms := SplitDisjunction(query)
	if len(terms) <= 1 {
		return items, nil
	}

	var all [][]Item
	for _, term := range terms {
		termItems, _, err := runOne(term)
		if err != nil {
			continue
		}
		all = append(all, termItems)
	}
	return MergeByID(all...), nil
}

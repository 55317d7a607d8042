package extract

import (
	"fmt"
	"sort"

	"scrapeforge/internal/model"
)

// ApplyRules evaluates rules against HTML in display order. Scalar
// rules store the first match, list rules every match. A required rule
// that matches nothing contributes an error; optional misses are
// silently omitted.
func ApplyRules(htmlStr string, rules []model.Rule) (map[string]any, []string) {
	doc := NewDocument(htmlStr)
	data := make(map[string]any)
	var errs []string

	ordered := make([]model.Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].DisplayOrder < ordered[j].DisplayOrder
	})

	for _, r := range ordered {
		var values []string
		switch r.SelectorKind {
		case model.SelectorXPath:
			values = doc.XPath(r.Selector, r.Attribute, r.IsList)
		default:
			values = doc.CSS(r.Selector, r.Attribute, r.IsList)
		}

		if len(values) == 0 {
			if r.IsRequired {
				errs = append(errs, fmt.Sprintf("required field %q matched nothing (%s %s)",
					r.FieldName, r.SelectorKind, r.Selector))
			}
			continue
		}

		if r.IsList {
			data[r.FieldName] = values
		} else {
			data[r.FieldName] = values[0]
		}
	}
	return data, errs
}

package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CSS evaluates a CSS selector against the document. With all set it
// collects every non-empty match, otherwise the first. An invalid
// selector matches nothing; it never fails.
func (d *Document) CSS(selector, attribute string, all bool) []string {
	doc, err := d.gqDoc()
	if err != nil {
		return nil
	}

	var out []string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var v string
		if attribute != "" {
			v = strings.TrimSpace(s.AttrOr(attribute, ""))
		} else {
			v = strings.TrimSpace(s.Text())
		}
		if v != "" {
			out = append(out, v)
		}
		return all || len(out) == 0
	})
	return out
}

package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// XPath evaluates an XPath 1.0 expression against the document.
// Node-set results yield one value per node (attribute value when
// attribute is set, inner text otherwise); string, number and boolean
// results are returned directly as a single value. Invalid expressions
// match nothing.
func (d *Document) XPath(expr, attribute string, all bool) []string {
	root, err := d.xpRoot()
	if err != nil {
		return nil
	}

	nodes, err := queryAllSafe(root, expr)
	if err != nil || len(nodes) == 0 {
		// Scalar expressions (normalize-space, count, contains at the
		// top level) surface here as an error or an empty node set.
		// Node-set expressions that matched nothing evaluate to an
		// iterator, which evalScalar rejects, so they stay empty.
		if v, ok := evalScalar(root, expr); ok {
			return []string{v}
		}
		return nil
	}

	var out []string
	for _, n := range nodes {
		var v string
		if attribute != "" {
			v = strings.TrimSpace(htmlquery.SelectAttr(n, attribute))
		} else {
			v = strings.TrimSpace(htmlquery.InnerText(n))
		}
		if v == "" {
			continue
		}
		out = append(out, v)
		if !all {
			break
		}
	}
	return out
}

// queryAllSafe wraps htmlquery.QueryAll, converting the panic raised
// for non-node-set expressions into an error.
func queryAllSafe(root *html.Node, expr string) (nodes []*html.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			nodes, err = nil, fmt.Errorf("xpath: %v", r)
		}
	}()
	return htmlquery.QueryAll(root, expr)
}

// evalScalar evaluates expr expecting a primitive result.
func evalScalar(root *html.Node, expr string) (val string, ok bool) {
	exp, err := xpath.Compile(expr)
	if err != nil {
		return "", false
	}
	defer func() {
		if r := recover(); r != nil {
			val, ok = "", false
		}
	}()

	switch v := exp.Evaluate(htmlquery.CreateXPathNavigator(root)).(type) {
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

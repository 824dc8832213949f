package schema

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Compiled is a validated profile with every XPath expression compiled.
// Compiled values are not safe for concurrent evaluation; each feed owns one.
type Compiled struct {
	Kind             Kind
	Currency         string
	EURRate          float64
	PriceUnit        PriceUnit
	AreaUnit         AreaUnit
	ImageBase        *url.URL
	OnRequestMarkers []string

	recordPath *xpath.Expr
	fields     map[Field]*xpath.Expr
	locales    []string
}

// Compile resolves p against its kind, validates it and compiles its
// expressions. It is called once per feed at configuration time.
func Compile(p Profile) (*Compiled, error) {
	resolved, err := resolve(p)
	if err != nil {
		return nil, err
	}
	if err := validate(resolved); err != nil {
		return nil, fmt.Errorf("profile %s: %w", resolved.Kind, err)
	}

	c := &Compiled{
		Kind:      resolved.Kind,
		Currency:  resolved.Currency,
		EURRate:   resolved.EURRate,
		PriceUnit: resolved.PriceUnit,
		AreaUnit:  resolved.AreaUnit,
		fields:    make(map[Field]*xpath.Expr, len(resolved.Fields)),
	}
	for _, m := range resolved.OnRequestMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			c.OnRequestMarkers = append(c.OnRequestMarkers, m)
		}
	}
	if resolved.ImageBase != "" {
		c.ImageBase, _ = url.Parse(resolved.ImageBase)
	}

	if c.recordPath, err = xpath.Compile(resolved.RecordPath); err != nil {
		return nil, fmt.Errorf("profile %s: record_path %q: %w", resolved.Kind, resolved.RecordPath, err)
	}
	for f, src := range resolved.Fields {
		expr, err := xpath.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("profile %s: field %s %q: %w", resolved.Kind, f, src, err)
		}
		c.fields[f] = expr
		if loc, ok := strings.CutPrefix(string(f), descriptionPrefix); ok {
			c.locales = append(c.locales, loc)
		}
	}
	sort.Strings(c.locales)
	return c, nil
}

// MustCompile is Compile for built-in or test profiles known to be valid.
func MustCompile(p Profile) *Compiled {
	c, err := Compile(p)
	if err != nil {
		panic(err)
	}
	return c
}

// Records returns the listing nodes of a parsed feed document.
func (c *Compiled) Records(doc *xmlquery.Node) []*xmlquery.Node {
	return xmlquery.QuerySelectorAll(doc, c.recordPath)
}

// Has reports whether field is mapped.
func (c *Compiled) Has(f Field) bool {
	_, ok := c.fields[f]
	return ok
}

// Locales lists the description locales the profile maps, sorted.
func (c *Compiled) Locales() []string {
	return c.locales
}

// Text returns the first non-empty trimmed value of field on node, or "".
func (c *Compiled) Text(n *xmlquery.Node, f Field) string {
	vals := c.Texts(n, f)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// Texts returns every non-empty trimmed value of field on node, in document
// order. Unmapped fields yield nil.
func (c *Compiled) Texts(n *xmlquery.Node, f Field) []string {
	expr, ok := c.fields[f]
	if !ok || n == nil {
		return nil
	}

	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	switch v := expr.Evaluate(xmlquery.CreateXPathNavigator(n)).(type) {
	case string:
		add(v)
	case float64:
		if !math.IsNaN(v) {
			add(strconv.FormatFloat(v, 'f', -1, 64))
		}
	case bool:
		if v {
			add("1")
		} else {
			add("0")
		}
	case *xpath.NodeIterator:
		for v.MoveNext() {
			add(v.Current().Value())
		}
	}
	return out
}

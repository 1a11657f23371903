package catalog

import (
	"regexp"
	"strings"
)

// Rule is one extraction layout for the holdings table.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	// Capture group positions.
	SiteGroup  int
	IDGroup    int
	StateGroup int
}

func (r Rule) extract(html string) []DeviceRecord {
	var records []DeviceRecord
	for _, m := range r.Pattern.FindAllStringSubmatch(html, -1) {
		records = append(records, DeviceRecord{
			ID:    strings.TrimSpace(m[r.IDGroup]),
			Site:  strings.TrimSpace(m[r.SiteGroup]),
			State: strings.TrimSpace(m[r.StateGroup]),
		})
	}
	return records
}

// The catalog renders holdings either with the barcode inside a "browse" link
// or between the "field C" and "field v" markers.
var (
	browseRule = Rule{
		Name:       "browse",
		Pattern:    regexp.MustCompile(`<!-- field 1 -->&nbsp;\s*?(\S.*?)\s*?\n[\s\S]+?browse">\s*?(\S.*?)\s*?</a>[\s\S]+?<!-- field % -->&nbsp;\s*?(\S.*?)\s*?</td>`),
		SiteGroup:  1,
		IDGroup:    2,
		StateGroup: 3,
	}
	fieldCRule = Rule{
		Name:       "field-c",
		Pattern:    regexp.MustCompile(`<!-- field 1 -->&nbsp;\s*?(\S.*?)\s*?\n[\s\S]+?<!-- field C -->(.*?)<!-- field v -->[\s\S]+?<!-- field % -->&nbsp;\s*?(\S.*?)\s*?</td>`),
		SiteGroup:  1,
		IDGroup:    2,
		StateGroup: 3,
	}
)

// DefaultRules returns the holdings layouts in priority order.
func DefaultRules() []Rule {
	return []Rule{browseRule, fieldCRule}
}

// Parser applies an ordered list of rules; the first rule with any match wins.
type Parser struct {
	rules []Rule
}

// NewParser creates a parser. With no rules it uses DefaultRules.
func NewParser(rules ...Rule) *Parser {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Parser{rules: rules}
}

// Parse extracts holding records from a catalog page.
func (p *Parser) Parse(html string) []DeviceRecord {
	_, records := p.Match(html)
	return records
}

// Match is Parse that also reports which rule matched. The name is empty when none did.
func (p *Parser) Match(html string) (string, []DeviceRecord) {
	for _, rule := range p.rules {
		if records := rule.extract(html); len(records) > 0 {
			return rule.Name, records
		}
	}
	return "", nil
}

package holding

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortKey selects one of the list orders offered by the front end.
type SortKey string

const (
	SortByID    SortKey = "id"
	SortByState SortKey = "state"
	SortBySite  SortKey = "site"
)

// ParseSortKey returns the key for s, defaulting to SortByState.
func ParseSortKey(s string) SortKey {
	switch SortKey(s) {
	case SortByID, SortBySite:
		return SortKey(s)
	default:
		return SortByState
	}
}

// Sort orders holdings in place. A collator is not safe for concurrent use, so
// each call gets its own.
func Sort(hs []Holding, key SortKey) {
	c := collate.New(language.Chinese)
	cmp := func(a, b string) int { return c.CompareString(a, b) }

	var less func(a, b Holding) bool
	switch key {
	case SortByID:
		less = func(a, b Holding) bool {
			return cmp(a.ID, b.ID) < 0
		}
	case SortBySite:
		less = func(a, b Holding) bool {
			if r := cmp(strings.ToLower(a.Site), strings.ToLower(b.Site)); r != 0 {
				return r < 0
			}
			return lessStateDateID(cmp, a, b)
		}
	default:
		less = func(a, b Holding) bool {
			return lessStateDateID(cmp, a, b)
		}
	}
	sort.SliceStable(hs, func(i, j int) bool { return less(hs[i], hs[j]) })
}

func lessStateDateID(cmp func(a, b string) int, a, b Holding) bool {
	if r := cmp(a.State, b.State); r != 0 {
		return r < 0
	}
	if r := cmp(a.Date, b.Date); r != 0 {
		return r < 0
	}
	return cmp(a.ID, b.ID) < 0
}

// pattern compiles a case-insensitive user pattern. Invalid expressions match literally.
func pattern(expr string) *regexp.Regexp {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(expr))
	}
	return re
}

// Match keeps holdings whose type and state match the given patterns. Empty patterns match everything.
func Match(hs []Holding, typeExpr, stateExpr string) []Holding {
	typeRe, stateRe := pattern(typeExpr), pattern(stateExpr)
	out := make([]Holding, 0, len(hs))
	for _, h := range hs {
		if typeRe.MatchString(h.Type) && stateRe.MatchString(h.State) {
			out = append(out, h)
		}
	}
	return out
}

// Search keeps holdings whose combined text matches text.
func Search(hs []Holding, text string) []Holding {
	re := pattern(text)
	out := make([]Holding, 0, len(hs))
	for _, h := range hs {
		if re.MatchString(h.fullText()) {
			out = append(out, h)
		}
	}
	return out
}

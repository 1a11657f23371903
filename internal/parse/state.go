package parse

import (
	"regexp"
	"strings"
)

var dateRe = regexp.MustCompile(`\d+-\d+-\d+`)

// Loan states the catalog prints, in matching priority.
const (
	StateOnShelf     = "在架上"
	StateOnHoldShelf = "在预约架上"
	StateDue         = "到期"
	StateRepair      = "修补中"
	StateInTransit   = "IN TRANSIT"
)

var knownStates = []string{StateOnShelf, StateOnHoldShelf, StateDue, StateRepair, StateInTransit}

// Device types derived from the holding site.
const (
	TypeIPad = "IPAD"
	TypeIMac = "IMAC"
	TypePBL  = "PBL"
	TypeMini = "MINI"
)

// sitePrefixes is ordered: "iLibrary Space2" must be checked before "iLibrary Space".
var sitePrefixes = []struct {
	prefix string
	kind   string
}{
	{"iLibrary Space2", TypeIPad},
	{"iLibrary Space", TypeIMac},
	{"PBL", TypePBL},
	{"MINI", TypeMini},
}

// DeviceType maps a holding site to a device type. Unknown sites are returned unchanged.
func DeviceType(site string) string {
	for _, p := range sitePrefixes {
		if strings.HasPrefix(site, p.prefix) {
			return p.kind
		}
	}
	return site
}

// ParsedState holds the structured data parsed from a raw holding state.
type ParsedState struct {
	State string
	Date  string // yy-mm-dd, empty when absent
	Note  string
}

// ParseState splits a raw state such as "到期 17-01-05 +1 HOLD" into state, due date and note.
func ParseState(raw string) ParsedState {
	date := ""
	withoutDate := raw
	if loc := dateRe.FindStringIndex(raw); loc != nil {
		date = raw[loc[0]:loc[1]]
		withoutDate = raw[:loc[0]] + raw[loc[1]:]
	}
	withoutDate = strings.TrimSpace(withoutDate)

	state := ""
	for _, s := range knownStates {
		if strings.Contains(raw, s) {
			state = s
			break
		}
	}
	if state == "" {
		return ParsedState{State: withoutDate, Date: date, Note: withoutDate}
	}

	// The note drops the leftmost keyword, which is not necessarily the matched state.
	note := withoutDate
	first, at := "", -1
	for _, s := range knownStates {
		if i := strings.Index(note, s); i >= 0 && (at < 0 || i < at) {
			first, at = s, i
		}
	}
	if at >= 0 {
		note = note[:at] + note[at+len(first):]
	}

	return ParsedState{State: state, Date: date, Note: strings.TrimSpace(note)}
}

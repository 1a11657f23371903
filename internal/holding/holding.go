package holding

import (
	"strings"
	"time"

	"ipad-status-backend/internal/catalog"
	"ipad-status-backend/internal/parse"
)

// Friendly states for loans close to or past their due time.
const (
	FriendlyOverdue     = "超期！"
	FriendlyDueToday    = "今日到期"
	FriendlyDueTomorrow = "明日到期"
)

// Loans are due at 21:30 on the due date.
const (
	dueHour   = 21
	dueMinute = 30
)

// Holding is a catalog record with everything the front end derives from it.
type Holding struct {
	ID            string `json:"id"`
	Site          string `json:"site"`
	Type          string `json:"type"`
	RawState      string `json:"rawState"`
	State         string `json:"state"`
	Date          string `json:"date"`
	Note          string `json:"msg"`
	FriendlyState string `json:"friendlyState"`
	ClassName     string `json:"className"`
}

// Available reports whether the device can be borrowed now.
func (h Holding) Available() bool {
	return h.State == parse.StateOnShelf
}

func (h Holding) fullText() string {
	return h.Type + h.ID + h.Site + h.RawState + h.FriendlyState
}

// New derives a holding from a record as of now.
func New(r catalog.DeviceRecord, now time.Time, loc *time.Location) Holding {
	parsed := parse.ParseState(r.State)
	friendly := FriendlyState(parsed.State, parsed.Date, now, loc)
	return Holding{
		ID:            r.ID,
		Site:          r.Site,
		Type:          parse.DeviceType(r.Site),
		RawState:      r.State,
		State:         parsed.State,
		Date:          parsed.Date,
		Note:          parsed.Note,
		FriendlyState: friendly,
		ClassName:     ClassName(friendly),
	}
}

// FromRecords derives holdings for every record, keeping order.
func FromRecords(records []catalog.DeviceRecord, now time.Time, loc *time.Location) []Holding {
	out := make([]Holding, 0, len(records))
	for _, r := range records {
		out = append(out, New(r, now, loc))
	}
	return out
}

// DueAt returns the due instant for a yy-mm-dd date.
func DueAt(date string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation("06-1-2", date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), dueHour, dueMinute, 0, 0, loc), nil
}

// FriendlyState replaces a due state with how soon it is due. Other states pass through.
func FriendlyState(state, date string, now time.Time, loc *time.Location) string {
	if !strings.Contains(state, parse.StateDue) || date == "" {
		return state
	}
	due, err := DueAt(date, loc)
	if err != nil {
		return state
	}
	remain := due.Sub(now)
	switch {
	case remain < 0:
		return FriendlyOverdue
	case remain < 21*time.Hour+30*time.Minute:
		return FriendlyDueToday
	case remain < 45*time.Hour+30*time.Minute:
		return FriendlyDueTomorrow
	}
	return state
}

// ClassName maps a friendly state to the table row style.
func ClassName(friendly string) string {
	switch friendly {
	case FriendlyOverdue:
		return "danger"
	case FriendlyDueToday:
		return "warning"
	case FriendlyDueTomorrow:
		return "info"
	case parse.StateOnShelf:
		return "success"
	default:
		return ""
	}
}

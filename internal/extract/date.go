package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const monthNames = `jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec`

// datePattern finds a date after "on" or "for". Group 1 is the date text.
var datePattern = regexp.MustCompile(`(?i)\b(?:on|for)\s+(` +
	`\d{4}-\d{1,2}-\d{1,2}` +
	`|\d{1,2}[/-]\d{1,2}[/-]\d{2,4}` +
	`|\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?(?:` + monthNames + `)[a-z]*\.?(?:,?\s+\d{4})?` +
	`|(?:` + monthNames + `)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?` +
	`|today|tomorrow` +
	`)\b`)

var (
	ordinalSuffix = regexp.MustCompile(`(\d)(?:st|nd|rd|th)\b`)
	monthDayRe    = regexp.MustCompile(`^(` + monthNames + `)[a-z]*\s+(\d{1,2})(?:\s+(\d{4}))?$`)
	dayMonthRe    = regexp.MustCompile(`^(\d{1,2})\s+(` + monthNames + `)[a-z]*(?:\s+(\d{4}))?$`)
)

// dateLayouts are tried in order. Numeric dates read month-first and
// fall back to day-first when the month would be out of range.
var dateLayouts = []string{
	"2006-1-2",
	"1/2/2006", "1-2-2006", "1/2/06", "1-2-06",
	"2/1/2006", "2-1-2006", "2/1/06", "2-1-06",
	"January 2 2006", "Jan 2 2006",
	"2 January 2006", "2 Jan 2006",
}

// startHour is the time of day given to events created from chat.
const startHour = 9

// ResolvedDate is a calendar date with the label shown to the user.
type ResolvedDate struct {
	Year  int
	Month time.Month
	Day   int
	// Label is "today", "tomorrow", or M/D/YYYY.
	Label string
}

// StartDate formats the date as a local wall-clock start time,
// YYYY-MM-DDT09:00, with no zone offset.
func (d ResolvedDate) StartDate() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:00", d.Year, int(d.Month), d.Day, startHour)
}

// DateResolver turns date hints into calendar dates in a fixed zone.
type DateResolver struct {
	// Now returns the current instant; nil means time.Now.
	Now func() time.Time
	// Location is the user's zone; nil means time.Local.
	Location *time.Location
	// ReferenceYear is used for month/day dates without a year.
	ReferenceYear int
}

// Resolve finds and resolves the date hint in utterance. Text that
// cannot be understood resolves to today.
func (r DateResolver) Resolve(utterance string) ResolvedDate {
	today := r.today()

	m := datePattern.FindStringSubmatch(utterance)
	if m == nil {
		return labelled(today, "today")
	}
	hint := normalizeDate(m[1])

	switch hint {
	case "tomorrow":
		return labelled(today.AddDate(0, 0, 1), "tomorrow")
	case "today":
		return labelled(today, "today")
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, hint, r.location()); err == nil {
			return numeric(t)
		}
	}

	if t, ok := r.monthDay(hint); ok {
		return numeric(t)
	}
	return labelled(today, "today")
}

// monthDay handles named-month dates the layouts reject, such as
// "july 8" or "8 sept 2025". A missing year is the reference year.
func (r DateResolver) monthDay(hint string) (time.Time, bool) {
	var monthWord, dayText, yearText string
	if m := monthDayRe.FindStringSubmatch(hint); m != nil {
		monthWord, dayText, yearText = m[1], m[2], m[3]
	} else if m := dayMonthRe.FindStringSubmatch(hint); m != nil {
		dayText, monthWord, yearText = m[1], m[2], m[3]
	} else {
		return time.Time{}, false
	}

	month := time.Month(strings.Index(monthNames, monthWord)/4 + 1)
	day, err := strconv.Atoi(dayText)
	if err != nil {
		return time.Time{}, false
	}
	year := r.ReferenceYear
	if year == 0 {
		year = 2025
	}
	if yearText != "" {
		if y, err := strconv.Atoi(yearText); err == nil {
			year = y
		}
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, r.location())
	if t.Month() != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func (r DateResolver) today() time.Time {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	y, m, d := now().In(r.location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.location())
}

func (r DateResolver) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

func normalizeDate(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = strings.NewReplacer(",", " ", ".", " ", " of ", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func labelled(t time.Time, label string) ResolvedDate {
	return ResolvedDate{Year: t.Year(), Month: t.Month(), Day: t.Day(), Label: label}
}

func numeric(t time.Time) ResolvedDate {
	return labelled(t, fmt.Sprintf("%d/%d/%d", int(t.Month()), t.Day(), t.Year()))
}

package extract

import (
	"regexp"
	"strings"
)

var (
	taskTriggers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:create|make|add)\s+(?:an?\s+|the\s+)?(?:new\s+)?task\b`),
		regexp.MustCompile(`(?i)\btask\s+(?:called|named|titled)\b`),
	}
	eventTriggers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:create|add)\s+(?:an?\s+|the\s+)?(?:new\s+)?event\b`),
		regexp.MustCompile(`(?i)\bevent\s+(?:called|named|titled)\b`),
	}
	deleteTrigger = regexp.MustCompile(`(?i)\bdelete\s+(?:the\s+)?task\b`)

	leadingNamer   = regexp.MustCompile(`(?i)^(?::\s*)?(?:called|named|titled)\b\s*:?\s*`)
	priorityClause = regexp.MustCompile(`(?i)(?:^|[\s,]+)(?:(?:with|at)\s+)?(?:an?\s+)?(?:(?:high|medium|low)\s+priority|priority\s+(?:of\s+)?(?:high|medium|low))\b.*$`)
)

// quotePairs maps an opening quote to its closing quote.
var quotePairs = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'“':  '”',
	'‘':  '’',
}

// TaskTitle extracts the title of a task to create.
func TaskTitle(utterance string) string {
	rest, ok := after(utterance, taskTriggers)
	if !ok {
		return ""
	}
	return title(rest, func(s string) string {
		return priorityClause.ReplaceAllString(s, "")
	})
}

// EventTitle extracts the title of an event, dropping a trailing date
// clause the date resolver understands.
func EventTitle(utterance string) string {
	rest, ok := after(utterance, eventTriggers)
	if !ok {
		return ""
	}
	return title(rest, func(s string) string {
		if loc := datePattern.FindStringIndex(s); loc != nil {
			s = s[:loc[0]]
		}
		return s
	})
}

// DeleteTitle extracts the title fragment of a task to delete.
func DeleteTitle(utterance string) string {
	rest, ok := after(utterance, []*regexp.Regexp{deleteTrigger})
	if !ok {
		return ""
	}
	return title(rest, nil)
}

// after returns the text following the first trigger that matches.
func after(s string, triggers []*regexp.Regexp) (string, bool) {
	for _, re := range triggers {
		if loc := re.FindStringIndex(s); loc != nil {
			return s[loc[1]:], true
		}
	}
	return "", false
}

// title cleans the text after a trigger. A quoted title is taken as
// written; a bare one is passed through trim first.
func title(rest string, trim func(string) string) string {
	rest = strings.TrimSpace(rest)
	rest = leadingNamer.ReplaceAllString(rest, "")

	if r, size := firstRune(rest); size > 0 {
		if closing, ok := quotePairs[r]; ok {
			body := rest[size:]
			if end := strings.IndexRune(body, closing); end >= 0 {
				return strings.TrimSpace(body[:end])
			}
			rest = body
		}
	}

	if trim != nil {
		rest = trim(rest)
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(rest), trimChars))
}

func firstRune(s string) (rune, int) {
	for _, r := range s {
		return r, len(string(r))
	}
	return 0, 0
}

// Package intent classifies a chat utterance into one of a fixed set of
// assistant actions using an ordered list of keyword rules. The first
// rule that matches wins; later rules are never consulted, so the order
// of [Rules] is part of the contract.
package intent

import "strings"

// Intent is the classified purpose of an utterance.
type Intent string

const (
	CreateTask                Intent = "create_task"
	DeleteTask                Intent = "delete_task"
	CreateEvent               Intent = "create_event"
	InviteMember              Intent = "invite_member"
	ChangeTheme               Intent = "change_theme"
	ListThemes                Intent = "list_themes"
	UpdateProfile             Intent = "update_profile"
	ToggleNotificationSetting Intent = "toggle_notification_setting"
	ExplainPriority           Intent = "explain_priority"
	Help                      Intent = "help"
	Unrecognized              Intent = "unrecognized"
)

// All lists every intent, in rule order, ending with the fallback.
var All = []Intent{
	CreateTask, DeleteTask, CreateEvent, InviteMember, ChangeTheme,
	UpdateProfile, ListThemes, ToggleNotificationSetting,
	ExplainPriority, Help, Unrecognized,
}

// Rule maps a keyword test to an intent.
type Rule struct {
	// Name identifies the rule in decision audits.
	Name   string
	Intent Intent
	// Match receives the lower-cased utterance.
	Match func(lower string) bool
}

// Rules is the classification cascade, evaluated top to bottom.
var Rules = []Rule{
	{
		Name:   "create-task",
		Intent: CreateTask,
		Match:  both(anyOf("create", "make", "add"), anyOf("task")),
	},
	{
		Name:   "delete-task",
		Intent: DeleteTask,
		Match:  both(anyOf("delete"), anyOf("task")),
	},
	{
		Name:   "create-event",
		Intent: CreateEvent,
		Match:  both(anyOf("create", "add"), anyOf("event")),
	},
	{
		Name:   "invite-member",
		Intent: InviteMember,
		Match:  both(anyOf("invite", "add"), anyOf("member", "user", "team")),
	},
	{
		Name:   "change-theme",
		Intent: ChangeTheme,
		Match:  both(anyOf("change", "set", "switch"), anyOf("theme")),
	},
	{
		// Any other mention of "theme" is a request to see the catalog,
		// even when profile words are present.
		Name:   "list-themes",
		Intent: ListThemes,
		Match:  anyOf("theme"),
	},
	{
		Name:   "update-profile",
		Intent: UpdateProfile,
		Match:  both(anyOf("update", "change", "set"), anyOf("profile", "name", "bio")),
	},
	{
		Name:   "toggle-notifications",
		Intent: ToggleNotificationSetting,
		Match:  anyOf("enable", "disable"),
	},
	{
		Name:   "explain-priority",
		Intent: ExplainPriority,
		Match:  anyOf("priority"),
	},
	{
		Name:   "help",
		Intent: Help,
		Match:  anyOf("help", "what can you do"),
	},
}

// Decision records how an utterance was classified.
type Decision struct {
	Intent Intent `json:"intent"`
	// Rule is the name of the matching rule, or "fallback".
	Rule           string   `json:"rule"`
	RulesEvaluated []string `json:"rules_evaluated"`
}

// FallbackRule names the decision reached when no rule matches.
const FallbackRule = "fallback"

// Classify assigns exactly one intent to utterance. It never fails;
// text that matches no rule is [Unrecognized].
func Classify(utterance string) Decision {
	lower := strings.ToLower(utterance)
	d := Decision{RulesEvaluated: make([]string, 0, len(Rules))}
	for _, r := range Rules {
		d.RulesEvaluated = append(d.RulesEvaluated, r.Name)
		if r.Match(lower) {
			d.Intent = r.Intent
			d.Rule = r.Name
			return d
		}
	}
	d.Intent = Unrecognized
	d.Rule = FallbackRule
	return d
}

func anyOf(words ...string) func(string) bool {
	return func(s string) bool {
		for _, w := range words {
			if strings.Contains(s, w) {
				return true
			}
		}
		return false
	}
}

func both(a, b func(string) bool) func(string) bool {
	return func(s string) bool { return a(s) && b(s) }
}

package assistant

import (
	"fmt"
	"strings"

	"github.com/nugget/taskbuddy/internal/intent"
	"github.com/nugget/taskbuddy/internal/theme"
)

// Greeting is the welcome message shown when a chat opens. It is not
// part of the turn log.
func Greeting(name string) string {
	if name == "" {
		name = "TaskBuddy"
	}
	return fmt.Sprintf("Hi! I'm %s, your AI assistant for task management and productivity. How can I help you organize your work today?", name)
}

// FaultReply is the turn appended when processing fails unexpectedly.
const FaultReply = "Sorry, I encountered an error while processing your request. Please try again."

const (
	taskClarify = "I'd be happy to create a task for you! Please specify the task title, for example: 'Create task called Review documents with high priority'"

	deleteClarify = "To delete a task, please specify the task title, for example: 'Delete task called Review documents'"

	eventClarify = "I'd be happy to create an event for you! Please specify the event title, for example: 'Create event called Team Meeting' or 'Add event called Review on July 8th'"

	inviteClarify = "To invite a team member, please provide their email address. For example: 'Invite john.doe@example.com to the team' or 'Add member with email sarah@company.com'"

	profileClarify = "To update your profile, specify what you'd like to change. For example:\n" +
		"• 'Update name to John Smith'\n" +
		"• 'Set bio to Software Developer'\n" +
		"• 'Change profile name to Jane Doe'"

	settingsClarify = "I can help you manage notification settings. Try:\n" +
		"• 'Enable email notifications'\n" +
		"• 'Disable push notifications'"

	priorityExplanation = "Task priorities help you organize work by importance:\n\n" +
		"🔴 **High Priority**: Urgent tasks that need immediate attention\n" +
		"🟡 **Medium Priority**: Regular work items\n" +
		"🟢 **Low Priority**: Tasks that can wait\n\n" +
		"You can set priority when creating tasks or ask me to create one, like: 'Make task called Review proposal with high priority'"

	helpText = "I'm your comprehensive TaskFlow AI assistant! Here's what I can do:\n\n" +
		"📝 **Tasks & Events**\n" +
		"• 'Create task called [title] with [priority] priority'\n" +
		"• 'Delete task called [title]'\n" +
		"• 'Create event called [title]' or 'Add event called [title] on July 8th'\n\n" +
		"👥 **Team Management**\n" +
		"• 'Invite john@example.com to the team'\n" +
		"• 'Add member with email sarah@company.com'\n\n" +
		"🎨 **Themes & Customization**\n" +
		"• 'Change theme to dark'\n" +
		"• 'Set theme to blue'\n\n" +
		"👤 **Profile & Settings**\n" +
		"• 'Update name to John Smith'\n" +
		"• 'Set bio to Software Developer'\n" +
		"• 'Enable email notifications'\n" +
		"• 'Disable push notifications'\n\n" +
		"Just tell me what you'd like to do!"

	unrecognizedText = "I'm your TaskFlow AI assistant! I can help you with:\n\n" +
		"📝 Tasks & Events | 👥 Team Management | 🎨 Themes | 👤 Profile & Settings\n\n" +
		"Try saying:\n" +
		"• 'Create task called [task name]'\n" +
		"• 'Add event called Meeting on July 8th'\n" +
		"• 'Invite someone@email.com'\n" +
		"• 'Change theme to dark'\n" +
		"• 'Update my name'\n\n" +
		"What would you like me to help you with?"
)

// Render turns an outcome into the assistant's reply. It is the only
// place reply wording lives.
func Render(o Outcome) string {
	switch o.Intent {
	case intent.CreateTask:
		switch o.Kind {
		case OutcomeClarify:
			return taskClarify
		case OutcomeFailed:
			return fmt.Sprintf("❌ Sorry, I couldn't create the task \"%s\". Please make sure you're logged in and try again.", o.Title)
		default:
			return fmt.Sprintf("✅ Task \"%s\" created successfully with %s priority! You can find it in the Todo column of your Kanban board.", o.Title, o.Priority)
		}

	case intent.DeleteTask:
		switch o.Kind {
		case OutcomeClarify:
			return deleteClarify
		case OutcomeNotFound:
			return fmt.Sprintf("❌ I couldn't find a task with the title \"%s\". Please check the task name and try again.", o.Title)
		case OutcomeFailed:
			return fmt.Sprintf("❌ Sorry, I couldn't delete the task \"%s\". Please try again.", o.Title)
		default:
			return fmt.Sprintf("🗑️ Task \"%s\" has been deleted successfully!", o.Title)
		}

	case intent.CreateEvent:
		switch o.Kind {
		case OutcomeClarify:
			return eventClarify
		case OutcomeFailed:
			return fmt.Sprintf("❌ Sorry, I couldn't create the event \"%s\". Please make sure you're logged in and try again.", o.Title)
		default:
			return fmt.Sprintf("📅 Event \"%s\" created successfully for %s! You can view and edit it in the Calendar section.", o.Title, o.DateLabel)
		}

	case intent.InviteMember:
		switch o.Kind {
		case OutcomeClarify:
			return inviteClarify
		case OutcomeFailed:
			return fmt.Sprintf("❌ Sorry, I couldn't send the invitation to %s. Please try again.", o.Email)
		default:
			return fmt.Sprintf("👥 Team invitation sent successfully to %s (%s)! They will receive an email invitation to join your team.", o.Name, o.Email)
		}

	case intent.ChangeTheme:
		switch o.Kind {
		case OutcomeNotFound:
			return fmt.Sprintf("❌ Theme \"%s\" not found. Available themes:\n\n%s\n\nTry: 'Change theme to dark' or 'Set theme to blue'", o.ThemeToken, themeList(o.Themes))
		case OutcomeFailed:
			return fmt.Sprintf("❌ Sorry, I couldn't switch to %s. Please try again.", o.Theme.Label)
		default:
			return fmt.Sprintf("🎨 Theme changed to %s successfully! The interface has been updated with your new theme.", o.Theme.Label)
		}

	case intent.ListThemes:
		return fmt.Sprintf("🎨 Available themes:\n\n%s\n\nTo change theme, say: 'Change theme to [theme name]'", themeList(o.Themes))

	case intent.UpdateProfile:
		switch o.Kind {
		case OutcomeClarify:
			return profileClarify
		case OutcomeFailed:
			return fmt.Sprintf("❌ Sorry, I couldn't update your profile %s. Please try again.", profileFieldNames(o.ProfileFields))
		default:
			return fmt.Sprintf("👤 Profile %s updated successfully!", profileFieldNames(o.ProfileFields))
		}

	case intent.ToggleNotificationSetting:
		switch o.Kind {
		case OutcomeClarify:
			return settingsClarify
		case OutcomeFailed:
			return fmt.Sprintf("❌ Sorry, I couldn't update your %s notification settings. Please try again.", o.Scope)
		default:
			state := "disabled"
			if o.Enable {
				state = "enabled"
			}
			return fmt.Sprintf("⚙️ %s notifications %s successfully!", o.Scope, state)
		}

	case intent.ExplainPriority:
		return priorityExplanation

	case intent.Help:
		return helpText

	default:
		return unrecognizedText
	}
}

func themeList(entries []theme.Entry) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("• %s (%s)", e.Label, e.Description)
	}
	return strings.Join(lines, "\n")
}

func profileFieldNames(fields []string) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		if f == "full_name" {
			f = "name"
		}
		names[i] = f
	}
	return strings.Join(names, " and ")
}

package assistant

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/nugget/taskbuddy/internal/calendar"
	"github.com/nugget/taskbuddy/internal/events"
	"github.com/nugget/taskbuddy/internal/profile"
	"github.com/nugget/taskbuddy/internal/settings"
	"github.com/nugget/taskbuddy/internal/tasks"
	"github.com/nugget/taskbuddy/internal/transcript"
)

func submit(t *testing.T, f *fixture, text string) string {
	t.Helper()
	turn, err := f.interp.Submit(context.Background(), text)
	if err != nil {
		t.Fatalf("Submit(%q): %v", text, err)
	}
	if turn.Sender != transcript.SenderAssistant {
		t.Fatalf("Submit(%q) returned a %s turn", text, turn.Sender)
	}
	return turn.Text
}

func TestSubmit_CreateTask(t *testing.T) {
	f := newFixture(Options{})

	got := submit(t, f, "Create task called Review docs with high priority")

	want := `✅ Task "Review docs" created successfully with high priority! You can find it in the Todo column of your Kanban board.`
	if got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
	wantTask := []tasks.NewTask{{
		Title:       "Review docs",
		Description: "Created via AI Assistant",
		Priority:    tasks.PriorityHigh,
		Status:      tasks.StatusTodo,
	}}
	if diff := cmp.Diff(wantTask, f.tasks.created); diff != "" {
		t.Errorf("created tasks (-want +got):\n%s", diff)
	}
}

func TestSubmit_CreateTaskNeedsTitle(t *testing.T) {
	f := newFixture(Options{})

	for _, text := range []string{
		"create a task",
		"Create task with high priority",
		"add task, priority low",
	} {
		if got := submit(t, f, text); got != taskClarify {
			t.Errorf("%q reply = %q, want clarification", text, got)
		}
	}
	if n := f.tasks.createdCount(); n != 0 {
		t.Errorf("CreateTask called %d times, want 0", n)
	}
}

func TestSubmit_CreateTaskRejected(t *testing.T) {
	f := newFixture(Options{})
	f.tasks.err = errors.New("not authenticated: token expired")

	got := submit(t, f, "make task called Pay rent")
	want := `❌ Sorry, I couldn't create the task "Pay rent". Please make sure you're logged in and try again.`
	if got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
	if strings.Contains(got, "token expired") {
		t.Error("reply leaks the collaborator error")
	}
}

func TestSubmit_DeleteTaskNotFound(t *testing.T) {
	f := newFixture(Options{})

	got := submit(t, f, "Delete task called Nonexistent")
	want := `❌ I couldn't find a task with the title "Nonexistent". Please check the task name and try again.`
	if got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
	if len(f.tasks.deleted) != 0 {
		t.Errorf("DeleteTask called with %v, want no call", f.tasks.deleted)
	}
}

func TestSubmit_DeleteTaskBySubstring(t *testing.T) {
	f := newFixture(Options{})
	f.tasks.list = []tasks.Task{
		{ID: "t1", Title: "Buy milk"},
		{ID: "t2", Title: "Review documents"},
		{ID: "t3", Title: "Review budget"},
	}

	got := submit(t, f, "delete task called REVIEW")
	if want := `🗑️ Task "Review documents" has been deleted successfully!`; got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
	if diff := cmp.Diff([]string{"t2"}, f.tasks.deleted); diff != "" {
		t.Errorf("deleted ids (-want +got):\n%s", diff)
	}
}

func TestSubmit_DeleteTaskRejected(t *testing.T) {
	f := newFixture(Options{})
	f.tasks.list = []tasks.Task{{ID: "t1", Title: "Buy milk"}}
	f.tasks.err = errors.New("backend down")

	got := submit(t, f, "delete task milk")
	if want := `❌ Sorry, I couldn't delete the task "Buy milk". Please try again.`; got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
}

func TestSubmit_CreateEvent(t *testing.T) {
	f := newFixture(Options{})

	got := submit(t, f, "Add event called Review on July 8th")
	want := "📅 Event \"Review\" created successfully for 7/8/2025! You can view and edit it in the Calendar section."
	if got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
	wantEvent := []calendar.NewEvent{{
		Title:       "Review",
		Description: "Created via AI Assistant",
		StartDate:   "2025-07-08T09:00",
		Priority:    "medium",
	}}
	if diff := cmp.Diff(wantEvent, f.events.created); diff != "" {
		t.Errorf("created events (-want +got):\n%s", diff)
	}
}

func TestSubmit_CreateEventTomorrow(t *testing.T) {
	f := newFixture(Options{})

	got := submit(t, f, "Create event called Standup for tomorrow")
	if !strings.Contains(got, "for tomorrow!") {
		t.Errorf("reply = %q, want the tomorrow label", got)
	}
	if len(f.events.created) != 1 || f.events.created[0].StartDate != "2025-03-11T09:00" {
		t.Errorf("created events = %+v, want start 2025-03-11T09:00", f.events.created)
	}
}

func TestSubmit_InviteMember(t *testing.T) {
	f := newFixture(Options{})

	got := submit(t, f, "Invite john.doe@example.com to the team")
	want := "👥 Team invitation sent successfully to john.doe (john.doe@example.com)! They will receive an email invitation to join your team."
	if got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
	if diff := cmp.Diff([]invite{{"john.doe@example.com", "john.doe", "member"}}, f.team.invites, cmp.AllowUnexported(invite{})); diff != "" {
		t.Errorf("invites (-want +got):\n%s", diff)
	}

	if got := submit(t, f, "invite a new user"); got != inviteClarify {
		t.Errorf("reply = %q, want clarification", got)
	}
	if len(f.team.invites) != 1 {
		t.Errorf("invites = %d, want 1", len(f.team.invites))
	}
}

func TestSubmit_ChangeTheme(t *testing.T) {
	f := newFixture(Options{})

	got := submit(t, f, "Change theme to ocean")
	want := "🎨 Theme changed to Ocean Blue successfully! The interface has been updated with your new theme."
	if got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
	if diff := cmp.Diff([]string{"blue"}, f.themes.set); diff != "" {
		t.Errorf("theme set calls (-want +got):\n%s", diff)
	}
}

func TestSubmit_ChangeThemeUnknown(t *testing.T) {
	f := newFixture(Options{})

	got := submit(t, f, "Set theme to galaxy")
	if !strings.HasPrefix(got, "❌ Theme \"galaxy\" not found. Available themes:\n\n• Light (Clean and bright interface)\n") {
		t.Errorf("reply = %q", got)
	}
	if n := strings.Count(got, "\n• "); n != 11 {
		t.Errorf("reply lists %d themes, want 11", n)
	}
	if !strings.HasSuffix(got, "Try: 'Change theme to dark' or 'Set theme to blue'") {
		t.Errorf("reply = %q, want usage hint", got)
	}
	if len(f.themes.set) != 0 {
		t.Errorf("Set called with %v, want no call", f.themes.set)
	}
}

func TestSubmit_ListThemes(t *testing.T) {
	f := newFixture(Options{})

	for _, text := range []string{"show me the themes", "change theme"} {
		got := submit(t, f, text)
		if !strings.HasPrefix(got, "🎨 Available themes:\n\n") {
			t.Errorf("%q reply = %q, want theme list", text, got)
		}
	}
	if len(f.themes.set) != 0 {
		t.Errorf("Set called with %v, want no call", f.themes.set)
	}
}

func TestSubmit_ChangeThemeRejected(t *testing.T) {
	f := newFixture(Options{})
	f.themes.err = errors.New("disk full")

	if got := submit(t, f, "Change theme to dark"); got != "❌ Sorry, I couldn't switch to Dark. Please try again." {
		t.Errorf("reply = %q", got)
	}
}

func TestSubmit_UpdateProfile(t *testing.T) {
	f := newFixture(Options{})

	got := submit(t, f, "Update name to John Smith and bio to Software Developer")
	if want := "👤 Profile name and bio updated successfully!"; got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
	name, bio := "John Smith", "Software Developer"
	if diff := cmp.Diff([]profile.Patch{{FullName: &name, Bio: &bio}}, f.profile.patches); diff != "" {
		t.Errorf("patches (-want +got):\n%s", diff)
	}

	if got := submit(t, f, "Update my name"); got != profileClarify {
		t.Errorf("reply = %q, want clarification", got)
	}

	f.profile.err = errors.New("constraint failed")
	if got := submit(t, f, "Set bio to Gardener"); got != "❌ Sorry, I couldn't update your profile bio. Please try again." {
		t.Errorf("reply = %q", got)
	}
}

func TestSubmit_EnableEmailNotifications(t *testing.T) {
	f := newFixture(Options{})
	f.settings.current.EmailNotifications["taskUpdates"] = false

	got := submit(t, f, "Enable email notifications")
	if want := "⚙️ email notifications enabled successfully!"; got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
	want := []settings.Patch{{
		EmailNotifications: map[string]bool{
			"taskUpdates":       true,
			"teamMentions":      true,
			"deadlineReminders": true,
			"weeklyDigest":      false,
		},
	}}
	if diff := cmp.Diff(want, f.settings.patches); diff != "" {
		t.Errorf("patches (-want +got):\n%s", diff)
	}
}

func TestSubmit_DisablePushNotifications(t *testing.T) {
	f := newFixture(Options{})

	got := submit(t, f, "Disable push notifications")
	if want := "⚙️ push notifications disabled successfully!"; got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
	want := []settings.Patch{{
		PushNotifications: map[string]bool{"browserPush": false, "mobilePush": false},
	}}
	if diff := cmp.Diff(want, f.settings.patches); diff != "" {
		t.Errorf("patches (-want +got):\n%s", diff)
	}
}

func TestSubmit_NotificationsNeedScope(t *testing.T) {
	f := newFixture(Options{})

	for _, text := range []string{"Enable notifications", "disable dark mode"} {
		if got := submit(t, f, text); got != settingsClarify {
			t.Errorf("%q reply = %q, want clarification", text, got)
		}
	}
	if len(f.settings.patches) != 0 {
		t.Errorf("UpdateSettings called %d times, want 0", len(f.settings.patches))
	}

	f.settings.err = errors.New("locked")
	if got := submit(t, f, "Enable push notifications"); got != "❌ Sorry, I couldn't update your push notification settings. Please try again." {
		t.Errorf("reply = %q, want failure", got)
	}
}

func TestSubmit_Informational(t *testing.T) {
	f := newFixture(Options{})

	tests := []struct {
		text string
		want string
	}{
		{"xyz", unrecognizedText},
		{"What does priority mean?", priorityExplanation},
		{"help", helpText},
		{"What can you do?", helpText},
	}
	for _, tt := range tests {
		if got := submit(t, f, tt.text); got != tt.want {
			t.Errorf("%q reply = %q, want %q", tt.text, got, tt.want)
		}
	}
	if f.tasks.createdCount()+len(f.events.created)+len(f.team.invites)+len(f.themes.set) != 0 {
		t.Error("informational intents called a collaborator")
	}
}

func TestSubmit_Deterministic(t *testing.T) {
	f := newFixture(Options{})

	first := submit(t, f, "Create task called Water plants with low priority")
	second := submit(t, f, "Create task called Water plants with low priority")
	if first != second {
		t.Errorf("replies differ: %q vs %q", first, second)
	}
	if diff := cmp.Diff(f.tasks.created[0], f.tasks.created[1]); diff != "" {
		t.Errorf("extracted tasks differ (-first +second):\n%s", diff)
	}
}

func TestSubmit_LogOrder(t *testing.T) {
	f := newFixture(Options{Name: "TaskBuddy"})

	submit(t, f, "help")
	submit(t, f, "xyz")

	turns := f.interp.Turns()
	if len(turns) != 4 {
		t.Fatalf("len(turns) = %d, want 4", len(turns))
	}
	wantSenders := []transcript.Sender{
		transcript.SenderUser, transcript.SenderAssistant,
		transcript.SenderUser, transcript.SenderAssistant,
	}
	for i, turn := range turns {
		if turn.Sender != wantSenders[i] {
			t.Errorf("turns[%d].Sender = %s, want %s", i, turn.Sender, wantSenders[i])
		}
		if turn.Text == f.interp.Greeting() {
			t.Errorf("greeting appended to the log at %d", i)
		}
	}
	if turns[0].Text != "help" || turns[2].Text != "xyz" {
		t.Errorf("user turns = %q, %q", turns[0].Text, turns[2].Text)
	}
}

func TestSubmit_EmptyUtterance(t *testing.T) {
	f := newFixture(Options{})

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := f.interp.Submit(context.Background(), text); !errors.Is(err, ErrEmptyUtterance) {
			t.Errorf("Submit(%q) error = %v, want ErrEmptyUtterance", text, err)
		}
	}
	if n := len(f.interp.Turns()); n != 0 {
		t.Errorf("log has %d turns, want 0", n)
	}
}

func TestSubmit_DetachedFromCancellation(t *testing.T) {
	f := newFixture(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.interp.Submit(ctx, "create task called Survive cancel"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(f.tasks.ctxErrs) != 1 || f.tasks.ctxErrs[0] != nil {
		t.Errorf("collaborator saw ctx errors %v, want [<nil>]", f.tasks.ctxErrs)
	}
}

func TestSubmit_BusyGuard(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(Options{})
	f.tasks.block = make(chan struct{})
	f.tasks.entered = make(chan struct{}, 1)

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = f.interp.Submit(context.Background(), "create task called Slow one")
	}()

	select {
	case <-f.tasks.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first submission never reached the task store")
	}
	if !f.interp.Processing() {
		t.Error("Processing() = false while a turn is in flight")
	}

	if _, err := f.interp.Submit(context.Background(), "create task called Slow one"); !errors.Is(err, ErrBusy) {
		t.Errorf("second Submit error = %v, want ErrBusy", err)
	}

	close(f.tasks.block)
	wg.Wait()

	if firstErr != nil {
		t.Fatalf("first Submit: %v", firstErr)
	}
	if n := f.tasks.createdCount(); n != 1 {
		t.Errorf("CreateTask called %d times, want 1", n)
	}
	if n := len(f.interp.Turns()); n != 2 {
		t.Errorf("log has %d turns, want 2", n)
	}
	if f.interp.Processing() {
		t.Error("guard not released")
	}
}

func TestSubmit_PanicRecovered(t *testing.T) {
	bus := events.New()
	ch := bus.Subscribe(32)
	defer bus.Unsubscribe(ch)

	f := newFixture(Options{Bus: bus})
	f.tasks.panics = true

	got := submit(t, f, "create task called Boom")
	if got != FaultReply {
		t.Errorf("reply = %q, want fault reply", got)
	}
	if diff := cmp.Diff([]Notification{faultNotification}, f.notifier.seen); diff != "" {
		t.Errorf("notifications (-want +got):\n%s", diff)
	}
	if f.interp.Processing() {
		t.Fatal("guard not released after panic")
	}

	var sawFault bool
	for len(ch) > 0 {
		if e := <-ch; e.Kind == events.KindPipelineFault {
			sawFault = true
		}
	}
	if !sawFault {
		t.Error("no pipeline_fault event published")
	}

	f.tasks.panics = false
	if got := submit(t, f, "help"); got != helpText {
		t.Errorf("turn after panic = %q, want help", got)
	}
	if n := len(f.interp.Turns()); n != 4 {
		t.Errorf("log has %d turns, want 4", n)
	}
}

func TestSubmit_PublishesEvents(t *testing.T) {
	bus := events.New()
	ch := bus.Subscribe(32)
	defer bus.Unsubscribe(ch)

	f := newFixture(Options{Bus: bus, SessionID: "s-1"})
	submit(t, f, "Create task called Publish me")

	var kinds []string
	for len(ch) > 0 {
		e := <-ch
		if e.Data["session_id"] != "s-1" {
			t.Errorf("%s event session_id = %v", e.Kind, e.Data["session_id"])
		}
		kinds = append(kinds, e.Kind)
	}
	want := []string{
		events.KindTurnAppended,
		events.KindIntentClassified,
		events.KindMutationDone,
		events.KindTurnAppended,
	}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("event kinds (-want +got):\n%s", diff)
	}
}

func TestSubmit_Audit(t *testing.T) {
	f := newFixture(Options{})

	turn, err := f.interp.Submit(context.Background(), "Enable email notifications")
	if err != nil {
		t.Fatal(err)
	}
	submit(t, f, "xyz")

	rec, ok := f.audit.Explain(turn.ID)
	if !ok {
		t.Fatalf("no audit record for turn %s", turn.ID)
	}
	if rec.Intent != "toggle_notification_setting" || rec.Rule != "toggle-notifications" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Outcome != "done" || !rec.Called {
		t.Errorf("record outcome = %s called = %v", rec.Outcome, rec.Called)
	}
	if len(rec.RulesEvaluated) != 8 {
		t.Errorf("RulesEvaluated = %v", rec.RulesEvaluated)
	}

	stats := f.audit.Stats()
	if stats.TotalTurns != 2 || stats.IntentCounts["unrecognized"] != 1 || stats.OutcomeCounts["info"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestGreeting(t *testing.T) {
	f := newFixture(Options{})
	want := "Hi! I'm TaskBuddy, your AI assistant for task management and productivity. How can I help you organize your work today?"
	if got := f.interp.Greeting(); got != want {
		t.Errorf("Greeting() = %q, want %q", got, want)
	}
	if got := Greeting("Ada"); !strings.HasPrefix(got, "Hi! I'm Ada,") {
		t.Errorf("Greeting(Ada) = %q", got)
	}
}

func TestSubmit_TraceLogsEachRule(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: levelTrace}))
	f := newFixture(Options{Logger: logger})

	submit(t, f, "Enable email notifications")

	out := buf.String()
	if n := strings.Count(out, "classifier rule evaluated"); n != 8 {
		t.Errorf("logged %d rule evaluations, want 8:\n%s", n, out)
	}
	for _, want := range []string{
		"rule=create-task matched=false",
		"rule=list-themes matched=false",
		"rule=toggle-notifications matched=true",
		"msg=\"entities extracted\"",
		"scope=email",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("trace output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "rule=explain-priority") {
		t.Error("rules after the match were logged")
	}
}

func TestSubmit_NoTraceAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := newFixture(Options{Logger: logger})

	submit(t, f, "help")

	if strings.Contains(buf.String(), "classifier rule evaluated") {
		t.Errorf("trace lines emitted at debug level:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "utterance classified") {
		t.Errorf("debug summary missing:\n%s", buf.String())
	}
}

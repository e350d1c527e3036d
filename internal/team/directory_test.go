package team

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/emersion/go-vcard"
	_ "modernc.org/sqlite"

	"github.com/nugget/taskbuddy/internal/events"
)

type fakeMailer struct {
	sent []Invitation
	err  error
}

func (f *fakeMailer) SendInvitation(_ context.Context, inv Invitation) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, inv)
	return nil
}

func setupDirectory(t *testing.T, mailer Mailer, bus *events.Bus) *Directory {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	d, err := NewDirectory(db, mailer, bus, nil)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	return d
}

func TestInviteMember(t *testing.T) {
	mailer := &fakeMailer{}
	bus := events.New()
	ch := bus.Subscribe(4)
	defer bus.Unsubscribe(ch)

	d := setupDirectory(t, mailer, bus)
	ctx := context.Background()

	if err := d.InviteMember(ctx, "john.doe@example.com", "John Doe", "member"); err != nil {
		t.Fatalf("InviteMember: %v", err)
	}

	members, err := d.Members(ctx)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("Members() returned %d, want 1", len(members))
	}
	m := members[0]
	if m.Email != "john.doe@example.com" || m.Name != "John Doe" || m.Role != "member" || m.Status != "invited" {
		t.Errorf("member = %+v", m)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].Email != "john.doe@example.com" {
		t.Errorf("mailer sent %+v, want one invitation", mailer.sent)
	}

	select {
	case evt := <-ch:
		if evt.Kind != events.KindMemberInvited || evt.Data["mailed"] != true {
			t.Errorf("event = %+v, want member_invited with mailed=true", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for member_invited event")
	}
}

func TestInviteMember_Duplicate(t *testing.T) {
	d := setupDirectory(t, nil, nil)
	ctx := context.Background()

	if err := d.InviteMember(ctx, "sarah@company.com", "", ""); err != nil {
		t.Fatalf("first invite: %v", err)
	}
	err := d.InviteMember(ctx, "SARAH@company.com", "Sarah", "member")
	if !errors.Is(err, ErrAlreadyInvited) {
		t.Fatalf("duplicate invite = %v, want ErrAlreadyInvited", err)
	}

	members, _ := d.Members(ctx)
	if len(members) != 1 || members[0].Name != "sarah" || members[0].Role != "member" {
		t.Errorf("members = %+v, want one entry defaulted from local-part", members)
	}
}

func TestInviteMember_MailFailureRollsBack(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp down")}
	d := setupDirectory(t, mailer, nil)
	ctx := context.Background()

	if err := d.InviteMember(ctx, "a@b.co", "A", "member"); err == nil {
		t.Fatal("InviteMember should fail when mail delivery fails")
	}
	members, err := d.Members(ctx)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 0 {
		t.Errorf("members = %+v, want none after failed delivery", members)
	}
}

func TestInviteMember_InvalidEmail(t *testing.T) {
	d := setupDirectory(t, nil, nil)
	if err := d.InviteMember(context.Background(), "not-an-email", "X", "member"); err == nil {
		t.Error("InviteMember should reject an invalid address")
	}
}

func TestExportVCards(t *testing.T) {
	d := setupDirectory(t, nil, nil)
	ctx := context.Background()

	for _, inv := range []Invitation{
		{Email: "john@example.com", Name: "John"},
		{Email: "sarah@company.com", Name: "Sarah"},
	} {
		if err := d.InviteMember(ctx, inv.Email, inv.Name, "member"); err != nil {
			t.Fatalf("InviteMember(%s): %v", inv.Email, err)
		}
	}

	var buf bytes.Buffer
	n, err := d.ExportVCards(ctx, &buf)
	if err != nil {
		t.Fatalf("ExportVCards: %v", err)
	}
	if n != 2 {
		t.Errorf("exported %d cards, want 2", n)
	}

	dec := vcard.NewDecoder(&buf)
	var emails []string
	for {
		card, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if v := card.Value(vcard.FieldVersion); v != "4.0" {
			t.Errorf("VERSION = %q, want 4.0", v)
		}
		emails = append(emails, card.PreferredValue(vcard.FieldEmail))
	}
	if len(emails) != 2 || emails[0] != "john@example.com" || emails[1] != "sarah@company.com" {
		t.Errorf("decoded emails = %v", emails)
	}
}

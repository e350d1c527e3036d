package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/nugget/taskbuddy/internal/config"
	"github.com/nugget/taskbuddy/internal/team"
)

// sendTimeout bounds a single invitation delivery.
const sendTimeout = 45 * time.Second

// qrSize is the edge length of the join-link QR code in pixels.
const qrSize = 256

// SendFunc delivers a composed message.
type SendFunc func(ctx context.Context, from string, recipients []string, msg []byte) error

// Inviter sends team invitations by mail. It implements team.Mailer.
type Inviter struct {
	from     string
	appURL   string
	teamName string
	send     SendFunc
	logger   *slog.Logger
}

// NewInviter creates an inviter that delivers through the configured
// SMTP server. teamName appears in the subject and greeting.
func NewInviter(cfg config.InvitationsConfig, teamName string, logger *slog.Logger) *Inviter {
	smtpCfg := cfg.SMTP
	return NewInviterWithSender(cfg.From, cfg.AppURL, teamName, func(ctx context.Context, from string, rcpts []string, msg []byte) error {
		return SendMail(ctx, smtpCfg, from, rcpts, msg)
	}, logger)
}

// NewInviterWithSender creates an inviter with a custom delivery
// function.
func NewInviterWithSender(from, appURL, teamName string, send SendFunc, logger *slog.Logger) *Inviter {
	if logger == nil {
		logger = slog.Default()
	}
	if teamName == "" {
		teamName = "TaskFlow"
	}
	return &Inviter{
		from:     from,
		appURL:   strings.TrimRight(appURL, "/"),
		teamName: teamName,
		send:     send,
		logger:   logger,
	}
}

// SendInvitation composes and delivers the invitation for inv.
func (i *Inviter) SendInvitation(ctx context.Context, inv team.Invitation) error {
	msg, err := i.Compose(inv)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := i.send(ctx, i.from, []string{inv.Email}, msg); err != nil {
		return fmt.Errorf("send invitation to %s: %w", inv.Email, err)
	}
	i.logger.Info("invitation mailed", "email", inv.Email, "bytes", len(msg))
	return nil
}

// Compose builds the invitation message without sending it. When an
// app URL is configured the join link is included and attached as a
// QR code.
func (i *Inviter) Compose(inv team.Invitation) ([]byte, error) {
	m := Message{
		From:    i.from,
		To:      []string{inv.Email},
		Subject: fmt.Sprintf("You're invited to join %s", i.teamName),
		Body:    i.body(inv),
	}

	if link := i.JoinLink(inv.Email); link != "" {
		png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
		if err != nil {
			return nil, fmt.Errorf("encode join link QR code: %w", err)
		}
		m.Attachments = append(m.Attachments, Attachment{
			Filename:    "join.png",
			ContentType: "image/png",
			Data:        png,
		})
	}

	msg, err := Compose(m)
	if err != nil {
		return nil, fmt.Errorf("compose invitation: %w", err)
	}
	return msg, nil
}

// JoinLink returns the link an invitee follows to accept, or "" when
// no app URL is configured.
func (i *Inviter) JoinLink(email string) string {
	if i.appURL == "" {
		return ""
	}
	return i.appURL + "/join?email=" + url.QueryEscape(email)
}

func (i *Inviter) body(inv team.Invitation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Join %s\n\n", i.teamName)
	fmt.Fprintf(&b, "Hi **%s**,\n\n", inv.Name)
	fmt.Fprintf(&b, "You have been invited to join the team as a *%s*.\n\n", inv.Role)
	if link := i.JoinLink(inv.Email); link != "" {
		fmt.Fprintf(&b, "[Accept the invitation](%s)\n\n", link)
		b.WriteString("Or scan the attached QR code with your phone.\n")
	}
	return b.String()
}

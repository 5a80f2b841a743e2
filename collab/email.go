package collab

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"civicspotter/models"
)

// SMTPConfig carries the mail server credentials.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// OverrideTo, when set, redirects every notification to a single address.
	// Used in non-production environments.
	OverrideTo string
}

// SMTPNotifier emails the discovered authority about an issue.
type SMTPNotifier struct {
	cfg SMTPConfig
	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier builds a notifier from the given config.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, send: smtp.SendMail}
}

// Send emails the issue to its authority contact. Failures are reported in
// the result status, never as an error; the engine records them on the issue.
func (n *SMTPNotifier) Send(ctx context.Context, rec *models.IssueRecord) models.EmailResult {
	result := models.EmailResult{
		Status:    models.StatusFailed,
		Timestamp: time.Now().Format(time.RFC3339),
	}

	to := rec.AuthorityContact.Email
	if n.cfg.OverrideTo != "" {
		to = n.cfg.OverrideTo
	}
	if to == "" {
		log.Warn().Str("issue_id", rec.IssueID).Msg("no authority email on record")
		return result
	}

	recipients := append([]string{to}, rec.AuthorityContact.CC...)
	subject, body := buildNotification(rec)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.User)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	if len(rec.AuthorityContact.CC) > 0 {
		fmt.Fprintf(&msg, "Cc: %s\r\n", strings.Join(rec.AuthorityContact.CC, ", "))
	}
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	auth := smtp.PlainAuth("", n.cfg.User, n.cfg.Password, n.cfg.Host)
	if err := n.send(addr, auth, n.cfg.User, recipients, []byte(msg.String())); err != nil {
		log.Error().Err(err).Str("issue_id", rec.IssueID).Msg("failed to send notification email")
		return result
	}

	result.Status = models.StatusCompleted
	result.Timestamp = time.Now().Format(time.RFC3339)
	return result
}

func buildNotification(rec *models.IssueRecord) (subject, body string) {
	addr := rec.Metadata.Address
	subject = fmt.Sprintf("Civic issue report %s: %s", rec.IssueID, rec.IssueType)

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", orDefault(rec.AuthorityContact.Department, "Sir/Madam"))
	fmt.Fprintf(&b, "A citizen has reported a %q issue in your jurisdiction.\n\n", rec.IssueType)
	fmt.Fprintf(&b, "Issue ID: %s\n", rec.IssueID)
	if !rec.Metadata.Empty() {
		fmt.Fprintf(&b, "Location: %.6f, %.6f\n", *rec.Metadata.Latitude, *rec.Metadata.Longitude)
	}
	if addr.Road != "" || addr.City != "" {
		fmt.Fprintf(&b, "Address: %s\n", strings.TrimPrefix(addr.Road+", "+addr.City, ", "))
	}
	if rec.Metadata.Datetime != "" {
		fmt.Fprintf(&b, "Reported at: %s\n", rec.Metadata.Datetime)
	}
	if rec.SimilarCount > 0 {
		fmt.Fprintf(&b, "Duplicate reports merged: %d\n", rec.SimilarCount)
	}
	fmt.Fprintf(&b, "Photo evidence on file: %d image(s)\n\n", len(rec.ImagePaths))
	b.WriteString("Please look into this at the earliest.\n\nRegards,\nCivicSpotter\n")
	return subject, b.String()
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

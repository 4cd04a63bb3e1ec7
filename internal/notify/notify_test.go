package notify

import (
	"strings"
	"testing"
	"time"

	"mailwatch/internal/config"
	"mailwatch/internal/watch"
)

func TestNewRequiresHostAndRecipient(t *testing.T) {
	if _, err := New(config.NotifyConfig{To: "ops@example.com"}); err == nil {
		t.Error("expected error without smtp host")
	}
	if _, err := New(config.NotifyConfig{SMTP: config.SMTPConfig{Host: "smtp.example.com"}}); err == nil {
		t.Error("expected error without recipient")
	}
	if _, err := New(config.NotifyConfig{
		SMTP: config.SMTPConfig{Host: "smtp.example.com"},
		To:   "ops@example.com",
	}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuildMessage(t *testing.T) {
	c := watch.Candidate{
		ID:      "m1",
		Sender:  "Alice",
		Address: "alice@example.com",
		Subject: "quarterly report",
		Date:    time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
	}

	buf, err := buildMessage("watcher@example.com", "ops@example.com", c)
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
	msg := buf.String()

	for _, want := range []string{
		"Subject: New mail from Alice: quarterly report",
		"ops@example.com",
		"watcher@example.com",
		"Message-Id:",
		"alice@example.com",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestNotificationSubjectFallsBackToAddress(t *testing.T) {
	c := watch.Candidate{Address: "bob@example.com", Subject: "hi"}
	if got := notificationSubject(c); got != "New mail from bob@example.com: hi" {
		t.Errorf("subject = %q", got)
	}
}

func TestGenerateMessageID(t *testing.T) {
	id1 := generateMessageID("watcher@example.com")
	id2 := generateMessageID("watcher@example.com")

	if id1 == id2 {
		t.Error("message IDs must be unique")
	}
	if !strings.HasPrefix(id1, "<") || !strings.HasSuffix(id1, "@example.com>") {
		t.Errorf("malformed Message-ID: %s", id1)
	}

	if !strings.HasSuffix(generateMessageID("no-domain"), "@localhost>") {
		t.Error("expected localhost fallback for address without domain")
	}
}

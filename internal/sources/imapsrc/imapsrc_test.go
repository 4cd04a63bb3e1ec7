package imapsrc

import (
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

func buffer(uid uint32, from, subject string) *imapclient.FetchMessageBuffer {
	return &imapclient.FetchMessageBuffer{
		UID: imap.UID(uid),
		Envelope: &imap.Envelope{
			Subject: subject,
			Date:    time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC),
			From: []imap.Address{{
				Name:    from,
				Mailbox: "sender",
				Host:    "example.com",
			}},
		},
	}
}

func TestCandidatesSinceFiltersAndSorts(t *testing.T) {
	msgs := []*imapclient.FetchMessageBuffer{
		buffer(13, "Carol", "third"),
		buffer(10, "Old", "at cursor"), // servers answer n:* with the last message even with nothing new
		buffer(11, "Alice", "first"),
		buffer(12, "Bob", "second"),
	}

	got := candidatesSince(msgs, 10, 50)

	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}
	for i, wantUID := range []uint32{11, 12, 13} {
		if got[i].UID != wantUID {
			t.Errorf("candidate %d UID = %d, want %d", i, got[i].UID, wantUID)
		}
	}
	if got[0].Sender != "Alice" || got[0].Address != "sender@example.com" {
		t.Errorf("candidate 0 = %+v", got[0])
	}
	if got[0].Subject != "first" {
		t.Errorf("subject = %q", got[0].Subject)
	}
}

func TestCandidatesSincePageCap(t *testing.T) {
	var msgs []*imapclient.FetchMessageBuffer
	for uid := uint32(20); uid > 10; uid-- {
		msgs = append(msgs, buffer(uid, "x", "y"))
	}

	got := candidatesSince(msgs, 10, 3)

	if len(got) != 3 {
		t.Fatalf("got %d candidates, want page cap of 3", len(got))
	}
	// The cap keeps the lowest UIDs so the cursor advances contiguously.
	for i, wantUID := range []uint32{11, 12, 13} {
		if got[i].UID != wantUID {
			t.Errorf("candidate %d UID = %d, want %d", i, got[i].UID, wantUID)
		}
	}
}

func TestCandidatesSinceEmpty(t *testing.T) {
	if got := candidatesSince(nil, 10, 50); len(got) != 0 {
		t.Fatalf("got %d candidates, want 0", len(got))
	}
	// Only the message at the cursor: a no-op scan.
	msgs := []*imapclient.FetchMessageBuffer{buffer(10, "Old", "at cursor")}
	if got := candidatesSince(msgs, 10, 50); len(got) != 0 {
		t.Fatalf("got %d candidates, want 0", len(got))
	}
}

func TestClampKeepAlive(t *testing.T) {
	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{0, 60 * time.Second},
		{30, 60 * time.Second},
		{300, 300 * time.Second},
		{7200, 1740 * time.Second},
	}

	for _, tt := range tests {
		if got := clampKeepAlive(tt.seconds); got != tt.want {
			t.Errorf("clampKeepAlive(%d) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

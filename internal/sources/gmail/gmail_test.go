package gmail

import (
	"testing"
	"time"

	"google.golang.org/api/gmail/v1"
)

func TestSplitAddress(t *testing.T) {
	tests := []struct {
		input     string
		wantName  string
		wantEmail string
	}{
		{"Alice <alice@example.com>", "Alice", "alice@example.com"},
		{`"Smith, Alice" <alice@example.com>`, "Smith, Alice", "alice@example.com"},
		{"bob@example.com", "", "bob@example.com"},
		{"  bob@example.com  ", "", "bob@example.com"},
		{"<carol@example.com>", "", "carol@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			name, email := splitAddress(tt.input)
			if name != tt.wantName || email != tt.wantEmail {
				t.Errorf("splitAddress(%q) = (%q, %q), want (%q, %q)",
					tt.input, name, email, tt.wantName, tt.wantEmail)
			}
		})
	}
}

func TestToCandidate(t *testing.T) {
	msg := &gmail.Message{
		Id:           "18c2a9",
		InternalDate: 1777000000000, // milliseconds
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Alice <alice@example.com>"},
				{Name: "Subject", Value: "quarterly report"},
			},
		},
	}

	c := toCandidate(msg)

	if c.ID != "18c2a9" {
		t.Errorf("ID = %q", c.ID)
	}
	if c.Sender != "Alice" || c.Address != "alice@example.com" {
		t.Errorf("sender = %q <%q>", c.Sender, c.Address)
	}
	if c.Subject != "quarterly report" {
		t.Errorf("subject = %q", c.Subject)
	}
	if want := time.Unix(1777000000, 0); !c.Date.Equal(want) {
		t.Errorf("date = %v, want %v", c.Date, want)
	}
}

func TestToCandidateNoPayload(t *testing.T) {
	c := toCandidate(&gmail.Message{Id: "x"})
	if c.ID != "x" || c.Subject != "" || c.Address != "" {
		t.Errorf("candidate = %+v", c)
	}
}

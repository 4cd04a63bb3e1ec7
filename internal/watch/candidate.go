package watch

import (
	"context"
	"time"
)

// Candidate is a message observed by a backend listing call, not yet
// confirmed delivered downstream. It is consumed immediately and never
// persisted.
type Candidate struct {
	// ID is the backend identifier, unique within the source.
	ID string
	// UID is the numeric identifier for backends that assign strictly
	// increasing identifiers (IMAP). Zero for REST sources.
	UID uint32
	// Sender display name, may be empty.
	Sender string
	// Address is the sender email address.
	Address string
	Subject string
	Date    time.Time
}

// Dispatcher delivers one downstream notification per candidate.
type Dispatcher interface {
	Notify(ctx context.Context, c Candidate) error
}

// Source is one watched mailbox backend. Scan performs a single
// "list, filter, dispatch, advance" cycle. Snapshot reports the current
// cursor and dedup window for optional persistence.
type Source interface {
	Name() string
	Scan(ctx context.Context) error
	Snapshot() (cursor uint32, seen []string)
	Close() error
}

// PollSource is driven by the scheduler on a cron schedule.
type PollSource interface {
	Source
	Schedule() string
}

// PushSource maintains its own connection and invokes trigger whenever the
// backend signals a mailbox change. Run blocks until ctx is cancelled.
type PushSource interface {
	Source
	Run(ctx context.Context, trigger func()) error
}

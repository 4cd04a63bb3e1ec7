package gmail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/gmail/v1"

	"mailwatch/internal/config"
	"mailwatch/internal/watch"
)

// Source polls a Gmail account with a query/label filter. The list call
// carries no cursoring guarantee, so novelty is decided by a bounded FIFO
// dedup cache over message identifiers.
type Source struct {
	cfg        config.GmailConfig
	service    *gmail.Service
	dispatcher watch.Dispatcher
	cache      *watch.DedupCache
}

// New builds the source. seen restores a previous run's dedup window,
// oldest first.
func New(cfg config.GmailConfig, d watch.Dispatcher, seen []string) (*Source, error) {
	if cfg.CredentialsPath == "" {
		return nil, &config.Error{Source: "gmail", Field: "credentials_path"}
	}
	if cfg.TokenPath == "" {
		return nil, &config.Error{Source: "gmail", Field: "token_path"}
	}

	service, err := createGmailService(cfg.CredentialsPath, cfg.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	cache := watch.NewDedupCache(cfg.CacheSize)
	for _, id := range seen {
		cache.Add(id)
	}

	return &Source{
		cfg:        cfg,
		service:    service,
		dispatcher: d,
		cache:      cache,
	}, nil
}

func (s *Source) Name() string {
	return "gmail"
}

func (s *Source) Schedule() string {
	return s.cfg.Schedule
}

// Scan lists matching messages, dispatches the ones outside the dedup
// window and records them. List order is whatever the API returns; nothing
// depends on it.
func (s *Source) Scan(ctx context.Context) error {
	candidates, err := s.listMatching(ctx)
	if err != nil {
		return fmt.Errorf("gmail list: %w", err)
	}

	delivered := watch.DispatchNovel(ctx, s.dispatcher, s.cache, candidates)
	if delivered > 0 {
		log.Info().
			Int("count", delivered).
			Str("source", s.Name()).
			Msg("Dispatched new messages")
	}
	return nil
}

func (s *Source) listMatching(ctx context.Context) ([]watch.Candidate, error) {
	req := s.service.Users.Messages.List("me").
		Q(s.cfg.Query).
		MaxResults(int64(s.cfg.PageCap))
	if len(s.cfg.Labels) > 0 {
		req = req.LabelIds(s.cfg.Labels...)
	}

	resp, err := req.Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	candidates := make([]watch.Candidate, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		if s.cache.Seen(msg.Id) {
			// Already notified; skip the per-message metadata fetch.
			continue
		}

		full, err := s.service.Users.Messages.Get("me", msg.Id).
			Format("metadata").
			MetadataHeaders("From", "Subject").
			Context(ctx).Do()
		if err != nil {
			log.Warn().Err(err).Str("id", msg.Id).Msg("Failed to fetch message metadata")
			continue
		}

		candidates = append(candidates, toCandidate(full))
	}

	return candidates, nil
}

// toCandidate extracts the notification-relevant fields from a metadata
// response.
func toCandidate(msg *gmail.Message) watch.Candidate {
	c := watch.Candidate{
		ID:   msg.Id,
		Date: time.Unix(msg.InternalDate/1000, 0),
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				c.Sender, c.Address = splitAddress(h.Value)
			case "subject":
				c.Subject = h.Value
			}
		}
	}
	return c
}

// splitAddress splits a "Name <email@example.com>" header into display name
// and address.
func splitAddress(addr string) (name, email string) {
	if start := strings.Index(addr, "<"); start != -1 {
		if end := strings.Index(addr, ">"); end != -1 && end > start {
			name = strings.Trim(strings.TrimSpace(addr[:start]), `"`)
			email = strings.TrimSpace(addr[start+1 : end])
			return name, email
		}
	}
	return "", strings.TrimSpace(addr)
}

func (s *Source) Snapshot() (uint32, []string) {
	return 0, s.cache.Snapshot()
}

func (s *Source) Close() error {
	return nil
}

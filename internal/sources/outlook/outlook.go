package outlook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mailwatch/internal/config"
	"mailwatch/internal/watch"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// Source polls an Outlook mailbox through the Microsoft Graph API,
// filtering on folder and read state. Listing carries no cursoring
// guarantee, so novelty is decided by a bounded FIFO dedup cache.
type Source struct {
	cfg        config.OutlookConfig
	tokens     *TokenCache
	client     *http.Client
	dispatcher watch.Dispatcher
	cache      *watch.DedupCache
	baseURL    string
}

// New builds the source. seen restores a previous run's dedup window,
// oldest first. The bearer token is fetched lazily on the first scan.
func New(cfg config.OutlookConfig, d watch.Dispatcher, seen []string) (*Source, error) {
	if cfg.TenantID == "" {
		return nil, &config.Error{Source: "outlook", Field: "tenant_id"}
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, &config.Error{Source: "outlook", Field: "client_id/client_secret"}
	}
	if cfg.User == "" {
		return nil, &config.Error{Source: "outlook", Field: "user"}
	}

	cache := watch.NewDedupCache(cfg.CacheSize)
	for _, id := range seen {
		cache.Add(id)
	}

	return &Source{
		cfg:        cfg,
		tokens:     NewTokenCache(cfg.TenantID, cfg.ClientID, cfg.ClientSecret),
		client:     &http.Client{Timeout: 30 * time.Second},
		dispatcher: d,
		cache:      cache,
		baseURL:    graphBaseURL,
	}, nil
}

func (s *Source) Name() string {
	return "outlook"
}

func (s *Source) Schedule() string {
	return s.cfg.Schedule
}

// Scan lists unread messages in the watched folder and dispatches the ones
// outside the dedup window. Token and listing failures abort the cycle
// before any cache mutation; the next tick retries.
func (s *Source) Scan(ctx context.Context) error {
	candidates, err := s.listMatching(ctx)
	if err != nil {
		return fmt.Errorf("outlook list: %w", err)
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

// graphMessage mirrors the fields selected from the Graph messages listing.
type graphMessage struct {
	ID               string `json:"id"`
	Subject          string `json:"subject"`
	ReceivedDateTime string `json:"receivedDateTime"`
	From             struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
}

type graphListResponse struct {
	Value []graphMessage `json:"value"`
}

func (s *Source) listMatching(ctx context.Context) ([]watch.Candidate, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"$filter": {"isRead eq false"},
		"$top":    {fmt.Sprintf("%d", s.cfg.PageCap)},
		"$select": {"id,subject,from,receivedDateTime"},
	}
	endpoint := fmt.Sprintf("%s/users/%s/mailFolders/%s/messages?%s",
		s.baseURL, url.PathEscape(s.cfg.User), url.PathEscape(s.cfg.Folder), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("graph returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var list graphListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	return toCandidates(list.Value), nil
}

func toCandidates(msgs []graphMessage) []watch.Candidate {
	candidates := make([]watch.Candidate, 0, len(msgs))
	for _, m := range msgs {
		c := watch.Candidate{
			ID:      m.ID,
			Sender:  m.From.EmailAddress.Name,
			Address: m.From.EmailAddress.Address,
			Subject: m.Subject,
		}
		if t, err := time.Parse(time.RFC3339, m.ReceivedDateTime); err == nil {
			c.Date = t
		}
		candidates = append(candidates, c)
	}
	return candidates
}

func (s *Source) Snapshot() (uint32, []string) {
	return 0, s.cache.Snapshot()
}

func (s *Source) Close() error {
	return nil
}

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
)

// expirySkew is how early a cached token is considered expired. The recorded
// expiry is already discounted by this margin, and Token refreshes a further
// margin ahead of it, so a returned token always has well over the margin
// remaining.
const expirySkew = 30 * time.Second

// TokenCache caches the bearer credential obtained from a client-credentials
// exchange and refreshes it proactively before expiry.
//
// The owning source is driven by a single non-overlapping scheduled tick, so
// at most one exchange is ever in flight and no locking is needed.
type TokenCache struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	client       *http.Client

	now    func() time.Time
	token  string
	expiry time.Time
}

// NewTokenCache builds a cache exchanging against the Microsoft identity
// platform for tenantID.
func NewTokenCache(tenantID, clientID, clientSecret string) *TokenCache {
	return &TokenCache{
		tokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID),
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        "https://graph.microsoft.com/.default",
		client:       &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
}

// Token returns a currently valid bearer token, performing a fresh exchange
// when the cached one is missing or close to expiry. A failed exchange
// returns the error but leaves any previously cached token in place, so the
// next call retries instead of being permanently blocked.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if c.token != "" && c.now().Add(expirySkew).Before(c.expiry) {
		return c.token, nil
	}

	token, lifetime, err := c.exchange(ctx)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}

	c.token = token
	c.expiry = c.now().Add(lifetime - expirySkew)

	log.Debug().Time("expiry", c.expiry).Msg("Obtained new bearer token")
	return c.token, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *TokenCache) exchange(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"scope":         {c.scope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, fmt.Errorf("identity provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("identity provider returned empty token")
	}

	return tr.AccessToken, time.Duration(tr.ExpiresIn) * time.Second, nil
}

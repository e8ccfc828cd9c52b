package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Config describes how to reach the token realm for mirroring. If Realm
// is empty, TokenSource.Get always returns an empty token, letting the
// content-fetch client hit peers unauthenticated.
type Config struct {
	Realm    string
	Service  string
	Username string
	Password string
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// TokenSource fetches and caches bearer pull tokens, one per repository,
// refreshing renewBefore (30 seconds) ahead of expiry so a fetch in flight never sees
// a token invalidated mid-transfer.
type TokenSource struct {
	cfg    Config
	client *http.Client

	mu     sync.Mutex
	tokens map[string]*cachedToken
}

// New builds a TokenSource. A nil httpClient uses http.DefaultClient.
func New(cfg Config, httpClient *http.Client) *TokenSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenSource{
		cfg:    cfg,
		client: httpClient,
		tokens: make(map[string]*cachedToken),
	}
}

// renewBefore is how long before expiry a cached token is treated as
// already expired, so a long transfer doesn't start with a token that
// dies partway through.
const renewBefore = 30 * time.Second

// Get returns a bearer token scoped to pull access on repository,
// fetching and caching a fresh one if the cached entry is missing or
// due to expire soon. Matches transport.TokenGetter.
func (s *TokenSource) Get(ctx context.Context, repository string) (string, error) {
	if s.cfg.Realm == "" {
		return "", nil
	}

	s.mu.Lock()
	cached, ok := s.tokens[repository]
	s.mu.Unlock()
	if ok && time.Now().Before(cached.expiresAt.Add(-renewBefore)) {
		return cached.token, nil
	}

	tok, expiresIn, err := s.fetch(ctx, repository)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.tokens[repository] = &cachedToken{token: tok, expiresAt: time.Now().Add(expiresIn)}
	s.mu.Unlock()

	return tok, nil
}

// Invalidate drops any cached token for repository, forcing the next
// Get to fetch a fresh one.
func (s *TokenSource) Invalidate(repository string) {
	s.mu.Lock()
	delete(s.tokens, repository)
	s.mu.Unlock()
}

type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (s *TokenSource) fetch(ctx context.Context, repository string) (string, time.Duration, error) {
	q := url.Values{}
	q.Set("service", s.cfg.Service)
	q.Set("scope", fmt.Sprintf("repository:%s:pull", repository))

	reqURL := s.cfg.Realm
	if parsed, err := url.Parse(s.cfg.Realm); err == nil {
		parsed.RawQuery = q.Encode()
		reqURL = parsed.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build token request: %w", err)
	}
	if s.cfg.Username != "" {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetch token from %s: %w", s.cfg.Realm, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token realm %s returned %d", s.cfg.Realm, resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}

	token := body.Token
	if token == "" {
		token = body.AccessToken
	}
	if token == "" {
		return "", 0, fmt.Errorf("token realm %s returned no token", s.cfg.Realm)
	}

	expiresIn := time.Duration(body.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = 5 * time.Minute
	}
	return token, expiresIn, nil
}

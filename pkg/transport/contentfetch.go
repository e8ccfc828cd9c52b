package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TokenGetter acquires a bearer token scoped to repository:pull. Token
// acquisition, caching, and renewal are the caller's concern (pkg/auth);
// ContentFetchClient only attaches whatever it returns.
type TokenGetter func(ctx context.Context, repository string) (string, error)

// ContentFetchClient streams blob and manifest bodies from a peer's
// registry HTTP surface. It is deliberately not the same client used for
// consensus RPCs: no JSON decoding, a body reader the caller streams
// directly into a hashing writer.
type ContentFetchClient struct {
	httpClient  *http.Client
	tokenGetter TokenGetter
}

// NewContentFetchClient builds a ContentFetchClient. tokenGetter may be
// nil, in which case requests are sent unauthenticated.
func NewContentFetchClient(tokenGetter TokenGetter) *ContentFetchClient {
	return &ContentFetchClient{
		httpClient:  &http.Client{Timeout: 0},
		tokenGetter: tokenGetter,
	}
}

// Fetch issues GET http://{peerAddr}/v2/{repository}/{kind}/sha256:{digest}
// and returns the response body for the caller to stream and verify. kind
// is "blobs" or "manifests". The caller must close the returned body.
func (c *ContentFetchClient) Fetch(ctx context.Context, peerAddr, repository, kind, digest string) (io.ReadCloser, error) {
	url := fmt.Sprintf("http://%s/v2/%s/%s/sha256:%s", peerAddr, repository, kind, digest)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build content-fetch request: %w", err)
	}

	if c.tokenGetter != nil {
		token, err := c.tokenGetter(ctx, repository)
		if err != nil {
			return nil, fmt.Errorf("acquire pull token for %s: %w", repository, err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

// DefaultFetchTimeout is five minutes. Nothing in this module applies it:
// Fetch is bounded only by the ctx its caller passes, and the shared
// http.Client has no timeout so streaming large bodies is not cut off
// mid-copy by a fixed deadline picked for small JSON calls.
const DefaultFetchTimeout = 5 * time.Minute

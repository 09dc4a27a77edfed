package identity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/httpcc"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// defaultRefreshMargin is subtracted from the advertised key lifetime
// so a key set is never used right up to its expiry instant.
const defaultRefreshMargin = time.Second

// KeySetCache fetches a JWK set over HTTPS and serves it until the
// origin's Cache-Control max-age runs out, minus a safety margin.
//
// State moves from cold (no keys) through warm (fresh keys) to stale
// (deadline passed). A failed refresh leaves the previous state
// untouched, so a stale cache keeps failing until the origin recovers;
// it never silently serves keys past their deadline.
type KeySetCache struct {
	url    string
	client *http.Client
	margin time.Duration
	now    func() time.Time

	mu        sync.Mutex
	keys      jwk.Set
	refreshAt time.Time
}

// KeySetOption configures a KeySetCache.
type KeySetOption func(*KeySetCache)

// WithHTTPClient sets the HTTP client used to fetch the key set.
func WithHTTPClient(client *http.Client) KeySetOption {
	return func(c *KeySetCache) { c.client = client }
}

// WithRefreshMargin sets the safety margin subtracted from the
// advertised key lifetime.
func WithRefreshMargin(margin time.Duration) KeySetOption {
	return func(c *KeySetCache) { c.margin = margin }
}

// WithClock overrides the cache's time source. For tests.
func WithClock(now func() time.Time) KeySetOption {
	return func(c *KeySetCache) { c.now = now }
}

// NewKeySetCache creates a cold cache for the key set at url.
func NewKeySetCache(url string, opts ...KeySetOption) *KeySetCache {
	c := &KeySetCache{
		url:    url,
		client: http.DefaultClient,
		margin: defaultRefreshMargin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Keys returns the current key set, refreshing it first when the
// cache is cold or past its deadline. The mutex spans the staleness
// decision and the fetch, so concurrent callers produce at most one
// origin request per expiry.
func (c *KeySetCache) Keys(ctx context.Context) (jwk.Set, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.keys != nil && c.now().Before(c.refreshAt) {
		return c.keys, nil
	}

	keys, ttl, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.keys = keys
	c.refreshAt = c.now().Add(ttl - c.margin)

	return c.keys, nil
}

// fetch retrieves and parses the key set, returning it with the
// origin-advertised lifetime. The lifetime is mandatory; a response
// without a positive max-age is a fetch failure.
func (c *KeySetCache) fetch(ctx context.Context) (jwk.Set, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("%w: unexpected status %d from %s", ErrKeyFetch, resp.StatusCode, c.url)
	}

	ttl, err := keyLifetime(resp.Header)
	if err != nil {
		return nil, 0, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}

	keys, err := jwk.Parse(body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: parse key set: %v", ErrKeyFetch, err)
	}

	return keys, ttl, nil
}

// keyLifetime extracts the max-age directive from the response
// headers.
func keyLifetime(header http.Header) (time.Duration, error) {
	cc := strings.Join(header.Values("Cache-Control"), ", ")
	if cc == "" {
		return 0, fmt.Errorf("%w: response missing Cache-Control header", ErrKeyFetch)
	}

	dir, err := httpcc.ParseResponse(cc)
	if err != nil {
		return 0, fmt.Errorf("%w: parse Cache-Control: %v", ErrKeyFetch, err)
	}

	maxAge, ok := dir.MaxAge()
	if !ok || maxAge == 0 {
		return 0, fmt.Errorf("%w: response missing positive max-age", ErrKeyFetch)
	}

	return time.Duration(maxAge) * time.Second, nil
}

package keyset

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/idphub/identity-gateway/internal/errors"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultMaxTries     = 3
)

// Resolver fetches and caches the identity provider's signing keys by key-id.
//
// The cache is lazy: a miss triggers a fetch of the full key set, whose entries
// are all parsed and cached. Entries are immutable once cached and never
// evicted; a rotated key is only picked up because its key-id differs from any
// cached one.
type Resolver struct {
	endpoint string
	client   *http.Client
	maxTries uint

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithHTTPClient sets the HTTP client used for key-set fetches.
func WithHTTPClient(client *http.Client) ResolverOption {
	return func(r *Resolver) {
		r.client = client
	}
}

// WithMaxTries sets the retry bound for the outbound key-set fetch.
func WithMaxTries(tries uint) ResolverOption {
	return func(r *Resolver) {
		if tries > 0 {
			r.maxTries = tries
		}
	}
}

// NewResolver creates a Resolver for the given JWKS endpoint.
func NewResolver(endpoint string, options ...ResolverOption) *Resolver {
	r := &Resolver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultFetchTimeout},
		maxTries: defaultMaxTries,
		keys:     make(map[string]*rsa.PublicKey),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Resolve returns the public key for the given key-id, fetching the key set on
// a cache miss. It fails with a KeyResolutionError when the fetch fails or the
// key-id is absent from the fetched set.
//
// Safe for concurrent use. A race that fetches the same key set twice is
// harmless: entries for an already-cached key-id are identical.
func (r *Resolver) Resolve(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	if keyID == "" {
		return nil, &errors.KeyResolutionError{KeyID: keyID, Err: fmt.Errorf("empty key id")}
	}

	r.mu.RLock()
	key, ok := r.keys[keyID]
	r.mu.RUnlock()
	if ok {
		return key, nil
	}

	jwks, err := r.fetchKeySet(ctx)
	if err != nil {
		return nil, &errors.KeyResolutionError{KeyID: keyID, Err: err}
	}

	parsed := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, jwk := range jwks.Keys {
		if jwk.Kid == "" {
			continue
		}
		pub, err := jwk.PublicKey()
		if err != nil {
			log.Warn().Str("kid", jwk.Kid).Err(err).Msg("Skipping unparsable key set entry")
			continue
		}
		parsed[jwk.Kid] = pub
	}

	r.mu.Lock()
	for kid, pub := range parsed {
		if _, exists := r.keys[kid]; !exists {
			r.keys[kid] = pub
		}
	}
	key, ok = r.keys[keyID]
	r.mu.Unlock()

	if !ok {
		return nil, &errors.KeyResolutionError{KeyID: keyID}
	}
	return key, nil
}

// CachedKeyIDs returns the key-ids currently held in the cache.
func (r *Resolver) CachedKeyIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kids := make([]string, 0, len(r.keys))
	for kid := range r.keys {
		kids = append(kids, kid)
	}
	return kids
}

func (r *Resolver) fetchKeySet(ctx context.Context) (*JWKS, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	return backoff.Retry(ctx, func() (*JWKS, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to build key set request: %w", err))
		}

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("key set fetch failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("key set endpoint returned status %d", resp.StatusCode)
		}

		var jwks JWKS
		if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to decode key set: %w", err))
		}
		return &jwks, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(r.maxTries))
}

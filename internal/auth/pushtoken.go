package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// GoogleJWKSURL serves the certificates Google signs Pub/Sub push
// OIDC tokens with
const GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

// issuers Google uses for OIDC tokens; both forms appear in the wild
var googleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// PushVerifier validates the OIDC bearer token Cloud Pub/Sub attaches
// to push deliveries, with cached JWKS so the hot path never fetches
type PushVerifier struct {
	jwksURL        string
	audience       string
	serviceAccount string
	cache          *jwk.Cache
	keySet         jwk.Set
	keySetMutex    sync.RWMutex
	refreshTTL     time.Duration
}

// NewPushVerifier creates a verifier for the configured audience.
// serviceAccount optionally pins the subscription's invoker identity.
func NewPushVerifier(jwksURL, audience, serviceAccount string) (*PushVerifier, error) {
	if jwksURL == "" {
		jwksURL = GoogleJWKSURL
	}

	verifier := &PushVerifier{
		jwksURL:        jwksURL,
		audience:       audience,
		serviceAccount: serviceAccount,
		refreshTTL:     5 * time.Minute,
	}

	cache := jwk.NewCache(context.Background())
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(verifier.refreshTTL)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	verifier.cache = cache

	// Initial fetch to warm up the cache
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	keySet, err := verifier.fetchKeySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed initial JWKS fetch: %w", err)
	}
	verifier.keySet = keySet

	go verifier.backgroundRefresh()

	return verifier, nil
}

// fetchKeySet retrieves the JWKS from the cache (or fetches if needed)
func (v *PushVerifier) fetchKeySet(ctx context.Context) (jwk.Set, error) {
	keySet, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		// Fallback to direct fetch if cache fails
		return jwk.Fetch(ctx, v.jwksURL)
	}
	return keySet, nil
}

// backgroundRefresh keeps the key set warm so request handling never
// blocks on a JWKS fetch
func (v *PushVerifier) backgroundRefresh() {
	ticker := time.NewTicker(v.refreshTTL)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		keySet, err := v.fetchKeySet(ctx)
		cancel()

		if err == nil {
			v.keySetMutex.Lock()
			v.keySet = keySet
			v.keySetMutex.Unlock()
		}
		// Retry on next tick
	}
}

// getKeySet returns the cached key set
func (v *PushVerifier) getKeySet() jwk.Set {
	v.keySetMutex.RLock()
	defer v.keySetMutex.RUnlock()
	return v.keySet
}

// Verify checks the bearer token on a push request: signature against
// Google's keys, expiry, audience, issuer, and optionally the service
// account identity
func (v *PushVerifier) Verify(r *http.Request) error {
	token, err := jwt.ParseRequest(
		r,
		jwt.WithKeySet(v.getKeySet()),
		jwt.WithValidate(true),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return fmt.Errorf("failed to parse push token: %w", err)
	}

	issuer := token.Issuer()
	if !isGoogleIssuer(issuer) {
		return fmt.Errorf("unexpected token issuer %q", issuer)
	}

	if v.serviceAccount != "" {
		var email string
		if claim, ok := token.Get("email"); ok {
			email, _ = claim.(string)
		}
		if email != v.serviceAccount {
			return fmt.Errorf("token email %q does not match push service account", email)
		}
	}

	return nil
}

func isGoogleIssuer(issuer string) bool {
	for _, iss := range googleIssuers {
		if issuer == iss {
			return true
		}
	}
	return false
}

package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	secretmanager "google.golang.org/api/secretmanager/v1"
)

// Secret Manager secret names, used when an env var is not set
const (
	secretGmailClientID     = "gmail-client-id"
	secretGmailClientSecret = "gmail-client-secret"
	secretGmailRefresh      = "gmail-refresh-token"
	secretOpenAIKey         = "openai-key"
)

// Credentials holds the OAuth client and refresh token for a mailbox
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Resolver reads secrets from env vars first, then falls back to
// Google Secret Manager when a project is configured. The Secret
// Manager client is created lazily so env-only setups never need ADC.
type Resolver struct {
	project string

	mu sync.Mutex
	sm *secretmanager.Service
}

// NewResolver creates a resolver for the given GCP project.
// An empty project disables the Secret Manager fallback.
func NewResolver(project string) *Resolver {
	return &Resolver{project: project}
}

// GmailCredentials resolves the OAuth client id, client secret and
// refresh token. All three are stored base64-encoded; the refresh
// token additionally unwraps from a {"refresh_token": ...} document.
func (r *Resolver) GmailCredentials(ctx context.Context) (Credentials, error) {
	clientID, err := r.lookupBase64(ctx, "GOOGLE_CLIENT_ID_B64", secretGmailClientID)
	if err != nil {
		return Credentials{}, fmt.Errorf("resolve client id: %w", err)
	}

	clientSecret, err := r.lookupBase64(ctx, "GOOGLE_CLIENT_SECRET_B64", secretGmailClientSecret)
	if err != nil {
		return Credentials{}, fmt.Errorf("resolve client secret: %w", err)
	}

	refreshRaw, err := r.lookupBase64(ctx, "GMAIL_REFRESH_B64", secretGmailRefresh)
	if err != nil {
		return Credentials{}, fmt.Errorf("resolve refresh token: %w", err)
	}

	refreshToken, err := parseRefreshToken(refreshRaw)
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RefreshToken: refreshToken,
	}, nil
}

// OpenAIKey resolves the scoring API key. Unlike the Gmail secrets it
// is stored plain, not base64-wrapped.
func (r *Resolver) OpenAIKey(ctx context.Context) (string, error) {
	key, err := r.lookup(ctx, "OPENAI_API_KEY", secretOpenAIKey)
	if err != nil {
		return "", fmt.Errorf("resolve openai key: %w", err)
	}
	return strings.TrimSpace(key), nil
}

// lookup returns the env var value if set, otherwise reads the named
// secret's latest version from Secret Manager
func (r *Resolver) lookup(ctx context.Context, envName, secretName string) (string, error) {
	if value := os.Getenv(envName); value != "" {
		return value, nil
	}

	if r.project == "" {
		return "", fmt.Errorf("%s not set and no GCP project configured for Secret Manager", envName)
	}

	svc, err := r.client(ctx)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", r.project, secretName)
	resp, err := svc.Projects.Secrets.Versions.Access(name).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("access secret %s: %w", secretName, err)
	}
	if resp.Payload == nil {
		return "", fmt.Errorf("secret %s has no payload", secretName)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Payload.Data)
	if err != nil {
		return "", fmt.Errorf("decode secret %s payload: %w", secretName, err)
	}

	return string(data), nil
}

// lookupBase64 resolves a secret whose stored value is itself
// base64-encoded (the same encoding in env vars and Secret Manager)
func (r *Resolver) lookupBase64(ctx context.Context, envName, secretName string) (string, error) {
	raw, err := r.lookup(ctx, envName, secretName)
	if err != nil {
		return "", err
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", envName, err)
	}

	return strings.TrimSpace(string(decoded)), nil
}

// client lazily creates the Secret Manager service using application
// default credentials
func (r *Resolver) client(ctx context.Context) (*secretmanager.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sm != nil {
		return r.sm, nil
	}

	svc, err := secretmanager.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create secret manager client: %w", err)
	}

	r.sm = svc
	return svc, nil
}

// parseRefreshToken accepts either a bare refresh token or the JSON
// document the OAuth flow saves, {"refresh_token": "..."}
func parseRefreshToken(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "{") {
		var doc struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
			return "", fmt.Errorf("parse refresh token document: %w", err)
		}
		if doc.RefreshToken == "" {
			return "", fmt.Errorf("refresh token document has no refresh_token field")
		}
		return doc.RefreshToken, nil
	}

	if trimmed == "" {
		return "", fmt.Errorf("refresh token is empty")
	}

	return trimmed, nil
}

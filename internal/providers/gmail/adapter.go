package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Martian-dev/inbox-triage/internal/auth"
	"github.com/Martian-dev/inbox-triage/internal/sync"
)

// Adapter implements MailProvider for Gmail
type Adapter struct {
	svc    *gmail.Service
	user   string
	labels *labelCache
}

// New creates a Gmail adapter from resolved OAuth credentials. The
// access token is minted lazily from the refresh token on first use.
func New(ctx context.Context, creds auth.Credentials, user string) (*Adapter, error) {
	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailModifyScope},
	}

	token := &oauth2.Token{RefreshToken: creds.RefreshToken}
	httpClient := config.Client(ctx, token)

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Adapter{svc: svc, user: user, labels: newLabelCache()}, nil
}

// ChangesSince lists messages added after lastID via the History API.
// The returned max ID covers every history record walked, including
// ones whose messages were deduplicated away.
func (a *Adapter) ChangesSince(ctx context.Context, lastID uint64) ([]sync.ChangeEvent, uint64, error) {
	call := a.svc.Users.History.List(a.user).
		StartHistoryId(lastID).
		HistoryTypes("messageAdded").
		MaxResults(100)

	var events []sync.ChangeEvent
	maxID := lastID
	seen := make(map[string]bool)

	err := call.Pages(ctx, func(page *gmail.ListHistoryResponse) error {
		for _, h := range page.History {
			if h.Id > maxID {
				maxID = h.Id
			}
			for _, record := range h.MessagesAdded {
				if record.Message == nil || seen[record.Message.Id] {
					continue
				}
				seen[record.Message.Id] = true
				events = append(events, sync.ChangeEvent{
					HistoryID: h.Id,
					MessageID: record.Message.Id,
					ThreadID:  record.Message.ThreadId,
					Labels:    record.Message.LabelIds,
				})
			}
		}
		return nil
	})

	if err != nil {
		if authError(err) {
			return nil, lastID, fmt.Errorf("failed to list history: %w: %w", sync.ErrAuth, err)
		}
		// 404 means the baseline aged out of Gmail's history window;
		// 400 means it was never valid for this mailbox
		switch statusCode(err) {
		case http.StatusNotFound, http.StatusBadRequest:
			return nil, lastID, fmt.Errorf("history baseline %d rejected: %w: %w", lastID, sync.ErrCheckpointStale, err)
		}
		return nil, lastID, fmt.Errorf("failed to list history: %w", err)
	}

	return events, maxID, nil
}

// FetchMessage fetches full message content by provider ID
func (a *Adapter) FetchMessage(ctx context.Context, id string) (*sync.Message, error) {
	m, err := a.svc.Users.Messages.Get(a.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		if authError(err) {
			return nil, fmt.Errorf("failed to fetch message %s: %w: %w", id, sync.ErrAuth, err)
		}
		if statusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("message %s: %w", id, sync.ErrMessageNotFound)
		}
		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}

	return normalize(m), nil
}

// ApplyLabel tags a message, creating the label on first use
func (a *Adapter) ApplyLabel(ctx context.Context, id, label string) error {
	labelID, err := a.labels.resolve(ctx, a.svc, a.user, label)
	if err != nil {
		if authError(err) {
			return fmt.Errorf("failed to resolve label %s: %w: %w", label, sync.ErrAuth, err)
		}
		return err
	}

	_, err = a.svc.Users.Messages.Modify(a.user, id, &gmail.ModifyMessageRequest{
		AddLabelIds: []string{labelID},
	}).Context(ctx).Do()

	if err != nil {
		if authError(err) {
			return fmt.Errorf("failed to label message %s: %w: %w", id, sync.ErrAuth, err)
		}
		if statusCode(err) == http.StatusNotFound {
			return fmt.Errorf("message %s: %w", id, sync.ErrMessageNotFound)
		}
		return fmt.Errorf("failed to label message %s: %w", id, err)
	}
	return nil
}

// CurrentHistoryID reports the mailbox's present history position
func (a *Adapter) CurrentHistoryID(ctx context.Context) (uint64, error) {
	profile, err := a.svc.Users.GetProfile(a.user).Context(ctx).Do()
	if err != nil {
		if authError(err) {
			return 0, fmt.Errorf("failed to get profile: %w: %w", sync.ErrAuth, err)
		}
		return 0, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile.HistoryId, nil
}

// Watch registers push notifications to a Pub/Sub topic and returns
// the baseline history ID future notifications diff against
func (a *Adapter) Watch(ctx context.Context, topic string) (uint64, error) {
	resp, err := a.svc.Users.Watch(a.user, &gmail.WatchRequest{
		TopicName: topic,
	}).Context(ctx).Do()

	if err != nil {
		if authError(err) {
			return 0, fmt.Errorf("failed to register watch: %w: %w", sync.ErrAuth, err)
		}
		return 0, fmt.Errorf("failed to register watch: %w", err)
	}
	return resp.HistoryId, nil
}

// StopWatch tears down the active push registration. Gmail allows one
// watch per mailbox; a 400 means there was none, which is fine.
func (a *Adapter) StopWatch(ctx context.Context) error {
	if err := a.svc.Users.Stop(a.user).Context(ctx).Do(); err != nil {
		if statusCode(err) == http.StatusBadRequest {
			return nil
		}
		return fmt.Errorf("failed to stop watch: %w", err)
	}
	return nil
}

// normalize converts a Gmail message to the provider-neutral form
func normalize(m *gmail.Message) *sync.Message {
	headers := make(map[string]string)
	if m.Payload != nil {
		for _, kv := range m.Payload.Headers {
			headers[kv.Name] = kv.Value
		}
	}

	subject := headers["Subject"]
	if subject == "" {
		subject = "(no subj)"
	}
	sender := headers["From"]
	if sender == "" {
		sender = "unknown"
	}

	return &sync.Message{
		Provider: sync.ProviderGoogle,
		ID:       m.Id,
		ThreadID: m.ThreadId,
		Subject:  subject,
		Sender:   sender,
		Snippet:  m.Snippet,
		Labels:   m.LabelIds,
		Date:     time.UnixMilli(m.InternalDate),
	}
}

// authError reports whether err is a credential failure: a rejected
// access token or a refresh the authorization server refused
func authError(err error) bool {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized
}

// statusCode extracts the HTTP status from a googleapi error, 0 otherwise
func statusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

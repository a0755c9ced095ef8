package outlook

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"

	"github.com/Martian-dev/inbox-triage/internal/sync"
)

// Adapter is the Outlook/Microsoft Graph backend. The Graph client
// wiring is real; the triage capabilities are stubs until Graph
// change notifications are hooked up.
type Adapter struct {
	client *msgraphsdk.GraphServiceClient
	userID string
}

// New creates the Graph client for the Outlook backend
func New(accessToken, userID string) (*Adapter, error) {
	cred := &staticTokenCredential{token: accessToken}

	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Graph client: %w", err)
	}

	return &Adapter{
		client: client,
		userID: userID,
	}, nil
}

// ChangesSince is not implemented for Outlook yet
func (a *Adapter) ChangesSince(ctx context.Context, lastID uint64) ([]sync.ChangeEvent, uint64, error) {
	return nil, lastID, fmt.Errorf("outlook change listing: %w", sync.ErrNotImplemented)
}

// FetchMessage is not implemented for Outlook yet
func (a *Adapter) FetchMessage(ctx context.Context, id string) (*sync.Message, error) {
	return nil, fmt.Errorf("outlook message fetch: %w", sync.ErrNotImplemented)
}

// ApplyLabel is not implemented for Outlook yet; Graph models labels
// as categories, which need a different write path
func (a *Adapter) ApplyLabel(ctx context.Context, id, label string) error {
	return fmt.Errorf("outlook labeling: %w", sync.ErrNotImplemented)
}

// CurrentHistoryID is not implemented for Outlook yet
func (a *Adapter) CurrentHistoryID(ctx context.Context) (uint64, error) {
	return 0, fmt.Errorf("outlook history position: %w", sync.ErrNotImplemented)
}

// staticTokenCredential implements Azure credential interface
type staticTokenCredential struct {
	token string
}

func (c *staticTokenCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     c.token,
		ExpiresOn: time.Now().Add(1 * time.Hour),
	}, nil
}

package gmail

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/api/gmail/v1"
)

// labelCache resolves label names to IDs, creating missing labels on
// first use. Gmail rejects duplicate label names, so the mutex also
// keeps concurrent resolves from racing a create.
type labelCache struct {
	mu  sync.Mutex
	ids map[string]string
}

func newLabelCache() *labelCache {
	return &labelCache{ids: make(map[string]string)}
}

// resolve returns the label ID for name, creating the label if the
// mailbox does not have it yet
func (c *labelCache) resolve(ctx context.Context, svc *gmail.Service, user, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.ids[name]; ok {
		return id, nil
	}

	list, err := svc.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to list labels: %w", err)
	}
	for _, l := range list.Labels {
		if l.Name == name {
			c.ids[name] = l.Id
			return l.Id, nil
		}
	}

	created, err := svc.Users.Labels.Create(user, &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create label %s: %w", name, err)
	}

	c.ids[name] = created.Id
	return created.Id, nil
}

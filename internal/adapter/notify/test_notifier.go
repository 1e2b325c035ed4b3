package notify

import (
	"context"
	"sync"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"
)

// SentNotification pairs a delivered notification with its recipient.
type SentNotification struct {
	RecipientId  string
	Notification domain.Notification
}

// TestNotifier records deliveries for assertions. Set Fail to simulate a
// broken channel.
type TestNotifier struct {
	mu   sync.Mutex
	sent []SentNotification
	Fail error
}

func NewTestNotifier() *TestNotifier {
	return &TestNotifier{}
}

func (n *TestNotifier) Send(_ context.Context, recipientId string, notification domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail != nil {
		return n.Fail
	}
	n.sent = append(n.sent, SentNotification{RecipientId: recipientId, Notification: notification})
	return nil
}

func (n *TestNotifier) Sent() []SentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]SentNotification, len(n.sent))
	copy(out, n.sent)
	return out
}

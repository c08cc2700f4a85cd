package notify

import "context"

// Notifier is the outbound notification boundary. Dispatch is best effort:
// callers log failures and never roll back a ledger mutation over one.
type Notifier interface {
	DispatchEvent(ctx context.Context, eventType string, eventContext map[string]any) error
}

type NoOpNotifier struct{}

func (NoOpNotifier) DispatchEvent(ctx context.Context, eventType string, eventContext map[string]any) error {
	return nil
}

package notify

import "context"

// Feed carries change events between processes that share a cart backend.
type Feed interface {
	// Publish announces a local change. Failures are the caller's to log.
	Publish(ctx context.Context, e Event) error
	// Run delivers remote events to fn until ctx is done. It returns nil on cancellation.
	Run(ctx context.Context, fn func(Event)) error
}

// NopFeed is used when the engine is the only writer.
type NopFeed struct{}

func (NopFeed) Publish(context.Context, Event) error { return nil }

func (NopFeed) Run(ctx context.Context, _ func(Event)) error {
	<-ctx.Done()
	return nil
}

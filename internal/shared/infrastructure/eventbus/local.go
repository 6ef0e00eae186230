package eventbus

import (
	"context"
	"log/slog"
)

// LocalBus delivers published messages to its router synchronously, in the
// publishing goroutine. It replaces the broker when the API, worker and
// cache share one process.
type LocalBus struct {
	router *Router
	logger *slog.Logger
}

// NewLocalBus creates a bus with an empty router.
func NewLocalBus(logger *slog.Logger) *LocalBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBus{router: NewRouter(logger), logger: logger}
}

// Subscribe registers h.
func (b *LocalBus) Subscribe(h Handler) {
	b.router.Add(h)
}

// Publish decodes body and routes it. A malformed body is dropped, since a
// retry would fail the same way; handler errors are returned so the outbox
// retries the message.
func (b *LocalBus) Publish(ctx context.Context, routingKey string, body []byte) error {
	d, err := Decode(body, routingKey)
	if err != nil {
		b.logger.Error("dropping malformed delivery", "routing_key", routingKey, "error", err)
		return nil
	}
	return b.router.Route(ctx, d)
}

func (b *LocalBus) Close() error { return nil }

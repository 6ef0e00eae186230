package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Router fans deliveries out to the handlers registered for their routing key.
type Router struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewRouter creates an empty router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{logger: logger, handlers: make(map[string][]Handler)}
}

// Add registers h for each of its routing keys.
func (r *Router) Add(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range h.RoutingKeys() {
		r.handlers[key] = append(r.handlers[key], h)
	}
}

// Keys lists the routing keys with at least one handler.
func (r *Router) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.handlers))
	for key := range r.handlers {
		keys = append(keys, key)
	}
	return keys
}

// Route hands d to every matching handler. All handlers run even when one
// fails; their errors are joined.
func (r *Router) Route(ctx context.Context, d *Delivery) error {
	r.mu.RLock()
	handlers := r.handlers[d.RoutingKey]
	r.mu.RUnlock()

	if len(handlers) == 0 {
		r.logger.Debug("no handler for delivery", "routing_key", d.RoutingKey)
		return nil
	}

	var errs []error
	for _, h := range handlers {
		if err := h.Handle(ctx, d); err != nil {
			r.logger.Error("delivery handler failed",
				"routing_key", d.RoutingKey,
				"event_id", d.EventID,
				"correlation_id", d.CorrelationID,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

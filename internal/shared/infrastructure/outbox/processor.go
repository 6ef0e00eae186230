package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/reformer/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/reformer/pkg/observability"
)

// ProcessorConfig tunes the relay loop.
type ProcessorConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxAttempts is the number of failed publishes after which a message
	// is buried.
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultProcessorConfig returns the settings used when none are configured.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval: 100 * time.Millisecond,
		BatchSize:    100,
		MaxAttempts:  5,
		BackoffBase:  time.Second,
		BackoffMax:   time.Minute,
	}
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	d := DefaultProcessorConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = max(d.BackoffMax, c.BackoffBase)
	}
	return c
}

// Stats is a snapshot of relay progress.
type Stats struct {
	Running         bool
	Published       uint64
	Retried         uint64
	Buried          uint64
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastDrainAt     *time.Time
	OldestPendingAt *time.Time
}

// Processor relays due outbox messages to a publisher.
type Processor struct {
	repo    Repository
	pub     eventbus.Publisher
	cfg     ProcessorConfig
	logger  *slog.Logger
	metrics observability.Metrics
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// NewProcessor creates a stopped processor.
func NewProcessor(repo Repository, pub eventbus.Publisher, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		repo:    repo,
		pub:     pub,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		metrics: observability.NoopMetrics{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetMetrics replaces the no-op recorder.
func (p *Processor) SetMetrics(m observability.Metrics) {
	p.metrics = m
}

// Start polls in the background until Stop is called or ctx ends. Starting
// a running processor does nothing.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(runCtx, p.done)

	p.logger.Info("outbox processor started",
		"poll_interval", p.cfg.PollInterval,
		"batch_size", p.cfg.BatchSize,
		"max_attempts", p.cfg.MaxAttempts,
	)
	return nil
}

// Stop ends the loop and waits for the batch in flight.
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return
	}
	p.cancel()
	<-p.done
	p.done = nil
	p.logger.Info("outbox processor stopped")
}

// IsRunning reports whether the loop is active.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done != nil
}

func (p *Processor) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Drain(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox drain failed", "error", err)
			}
		}
	}
}

// Drain publishes one batch of due messages and returns how many went out.
func (p *Processor) Drain(ctx context.Context) (int, error) {
	now := p.now()
	batch, err := p.repo.Due(ctx, now, p.cfg.BatchSize)
	if err != nil {
		p.noteError(err)
		return 0, err
	}
	p.noteBatch(now, batch)

	published := 0
	for _, msg := range batch {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		if p.relay(ctx, msg) {
			published++
		}
	}
	return published, nil
}

// relay publishes msg and records the result. A failed publish is retried
// with backoff until MaxAttempts, then buried.
func (p *Processor) relay(ctx context.Context, msg *Message) bool {
	pubErr := p.pub.Publish(ctx, msg.RoutingKey, msg.Payload)
	if pubErr == nil {
		if err := p.repo.MarkPublished(ctx, msg.ID, p.now()); err != nil {
			// The message will go out again; consumers tolerate repeats.
			p.logger.Error("failed to mark outbox message published", "id", msg.ID, "error", err)
			return false
		}
		p.count("published")
		return true
	}

	attempt := msg.Attempts + 1
	p.noteError(pubErr)
	log := p.logger.With(
		"id", msg.ID,
		"event_id", msg.EventID,
		"user_id", msg.UserID,
		"routing_key", msg.RoutingKey,
		"attempt", attempt,
	)

	var err error
	if attempt >= p.cfg.MaxAttempts {
		log.Error("burying outbox message", "error", pubErr)
		err = p.repo.Bury(ctx, msg.ID, pubErr.Error(), p.now())
		p.count("buried")
	} else {
		next := p.now().Add(p.backoff(attempt))
		log.Warn("outbox publish failed, retrying", "next_attempt_at", next, "error", pubErr)
		err = p.repo.Reschedule(ctx, msg.ID, pubErr.Error(), next)
		p.count("retried")
	}
	if err != nil {
		log.Error("failed to record outbox failure", "error", err)
	}
	return false
}

// backoff doubles from BackoffBase for each earlier attempt, up to BackoffMax.
func (p *Processor) backoff(attempt int) time.Duration {
	d := p.cfg.BackoffBase
	for i := 1; i < attempt && d < p.cfg.BackoffMax; i++ {
		d *= 2
	}
	return min(d, p.cfg.BackoffMax)
}

func (p *Processor) count(outcome string) {
	p.metrics.Counter(observability.MetricOutboxMessages, 1, observability.T("outcome", outcome))

	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	switch outcome {
	case "published":
		p.stats.Published++
	case "retried":
		p.stats.Retried++
	case "buried":
		p.stats.Buried++
	}
}

func (p *Processor) noteError(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	now := p.now()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}

func (p *Processor) noteBatch(now time.Time, batch []*Message) {
	var oldest *time.Time
	for _, msg := range batch {
		if oldest == nil || msg.CreatedAt.Before(*oldest) {
			created := msg.CreatedAt
			oldest = &created
		}
	}
	lag := 0.0
	if oldest != nil {
		lag = now.Sub(*oldest).Seconds()
	}
	p.metrics.Gauge(observability.MetricOutboxLag, lag)

	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.LastDrainAt = &now
	p.stats.OldestPendingAt = oldest
	p.stats.LagSeconds = lag
}

// Stats returns a snapshot of relay progress.
func (p *Processor) Stats() Stats {
	running := p.IsRunning()
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	s := p.stats
	s.Running = running
	return s
}

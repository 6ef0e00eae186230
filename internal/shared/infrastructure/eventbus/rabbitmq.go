package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange is the durable topic exchange billing events are published to.
const Exchange = "reformer.billing"

// amqpLink is a connection with one channel on which the exchange exists.
type amqpLink struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func dialExchange(url, exchange string) (*amqpLink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &amqpLink{conn: conn, ch: ch}, nil
}

// close tears down the connection, which also closes its channel.
func (l *amqpLink) close() error {
	if l.conn.IsClosed() {
		return nil
	}
	return l.conn.Close()
}

// AMQPPublisher publishes persistent JSON messages to Exchange.
type AMQPPublisher struct {
	mu     sync.Mutex
	link   *amqpLink
	logger *slog.Logger
}

// NewAMQPPublisher connects to the broker at url.
func NewAMQPPublisher(url string, logger *slog.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	link, err := dialExchange(url, Exchange)
	if err != nil {
		return nil, err
	}
	logger.Info("rabbitmq publisher connected", "exchange", Exchange)
	return &AMQPPublisher{link: link, logger: logger}, nil
}

// Publish sends body under routingKey. Channels are not safe for concurrent
// publishing, so calls are serialized.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.link.ch.PublishWithContext(ctx, Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.logger.Debug("published", "routing_key", routingKey, "bytes", len(body))
	return nil
}

// Ping fails once the broker connection has dropped.
func (p *AMQPPublisher) Ping(context.Context) error {
	if p.link.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.link.close()
}

// AMQPConsumerConfig names the durable queue a consumer drains.
type AMQPConsumerConfig struct {
	URL      string
	Queue    string
	Prefetch int
	Logger   *slog.Logger
}

// AMQPConsumer binds a queue to Exchange and routes what arrives on it.
type AMQPConsumer struct {
	link   *amqpLink
	queue  string
	router *Router
	logger *slog.Logger
	once   sync.Once
}

// NewAMQPConsumer connects and declares cfg.Queue.
func NewAMQPConsumer(cfg AMQPConsumerConfig) (*AMQPConsumer, error) {
	if cfg.Queue == "" {
		return nil, errors.New("rabbitmq consumer needs a queue name")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}

	link, err := dialExchange(cfg.URL, Exchange)
	if err != nil {
		return nil, err
	}
	if _, err := link.ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = link.close()
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	if err := link.ch.Qos(cfg.Prefetch, 0, false); err != nil {
		_ = link.close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}

	cfg.Logger.Info("rabbitmq consumer connected", "queue", cfg.Queue, "exchange", Exchange)
	return &AMQPConsumer{
		link:   link,
		queue:  cfg.Queue,
		router: NewRouter(cfg.Logger),
		logger: cfg.Logger,
	}, nil
}

// Subscribe registers h and binds the queue to each of its routing keys.
func (c *AMQPConsumer) Subscribe(h Handler) error {
	for _, key := range h.RoutingKeys() {
		if err := c.link.ch.QueueBind(c.queue, key, Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", c.queue, key, err)
		}
	}
	c.router.Add(h)
	return nil
}

// Run consumes until ctx is canceled or the broker closes the channel.
func (c *AMQPConsumer) Run(ctx context.Context) error {
	msgs, err := c.link.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	c.logger.Info("consuming", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			c.settle(ctx, msg)
		}
	}
}

// settle acks handled messages, requeues handler failures and rejects
// bodies that cannot be decoded.
func (c *AMQPConsumer) settle(ctx context.Context, msg amqp.Delivery) {
	d, err := Decode(msg.Body, msg.RoutingKey)
	if err != nil {
		c.logger.Error("rejecting delivery", "routing_key", msg.RoutingKey, "error", err)
		_ = msg.Reject(false)
		return
	}

	if err := c.router.Route(ctx, d); err != nil {
		_ = msg.Nack(false, true)
		return
	}
	if err := msg.Ack(false); err != nil {
		c.logger.Warn("ack failed", "event_id", d.EventID, "error", err)
	}
}

// Close stops the consumer. It is safe to call more than once.
func (c *AMQPConsumer) Close() error {
	var err error
	c.once.Do(func() { err = c.link.close() })
	return err
}

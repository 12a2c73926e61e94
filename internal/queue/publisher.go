package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	DefaultDialTimeout  = 2 * time.Second
	DefaultRedialPause  = 5 * time.Second
	DefaultPublishLimit = 3 * time.Second
)

// Publisher sends user events to the durable user.events queue. The
// broker connection is opened lazily and re-dialed after a failure, so a
// broker outage never blocks startup. After a failed dial, publishes fail
// fast until the redial pause has passed.
type Publisher struct {
	url          string
	log          *zap.Logger
	dialTimeout  time.Duration
	redialPause  time.Duration
	publishLimit time.Duration
	now          func() time.Time

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	dialErr  error
	dialedAt time.Time
}

// PublisherOption tunes a Publisher.
type PublisherOption func(*Publisher)

// WithDialTimeout bounds the TCP connect and the AMQP handshake.
func WithDialTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.dialTimeout = d }
}

// WithRedialPause sets how long a failed dial is remembered.
func WithRedialPause(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.redialPause = d }
}

// WithPublishLimit bounds a single Publish call once connected.
func WithPublishLimit(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.publishLimit = d }
}

func NewPublisher(url string, log *zap.Logger, opts ...PublisherOption) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Publisher{
		url:          url,
		log:          log,
		dialTimeout:  DefaultDialTimeout,
		redialPause:  DefaultRedialPause,
		publishLimit: DefaultPublishLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// channel returns an open channel with the queue declared. Caller holds mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	if p.dialErr != nil && p.now().Sub(p.dialedAt) < p.redialPause {
		return nil, fmt.Errorf("dial: %w", p.dialErr)
	}
	p.dialedAt = p.now()
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.dialTimeout),
	})
	if err != nil {
		p.dialErr = err
		return nil, fmt.Errorf("dial: %w", err)
	}
	p.dialErr = nil
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(UserEventsQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Publish marshals ev and sends it as a persistent message. The call is
// bounded by the dial timeout plus the publish limit.
func (p *Publisher) Publish(ctx context.Context, ev UserEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		p.log.Warn("rabbitmq unavailable", zap.String("event", ev.Event), zap.Error(err))
		return err
	}

	pctx, cancel := context.WithTimeout(ctx, p.publishLimit)
	defer cancel()
	err = ch.PublishWithContext(pctx,
		"",              // default exchange
		UserEventsQueue, // routing key = queue name
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Type:         ev.Event,
			Body:         body,
		})
	if err != nil {
		p.reset()
		p.log.Warn("rabbitmq publish failed", zap.String("event", ev.Event), zap.Error(err))
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}

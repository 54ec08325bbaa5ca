package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange events are published to when no
// exchange is configured.
const DefaultExchange = "simpleflow.events"

// Publisher is the subset of *amqp.Channel used by AMQPEmitter.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPEmitter publishes events as JSON messages to a RabbitMQ topic exchange.
//
// The routing key is "<flow>.<msg>", e.g. "checkout.node_end", so consumers
// can bind to a single flow ("checkout.#") or a single event kind
// ("*.node_error").
//
// Publish failures never fail the run. They are logged and counted.
type AMQPEmitter struct {
	pub      Publisher
	exchange string
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	failed int
	closer func() error
}

// AMQPOption configures an AMQPEmitter.
type AMQPOption func(*AMQPEmitter)

// WithExchange overrides DefaultExchange.
func WithExchange(name string) AMQPOption {
	return func(e *AMQPEmitter) { e.exchange = name }
}

// WithPublishTimeout bounds each publish call. Default: 5s.
func WithPublishTimeout(d time.Duration) AMQPOption {
	return func(e *AMQPEmitter) { e.timeout = d }
}

// WithAMQPLogger sets the logger used to report publish failures.
func WithAMQPLogger(logger *slog.Logger) AMQPOption {
	return func(e *AMQPEmitter) { e.logger = logger }
}

// NewAMQPEmitter creates an emitter publishing through pub.
func NewAMQPEmitter(pub Publisher, opts ...AMQPOption) *AMQPEmitter {
	e := &AMQPEmitter{
		pub:      pub,
		exchange: DefaultExchange,
		timeout:  5 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DialAMQP connects to url, declares the exchange as a durable topic exchange
// and returns an emitter that owns the connection. Close releases it.
func DialAMQP(url string, opts ...AMQPOption) (*AMQPEmitter, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	e := NewAMQPEmitter(ch, opts...)
	err = ch.ExchangeDeclare(
		e.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", e.exchange, err)
	}

	e.closer = func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return e, nil
}

type amqpMessage struct {
	RunID  string                 `json:"run_id"`
	Flow   string                 `json:"flow"`
	Seq    int                    `json:"seq"`
	NodeID string                 `json:"node_id,omitempty"`
	Msg    string                 `json:"msg"`
	Meta   map[string]interface{} `json:"meta,omitempty"`
}

// Emit publishes event.
func (e *AMQPEmitter) Emit(event Event) {
	body, err := json.Marshal(amqpMessage{
		RunID:  event.RunID,
		Flow:   event.Flow,
		Seq:    event.Seq,
		NodeID: event.NodeID,
		Msg:    event.Msg,
		Meta:   event.Meta,
	})
	if err != nil {
		e.fail(event, fmt.Errorf("marshal event: %w", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	err = e.pub.PublishWithContext(ctx, e.exchange, RoutingKey(event), false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: event.RunID,
		Type:          event.Msg,
		Timestamp:     time.Now(),
		Body:          body,
	})
	if err != nil {
		e.fail(event, fmt.Errorf("publish to %s/%s: %w", e.exchange, RoutingKey(event), err))
	}
}

// Failed returns the number of events that could not be published.
func (e *AMQPEmitter) Failed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failed
}

// Close closes the connection opened by DialAMQP. It is a no-op for emitters
// created with NewAMQPEmitter.
func (e *AMQPEmitter) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}

func (e *AMQPEmitter) fail(event Event, err error) {
	e.mu.Lock()
	e.failed++
	e.mu.Unlock()

	e.logger.Warn("event not published",
		"run_id", event.RunID,
		"msg", event.Msg,
		"error", err,
	)
}

// RoutingKey returns the routing key used for event.
func RoutingKey(event Event) string {
	flow := event.Flow
	if flow == "" {
		flow = "unnamed"
	}
	return flow + "." + event.Msg
}

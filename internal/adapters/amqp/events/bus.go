package events

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/travelmap/ratings-api/internal/domain"
	"github.com/travelmap/ratings-api/internal/ports/out/events"
)

const DefaultExchange = "ratings.events"

// Bus publishes rating events to a RabbitMQ topic exchange. Each subscription consumes from its own
// exclusive auto-delete queue bound to the user's routing key.
type Bus struct {
	conn     *amqp.Connection
	exchange string
	log      *zap.Logger

	pubMu sync.Mutex
	pub   *amqp.Channel

	mu     sync.Mutex
	subs   map[*amqp.Channel]struct{}
	closed bool
}

func Dial(url, exchange string, log *zap.Logger) (*Bus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	b, err := NewBus(conn, exchange, log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return b, nil
}

func NewBus(conn *amqp.Connection, exchange string, log *zap.Logger) (*Bus, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if log == nil {
		log = zap.NewNop()
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("error declaring exchange: %w", err)
	}
	return &Bus{
		conn:     conn,
		exchange: exchange,
		log:      log,
		pub:      ch,
		subs:     map[*amqp.Channel]struct{}{},
	}, nil
}

// routingKey hex-encodes the user id so ids never act as topic wildcards.
func routingKey(userID domain.UserID) string {
	return "user." + hex.EncodeToString([]byte(userID))
}

func (b *Bus) Publish(ctx context.Context, ev events.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	err = b.pub.PublishWithContext(ctx, b.exchange, routingKey(ev.UserID), false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   ev.ID,
		Timestamp:   ev.OccurredAt,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("error sending message: %w", err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, userID domain.UserID, fn events.Handler) (func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.New("amqp event bus closed")
	}
	b.mu.Unlock()

	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("error declaring queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingKey(userID), b.exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("error binding queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to register a consumer: %w", err)
	}

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			_ = ch.Close()
		})
	}
	stop := context.AfterFunc(ctx, cancel)

	go func() {
		for d := range deliveries {
			var ev events.Event
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				b.log.Warn("bad event payload", zap.String("queue", q.Name), zap.Error(err))
				continue
			}
			fn(ev)
		}
	}()

	return func() {
		stop()
		cancel()
	}, nil
}

// Close closes every channel and the connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = map[*amqp.Channel]struct{}{}
	b.closed = true
	b.mu.Unlock()

	var errs []error
	for ch := range subs {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	b.pubMu.Lock()
	if err := b.pub.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
	}
	b.pubMu.Unlock()
	if err := b.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
	}
	return errors.Join(errs...)
}

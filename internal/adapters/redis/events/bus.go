package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/travelmap/ratings-api/internal/domain"
	"github.com/travelmap/ratings-api/internal/ports/out/events"
)

// Bus fans rating events out over Redis pub/sub, one channel per user.
type Bus struct {
	rdb    *goredis.Client
	prefix string
	log    *zap.Logger

	mu     sync.Mutex
	subs   map[*goredis.PubSub]struct{}
	closed bool
}

func NewBus(rdb *goredis.Client, channelPrefix string, log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{rdb: rdb, prefix: channelPrefix, log: log, subs: map[*goredis.PubSub]struct{}{}}
}

func (b *Bus) channel(userID domain.UserID) string {
	return b.prefix + ":" + string(userID)
}

func (b *Bus) Publish(ctx context.Context, ev events.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel(ev.UserID), raw).Err()
}

func (b *Bus) Subscribe(ctx context.Context, userID domain.UserID, fn events.Handler) (func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.New("redis event bus closed")
	}
	b.mu.Unlock()

	ch := b.channel(userID)
	sub := b.rdb.Subscribe(ctx, ch)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", ch, err)
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			_ = sub.Close()
		})
	}
	stop := context.AfterFunc(ctx, cancel)

	go func() {
		for m := range sub.Channel() {
			var ev events.Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				b.log.Warn("bad event payload", zap.String("channel", m.Channel), zap.Error(err))
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

// Close stops every subscription. The Redis client is owned by the caller.
func (b *Bus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = map[*goredis.PubSub]struct{}{}
	b.closed = true
	b.mu.Unlock()

	var errs []error
	for sub := range subs {
		errs = append(errs, sub.Close())
	}
	return errors.Join(errs...)
}

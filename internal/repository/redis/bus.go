package redis

import (
	"context"
	"strings"
	"sync"

	"github.com/dom/werewolf/internal/repository"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type bus struct {
	rdb    *goredis.Client
	logger *zap.Logger
}

// NewBus publishes room events on one channel per room.
func NewBus(rdb *goredis.Client, logger *zap.Logger) *bus {
	return &bus{rdb: rdb, logger: logger.Named("bus")}
}

func (b *bus) Publish(ctx context.Context, roomID string, payload []byte) error {
	return b.rdb.Publish(ctx, channelName(roomID), payload).Err()
}

func (b *bus) SubscribeAll(ctx context.Context) (repository.Subscription, error) {
	ps := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	// Wait for the subscription confirmation so no early publish is lost.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}

	s := &subscription{
		ps:       ps,
		out:      make(chan repository.BusMessage, 64),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go s.forward(b.logger)
	return s, nil
}

type subscription struct {
	ps        *goredis.PubSub
	out       chan repository.BusMessage
	done      chan struct{} // closed by Close
	finished  chan struct{} // closed when forward returns
	closeOnce sync.Once
}

// forward copies pubsub messages to out until the pubsub channel closes or
// Close is called. A reader that stopped draining out cannot keep it alive.
func (s *subscription) forward(logger *zap.Logger) {
	defer close(s.finished)
	defer close(s.out)
	for msg := range s.ps.Channel() {
		roomID, ok := strings.CutPrefix(msg.Channel, channelPrefix)
		if !ok {
			logger.Warn("message on unexpected channel", zap.String("channel", msg.Channel))
			continue
		}
		select {
		case s.out <- repository.BusMessage{RoomID: roomID, Payload: []byte(msg.Payload)}:
		case <-s.done:
			return
		}
	}
}

func (s *subscription) Messages() <-chan repository.BusMessage { return s.out }

func (s *subscription) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.ps.Close()
}

package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-functions/internal/docstore"
)

const (
	eventField   = "event"
	readCount    = 16
	readBlock    = 5 * time.Second
	streamMaxLen = 100_000
)

// RedisStream publishes events to a Redis stream and consumes them through a
// consumer group, so each event is handled by one worker.
type RedisStream struct {
	rdb    *redis.Client
	stream string
	group  string
	log    zerolog.Logger
}

func NewRedisStream(rdb *redis.Client, stream, group string, log zerolog.Logger) *RedisStream {
	return &RedisStream{rdb: rdb, stream: stream, group: group, log: log}
}

func (s *RedisStream) Publish(ctx context.Context, e Event) error {
	payload, err := encode(e)
	if err != nil {
		return err
	}

	err = s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{eventField: payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish %s: %w", e, err)
	}
	return nil
}

// ChangeSink publishes every committed change. Publishing failures are
// logged; the write itself has already been committed.
func (s *RedisStream) ChangeSink() docstore.ChangeSink {
	return func(ctx context.Context, changes []docstore.Change) {
		for _, c := range changes {
			if err := s.Publish(context.WithoutCancel(ctx), FromChange(c)); err != nil {
				s.log.Error().Err(err).Msg("change event lost")
			}
		}
	}
}

// AuthSink publishes auth account deletions.
func (s *RedisStream) AuthSink() func(ctx context.Context, uid, email string) {
	return func(ctx context.Context, uid, email string) {
		if err := s.Publish(context.WithoutCancel(ctx), AuthDeleted(uid, email, time.Now())); err != nil {
			s.log.Error().Err(err).Str("uid", uid).Msg("auth delete event lost")
		}
	}
}

// EnsureGroup creates the stream and consumer group when missing.
func (s *RedisStream) EnsureGroup(ctx context.Context) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", s.group, err)
	}
	return nil
}

// Consume reads events as consumer until ctx is done. Entries left pending by
// an earlier run of the same consumer are handled first. Every entry is
// acknowledged after handle returns, including undecodable ones.
func (s *RedisStream) Consume(ctx context.Context, consumer string, handle func(ctx context.Context, e Event)) error {
	start := "0"
	for {
		if ctx.Err() != nil {
			return nil
		}

		streams, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: consumer,
			Streams:  []string{s.stream, start},
			Count:    readCount,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				start = ">"
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read %s: %w", s.stream, err)
		}

		delivered := 0
		for _, st := range streams {
			for _, msg := range st.Messages {
				delivered++
				s.handleMessage(ctx, msg, handle)
			}
		}

		if start == "0" && delivered == 0 {
			start = ">"
		}
	}
}

func (s *RedisStream) handleMessage(ctx context.Context, msg redis.XMessage, handle func(ctx context.Context, e Event)) {
	raw, _ := msg.Values[eventField].(string)
	e, err := decode(raw)
	if err != nil {
		s.log.Error().Err(err).Str("message_id", msg.ID).Msg("dropping malformed event")
	} else {
		handle(ctx, e)
	}

	if err := s.rdb.XAck(context.WithoutCancel(ctx), s.stream, s.group, msg.ID).Err(); err != nil {
		s.log.Error().Err(err).Str("message_id", msg.ID).Msg("ack failed")
	}
}

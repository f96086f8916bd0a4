package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vstream/video-platform-back/internal/domain"
)

type StreamsConfig struct {
	Addr         string
	Password     string
	DB           int
	Stream       string
	Group        string
	Consumer     string
	PollInterval time.Duration
}

// StreamsNotifier implements Notifier+Waiter over Redis Streams so wake
// events reach workers in other processes. Entries are acked and deleted
// on receipt; the tiny XRead block interval doubles as the worker poll
// interval.
type StreamsNotifier struct {
	client       *redis.Client
	stream       string
	group        string
	consumer     string
	pollInterval time.Duration
}

func NewStreamsNotifier(ctx context.Context, cfg StreamsConfig) (*StreamsNotifier, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Stream == "" {
		cfg.Stream = "search_jobs"
	}
	if cfg.Group == "" {
		cfg.Group = "search_workers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "worker-1"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	notifier := &StreamsNotifier{
		client:       client,
		stream:       cfg.Stream,
		group:        cfg.Group,
		consumer:     cfg.Consumer,
		pollInterval: cfg.PollInterval,
	}
	if err := notifier.ensureGroup(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return notifier, nil
}

func (n *StreamsNotifier) Close() error {
	return n.client.Close()
}

func (n *StreamsNotifier) Publish(ctx context.Context, event domain.WakeEvent) error {
	_, err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]any{
			"job_id":       event.JobID,
			"owner_id":     event.OwnerID,
			"requested_at": event.RequestedAt.Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish wake event: %w", err)
	}
	return nil
}

func (n *StreamsNotifier) Wait(ctx context.Context) (domain.WakeEvent, bool, error) {
	streams, err := n.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    n.group,
		Consumer: n.consumer,
		Streams:  []string{n.stream, ">"},
		Count:    1,
		Block:    n.pollInterval,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.WakeEvent{}, false, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.WakeEvent{}, false, err
		}
		return domain.WakeEvent{}, false, fmt.Errorf("xreadgroup: %w", err)
	}

	for _, stream := range streams {
		for _, item := range stream.Messages {
			event := parseWakeEvent(item)
			_ = n.client.XAck(ctx, n.stream, n.group, item.ID).Err()
			_ = n.client.XDel(ctx, n.stream, item.ID).Err()
			return event, true, nil
		}
	}
	return domain.WakeEvent{}, false, nil
}

func (n *StreamsNotifier) ensureGroup(ctx context.Context) error {
	err := n.client.XGroupCreateMkStream(ctx, n.stream, n.group, "$").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("ensure stream group: %w", err)
}

func parseWakeEvent(item redis.XMessage) domain.WakeEvent {
	getString := func(key string) string {
		value, ok := item.Values[key]
		if !ok {
			return ""
		}
		switch casted := value.(type) {
		case string:
			return casted
		case []byte:
			return string(casted)
		default:
			return fmt.Sprintf("%v", casted)
		}
	}

	event := domain.WakeEvent{
		JobID:   getString("job_id"),
		OwnerID: getString("owner_id"),
	}
	if parsed, err := time.Parse(time.RFC3339Nano, getString("requested_at")); err == nil {
		event.RequestedAt = parsed
	}
	return event
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"barberq/config"
	"barberq/internal/store"
	"barberq/models"
	"barberq/monitoring"
	"barberq/utils"
)

// PushSender delivers one push message to a device token.
type PushSender interface {
	Send(ctx context.Context, token, title, body string, data map[string]any) error
}

// RealtimePublisher publishes one payload to a named channel.
type RealtimePublisher interface {
	Publish(ctx context.Context, channel string, payload map[string]any) error
}

type job struct {
	channel string
	run     func(ctx context.Context) error
}

// Notifier is the fanout side of the engine: push messages to a
// customer's device and realtime payloads to shop/customer channels.
// Everything goes through a buffered job queue consumed by one worker;
// when the queue is full, jobs are dropped, never blocked on. Failures
// are logged and counted, and never reach the engine's callers.
type Notifier struct {
	queues   store.QueueStore
	accounts store.AccountStore
	push     PushSender
	realtime RealtimePublisher
	redis    *redis.Client
	config   *config.Config

	jobs chan job
	done chan struct{}
}

func NewNotifier(
	queues store.QueueStore,
	accounts store.AccountStore,
	push PushSender,
	realtime RealtimePublisher,
	redisClient *redis.Client,
	cfg *config.Config,
) *Notifier {
	n := &Notifier{
		queues:   queues,
		accounts: accounts,
		push:     push,
		realtime: realtime,
		redis:    redisClient,
		config:   cfg,
		jobs:     make(chan job, cfg.NotifyBufferSize),
		done:     make(chan struct{}),
	}

	go n.worker()

	return n
}

func (n *Notifier) worker() {
	defer close(n.done)

	for j := range n.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := j.run(ctx); err != nil {
			slog.Warn("notification delivery failed", "channel", j.channel, "error", err)
			monitoring.TrackNotification(j.channel, "error")
		} else {
			monitoring.TrackNotification(j.channel, "ok")
		}
		cancel()
	}
}

// Close drains remaining jobs and stops the worker.
func (n *Notifier) Close() {
	close(n.jobs)
	<-n.done
}

func (n *Notifier) enqueue(j job) {
	select {
	case n.jobs <- j:
	default:
		slog.Warn("notification queue full, dropping job", "channel", j.channel)
		monitoring.TrackNotification(j.channel, "dropped")
	}
}

// PushToAccount sends a push message to the account's registered device.
// Missing accounts and absent or malformed tokens are skipped silently.
func (n *Notifier) PushToAccount(accountID, title, body string, data map[string]any) {
	if accountID == "" {
		return
	}
	n.enqueue(job{channel: "push", run: func(ctx context.Context) error {
		account, err := n.accounts.User(ctx, accountID)
		if err != nil {
			slog.Info("push skipped, account not found", "account", accountID)
			return nil
		}
		if !utils.IsExpoPushToken(account.PushToken) {
			slog.Info("push skipped, no usable token", "account", accountID)
			return nil
		}
		return n.push.Send(ctx, account.PushToken, title, body, data)
	}})
}

// SendToCustomer publishes a one-off event on the customer's private
// realtime channel.
func (n *Notifier) SendToCustomer(accountID, event string, payload map[string]any) {
	if accountID == "" {
		return
	}
	n.enqueue(job{channel: "customer", run: func(ctx context.Context) error {
		message := map[string]any{"type": event}
		for k, v := range payload {
			message[k] = v
		}
		return n.realtime.Publish(ctx, fmt.Sprintf("user-%s", accountID), message)
	}})
}

// BroadcastShopQueue publishes the refreshed active queue to the shop
// channel. The list is re-read at delivery time so observers always get
// the latest committed state, and the per-customer position cache is
// refreshed from the same read.
func (n *Notifier) BroadcastShopQueue(shopID string) {
	if shopID == "" {
		return
	}
	n.enqueue(job{channel: "shop", run: func(ctx context.Context) error {
		entries, err := n.queues.ActiveByShop(ctx, shopID)
		if err != nil {
			return err
		}

		monitoring.SetQueueLength(shopID, len(entries))
		n.cachePositions(ctx, shopID, entries)

		return n.realtime.Publish(ctx, fmt.Sprintf("shop-%s", shopID), map[string]any{
			"type":    "queue_updated",
			"shop_id": shopID,
			"queue":   entries,
			"count":   len(entries),
		})
	}})
}

func (n *Notifier) cachePositions(ctx context.Context, shopID string, entries []*models.QueueEntry) {
	if n.redis == nil {
		return
	}
	for _, entry := range entries {
		if entry.AccountID == "" {
			continue
		}
		posKey := fmt.Sprintf("queue:position:%s:%s", shopID, entry.AccountID)
		if err := n.redis.Set(ctx, posKey, entry.Position, n.config.PositionCacheTTL).Err(); err != nil {
			slog.Warn("position cache write failed", "key", posKey, "error", err)
		}
	}
}

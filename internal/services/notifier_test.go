package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barberq/models"
)

func TestNotifier_SkipsAccountsWithoutUsableToken(t *testing.T) {
	ms := newMemStore()
	ms.users["tokenless"] = &models.Account{ID: "tokenless", Name: "No Token"}
	ms.users["badtoken"] = &models.Account{ID: "badtoken", Name: "Bad Token", PushToken: "fcm:nope"}

	push := &fakePush{}
	notifier := NewNotifier(ms, ms, push, &fakeRealtime{}, nil, testConfig())

	notifier.PushToAccount("tokenless", "title", "body", nil)
	notifier.PushToAccount("badtoken", "title", "body", nil)
	notifier.PushToAccount("ghost", "title", "body", nil)
	notifier.Close()

	assert.Empty(t, push.messages())
}

// blockingPush holds every send until released so the job queue can be
// filled deterministically.
type blockingPush struct {
	fakePush
	release chan struct{}
}

func (b *blockingPush) Send(ctx context.Context, token, title, body string, data map[string]any) error {
	<-b.release
	return b.fakePush.Send(ctx, token, title, body, data)
}

func TestNotifier_DropsJobsWhenQueueFull(t *testing.T) {
	ms := newMemStore()
	ms.users["alice"] = &models.Account{ID: "alice", Name: "Alice", PushToken: "ExponentPushToken[alice]"}

	cfg := testConfig()
	cfg.NotifyBufferSize = 2

	push := &blockingPush{release: make(chan struct{})}
	notifier := NewNotifier(ms, ms, push, &fakeRealtime{}, nil, cfg)

	// One job in flight blocks the worker; two more fill the buffer.
	// Everything past that is dropped instead of blocking the caller.
	for i := 0; i < 10; i++ {
		notifier.PushToAccount("alice", "title", "body", nil)
	}
	// Give the worker a beat to pick up the first job.
	time.Sleep(50 * time.Millisecond)

	close(push.release)
	notifier.Close()

	delivered := len(push.messages())
	assert.Greater(t, delivered, 0)
	assert.Less(t, delivered, 10)
}

func TestNotifier_BroadcastCachesPositions(t *testing.T) {
	ms := newMemStore()
	ms.users["alice"] = &models.Account{ID: "alice", Name: "Alice"}
	require.NoError(t, ms.Create(context.Background(), &models.QueueEntry{
		ShopID:    "shop1",
		AccountID: "alice",
		Position:  1,
		Status:    models.StatusPending,
	}))
	require.NoError(t, ms.Create(context.Background(), &models.QueueEntry{
		ShopID:       "shop1",
		CustomerName: "Walk-in Joe",
		Position:     2,
		Status:       models.StatusPending,
	}))

	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	cfg := testConfig()
	// Only the account-backed entry gets a cache key; guests have no
	// stable identity to key on.
	mock.ExpectSet("queue:position:shop1:alice", 1, cfg.PositionCacheTTL).SetVal("OK")

	rt := &fakeRealtime{}
	notifier := NewNotifier(ms, ms, &fakePush{}, rt, db, cfg)
	notifier.BroadcastShopQueue("shop1")
	notifier.Close()

	assert.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, rt.onChannel("shop-shop1"), 1)
}

func TestNotifier_SendToCustomerMergesPayload(t *testing.T) {
	ms := newMemStore()
	rt := &fakeRealtime{}
	notifier := NewNotifier(ms, ms, &fakePush{}, rt, nil, testConfig())

	notifier.SendToCustomer("alice", "queue_position_change", map[string]any{
		"message": "Your position changed to #2",
	})
	notifier.Close()

	events := rt.onChannel("user-alice")
	require.Len(t, events, 1)
	assert.Equal(t, "queue_position_change", events[0].payload["type"])
	assert.Equal(t, "Your position changed to #2", events[0].payload["message"])
}

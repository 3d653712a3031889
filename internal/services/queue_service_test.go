package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barberq/config"
	"barberq/internal/status"
	"barberq/internal/store"
	"barberq/models"
)

// memStore is an in-memory implementation of every store interface, with
// the same copy-on-read behavior a database gives: mutating a returned
// entry changes nothing until Update is called.
type memStore struct {
	mu      sync.Mutex
	shops   map[string]*models.Shop
	users   map[string]*models.Account
	barbers map[string]*models.Account
	entries map[string]*models.QueueEntry
	history []*models.HistoryRecord
	nextID  int
}

func newMemStore() *memStore {
	return &memStore{
		shops:   map[string]*models.Shop{},
		users:   map[string]*models.Account{},
		barbers: map[string]*models.Account{},
		entries: map[string]*models.QueueEntry{},
	}
}

func cloneEntry(e *models.QueueEntry) *models.QueueEntry {
	c := *e
	c.Services = append([]models.ServiceLine(nil), e.Services...)
	return &c
}

func (m *memStore) EntryByID(ctx context.Context, id string) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, status.ErrEntryNotFound
	}
	return cloneEntry(e), nil
}

func (m *memStore) EntryByCode(ctx context.Context, code string) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.UniqueCode == code {
			return cloneEntry(e), nil
		}
	}
	return nil, status.ErrEntryNotFound
}

func (m *memStore) activeSorted(match func(*models.QueueEntry) bool) []*models.QueueEntry {
	var out []*models.QueueEntry
	for _, e := range m.entries {
		if models.IsActive(e.Status) && match(e) {
			out = append(out, cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (m *memStore) ActiveByShop(ctx context.Context, shopID string) ([]*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeSorted(func(e *models.QueueEntry) bool { return e.ShopID == shopID }), nil
}

func (m *memStore) ActiveByBarber(ctx context.Context, barberID string) ([]*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeSorted(func(e *models.QueueEntry) bool { return e.BarberID == barberID }), nil
}

func (m *memStore) MaxActivePosition(ctx context.Context, shopID string, scope store.PositionScope, barberID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, e := range m.entries {
		if e.ShopID != shopID || !models.IsActive(e.Status) {
			continue
		}
		if scope == store.ScopeBarber && e.BarberID != barberID {
			continue
		}
		if e.Position > max {
			max = e.Position
		}
	}
	return max, nil
}

func (m *memStore) CodeExists(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.UniqueCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Create(ctx context.Context, entry *models.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = fmt.Sprintf("entry%03d", m.nextID)
	entry.Created = time.Now()
	entry.Updated = entry.Created
	m.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (m *memStore) Update(ctx context.Context, entry *models.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.ID]; !ok {
		return status.ErrEntryNotFound
	}
	entry.Updated = time.Now()
	m.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (m *memStore) Shop(ctx context.Context, shopID string) (*models.Shop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shops[shopID]
	if !ok {
		return nil, status.ErrShopNotFound
	}
	return s, nil
}

func (m *memStore) User(ctx context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, status.ErrEntryNotFound
	}
	return u, nil
}

func (m *memStore) Barber(ctx context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.barbers[id]
	if !ok {
		return nil, status.ErrBarberNotFound
	}
	return b, nil
}

func (m *memStore) RecordCompletion(ctx context.Context, rec *models.HistoryRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = fmt.Sprintf("hist%03d", len(m.history)+1)
	m.history = append(m.history, rec)
	return rec.ID, nil
}

func (m *memStore) historyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Fake fanout sinks.

type pushMsg struct {
	token, title, body string
	data               map[string]any
}

type fakePush struct {
	mu   sync.Mutex
	sent []pushMsg
}

func (f *fakePush) Send(ctx context.Context, token, title, body string, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, pushMsg{token: token, title: title, body: body, data: data})
	return nil
}

func (f *fakePush) messages() []pushMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pushMsg(nil), f.sent...)
}

type published struct {
	channel string
	payload map[string]any
}

type fakeRealtime struct {
	mu     sync.Mutex
	events []published
}

func (f *fakeRealtime) Publish(ctx context.Context, channel string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{channel: channel, payload: payload})
	return nil
}

func (f *fakeRealtime) onChannel(channel string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, e := range f.events {
		if e.channel == channel {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		CodeMaxRetries:   1000,
		PositionCacheTTL: 30 * time.Second,
		NotifyBufferSize: 64,
	}
}

func setupTestQueueService(t *testing.T) (*QueueService, *memStore, *fakePush, *fakeRealtime, *Notifier) {
	t.Helper()

	ms := newMemStore()
	ms.shops["shop1"] = &models.Shop{
		ID:     "shop1",
		Name:   "Fade Factory",
		IsOpen: true,
		Services: []models.OfferedService{
			{ID: "s1", Name: "Haircut", Price: decimal.NewFromInt(50)},
			{ID: "s2", Name: "Shave", Price: decimal.NewFromInt(30)},
		},
	}
	ms.shops["shop2"] = &models.Shop{ID: "shop2", Name: "Closed Corner", IsOpen: false}
	ms.users["alice"] = &models.Account{ID: "alice", Name: "Alice", PushToken: "ExponentPushToken[alice]"}
	ms.users["bob"] = &models.Account{ID: "bob", Name: "Bob", PushToken: "ExponentPushToken[bob]"}
	ms.users["carol"] = &models.Account{ID: "carol", Name: "Carol", PushToken: "ExponentPushToken[carol]"}
	ms.barbers["barber1"] = &models.Account{ID: "barber1", Name: "Sam"}

	push := &fakePush{}
	rt := &fakeRealtime{}
	cfg := testConfig()
	notifier := NewNotifier(ms, ms, push, rt, nil, cfg)
	svc := NewQueueService(ms, ms, ms, ms, notifier, nil, cfg)

	return svc, ms, push, rt, notifier
}

func addCustomer(t *testing.T, svc *QueueService, accountID string) *models.QueueEntry {
	t.Helper()
	entry, err := svc.AddEntry(context.Background(), AddEntryInput{
		ShopID:        "shop1",
		AuthAccountID: accountID,
		Services:      []models.RequestedService{{ServiceID: "s1", Quantity: 1}},
	})
	require.NoError(t, err)
	return entry
}

func TestAddEntry_AssignsSequentialPositions(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	a := addCustomer(t, svc, "alice")
	b := addCustomer(t, svc, "bob")
	c := addCustomer(t, svc, "carol")

	assert.Equal(t, 1, a.Position)
	assert.Equal(t, 2, b.Position)
	assert.Equal(t, 3, c.Position)

	assert.Equal(t, models.StatusPending, a.Status)
	assert.Len(t, a.UniqueCode, 6)
	assert.NotEqual(t, a.UniqueCode, b.UniqueCode)
	assert.NotEqual(t, b.UniqueCode, c.UniqueCode)
}

func TestAddEntry_ShopClosed(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	_, err := svc.AddEntry(context.Background(), AddEntryInput{
		ShopID:        "shop2",
		AuthAccountID: "alice",
		Services:      []models.RequestedService{{ServiceID: "s1"}},
	})
	assert.ErrorIs(t, err, status.ErrShopClosed)
}

func TestAddEntry_UnknownShop(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	_, err := svc.AddEntry(context.Background(), AddEntryInput{
		ShopID:   "nope",
		Services: []models.RequestedService{{ServiceID: "s1"}},
	})
	assert.ErrorIs(t, err, status.ErrShopNotFound)
}

func TestAddEntry_GuestRequiresName(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	_, err := svc.AddEntry(context.Background(), AddEntryInput{
		ShopID:   "shop1",
		Services: []models.RequestedService{{ServiceID: "s1"}},
	})
	assert.ErrorIs(t, err, status.ErrMissingCustomerIdentity)
}

func TestAddEntry_InvalidHintFallsBackToGuest(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	entry, err := svc.AddEntry(context.Background(), AddEntryInput{
		ShopID:        "shop1",
		AccountIDHint: "no-such-user",
		GuestName:     "Walk Guest",
		Services:      []models.RequestedService{{ServiceID: "s1"}},
	})
	require.NoError(t, err)
	assert.Empty(t, entry.AccountID)
	assert.Equal(t, "Walk Guest", entry.CustomerName)

	// Without a guest name the same hint is a hard failure.
	_, err = svc.AddEntry(context.Background(), AddEntryInput{
		ShopID:        "shop1",
		AccountIDHint: "no-such-user",
		Services:      []models.RequestedService{{ServiceID: "s1"}},
	})
	assert.ErrorIs(t, err, status.ErrMissingCustomerIdentity)
}

func TestAddEntry_QuantityExpansion(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	entry, err := svc.AddEntry(context.Background(), AddEntryInput{
		ShopID:        "shop1",
		AuthAccountID: "alice",
		Services:      []models.RequestedService{{ServiceID: "s1", Quantity: 3}},
	})
	require.NoError(t, err)

	assert.Len(t, entry.Services, 3)
	for _, line := range entry.Services {
		assert.Equal(t, "Haircut", line.Name)
		assert.True(t, line.Price.Equal(decimal.NewFromInt(50)))
	}
	assert.True(t, entry.TotalCost.Equal(decimal.NewFromInt(150)))
}

func TestAddEntry_QuantityBelowOneCoerced(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	entry, err := svc.AddEntry(context.Background(), AddEntryInput{
		ShopID:        "shop1",
		AuthAccountID: "alice",
		Services:      []models.RequestedService{{ServiceID: "s2", Quantity: 0}},
	})
	require.NoError(t, err)

	assert.Len(t, entry.Services, 1)
	assert.True(t, entry.TotalCost.Equal(decimal.NewFromInt(30)))
}

func TestAddEntry_InvalidService(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	_, err := svc.AddEntry(context.Background(), AddEntryInput{
		ShopID:        "shop1",
		AuthAccountID: "alice",
		Services:      []models.RequestedService{{ServiceID: "ghost"}},
	})
	assert.ErrorIs(t, err, status.ErrInvalidService)

	_, err = svc.AddEntry(context.Background(), AddEntryInput{
		ShopID:        "shop1",
		AuthAccountID: "alice",
	})
	assert.ErrorIs(t, err, status.ErrInvalidService)
}

// collideStore pretends every generated code is taken.
type collideStore struct {
	*memStore
}

func (c *collideStore) CodeExists(ctx context.Context, code string) (bool, error) {
	return true, nil
}

func TestAddEntry_CodeRetriesExhausted(t *testing.T) {
	ms := newMemStore()
	ms.shops["shop1"] = &models.Shop{
		ID: "shop1", Name: "Fade Factory", IsOpen: true,
		Services: []models.OfferedService{{ID: "s1", Name: "Haircut", Price: decimal.NewFromInt(50)}},
	}
	ms.users["alice"] = &models.Account{ID: "alice", Name: "Alice"}

	cfg := testConfig()
	cfg.CodeMaxRetries = 5
	push := &fakePush{}
	rt := &fakeRealtime{}
	notifier := NewNotifier(ms, ms, push, rt, nil, cfg)
	defer notifier.Close()

	svc := NewQueueService(&collideStore{ms}, ms, ms, ms, notifier, nil, cfg)

	_, err := svc.AddEntry(context.Background(), AddEntryInput{
		ShopID:        "shop1",
		AuthAccountID: "alice",
		Services:      []models.RequestedService{{ServiceID: "s1"}},
	})
	assert.ErrorIs(t, err, status.ErrCodeGenerationFailed)
}

func TestAddWalkIn_ShopWideNumbering(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	addCustomer(t, svc, "alice") // unassigned line, position 1

	walkIn, err := svc.AddWalkIn(context.Background(), WalkInInput{
		ShopID:         "shop1",
		CustomerName:   "Walk-in Joe",
		ActingBarberID: "barber1",
		Services:       []models.RequestedService{{ServiceID: "s2"}},
	})
	require.NoError(t, err)

	// Walk-ins count every active entry in the shop, not just their
	// barber's line.
	assert.Equal(t, 2, walkIn.Position)
	assert.Equal(t, "barber1", walkIn.BarberID)
	assert.Equal(t, "Walk-in Joe", walkIn.CustomerName)
}

func TestAddWalkIn_RequiresName(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	_, err := svc.AddWalkIn(context.Background(), WalkInInput{
		ShopID:   "shop1",
		Services: []models.RequestedService{{ServiceID: "s1"}},
	})
	assert.ErrorIs(t, err, status.ErrMissingCustomerIdentity)
}

func TestAddEntry_AssignedBarberOwnLine(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	addCustomer(t, svc, "alice") // unassigned line, position 1

	assigned, err := svc.AddEntry(context.Background(), AddEntryInput{
		ShopID:           "shop1",
		AuthAccountID:    "bob",
		AssignedBarberID: "barber1",
		Services:         []models.RequestedService{{ServiceID: "s1"}},
	})
	require.NoError(t, err)

	// The barber's line numbers independently of the unassigned line.
	assert.Equal(t, 1, assigned.Position)
	assert.Equal(t, "barber1", assigned.BarberID)
}

func TestCancel_RenumbersContiguously(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	a := addCustomer(t, svc, "alice")
	addCustomer(t, svc, "bob")
	addCustomer(t, svc, "carol")

	cancelled, err := svc.Cancel(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	queue, err := svc.GetShopQueue(context.Background(), "shop1")
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, "bob", queue[0].AccountID)
	assert.Equal(t, 1, queue[0].Position)
	assert.Equal(t, "carol", queue[1].AccountID)
	assert.Equal(t, 2, queue[1].Position)
}

func TestCancel_NotifiesOnlyMovedCustomers(t *testing.T) {
	svc, _, push, _, notifier := setupTestQueueService(t)

	addCustomer(t, svc, "alice")
	b := addCustomer(t, svc, "bob")

	// Cancelling the tail moves nobody.
	_, err := svc.Cancel(context.Background(), b.ID)
	require.NoError(t, err)
	notifier.Close()

	var positionChanges int
	for _, msg := range push.messages() {
		if msg.data["type"] == "queue_position_change" {
			positionChanges++
		}
	}
	assert.Zero(t, positionChanges)
}

func TestCancel_NotifiesShiftedCustomers(t *testing.T) {
	svc, _, push, _, notifier := setupTestQueueService(t)

	a := addCustomer(t, svc, "alice")
	addCustomer(t, svc, "bob")
	addCustomer(t, svc, "carol")

	_, err := svc.Cancel(context.Background(), a.ID)
	require.NoError(t, err)
	notifier.Close()

	shifted := map[string]bool{}
	for _, msg := range push.messages() {
		if msg.data["type"] == "queue_position_change" {
			shifted[msg.token] = true
		}
	}
	assert.True(t, shifted["ExponentPushToken[bob]"])
	assert.True(t, shifted["ExponentPushToken[carol]"])
	assert.False(t, shifted["ExponentPushToken[alice]"])
}

func TestCancel_AlreadyTerminal(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	a := addCustomer(t, svc, "alice")
	_, err := svc.Cancel(context.Background(), a.ID)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), a.ID)
	assert.ErrorIs(t, err, status.ErrAlreadyTerminal)
}

func TestCancel_UnknownEntry(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	_, err := svc.Cancel(context.Background(), "ghost")
	assert.ErrorIs(t, err, status.ErrEntryNotFound)
}

func TestUpdateStatus_StartService(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	a := addCustomer(t, svc, "alice")

	entry, err := svc.UpdateStatus(context.Background(), a.ID, models.StatusInProgress, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, entry.Status)
}

func TestUpdateStatus_RejectsInvalidTarget(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	a := addCustomer(t, svc, "alice")

	_, err := svc.UpdateStatus(context.Background(), a.ID, models.StatusCancelled, "")
	assert.ErrorIs(t, err, status.ErrInvalidTransition)

	_, err = svc.UpdateStatus(context.Background(), a.ID, "archived", "")
	assert.ErrorIs(t, err, status.ErrInvalidTransition)
}

func TestUpdateStatus_RejectsInvalidTransition(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	a := addCustomer(t, svc, "alice")
	_, err := svc.UpdateStatus(context.Background(), a.ID, models.StatusInProgress, "")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), a.ID, models.StatusInProgress, "")
	assert.ErrorIs(t, err, status.ErrInvalidTransition)
}

func TestUpdateStatus_CompleteRequiresBarber(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	a := addCustomer(t, svc, "alice")

	_, err := svc.UpdateStatus(context.Background(), a.ID, models.StatusCompleted, "")
	assert.ErrorIs(t, err, status.ErrMissingBarber)

	_, err = svc.UpdateStatus(context.Background(), a.ID, models.StatusCompleted, "no-such-barber")
	assert.ErrorIs(t, err, status.ErrBarberNotFound)
}

func TestUpdateStatus_CompletionSideEffectsOnce(t *testing.T) {
	svc, ms, push, _, notifier := setupTestQueueService(t)

	a := addCustomer(t, svc, "alice")

	entry, err := svc.UpdateStatus(context.Background(), a.ID, models.StatusCompleted, "barber1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, entry.Status)
	assert.Equal(t, "barber1", entry.BarberID)
	assert.Equal(t, 1, ms.historyCount())

	// Completing an already completed entry rewrites the status but must
	// not repeat the receipt or the notification.
	_, err = svc.UpdateStatus(context.Background(), a.ID, models.StatusCompleted, "barber1")
	require.NoError(t, err)
	assert.Equal(t, 1, ms.historyCount())

	notifier.Close()

	var completions int
	for _, msg := range push.messages() {
		if msg.data["type"] == "service_completed" {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
}

func TestUpdateStatus_CompletionRecordContents(t *testing.T) {
	svc, ms, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	entry, err := svc.AddEntry(context.Background(), AddEntryInput{
		ShopID:        "shop1",
		AuthAccountID: "alice",
		Services:      []models.RequestedService{{ServiceID: "s1", Quantity: 2}},
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), entry.ID, models.StatusCompleted, "barber1")
	require.NoError(t, err)

	require.Equal(t, 1, ms.historyCount())
	rec := ms.history[0]
	assert.Equal(t, "alice", rec.AccountID)
	assert.Equal(t, "Alice", rec.CustomerName)
	assert.Equal(t, "barber1", rec.BarberID)
	assert.Equal(t, "shop1", rec.ShopID)
	assert.Equal(t, entry.UniqueCode, rec.UniqueCode)
	assert.Equal(t, entry.Position, rec.Position)
	assert.Len(t, rec.Services, 2)
	assert.Equal(t, 1, rec.Services[0].Quantity)
	assert.True(t, rec.TotalCost.Equal(decimal.NewFromInt(100)))
	assert.False(t, rec.IsRated)
}

func TestUpdateServices_PendingOnly(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	a := addCustomer(t, svc, "alice")

	updated, err := svc.UpdateServices(context.Background(), a.ID, []models.RequestedService{
		{ServiceID: "s2", Quantity: 2},
	})
	require.NoError(t, err)
	assert.Len(t, updated.Services, 2)
	assert.True(t, updated.TotalCost.Equal(decimal.NewFromInt(60)))

	_, err = svc.UpdateStatus(context.Background(), a.ID, models.StatusInProgress, "")
	require.NoError(t, err)

	_, err = svc.UpdateServices(context.Background(), a.ID, []models.RequestedService{
		{ServiceID: "s1"},
	})
	assert.ErrorIs(t, err, status.ErrCannotModify)
}

func TestMoveDown_SwapsWithNext(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	a := addCustomer(t, svc, "alice")
	addCustomer(t, svc, "bob")
	addCustomer(t, svc, "carol")

	moved, swapped, err := svc.MoveDown(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, moved.Position)
	assert.Equal(t, 1, swapped.Position)
	assert.Equal(t, "bob", swapped.AccountID)

	queue, err := svc.GetShopQueue(context.Background(), "shop1")
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, "bob", queue[0].AccountID)
	assert.Equal(t, "alice", queue[1].AccountID)
	assert.Equal(t, "carol", queue[2].AccountID)
}

func TestMoveDown_LastEntryFails(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	addCustomer(t, svc, "alice")
	b := addCustomer(t, svc, "bob")

	_, _, err := svc.MoveDown(context.Background(), b.ID)
	assert.ErrorIs(t, err, status.ErrNoNextEntry)
}

func TestMoveDown_TerminalEntry(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	a := addCustomer(t, svc, "alice")
	addCustomer(t, svc, "bob")
	_, err := svc.Cancel(context.Background(), a.ID)
	require.NoError(t, err)

	_, _, err = svc.MoveDown(context.Background(), a.ID)
	assert.ErrorIs(t, err, status.ErrAlreadyTerminal)
}

func TestGetShopQueue_UnknownShop(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	_, err := svc.GetShopQueue(context.Background(), "ghost")
	assert.ErrorIs(t, err, status.ErrShopNotFound)
}

func TestGetBarberQueue(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	addCustomer(t, svc, "alice")
	_, err := svc.AddWalkIn(context.Background(), WalkInInput{
		ShopID:         "shop1",
		CustomerName:   "Walk-in Joe",
		ActingBarberID: "barber1",
		Services:       []models.RequestedService{{ServiceID: "s1"}},
	})
	require.NoError(t, err)

	queue, err := svc.GetBarberQueue(context.Background(), "barber1")
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "Walk-in Joe", queue[0].CustomerName)

	_, err = svc.GetBarberQueue(context.Background(), "ghost")
	assert.ErrorIs(t, err, status.ErrBarberNotFound)
}

func TestLookupByCode(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	a := addCustomer(t, svc, "alice")

	found, err := svc.LookupByCode(context.Background(), a.UniqueCode)
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)

	_, err = svc.LookupByCode(context.Background(), "000000x")
	assert.ErrorIs(t, err, status.ErrEntryNotFound)
}

func TestBroadcast_PublishesShopChannel(t *testing.T) {
	svc, _, _, rt, notifier := setupTestQueueService(t)

	addCustomer(t, svc, "alice")
	addCustomer(t, svc, "bob")
	notifier.Close()

	events := rt.onChannel("shop-shop1")
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, "queue_updated", last.payload["type"])
	assert.Equal(t, "shop1", last.payload["shop_id"])
	assert.Equal(t, 2, last.payload["count"])
}

func TestAddEntry_ConcurrentAddsKeepContiguousPositions(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AddEntry(context.Background(), AddEntryInput{
				ShopID:    "shop1",
				GuestName: fmt.Sprintf("Guest %d", i),
				Services:  []models.RequestedService{{ServiceID: "s1"}},
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	queue, err := svc.GetShopQueue(context.Background(), "shop1")
	require.NoError(t, err)
	require.Len(t, queue, n)

	seen := make(map[int]bool, n)
	codes := make(map[string]bool, n)
	for _, e := range queue {
		seen[e.Position] = true
		codes[e.UniqueCode] = true
	}
	for pos := 1; pos <= n; pos++ {
		assert.True(t, seen[pos], "missing position %d", pos)
	}
	assert.Len(t, codes, n)
}

func TestCancel_ConcurrentWithAddsKeepsContiguity(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	var seeded []string
	for i := 0; i < 10; i++ {
		entry, err := svc.AddEntry(context.Background(), AddEntryInput{
			ShopID:    "shop1",
			GuestName: fmt.Sprintf("Seed %d", i),
			Services:  []models.RequestedService{{ServiceID: "s1"}},
		})
		require.NoError(t, err)
		seeded = append(seeded, entry.ID)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			_, err := svc.Cancel(context.Background(), id)
			assert.NoError(t, err)
		}(seeded[i*2])
		go func(i int) {
			defer wg.Done()
			_, err := svc.AddEntry(context.Background(), AddEntryInput{
				ShopID:    "shop1",
				GuestName: fmt.Sprintf("Late %d", i),
				Services:  []models.RequestedService{{ServiceID: "s2"}},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Every interleaving of append-at-max and renumber-to-1..N must land
	// on a gapless queue.
	queue, err := svc.GetShopQueue(context.Background(), "shop1")
	require.NoError(t, err)
	require.Len(t, queue, 10)
	for i, e := range queue {
		assert.Equal(t, i+1, e.Position)
	}
}

func TestCancel_DropsCachedPosition(t *testing.T) {
	ms := newMemStore()
	ms.shops["shop1"] = &models.Shop{ID: "shop1", Name: "Fade Factory", IsOpen: true}
	ms.users["alice"] = &models.Account{ID: "alice", Name: "Alice"}

	entry := &models.QueueEntry{
		ShopID:     "shop1",
		AccountID:  "alice",
		Position:   1,
		UniqueCode: "111111",
		Status:     models.StatusPending,
	}
	require.NoError(t, ms.Create(context.Background(), entry))

	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	mock.ExpectDel("queue:position:shop1:alice").SetVal(1)

	cfg := testConfig()
	notifier := NewNotifier(ms, ms, &fakePush{}, &fakeRealtime{}, nil, cfg)
	svc := NewQueueService(ms, ms, ms, ms, notifier, db, cfg)

	_, err := svc.Cancel(context.Background(), entry.ID)
	require.NoError(t, err)
	notifier.Close()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_CompletionDropsCachedPosition(t *testing.T) {
	ms := newMemStore()
	ms.shops["shop1"] = &models.Shop{ID: "shop1", Name: "Fade Factory", IsOpen: true}
	ms.users["alice"] = &models.Account{ID: "alice", Name: "Alice"}
	ms.barbers["barber1"] = &models.Account{ID: "barber1", Name: "Sam"}

	entry := &models.QueueEntry{
		ShopID:     "shop1",
		AccountID:  "alice",
		Position:   1,
		UniqueCode: "222222",
		Status:     models.StatusPending,
	}
	require.NoError(t, ms.Create(context.Background(), entry))

	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	mock.ExpectDel("queue:position:shop1:alice").SetVal(1)

	cfg := testConfig()
	notifier := NewNotifier(ms, ms, &fakePush{}, &fakeRealtime{}, nil, cfg)
	svc := NewQueueService(ms, ms, ms, ms, notifier, db, cfg)

	_, err := svc.UpdateStatus(context.Background(), entry.ID, models.StatusCompleted, "barber1")
	require.NoError(t, err)
	notifier.Close()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedPosition_FallsBackToStore(t *testing.T) {
	svc, _, _, _, notifier := setupTestQueueService(t)
	defer notifier.Close()

	addCustomer(t, svc, "alice")
	addCustomer(t, svc, "bob")

	position, err := svc.CachedPosition(context.Background(), "shop1", "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, position)

	_, err = svc.CachedPosition(context.Background(), "shop1", "carol")
	assert.ErrorIs(t, err, status.ErrEntryNotFound)
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"barberq/config"
	"barberq/internal/status"
	"barberq/internal/store"
	"barberq/models"
	"barberq/monitoring"
	"barberq/utils"
)

// QueueService owns the live queue of every shop: joining, cancelling,
// reordering and walking entries through the status lifecycle. Every
// read-positions-then-write span is serialized per shop; fanout and
// bookkeeping happen after the authoritative write and never fail a
// request.
type QueueService struct {
	queues   store.QueueStore
	catalog  store.CatalogStore
	accounts store.AccountStore
	history  store.HistoryStore
	notifier *Notifier
	Redis    *redis.Client
	config   *config.Config

	mu        sync.Mutex
	shopLocks map[string]*sync.Mutex
}

func NewQueueService(
	queues store.QueueStore,
	catalog store.CatalogStore,
	accounts store.AccountStore,
	history store.HistoryStore,
	notifier *Notifier,
	redisClient *redis.Client,
	cfg *config.Config,
) *QueueService {
	return &QueueService{
		queues:    queues,
		catalog:   catalog,
		accounts:  accounts,
		history:   history,
		notifier:  notifier,
		Redis:     redisClient,
		config:    cfg,
		shopLocks: make(map[string]*sync.Mutex),
	}
}

// shopLock returns the mutex serializing mutations for one shop.
func (s *QueueService) shopLock(shopID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.shopLocks[shopID]
	if !ok {
		lock = &sync.Mutex{}
		s.shopLocks[shopID] = lock
	}
	return lock
}

type AddEntryInput struct {
	ShopID string

	// AuthAccountID is the authenticated customer, if any. It wins over
	// AccountIDHint, which is a front-end supplied id that falls back to
	// the guest name when it resolves to nothing.
	AuthAccountID string
	AccountIDHint string
	GuestName     string
	GuestPhone    string

	Services []models.RequestedService

	// AssignedBarberID queues the customer for a specific barber instead
	// of the shop's unassigned line.
	AssignedBarberID string
}

type WalkInInput struct {
	ShopID         string
	CustomerName   string
	CustomerPhone  string
	Services       []models.RequestedService
	ActingBarberID string
}

// AddEntry appends a customer to a shop's queue. Position numbering is
// scoped to the target barber line (the unassigned line by default),
// unlike the walk-in path which numbers across the whole shop.
func (s *QueueService) AddEntry(ctx context.Context, in AddEntryInput) (*models.QueueEntry, error) {
	shop, err := s.catalog.Shop(ctx, in.ShopID)
	if err != nil {
		return nil, err
	}
	if !shop.IsOpen {
		return nil, status.ErrShopClosed
	}

	accountID, accountName := "", ""
	switch {
	case in.AuthAccountID != "":
		account, err := s.accounts.User(ctx, in.AuthAccountID)
		if err != nil {
			return nil, status.ErrMissingCustomerIdentity
		}
		accountID, accountName = account.ID, account.Name
	case in.AccountIDHint != "":
		if account, err := s.accounts.User(ctx, in.AccountIDHint); err == nil {
			accountID, accountName = account.ID, account.Name
		} else if in.GuestName == "" {
			return nil, status.ErrMissingCustomerIdentity
		}
	default:
		if in.GuestName == "" {
			return nil, status.ErrMissingCustomerIdentity
		}
	}

	if in.AssignedBarberID != "" {
		if _, err := s.accounts.Barber(ctx, in.AssignedBarberID); err != nil {
			return nil, err
		}
	}

	lines, total, err := expandServices(shop, in.Services)
	if err != nil {
		return nil, err
	}

	entry := &models.QueueEntry{
		ShopID:    in.ShopID,
		BarberID:  in.AssignedBarberID,
		AccountID: accountID,
		Services:  lines,
		TotalCost: total,
		Status:    models.StatusPending,
	}
	if accountID == "" {
		entry.CustomerName = in.GuestName
		entry.CustomerPhone = in.GuestPhone
	} else {
		entry.DisplayName = accountName
	}

	if err := s.createLocked(ctx, entry, store.ScopeBarber); err != nil {
		monitoring.TrackQueueOperation("add", in.ShopID, "error")
		return nil, err
	}
	monitoring.TrackQueueOperation("add", in.ShopID, "success")

	if accountID != "" {
		s.notifier.PushToAccount(accountID,
			fmt.Sprintf("You're in line at %s!", shop.Name),
			fmt.Sprintf("Your queue number is #%d. Code: %s.", entry.Position, entry.UniqueCode),
			map[string]any{"type": "queue_add", "queue_id": entry.ID},
		)
	}
	s.notifier.BroadcastShopQueue(in.ShopID)

	return entry, nil
}

// AddWalkIn registers a guest brought in by shop staff. The walk-in path
// numbers across all of the shop's active entries regardless of barber;
// this is intentionally not unified with AddEntry's per-line numbering.
func (s *QueueService) AddWalkIn(ctx context.Context, in WalkInInput) (*models.QueueEntry, error) {
	shop, err := s.catalog.Shop(ctx, in.ShopID)
	if err != nil {
		return nil, err
	}
	if in.CustomerName == "" {
		return nil, status.ErrMissingCustomerIdentity
	}

	lines, total, err := expandServices(shop, in.Services)
	if err != nil {
		return nil, err
	}

	entry := &models.QueueEntry{
		ShopID:        in.ShopID,
		BarberID:      in.ActingBarberID,
		CustomerName:  in.CustomerName,
		CustomerPhone: in.CustomerPhone,
		Services:      lines,
		TotalCost:     total,
		Status:        models.StatusPending,
	}

	if err := s.createLocked(ctx, entry, store.ScopeShopWide); err != nil {
		monitoring.TrackQueueOperation("walkin", in.ShopID, "error")
		return nil, err
	}
	monitoring.TrackQueueOperation("walkin", in.ShopID, "success")

	s.notifier.BroadcastShopQueue(in.ShopID)

	return entry, nil
}

// createLocked assigns the next position and a unique code, then
// persists the entry, all under the shop's lock.
func (s *QueueService) createLocked(ctx context.Context, entry *models.QueueEntry, scope store.PositionScope) error {
	lock := s.shopLock(entry.ShopID)
	lock.Lock()
	defer lock.Unlock()

	maxPos, err := s.queues.MaxActivePosition(ctx, entry.ShopID, scope, entry.BarberID)
	if err != nil {
		return err
	}
	entry.Position = maxPos + 1

	code, err := s.generateUniqueCode(ctx)
	if err != nil {
		return err
	}
	entry.UniqueCode = code

	return s.queues.Create(ctx, entry)
}

// generateUniqueCode retries random 6-digit codes until one is unused.
// Redis reserves the code across instances; the unique index on the
// queues collection is the authoritative backstop either way.
func (s *QueueService) generateUniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < s.config.CodeMaxRetries; i++ {
		code, err := utils.GenerateDigitCode(utils.CodeLength)
		if err != nil {
			return "", err
		}

		exists, err := s.queues.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if exists {
			continue
		}
		if !s.reserveCode(ctx, code) {
			continue
		}
		return code, nil
	}
	return "", status.ErrCodeGenerationFailed
}

func (s *QueueService) reserveCode(ctx context.Context, code string) bool {
	if s.Redis == nil {
		return true
	}
	added, err := s.Redis.SAdd(ctx, "queue:codes", code).Result()
	if err != nil {
		slog.Warn("code reservation failed, relying on store uniqueness", "error", err)
		return true
	}
	return added == 1
}

// Cancel marks an entry cancelled and renumbers the shop's remaining
// active entries back to a gapless 1..N, notifying everyone whose
// position actually changed.
func (s *QueueService) Cancel(ctx context.Context, entryID string) (*models.QueueEntry, error) {
	entry, err := s.queues.EntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	shopName := s.shopName(ctx, entry.ShopID)

	type movedEntry struct {
		entry *models.QueueEntry
		from  int
	}
	var moved []movedEntry

	lock := s.shopLock(entry.ShopID)
	lock.Lock()

	// Re-read under the lock; a racing operation may have finished it.
	entry, err = s.queues.EntryByID(ctx, entryID)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if models.IsTerminal(entry.Status) {
		lock.Unlock()
		return nil, status.ErrAlreadyTerminal
	}

	entry.Status = models.StatusCancelled
	if err := s.queues.Update(ctx, entry); err != nil {
		lock.Unlock()
		monitoring.TrackQueueOperation("cancel", entry.ShopID, "error")
		return nil, err
	}

	remaining, err := s.queues.ActiveByShop(ctx, entry.ShopID)
	if err == nil {
		for i, e := range remaining {
			if e.Position == i+1 {
				continue
			}
			from := e.Position
			e.Position = i + 1
			if err := s.queues.Update(ctx, e); err != nil {
				slog.Error("reorder after cancel failed",
					"entry", e.ID, "shop", entry.ShopID, "operation", "cancel", "error", err)
				continue
			}
			moved = append(moved, movedEntry{entry: e, from: from})
		}
	} else {
		slog.Error("reading queue for reorder failed", "shop", entry.ShopID, "operation", "cancel", "error", err)
	}
	lock.Unlock()

	monitoring.TrackQueueOperation("cancel", entry.ShopID, "success")
	s.dropCachedPosition(ctx, entry.ShopID, entry.AccountID)

	if entry.AccountID != "" {
		title := fmt.Sprintf("Queue Update at %s", shopName)
		body := fmt.Sprintf("Your queue entry #%d has been cancelled.", entry.Position)
		data := map[string]any{"type": "queue_cancelled", "queue_id": entry.ID, "shop_id": entry.ShopID}
		s.notifier.PushToAccount(entry.AccountID, title, body, data)
		s.notifier.SendToCustomer(entry.AccountID, "queue_cancelled", map[string]any{
			"title":   title,
			"message": body,
			"data":    data,
		})
	}

	for _, m := range moved {
		s.notifyPositionChange(m.entry, shopName)
	}
	s.notifier.BroadcastShopQueue(entry.ShopID)

	return entry, nil
}

// UpdateStatus moves an entry to in-progress or completed. Completion
// requires a barber and fires the history/counter/notification side
// effects exactly once; a repeated completion rewrites the status field
// but skips the side effects.
func (s *QueueService) UpdateStatus(ctx context.Context, entryID, newStatus, barberID string) (*models.QueueEntry, error) {
	if newStatus != models.StatusInProgress && newStatus != models.StatusCompleted {
		return nil, status.ErrInvalidTransition
	}

	entry, err := s.queues.EntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	barberName := ""
	if newStatus == models.StatusCompleted {
		if barberID == "" {
			return nil, status.ErrMissingBarber
		}
		barber, err := s.accounts.Barber(ctx, barberID)
		if err != nil {
			return nil, err
		}
		barberName = barber.Name
	}

	lock := s.shopLock(entry.ShopID)
	lock.Lock()

	entry, err = s.queues.EntryByID(ctx, entryID)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if !models.CanTransition(entry.Status, newStatus) {
		lock.Unlock()
		return nil, status.ErrInvalidTransition
	}

	oldStatus := entry.Status
	if newStatus == models.StatusCompleted {
		entry.BarberID = barberID
		entry.BarberName = barberName
	}
	entry.Status = newStatus
	if err := s.queues.Update(ctx, entry); err != nil {
		lock.Unlock()
		monitoring.TrackQueueOperation("status", entry.ShopID, "error")
		return nil, err
	}
	lock.Unlock()

	monitoring.TrackQueueOperation("status", entry.ShopID, "success")

	// The status write above is the committed state. Everything below is
	// best-effort bookkeeping and must not fail the request.
	if newStatus == models.StatusCompleted {
		s.dropCachedPosition(ctx, entry.ShopID, entry.AccountID)
	}
	if newStatus == models.StatusCompleted && oldStatus != models.StatusCompleted {
		s.recordCompletion(ctx, entry, barberName)
	}
	s.notifier.BroadcastShopQueue(entry.ShopID)

	return entry, nil
}

func (s *QueueService) recordCompletion(ctx context.Context, entry *models.QueueEntry, barberName string) {
	customerName := entry.CustomerName
	if entry.AccountID != "" {
		if account, err := s.accounts.User(ctx, entry.AccountID); err == nil {
			customerName = account.Name
		}
	}

	lines := make([]models.HistoryLine, 0, len(entry.Services))
	for _, line := range entry.Services {
		lines = append(lines, models.HistoryLine{Name: line.Name, Price: line.Price, Quantity: 1})
	}

	rec := &models.HistoryRecord{
		AccountID:    entry.AccountID,
		CustomerName: customerName,
		BarberID:     entry.BarberID,
		ShopID:       entry.ShopID,
		Services:     lines,
		TotalCost:    entry.TotalCost,
		CompletedAt:  time.Now(),
		UniqueCode:   entry.UniqueCode,
		Position:     entry.Position,
	}

	if _, err := s.history.RecordCompletion(ctx, rec); err != nil {
		slog.Error("completion bookkeeping failed",
			"entry", entry.ID, "shop", entry.ShopID, "operation", "complete", "error", err)
	}

	if entry.AccountID != "" {
		shopName := s.shopName(ctx, entry.ShopID)
		if barberName == "" {
			barberName = "the barber"
		}
		data := map[string]any{"type": "service_completed", "queue_id": entry.ID, "shop_id": entry.ShopID}
		s.notifier.PushToAccount(entry.AccountID,
			fmt.Sprintf("Service Completed at %s!", shopName),
			fmt.Sprintf("Your service with %s is complete. Thank you!", barberName),
			data,
		)
		s.notifier.SendToCustomer(entry.AccountID, "service_completed", map[string]any{
			"title":   fmt.Sprintf("Service Completed at %s!", shopName),
			"message": "Your service is complete. Thank you!",
			"data":    data,
		})
	}
}

// UpdateServices replaces a pending entry's line items wholesale,
// recomputing the flattened lines and total exactly like AddEntry.
func (s *QueueService) UpdateServices(ctx context.Context, entryID string, requested []models.RequestedService) (*models.QueueEntry, error) {
	entry, err := s.queues.EntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != models.StatusPending {
		return nil, status.ErrCannotModify
	}

	shop, err := s.catalog.Shop(ctx, entry.ShopID)
	if err != nil {
		return nil, err
	}

	lines, total, err := expandServices(shop, requested)
	if err != nil {
		return nil, err
	}

	lock := s.shopLock(entry.ShopID)
	lock.Lock()

	entry, err = s.queues.EntryByID(ctx, entryID)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if entry.Status != models.StatusPending {
		lock.Unlock()
		return nil, status.ErrCannotModify
	}

	entry.Services = lines
	entry.TotalCost = total
	if err := s.queues.Update(ctx, entry); err != nil {
		lock.Unlock()
		return nil, err
	}
	lock.Unlock()

	monitoring.TrackQueueOperation("update_services", entry.ShopID, "success")
	s.notifier.BroadcastShopQueue(entry.ShopID)

	return entry, nil
}

// MoveDown swaps the entry with the next one in its shop's active order.
func (s *QueueService) MoveDown(ctx context.Context, entryID string) (*models.QueueEntry, *models.QueueEntry, error) {
	entry, err := s.queues.EntryByID(ctx, entryID)
	if err != nil {
		return nil, nil, err
	}
	if models.IsTerminal(entry.Status) {
		return nil, nil, status.ErrAlreadyTerminal
	}

	shopName := s.shopName(ctx, entry.ShopID)

	lock := s.shopLock(entry.ShopID)
	lock.Lock()

	active, err := s.queues.ActiveByShop(ctx, entry.ShopID)
	if err != nil {
		lock.Unlock()
		return nil, nil, err
	}

	var current, next *models.QueueEntry
	for _, e := range active {
		if e.ID == entryID {
			current = e
			continue
		}
		if current != nil && e.Position > current.Position {
			next = e
			break
		}
	}
	if current == nil {
		lock.Unlock()
		return nil, nil, status.ErrAlreadyTerminal
	}
	if next == nil {
		lock.Unlock()
		return nil, nil, status.ErrNoNextEntry
	}

	current.Position, next.Position = next.Position, current.Position
	if err := s.queues.Update(ctx, current); err != nil {
		lock.Unlock()
		return nil, nil, err
	}
	if err := s.queues.Update(ctx, next); err != nil {
		lock.Unlock()
		return nil, nil, err
	}
	lock.Unlock()

	monitoring.TrackQueueOperation("move_down", entry.ShopID, "success")

	s.notifyPositionChange(current, shopName)
	s.notifyPositionChange(next, shopName)
	s.notifier.BroadcastShopQueue(entry.ShopID)

	return current, next, nil
}

func (s *QueueService) notifyPositionChange(entry *models.QueueEntry, shopName string) {
	if entry.AccountID == "" {
		return
	}
	title := fmt.Sprintf("Queue Update at %s", shopName)
	body := fmt.Sprintf("Your position changed to #%d", entry.Position)
	data := map[string]any{
		"type":         "queue_position_change",
		"queue_id":     entry.ID,
		"shop_id":      entry.ShopID,
		"new_position": entry.Position,
		"unique_code":  entry.UniqueCode,
	}
	s.notifier.PushToAccount(entry.AccountID, title, body, data)
	s.notifier.SendToCustomer(entry.AccountID, "queue_position_change", map[string]any{
		"title":   title,
		"message": body,
		"data":    data,
	})
}

// GetShopQueue returns a shop's active entries sorted by position.
func (s *QueueService) GetShopQueue(ctx context.Context, shopID string) ([]*models.QueueEntry, error) {
	if _, err := s.catalog.Shop(ctx, shopID); err != nil {
		return nil, err
	}
	return s.queues.ActiveByShop(ctx, shopID)
}

// GetBarberQueue returns a barber's active entries sorted by position.
func (s *QueueService) GetBarberQueue(ctx context.Context, barberID string) ([]*models.QueueEntry, error) {
	if _, err := s.accounts.Barber(ctx, barberID); err != nil {
		return nil, err
	}
	return s.queues.ActiveByBarber(ctx, barberID)
}

// LookupByCode resolves an entry by its customer-facing code.
func (s *QueueService) LookupByCode(ctx context.Context, code string) (*models.QueueEntry, error) {
	return s.queues.EntryByCode(ctx, code)
}

// dropCachedPosition removes a customer's cached position once their
// entry leaves the queue. The broadcast refresh only rewrites keys for
// still-active entries, so without the delete a cancelled customer would
// keep reading their old position until the TTL lapses.
func (s *QueueService) dropCachedPosition(ctx context.Context, shopID, accountID string) {
	if s.Redis == nil || accountID == "" {
		return
	}
	posKey := fmt.Sprintf("queue:position:%s:%s", shopID, accountID)
	if err := s.Redis.Del(ctx, posKey).Err(); err != nil {
		slog.Warn("position cache delete failed", "key", posKey, "error", err)
	}
}

// CachedPosition reads a customer's cached position for a shop, falling
// back to the store when the cache is cold.
func (s *QueueService) CachedPosition(ctx context.Context, shopID, accountID string) (int, error) {
	if s.Redis != nil {
		posKey := fmt.Sprintf("queue:position:%s:%s", shopID, accountID)
		if position, err := s.Redis.Get(ctx, posKey).Int(); err == nil {
			return position, nil
		}
	}

	entries, err := s.queues.ActiveByShop(ctx, shopID)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if entry.AccountID == accountID {
			return entry.Position, nil
		}
	}
	return 0, status.ErrEntryNotFound
}

func (s *QueueService) shopName(ctx context.Context, shopID string) string {
	shop, err := s.catalog.Shop(ctx, shopID)
	if err != nil {
		return "the shop"
	}
	return shop.Name
}

// expandServices turns (service, quantity) requests into per-unit line
// items priced from the shop's current catalog.
func expandServices(shop *models.Shop, requested []models.RequestedService) ([]models.ServiceLine, decimal.Decimal, error) {
	if len(requested) == 0 {
		return nil, decimal.Zero, status.ErrInvalidService
	}

	total := decimal.Zero
	var lines []models.ServiceLine

	for _, req := range requested {
		offered := shop.ServiceByID(req.ServiceID)
		if offered == nil {
			return nil, decimal.Zero, fmt.Errorf("%w: %s", status.ErrInvalidService, req.ServiceID)
		}

		quantity := req.Quantity
		if quantity < 1 {
			quantity = 1
		}

		for i := 0; i < quantity; i++ {
			lines = append(lines, models.ServiceLine{Name: offered.Name, Price: offered.Price})
		}
		total = total.Add(offered.Price.Mul(decimal.NewFromInt(int64(quantity))))
	}
	return lines, total, nil
}

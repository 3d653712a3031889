package pb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"barberq/internal/status"
	"barberq/internal/store"
	"barberq/models"
)

const activeFilter = "(status = 'pending' || status = 'in-progress')"

// Store backs every store interface with PocketBase collections.
type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

// --- QueueStore ---

func (s *Store) EntryByID(ctx context.Context, id string) (*models.QueueEntry, error) {
	rec, err := s.app.FindRecordById("queues", id)
	if err != nil {
		return nil, status.ErrEntryNotFound
	}
	return s.entryFromRecord(rec)
}

func (s *Store) EntryByCode(ctx context.Context, code string) (*models.QueueEntry, error) {
	rec, err := s.app.FindFirstRecordByFilter(
		"queues",
		"unique_code = {:code}",
		dbx.Params{"code": code},
	)
	if err != nil {
		return nil, status.ErrEntryNotFound
	}
	return s.entryFromRecord(rec)
}

func (s *Store) ActiveByShop(ctx context.Context, shopID string) ([]*models.QueueEntry, error) {
	recs, err := s.app.FindRecordsByFilter(
		"queues",
		"shop = {:shop} && "+activeFilter,
		"+position",
		0, 0,
		dbx.Params{"shop": shopID},
	)
	if err != nil {
		return nil, fmt.Errorf("query active entries for shop %s: %w", shopID, err)
	}
	return s.entriesWithNames(recs)
}

func (s *Store) ActiveByBarber(ctx context.Context, barberID string) ([]*models.QueueEntry, error) {
	recs, err := s.app.FindRecordsByFilter(
		"queues",
		"barber = {:barber} && "+activeFilter,
		"+position",
		0, 0,
		dbx.Params{"barber": barberID},
	)
	if err != nil {
		return nil, fmt.Errorf("query active entries for barber %s: %w", barberID, err)
	}
	return s.entriesWithNames(recs)
}

func (s *Store) MaxActivePosition(ctx context.Context, shopID string, scope store.PositionScope, barberID string) (int, error) {
	filter := "shop = {:shop} && " + activeFilter
	params := dbx.Params{"shop": shopID}
	if scope == store.ScopeBarber {
		filter += " && barber = {:barber}"
		params["barber"] = barberID
	}

	recs, err := s.app.FindRecordsByFilter("queues", filter, "-position", 1, 0, params)
	if err != nil {
		return 0, fmt.Errorf("query max position for shop %s: %w", shopID, err)
	}
	if len(recs) == 0 {
		return 0, nil
	}
	return recs[0].GetInt("position"), nil
}

func (s *Store) CodeExists(ctx context.Context, code string) (bool, error) {
	_, err := s.app.FindFirstRecordByFilter("queues", "unique_code = {:code}", dbx.Params{"code": code})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) Create(ctx context.Context, entry *models.QueueEntry) error {
	col, err := s.app.FindCollectionByNameOrId("queues")
	if err != nil {
		return err
	}

	rec := core.NewRecord(col)
	s.applyEntry(rec, entry)
	if err := s.app.Save(rec); err != nil {
		return fmt.Errorf("create queue entry: %w", err)
	}

	entry.ID = rec.Id
	entry.Created = rec.GetDateTime("created").Time()
	entry.Updated = rec.GetDateTime("updated").Time()
	return nil
}

func (s *Store) Update(ctx context.Context, entry *models.QueueEntry) error {
	rec, err := s.app.FindRecordById("queues", entry.ID)
	if err != nil {
		return status.ErrEntryNotFound
	}

	s.applyEntry(rec, entry)
	if err := s.app.Save(rec); err != nil {
		return fmt.Errorf("update queue entry %s: %w", entry.ID, err)
	}
	entry.Updated = rec.GetDateTime("updated").Time()
	return nil
}

func (s *Store) applyEntry(rec *core.Record, entry *models.QueueEntry) {
	rec.Set("shop", entry.ShopID)
	rec.Set("barber", entry.BarberID)
	rec.Set("user", entry.AccountID)
	rec.Set("customer_name", entry.CustomerName)
	rec.Set("customer_phone", entry.CustomerPhone)
	rec.Set("position", entry.Position)
	rec.Set("unique_code", entry.UniqueCode)
	rec.Set("status", entry.Status)

	cost, _ := entry.TotalCost.Float64()
	rec.Set("total_cost", cost)

	raw, _ := json.Marshal(entry.Services)
	rec.Set("services", string(raw))
}

func (s *Store) entryFromRecord(rec *core.Record) (*models.QueueEntry, error) {
	entry := &models.QueueEntry{
		ID:            rec.Id,
		ShopID:        rec.GetString("shop"),
		BarberID:      rec.GetString("barber"),
		AccountID:     rec.GetString("user"),
		CustomerName:  rec.GetString("customer_name"),
		CustomerPhone: rec.GetString("customer_phone"),
		Position:      rec.GetInt("position"),
		UniqueCode:    rec.GetString("unique_code"),
		TotalCost:     decimal.NewFromFloat(rec.GetFloat("total_cost")),
		Status:        rec.GetString("status"),
		Created:       rec.GetDateTime("created").Time(),
		Updated:       rec.GetDateTime("updated").Time(),
	}

	if err := rec.UnmarshalJSONField("services", &entry.Services); err != nil {
		return nil, fmt.Errorf("decode services of entry %s: %w", rec.Id, err)
	}
	return entry, nil
}

// entriesWithNames maps records to entries and attaches denormalized
// barber/customer names, caching lookups across the batch.
func (s *Store) entriesWithNames(recs []*core.Record) ([]*models.QueueEntry, error) {
	names := map[string]string{}
	lookup := func(collection, id string) string {
		if id == "" {
			return ""
		}
		key := collection + "/" + id
		if name, ok := names[key]; ok {
			return name
		}
		name := ""
		if rec, err := s.app.FindRecordById(collection, id); err == nil {
			name = rec.GetString("name")
		}
		names[key] = name
		return name
	}

	entries := make([]*models.QueueEntry, 0, len(recs))
	for _, rec := range recs {
		entry, err := s.entryFromRecord(rec)
		if err != nil {
			return nil, err
		}
		entry.BarberName = lookup("barbers", entry.BarberID)
		if entry.AccountID != "" {
			entry.DisplayName = lookup("users", entry.AccountID)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// --- CatalogStore ---

func (s *Store) Shop(ctx context.Context, shopID string) (*models.Shop, error) {
	rec, err := s.app.FindRecordById("shops", shopID)
	if err != nil {
		return nil, status.ErrShopNotFound
	}

	shop := &models.Shop{
		ID:     rec.Id,
		Name:   rec.GetString("name"),
		IsOpen: rec.GetBool("is_open"),
	}
	if err := rec.UnmarshalJSONField("services", &shop.Services); err != nil {
		return nil, fmt.Errorf("decode services of shop %s: %w", rec.Id, err)
	}
	return shop, nil
}

// --- AccountStore ---

func (s *Store) User(ctx context.Context, id string) (*models.Account, error) {
	rec, err := s.app.FindRecordById("users", id)
	if err != nil {
		return nil, status.ErrEntryNotFound
	}
	return &models.Account{
		ID:        rec.Id,
		Name:      rec.GetString("name"),
		PushToken: rec.GetString("expo_push_token"),
	}, nil
}

func (s *Store) Barber(ctx context.Context, id string) (*models.Account, error) {
	rec, err := s.app.FindRecordById("barbers", id)
	if err != nil {
		return nil, status.ErrBarberNotFound
	}
	return &models.Account{
		ID:        rec.Id,
		Name:      rec.GetString("name"),
		PushToken: rec.GetString("expo_push_token"),
	}, nil
}

// --- HistoryStore ---

// RecordCompletion creates the receipt and applies the denormalized
// counter increments. The receipt id is returned even when a counter
// update fails; the caller logs the joined error and moves on.
func (s *Store) RecordCompletion(ctx context.Context, rec *models.HistoryRecord) (string, error) {
	col, err := s.app.FindCollectionByNameOrId("history")
	if err != nil {
		return "", err
	}

	hist := core.NewRecord(col)
	hist.Set("user", rec.AccountID)
	hist.Set("customer_name", rec.CustomerName)
	hist.Set("barber", rec.BarberID)
	hist.Set("shop", rec.ShopID)
	hist.Set("unique_code", rec.UniqueCode)
	hist.Set("position", rec.Position)
	hist.Set("date", rec.CompletedAt)
	hist.Set("is_rated", false)

	cost, _ := rec.TotalCost.Float64()
	hist.Set("total_cost", cost)

	raw, _ := json.Marshal(rec.Services)
	hist.Set("services", string(raw))

	if err := s.app.Save(hist); err != nil {
		return "", fmt.Errorf("create history record: %w", err)
	}
	rec.ID = hist.Id

	var errs []error
	if err := s.bumpBarberStats(rec.BarberID, hist.Id); err != nil {
		errs = append(errs, err)
	}
	if rec.AccountID != "" {
		if err := s.appendUserHistory(rec.AccountID, hist.Id); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.bumpShopStats(rec.ShopID, rec.TotalCost); err != nil {
		errs = append(errs, err)
	}
	return hist.Id, errors.Join(errs...)
}

func (s *Store) bumpBarberStats(barberID, historyID string) error {
	rec, err := s.app.FindRecordById("barbers", barberID)
	if err != nil {
		return fmt.Errorf("barber %s stats: %w", barberID, err)
	}
	rec.Set("customers_served", rec.GetInt("customers_served")+1)
	rec.Set("history", append(rec.GetStringSlice("history"), historyID))
	if err := s.app.Save(rec); err != nil {
		return fmt.Errorf("barber %s stats: %w", barberID, err)
	}
	return nil
}

func (s *Store) appendUserHistory(userID, historyID string) error {
	rec, err := s.app.FindRecordById("users", userID)
	if err != nil {
		return fmt.Errorf("user %s history: %w", userID, err)
	}
	rec.Set("history", append(rec.GetStringSlice("history"), historyID))
	if err := s.app.Save(rec); err != nil {
		return fmt.Errorf("user %s history: %w", userID, err)
	}
	return nil
}

func (s *Store) bumpShopStats(shopID string, total decimal.Decimal) error {
	rec, err := s.app.FindRecordById("shops", shopID)
	if err != nil {
		return fmt.Errorf("shop %s stats: %w", shopID, err)
	}
	rec.Set("total_services_completed", rec.GetInt("total_services_completed")+1)

	revenue := decimal.NewFromFloat(rec.GetFloat("total_revenue")).Add(total)
	f, _ := revenue.Float64()
	rec.Set("total_revenue", f)

	if err := s.app.Save(rec); err != nil {
		return fmt.Errorf("shop %s stats: %w", shopID, err)
	}
	return nil
}

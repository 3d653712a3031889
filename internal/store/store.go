package store

import (
	"context"

	"barberq/models"
)

// PositionScope selects which active entries a next-position query ranges
// over. The general join path numbers each barber line independently
// (the unassigned line by default), while the walk-in path numbers across
// the whole shop. The two sequences are not obviously consistent when a
// shop mixes both flows; this mirrors the observed behavior on purpose
// instead of silently unifying the scopes.
type PositionScope int

const (
	ScopeBarber PositionScope = iota
	ScopeShopWide
)

// QueueStore is the durable ordered collection of queue entries per shop.
type QueueStore interface {
	EntryByID(ctx context.Context, id string) (*models.QueueEntry, error)
	EntryByCode(ctx context.Context, code string) (*models.QueueEntry, error)

	// ActiveByShop returns pending/in-progress entries for a shop sorted
	// by position ascending, with barber/customer names attached.
	ActiveByShop(ctx context.Context, shopID string) ([]*models.QueueEntry, error)
	ActiveByBarber(ctx context.Context, barberID string) ([]*models.QueueEntry, error)

	// MaxActivePosition returns the highest position among active entries
	// in the given scope, or 0 when the scope is empty. barberID is only
	// consulted for ScopeBarber, where "" means the unassigned line.
	MaxActivePosition(ctx context.Context, shopID string, scope PositionScope, barberID string) (int, error)

	CodeExists(ctx context.Context, code string) (bool, error)

	Create(ctx context.Context, entry *models.QueueEntry) error
	Update(ctx context.Context, entry *models.QueueEntry) error
}

// CatalogStore is the read-only shop catalog lookup.
type CatalogStore interface {
	Shop(ctx context.Context, shopID string) (*models.Shop, error)
}

// AccountStore resolves registered users and barbers.
type AccountStore interface {
	User(ctx context.Context, id string) (*models.Account, error)
	Barber(ctx context.Context, id string) (*models.Account, error)
}

// HistoryStore records completions and maintains the denormalized
// counters on the barber, shop and customer documents.
type HistoryStore interface {
	// RecordCompletion creates the receipt and applies the counter
	// increments. It returns the new history record id.
	RecordCompletion(ctx context.Context, rec *models.HistoryRecord) (string, error)
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Queue entry lifecycle. Terminal entries are read-only; the only
// re-entrant write is completed -> completed, which repeats the status
// write but never the completion side effects.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

var transitionMap = map[string][]string{
	StatusPending:    {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {StatusCompleted},
	StatusCancelled:  {},
}

func CanTransition(from, to string) bool {
	allowed, ok := transitionMap[from]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == to {
			return true
		}
	}
	return false
}

func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

func IsActive(status string) bool {
	return status == StatusPending || status == StatusInProgress
}

// ServiceLine is one unit of a purchased service with the price captured
// at the time the entry was created. Later catalog edits never change it.
type ServiceLine struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type QueueEntry struct {
	ID            string          `json:"id"`
	ShopID        string          `json:"shop"`
	BarberID      string          `json:"barber,omitempty"`
	AccountID     string          `json:"user,omitempty"`
	CustomerName  string          `json:"customer_name,omitempty"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	Services      []ServiceLine   `json:"services"`
	Position      int             `json:"position"`
	UniqueCode    string          `json:"unique_code"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	Status        string          `json:"status"`
	Created       time.Time       `json:"created"`
	Updated       time.Time       `json:"updated"`

	// Denormalized for queue reads, not persisted on the entry itself.
	BarberName  string `json:"barber_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// DisplayedName is the customer-facing name: the linked account's name
// when the entry is account-backed, the free-text guest name otherwise.
func (e *QueueEntry) DisplayedName() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.CustomerName
}

// RequestedService is one (catalog item, quantity) pair from a caller.
// Quantity below 1 is coerced to 1 before line expansion.
type RequestedService struct {
	ServiceID string `json:"service"`
	Quantity  int    `json:"quantity"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// HistoryLine mirrors a queue service line in the completion receipt.
// Quantity is always 1 because entries carry pre-expanded per-unit lines.
type HistoryLine struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// HistoryRecord is the durable receipt created exactly once when an entry
// completes. The rating fields are written later by the rating subsystem;
// this module only ever creates records with them zeroed.
type HistoryRecord struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"user,omitempty"`
	CustomerName string          `json:"customer_name,omitempty"`
	BarberID     string          `json:"barber"`
	ShopID       string          `json:"shop"`
	Services     []HistoryLine   `json:"services"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	CompletedAt  time.Time       `json:"date"`
	UniqueCode   string          `json:"unique_code"`
	Position     int             `json:"position"`
	IsRated      bool            `json:"is_rated"`
	Rating       int             `json:"rating,omitempty"`
}

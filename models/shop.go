package models

import "github.com/shopspring/decimal"

// OfferedService is one line of a shop's embedded service catalog.
type OfferedService struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Minutes int             `json:"time,omitempty"`
}

type Shop struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	IsOpen   bool             `json:"is_open"`
	Services []OfferedService `json:"services"`
}

// ServiceByID returns the offered service matching id, or nil.
func (s *Shop) ServiceByID(id string) *OfferedService {
	for i := range s.Services {
		if s.Services[i].ID == id {
			return &s.Services[i]
		}
	}
	return nil
}

// Account is the engine's view of a registered user or barber: enough to
// name them on the queue and to address push notifications.
type Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PushToken string `json:"expo_push_token,omitempty"`
}

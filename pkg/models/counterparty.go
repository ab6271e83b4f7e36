package models

import (
	"time"

	"github.com/google/uuid"
)

// Counterparty types
const (
	CounterpartyOfftaker  = "offtaker"
	CounterpartyLandlord  = "landlord"
	CounterpartyOM        = "om_provider"
	CounterpartyInsurer   = "insurer"
	CounterpartyFinancier = "financier"
)

// Counterparty is the legal entity on the other side of a contract.
// Natural key: (type, lower(name)).
type Counterparty struct {
	ID                 uuid.UUID `json:"id"`
	Type               string    `json:"type"`
	Name               string    `json:"name"`
	RegistrationNumber string    `json:"registration_number,omitempty"`
	TaxID              string    `json:"tax_id,omitempty"`
	Address            string    `json:"address,omitempty"`
	Country            string    `json:"country,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Contact is a person attached to a counterparty.
// Natural key: (counterparty_id, lower(email), role) among active contacts.
type Contact struct {
	ID             uuid.UUID `json:"id"`
	CounterpartyID uuid.UUID `json:"counterparty_id"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	FullName       string    `json:"full_name,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

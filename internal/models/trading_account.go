package models

import "time"

// DefaultAccountName is the name of the account created lazily on first import.
// The (user_id, name) unique constraint makes it a per-user singleton.
const DefaultAccountName = "Default"

// TradingAccount represents a named brokerage account belonging to a user
type TradingAccount struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Broker    string    `json:"broker" db:"broker"`
	IsDefault bool      `json:"isDefault" db:"is_default"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

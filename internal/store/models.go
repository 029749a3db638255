// Package store implements C4, the persistence facade: the CRUD contract
// of spec.md §6 over tokens/transactions/wallets/alerts. Grounded on
// pumpguard-rs/src/utils/database.rs for the schema and semantics; the ORM
// style is grounded on ChoSanghyuk-blackholedex's use of gorm.io/gorm, with
// the driver swapped from mysql to the embedded gorm.io/driver/sqlite
// because spec.md wants a single-file embedded store.
package store

import "time"

// TokenRecord mirrors pumpguard-rs/src/utils/database.rs::TokenRecord.
type TokenRecord struct {
	Mint             string `gorm:"primaryKey"`
	Name             string
	Symbol           string
	Creator          string
	Signature        string
	CreatedAt        time.Time `gorm:"index"`
	InitialLiquidity float64
	IsRugged         bool
	RugReason        string
	LastUpdated      time.Time
}

func (TokenRecord) TableName() string { return "tokens" }

// TransactionRecord mirrors pumpguard-rs/src/utils/database.rs::TransactionRecord.
type TransactionRecord struct {
	Signature    string `gorm:"primaryKey"`
	Mint         string `gorm:"index"`
	Wallet       string `gorm:"index"`
	Kind         string // "buy" | "sell"
	AmountSOL    float64
	AmountTokens float64
	Timestamp    time.Time
}

func (TransactionRecord) TableName() string { return "transactions" }

// WalletRecord mirrors pumpguard-rs/src/utils/database.rs::WalletRecord.
type WalletRecord struct {
	Address      string `gorm:"primaryKey"`
	Label        string
	TotalVolume  float64
	IsWhale      bool
	LastActivity time.Time
}

func (WalletRecord) TableName() string { return "wallets" }

// AlertRecord mirrors pumpguard-rs/src/utils/database.rs::AlertRecord.
type AlertRecord struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	Type      string
	Title     string
	Message   string
	Data      string // serialized JSON blob
	CreatedAt time.Time `gorm:"index"`
}

func (AlertRecord) TableName() string { return "alerts" }

// Stats mirrors pumpguard-rs/src/utils/database.rs::DbStats.
type Stats struct {
	TotalTokens  int64 `json:"total_tokens"`
	RuggedTokens int64 `json:"rugged_tokens"`
	Whales       int64 `json:"whales"`
	Alerts       int64 `json:"alerts"`
}

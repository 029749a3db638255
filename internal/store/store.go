package store

import (
	"context"
	"time"
)

// Store is the exact CRUD contract spec.md §6 exposes to the core. The
// core only ever talks to this interface — persistence errors are logged
// by the caller and never block in-memory analysis, per spec.md §7.
type Store interface {
	SaveToken(ctx context.Context, rec TokenRecord) error
	GetToken(ctx context.Context, mint string) (*TokenRecord, error)
	GetRecentTokens(ctx context.Context, n int) ([]TokenRecord, error)
	MarkAsRugged(ctx context.Context, mint, reason string) error

	SaveTransaction(ctx context.Context, rec TransactionRecord) error

	SaveWallet(ctx context.Context, rec WalletRecord) error
	GetWhales(ctx context.Context) ([]WalletRecord, error)

	SaveAlert(ctx context.Context, typ, title, message, data string, now time.Time) error
	GetRecentAlerts(ctx context.Context, n int) ([]AlertRecord, error)

	GetStats(ctx context.Context) (Stats, error)

	Close() error
}

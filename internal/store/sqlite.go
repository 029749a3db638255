package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SQLStore is the concrete, embedded-SQL implementation of Store.
// Grounded on ChoSanghyuk-blackholedex's gorm.io/gorm usage, pointed at the
// embedded sqlite driver rather than mysql.
type SQLStore struct {
	db *gorm.DB
}

// Open opens (creating if absent) the sqlite database at path and migrates
// the four-table schema, matching the indexes spec.md §6 requires
// (tokens.created_at, transactions.mint, transactions.wallet — all declared
// via the `gorm:"index"` tags on the models).
func Open(path string, logger zerolog.Logger) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.New(&zerologWriter{logger: logger}, gormlogger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      gormlogger.Warn,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database at %s: %w", path, err)
	}

	if err := db.AutoMigrate(&TokenRecord{}, &TransactionRecord{}, &WalletRecord{}, &AlertRecord{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// SaveToken upserts by mint, updating last_updated=now (spec.md §6).
func (s *SQLStore) SaveToken(ctx context.Context, rec TokenRecord) error {
	rec.LastUpdated = time.Now()
	return s.db.WithContext(ctx).Save(&rec).Error
}

func (s *SQLStore) GetToken(ctx context.Context, mint string) (*TokenRecord, error) {
	var rec TokenRecord
	err := s.db.WithContext(ctx).First(&rec, "mint = ?", mint).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// GetRecentTokens returns up to n tokens, newest-first by created_at.
func (s *SQLStore) GetRecentTokens(ctx context.Context, n int) ([]TokenRecord, error) {
	var recs []TokenRecord
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(n).Find(&recs).Error
	return recs, err
}

// MarkAsRugged sets is_rugged=1, rug_reason.
func (s *SQLStore) MarkAsRugged(ctx context.Context, mint, reason string) error {
	return s.db.WithContext(ctx).Model(&TokenRecord{}).
		Where("mint = ?", mint).
		Updates(map[string]any{"is_rugged": true, "rug_reason": reason, "last_updated": time.Now()}).Error
}

// SaveTransaction inserts-or-ignores by signature (dedup), per spec.md §6.
func (s *SQLStore) SaveTransaction(ctx context.Context, rec TransactionRecord) error {
	err := s.db.WithContext(ctx).Clauses(onConflictDoNothing("signature")).Create(&rec).Error
	return err
}

// SaveWallet upserts, updating last_activity=now.
func (s *SQLStore) SaveWallet(ctx context.Context, rec WalletRecord) error {
	rec.LastActivity = time.Now()
	return s.db.WithContext(ctx).Save(&rec).Error
}

// GetWhales returns wallets where is_whale=1.
func (s *SQLStore) GetWhales(ctx context.Context) ([]WalletRecord, error) {
	var recs []WalletRecord
	err := s.db.WithContext(ctx).Where("is_whale = ?", true).Find(&recs).Error
	return recs, err
}

// SaveAlert inserts a new alert row.
func (s *SQLStore) SaveAlert(ctx context.Context, typ, title, message, data string, now time.Time) error {
	return s.db.WithContext(ctx).Create(&AlertRecord{
		Type: typ, Title: title, Message: message, Data: data, CreatedAt: now,
	}).Error
}

// GetRecentAlerts returns up to n alerts, newest-first by created_at.
func (s *SQLStore) GetRecentAlerts(ctx context.Context, n int) ([]AlertRecord, error) {
	var recs []AlertRecord
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(n).Find(&recs).Error
	return recs, err
}

// GetStats aggregates totals across all four tables.
func (s *SQLStore) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.db.WithContext(ctx).Model(&TokenRecord{}).Count(&stats.TotalTokens).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&TokenRecord{}).Where("is_rugged = ?", true).Count(&stats.RuggedTokens).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&WalletRecord{}).Where("is_whale = ?", true).Count(&stats.Whales).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&AlertRecord{}).Count(&stats.Alerts).Error; err != nil {
		return stats, err
	}
	return stats, nil
}

// Close releases the underlying connection.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*SQLStore)(nil)

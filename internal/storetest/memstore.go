// Package storetest provides an in-memory store.Store double for the
// analyzer packages' tests, so C5/C6/C7's pipeline tests don't need a real
// sqlite file or cgo driver to exercise persistence calls.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pumpguard-dev/pumpguard/internal/store"
)

// Store is a mutex-guarded, in-memory implementation of store.Store.
type Store struct {
	mu           sync.Mutex
	tokens       map[string]store.TokenRecord
	transactions []store.TransactionRecord
	wallets      map[string]store.WalletRecord
	alerts       []store.AlertRecord
	nextAlertID  int64
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		tokens:  make(map[string]store.TokenRecord),
		wallets: make(map[string]store.WalletRecord),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) SaveToken(ctx context.Context, rec store.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[rec.Mint] = rec
	return nil
}

func (s *Store) GetToken(ctx context.Context, mint string) (*store.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[mint]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) GetRecentTokens(ctx context.Context, n int) ([]store.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.TokenRecord, 0, len(s.tokens))
	for _, rec := range s.tokens {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *Store) MarkAsRugged(ctx context.Context, mint, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[mint]
	if !ok {
		return nil
	}
	rec.IsRugged = true
	rec.RugReason = reason
	s.tokens[mint] = rec
	return nil
}

func (s *Store) SaveTransaction(ctx context.Context, rec store.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, rec)
	return nil
}

func (s *Store) SaveWallet(ctx context.Context, rec store.WalletRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[rec.Address] = rec
	return nil
}

func (s *Store) GetWhales(ctx context.Context) ([]store.WalletRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.WalletRecord
	for _, w := range s.wallets {
		if w.IsWhale {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) SaveAlert(ctx context.Context, typ, title, message, data string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAlertID++
	s.alerts = append(s.alerts, store.AlertRecord{
		ID: s.nextAlertID, Type: typ, Title: title, Message: message, Data: data, CreatedAt: now,
	})
	return nil
}

func (s *Store) GetRecentAlerts(ctx context.Context, n int) ([]store.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.AlertRecord, len(s.alerts))
	copy(out, s.alerts)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *Store) GetStats(ctx context.Context) (store.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := store.Stats{Alerts: int64(len(s.alerts))}
	for _, t := range s.tokens {
		stats.TotalTokens++
		if t.IsRugged {
			stats.RuggedTokens++
		}
	}
	for _, w := range s.wallets {
		if w.IsWhale {
			stats.Whales++
		}
	}
	return stats, nil
}

func (s *Store) Close() error { return nil }

// TokenCount reports how many tokens have been saved, for test assertions.
func (s *Store) TokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// TransactionCount reports how many transactions have been saved.
func (s *Store) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

// Package whale implements C7, the whale/flow tracker: classifies buy/sell
// events, tracks per-wallet and per-mint flow, and runs a periodic
// accumulation/dump pattern pass. Grounded on
// pumpguard-rs/src/modules/whale_watcher.rs.
package whale

import "time"

// TxInfo is one classified buy or sell, shared by WatchedWallet.Transactions
// and TokenMovement.Buys/Sells.
type TxInfo struct {
	Signature    string
	Wallet       string
	Mint         string
	Kind         string // "buy" | "sell"
	AmountSOL    float64
	AmountTokens float64
	TimestampMs  int64
}

// WatchedWallet is C7's owned wallet record, keyed by address.
type WatchedWallet struct {
	Address      string
	Label        string
	TotalVolume  float64
	IsWhale      bool
	Transactions []TxInfo
	LastActivity int64
}

// TokenMovement is C7's owned per-mint flow record, keyed by mint.
type TokenMovement struct {
	Mint          string
	Buys          []TxInfo
	Sells         []TxInfo
	NetFlow       float64
	UniqueBuyers  map[string]bool
	UniqueSellers map[string]bool
}

const (
	maxWalletTransactions    = 100
	defaultAccumulationWindow = time.Hour
	defaultMinTxForPattern   = 3
)

func (w *WatchedWallet) appendTx(tx TxInfo) {
	w.Transactions = append(w.Transactions, tx)
	if len(w.Transactions) > maxWalletTransactions {
		w.Transactions = w.Transactions[len(w.Transactions)-maxWalletTransactions:]
	}
}

func newTokenMovement(mint string) TokenMovement {
	return TokenMovement{
		Mint:          mint,
		UniqueBuyers:  make(map[string]bool),
		UniqueSellers: make(map[string]bool),
	}
}

// applyTx appends tx to the appropriate deque, updates net flow and the
// unique-participant sets, then purges entries older than windowMs before
// now (spec.md §4.6's window invariant / T7).
func (m *TokenMovement) applyTx(tx TxInfo, windowMs int64) {
	if m.UniqueBuyers == nil {
		m.UniqueBuyers = make(map[string]bool)
	}
	if m.UniqueSellers == nil {
		m.UniqueSellers = make(map[string]bool)
	}

	switch tx.Kind {
	case "buy":
		m.Buys = append(m.Buys, tx)
		m.NetFlow += tx.AmountSOL
		m.UniqueBuyers[tx.Wallet] = true
	case "sell":
		m.Sells = append(m.Sells, tx)
		m.NetFlow -= tx.AmountSOL
		m.UniqueSellers[tx.Wallet] = true
	}

	cutoff := tx.TimestampMs - windowMs
	m.Buys = purgeOlderThan(m.Buys, cutoff)
	m.Sells = purgeOlderThan(m.Sells, cutoff)
}

func purgeOlderThan(txs []TxInfo, cutoff int64) []TxInfo {
	kept := txs[:0:0]
	for _, tx := range txs {
		if tx.TimestampMs >= cutoff {
			kept = append(kept, tx)
		}
	}
	return kept
}

// isEmpty reports whether this movement has no tracked buys or sells left,
// the condition the pattern pass uses to garbage-collect it.
func (m *TokenMovement) isEmpty() bool {
	return len(m.Buys) == 0 && len(m.Sells) == 0
}

// Package chain implements C1, the chain client: getTransaction/getBalance
// RPC calls, bonding-curve PDA derivation, and address shortening. Grounded
// on pumpguard-rs/src/utils/solana.rs.
package chain

import "encoding/json"

func unmarshalOrEmpty(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// TokenBalance mirrors one entry of a decoded transaction's
// pre/postTokenBalances array, keyed by account index.
type TokenBalance struct {
	AccountIndex  int     `json:"accountIndex"`
	Mint          string  `json:"mint"`
	Owner         string  `json:"owner"`
	UiTokenAmount float64 `json:"uiTokenAmount"`
}

// DecodedTx is the already-decoded transaction shape the core consumes;
// spec.md §1 explicitly places the on-chain binary layout out of scope —
// this struct is the boundary.
type DecodedTx struct {
	Signatures        []string
	AccountKeys       []string // ordered; index 0 is the fee payer / first signer
	PreBalances       []int64  // lamports, by account index
	PostBalances      []int64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	BlockTime         int64
}

// FirstSignature returns the transaction's primary signature, or "" if the
// transaction carries none.
func (t *DecodedTx) FirstSignature() string {
	if len(t.Signatures) == 0 {
		return ""
	}
	return t.Signatures[0]
}

// FirstSigner returns the fee payer / first account key.
func (t *DecodedTx) FirstSigner() string {
	if len(t.AccountKeys) == 0 {
		return ""
	}
	return t.AccountKeys[0]
}

// wireGetTransactionResponse is the subset of Solana's getTransaction JSON
// response this core actually reads (spec.md §6: "all other fields are
// ignored").
type wireGetTransactionResponse struct {
	BlockTime int64 `json:"blockTime"`
	Slot      int64 `json:"slot"`
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			AccountKeys []wireAccountKey `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
	Meta struct {
		PreBalances       []int64            `json:"preBalances"`
		PostBalances      []int64            `json:"postBalances"`
		PreTokenBalances  []wireTokenBalance `json:"preTokenBalances"`
		PostTokenBalances []wireTokenBalance `json:"postTokenBalances"`
		Err               any                `json:"err"`
	} `json:"meta"`
}

// wireAccountKey supports both the legacy string-array accountKeys shape
// and the jsonParsed {pubkey,...} object shape.
type wireAccountKey struct {
	Pubkey string
}

func (a *wireAccountKey) UnmarshalJSON(data []byte) error {
	// try the plain-string shape first
	var s string
	if err := unmarshalOrEmpty(data, &s); err == nil && s != "" {
		a.Pubkey = s
		return nil
	}
	var obj struct {
		Pubkey string `json:"pubkey"`
	}
	if err := unmarshalOrEmpty(data, &obj); err != nil {
		return err
	}
	a.Pubkey = obj.Pubkey
	return nil
}

type wireTokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UiTokenAmount struct {
		UiAmount float64 `json:"uiAmount"`
	} `json:"uiTokenAmount"`
}

func (r *wireGetTransactionResponse) decode() *DecodedTx {
	tx := &DecodedTx{
		Signatures:   r.Transaction.Signatures,
		PreBalances:  r.Meta.PreBalances,
		PostBalances: r.Meta.PostBalances,
		BlockTime:    r.BlockTime,
	}
	for _, k := range r.Transaction.Message.AccountKeys {
		tx.AccountKeys = append(tx.AccountKeys, k.Pubkey)
	}
	for _, b := range r.Meta.PreTokenBalances {
		tx.PreTokenBalances = append(tx.PreTokenBalances, TokenBalance{
			AccountIndex: b.AccountIndex, Mint: b.Mint, Owner: b.Owner, UiTokenAmount: b.UiTokenAmount.UiAmount,
		})
	}
	for _, b := range r.Meta.PostTokenBalances {
		tx.PostTokenBalances = append(tx.PostTokenBalances, TokenBalance{
			AccountIndex: b.AccountIndex, Mint: b.Mint, Owner: b.Owner, UiTokenAmount: b.UiTokenAmount.UiAmount,
		})
	}
	return tx
}

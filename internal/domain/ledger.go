package domain

import "time"

// LedgerSource tags the origin of a ledger entry.
type LedgerSource string

const (
	// LedgerPrimaryPurchase credits tokens acquired on the primary market.
	LedgerPrimaryPurchase LedgerSource = "primary_purchase"
	// LedgerOrderLock debits the maker's tokens escrowed by a sell order.
	LedgerOrderLock LedgerSource = "order_lock"
	// LedgerFillCredit credits the buyer's side of a fill.
	LedgerFillCredit LedgerSource = "fill_credit"
	// LedgerFillDebit debits the seller's escrowed tokens consumed by a fill.
	LedgerFillDebit LedgerSource = "fill_debit"
	// LedgerCancelRelease credits the remaining escrow back on cancellation.
	LedgerCancelRelease LedgerSource = "cancel_release"
)

// LedgerEntry is a signed, append-only journal entry affecting a holder's
// asset-token position. Entries are never mutated or deleted; corrections
// are issued as compensating entries.
type LedgerEntry struct {
	ID            int64
	WalletAddress string
	AssetID       string
	Amount        int64 // positive = credit, negative = debit/lock
	Source        LedgerSource
	OrderID       int64  // originating order, 0 when not applicable
	TxHash        string // originating transaction
	LogIndex      uint
	BlockNumber   uint64
	BlockTime     time.Time
	CreatedAt     time.Time
}

// BalanceSums are the per-wallet, per-asset aggregates derived from the
// ledger. Portfolio mirrors the wallet's on-chain balance including escrow
// movements; Locked is the amount still held by OPEN/PARTIAL sell orders.
type BalanceSums struct {
	Portfolio int64
	Locked    int64
	Entries   int64 // number of contributing entries
}

// Accumulate folds one entry into the sums.
//
// Portfolio mirrors on-chain token movement: purchases and fill transfers.
// Lock and release entries carry no on-chain transfer of their own (tokens
// are locked in place by the market contract) and contribute only to the
// Locked aggregate: order_lock raises it, fill_debit consumes it, and
// cancel_release returns the remainder.
func (b *BalanceSums) Accumulate(e LedgerEntry) {
	b.Entries++
	switch e.Source {
	case LedgerPrimaryPurchase, LedgerFillCredit, LedgerFillDebit:
		b.Portfolio += e.Amount
	}
	switch e.Source {
	case LedgerOrderLock:
		b.Locked += -e.Amount
	case LedgerFillDebit:
		b.Locked += e.Amount // negative amount, consumes the lock
	case LedgerCancelRelease:
		b.Locked -= e.Amount
	}
}

// Balance is the query-service view of a wallet's position in one asset.
type Balance struct {
	WalletAddress string
	AssetID       string
	WalletBalance int64 // on-chain balanceOf, when a provider is wired
	Locked        int64
	Tradeable     int64
	Portfolio     int64
}

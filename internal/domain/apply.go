package domain

// FillParties resolves the buyer and seller of a fill from the resting
// order's side. The taker always takes the opposite side of the maker.
func FillParties(o *Order, taker string) (buyer, seller string) {
	if o.Side == OrderSideSell {
		return taker, o.Maker
	}
	return o.Maker, taker
}

// LockEntry builds the ledger debit that escrows a sell order's tokens at
// creation. Buy orders lock counter-asset funds, which this ledger does not
// track, so they produce no entry.
func LockEntry(o *Order, ev ChainEvent) (LedgerEntry, bool) {
	if o.Side != OrderSideSell {
		return LedgerEntry{}, false
	}
	return LedgerEntry{
		WalletAddress: o.Maker,
		AssetID:       o.AssetID,
		Amount:        -o.InitialAmount,
		Source:        LedgerOrderLock,
		OrderID:       o.OrderID,
		TxHash:        ev.TxHash,
		LogIndex:      ev.LogIndex,
		BlockNumber:   ev.BlockNumber,
		BlockTime:     ev.BlockTime,
	}, true
}

// FillEntries builds the paired credit and debit for one trade execution.
// The pair nets to zero so a fill never changes total supply.
func FillEntries(o *Order, taker string, amount int64, ev ChainEvent) []LedgerEntry {
	buyer, seller := FillParties(o, taker)
	base := LedgerEntry{
		AssetID:     o.AssetID,
		OrderID:     o.OrderID,
		TxHash:      ev.TxHash,
		LogIndex:    ev.LogIndex,
		BlockNumber: ev.BlockNumber,
		BlockTime:   ev.BlockTime,
	}
	credit := base
	credit.WalletAddress = buyer
	credit.Amount = amount
	credit.Source = LedgerFillCredit

	debit := base
	debit.WalletAddress = seller
	debit.Amount = -amount
	debit.Source = LedgerFillDebit

	return []LedgerEntry{credit, debit}
}

// ReleaseEntry builds the credit returning a cancelled sell order's
// remaining escrow. Nothing is released for buy orders or fully consumed
// locks.
func ReleaseEntry(o *Order, released int64, ev ChainEvent) (LedgerEntry, bool) {
	if o.Side != OrderSideSell || released <= 0 {
		return LedgerEntry{}, false
	}
	return LedgerEntry{
		WalletAddress: o.Maker,
		AssetID:       o.AssetID,
		Amount:        released,
		Source:        LedgerCancelRelease,
		OrderID:       o.OrderID,
		TxHash:        ev.TxHash,
		LogIndex:      ev.LogIndex,
		BlockNumber:   ev.BlockNumber,
		BlockTime:     ev.BlockTime,
	}, true
}

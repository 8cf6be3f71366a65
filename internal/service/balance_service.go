package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/brixmarket/syncengine/internal/domain"
)

// BalanceService derives wallet positions from the ledger and optionally
// cross-checks them against on-chain token balances.
type BalanceService struct {
	ledger    domain.LedgerStore
	chain     domain.BalanceProvider // optional
	incidents domain.IncidentStore   // optional, for drift reports
	assets    *domain.AssetRegistry
	logger    *slog.Logger
}

// NewBalanceService creates a BalanceService. chain and incidents may be
// nil; without a chain provider WalletBalance mirrors the ledger portfolio
// and drift checks are skipped.
func NewBalanceService(
	ledger domain.LedgerStore,
	chain domain.BalanceProvider,
	incidents domain.IncidentStore,
	assets *domain.AssetRegistry,
	logger *slog.Logger,
) *BalanceService {
	return &BalanceService{
		ledger:    ledger,
		chain:     chain,
		incidents: incidents,
		assets:    assets,
		logger:    logger,
	}
}

// Balance returns a wallet's position in one asset. A wallet with no ledger
// history holds a zero position; that is not an error.
func (s *BalanceService) Balance(ctx context.Context, wallet, assetID string) (domain.Balance, error) {
	asset, err := s.assets.ByID(assetID)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("balance_service: %w", err)
	}

	sums, err := s.ledger.SumWallet(ctx, wallet, assetID)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("balance_service: sum ledger: %w", err)
	}

	bal := domain.Balance{
		WalletAddress: wallet,
		AssetID:       assetID,
		Portfolio:     sums.Portfolio,
		Locked:        sums.Locked,
		WalletBalance: sums.Portfolio,
	}

	if s.chain != nil && asset.TokenAddress != "" {
		onchain, err := s.chain.WalletBalance(ctx, asset.TokenAddress, wallet)
		if err != nil {
			// Serve the ledger-derived view when the chain is unreachable.
			s.logger.WarnContext(ctx, "balance_service: chain balance unavailable",
				slog.String("wallet", wallet),
				slog.String("asset_id", assetID),
				slog.String("error", err.Error()),
			)
		} else {
			bal.WalletBalance = onchain
		}
	}

	bal.Tradeable = bal.WalletBalance - bal.Locked
	if bal.Tradeable < 0 {
		bal.Tradeable = 0
	}
	return bal, nil
}

// History returns a wallet's ledger entries for one asset, newest first.
func (s *BalanceService) History(ctx context.Context, wallet, assetID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	if _, err := s.assets.ByID(assetID); err != nil {
		return nil, fmt.Errorf("balance_service: %w", err)
	}
	entries, err := s.ledger.ListByWallet(ctx, wallet, assetID, opts)
	if err != nil {
		return nil, fmt.Errorf("balance_service: list ledger: %w", err)
	}
	return entries, nil
}

// CheckDrift compares a wallet's ledger portfolio against the on-chain
// token balance and records a ledger_drift incident on mismatch. Returns
// the signed drift (onchain minus ledger). A nil chain provider reports
// zero drift.
func (s *BalanceService) CheckDrift(ctx context.Context, wallet, assetID string) (int64, error) {
	asset, err := s.assets.ByID(assetID)
	if err != nil {
		return 0, fmt.Errorf("balance_service: %w", err)
	}
	if s.chain == nil || asset.TokenAddress == "" {
		return 0, nil
	}

	sums, err := s.ledger.SumWallet(ctx, wallet, assetID)
	if err != nil {
		return 0, fmt.Errorf("balance_service: sum ledger: %w", err)
	}
	onchain, err := s.chain.WalletBalance(ctx, asset.TokenAddress, wallet)
	if err != nil {
		return 0, fmt.Errorf("balance_service: chain balance: %w", err)
	}

	drift := onchain - sums.Portfolio
	if drift == 0 {
		return 0, nil
	}

	s.logger.WarnContext(ctx, "balance_service: ledger drift detected",
		slog.String("wallet", wallet),
		slog.String("asset_id", assetID),
		slog.Int64("onchain", onchain),
		slog.Int64("ledger", sums.Portfolio),
	)
	if s.incidents != nil {
		inc := domain.Incident{
			ID:      uuid.NewString(),
			Kind:    domain.IncidentDrift,
			AssetID: assetID,
			Detail: fmt.Sprintf("wallet %s: onchain %d, ledger %d, drift %d",
				wallet, onchain, sums.Portfolio, drift),
			CreatedAt: time.Now().UTC(),
		}
		if err := s.incidents.Create(ctx, inc); err != nil {
			s.logger.WarnContext(ctx, "balance_service: record drift incident failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return drift, nil
}

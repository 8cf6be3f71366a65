package domain

import (
	"fmt"
	"strings"
	"time"
)

// AssetContract binds one tokenized asset to its market contract. The set
// of monitored contracts comes from configuration; each contract's event
// stream is indexed independently.
type AssetContract struct {
	AssetID      string
	Symbol       string
	Name         string
	Contract     string // market contract address
	TokenAddress string // ERC-20 asset token address
}

// AssetRegistry resolves tracked assets by ID or contract address.
type AssetRegistry struct {
	byID       map[string]AssetContract
	byContract map[string]AssetContract
	ordered    []AssetContract
}

// NewAssetRegistry builds a registry from the configured contract set.
func NewAssetRegistry(assets []AssetContract) *AssetRegistry {
	r := &AssetRegistry{
		byID:       make(map[string]AssetContract, len(assets)),
		byContract: make(map[string]AssetContract, len(assets)),
		ordered:    append([]AssetContract(nil), assets...),
	}
	for _, a := range assets {
		r.byID[a.AssetID] = a
		r.byContract[strings.ToLower(a.Contract)] = a
	}
	return r
}

// ByID resolves an asset by its platform identifier.
func (r *AssetRegistry) ByID(assetID string) (AssetContract, error) {
	a, ok := r.byID[assetID]
	if !ok {
		return AssetContract{}, fmt.Errorf("asset %q: %w", assetID, ErrUnknownAsset)
	}
	return a, nil
}

// ByContract resolves an asset by its market contract address.
func (r *AssetRegistry) ByContract(contract string) (AssetContract, error) {
	a, ok := r.byContract[strings.ToLower(contract)]
	if !ok {
		return AssetContract{}, fmt.Errorf("contract %q: %w", contract, ErrUnknownAsset)
	}
	return a, nil
}

// List returns all tracked assets in configuration order.
func (r *AssetRegistry) List() []AssetContract {
	return append([]AssetContract(nil), r.ordered...)
}

// IncidentKind categorizes a reconciliation incident.
type IncidentKind string

const (
	IncidentIntegrity IncidentKind = "integrity"
	IncidentReorg     IncidentKind = "reorg"
	IncidentDrift     IncidentKind = "ledger_drift"
)

// Incident records one quarantine decision for operator attention. The
// affected records stay excluded from authoritative projections until the
// incident is resolved; the engine never auto-corrects them.
type Incident struct {
	ID        string // uuid
	Kind      IncidentKind
	Contract  string
	AssetID   string
	OrderID   int64 // 0 when not order-scoped
	TxHash    string
	Detail    string
	Resolved  bool
	CreatedAt time.Time
}

// Package ethereum implements the chain event source and balance provider
// over a JSON-RPC endpoint using go-ethereum.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/brixmarket/syncengine/internal/domain"
)

// marketABI covers the three order events every asset market contract emits.
const marketABI = `[
	{"type":"event","name":"OrderCreated","inputs":[
		{"name":"orderId","type":"uint256","indexed":true},
		{"name":"maker","type":"address","indexed":true},
		{"name":"side","type":"uint8","indexed":false},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"price","type":"uint256","indexed":false}]},
	{"type":"event","name":"OrderFilled","inputs":[
		{"name":"orderId","type":"uint256","indexed":true},
		{"name":"taker","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"price","type":"uint256","indexed":false}]},
	{"type":"event","name":"OrderCancelled","inputs":[
		{"name":"orderId","type":"uint256","indexed":true}]}
]`

const erc20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

// Source implements domain.EventSource over an Ethereum JSON-RPC endpoint.
type Source struct {
	client        *ethclient.Client
	confirmations uint64
	assets        map[common.Address]string // contract -> asset id

	abi          gethabi.ABI
	sigCreated   common.Hash
	sigFilled    common.Hash
	sigCancelled common.Hash

	mu         sync.Mutex
	headerByNo map[uint64]*types.Header // per-batch header cache
}

// NewSource dials the RPC endpoint and prepares the event decoder for the
// given contract set.
func NewSource(ctx context.Context, rpcURL string, confirmations uint64, contracts []domain.AssetContract) (*Source, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ethereum: dial %s: %w", rpcURL, err)
	}

	parsed, err := gethabi.JSON(strings.NewReader(marketABI))
	if err != nil {
		return nil, fmt.Errorf("ethereum: parse market abi: %w", err)
	}

	assets := make(map[common.Address]string, len(contracts))
	for _, c := range contracts {
		assets[common.HexToAddress(c.Contract)] = c.AssetID
	}

	return &Source{
		client:        client,
		confirmations: confirmations,
		assets:        assets,
		abi:           parsed,
		sigCreated:    parsed.Events["OrderCreated"].ID,
		sigFilled:     parsed.Events["OrderFilled"].ID,
		sigCancelled:  parsed.Events["OrderCancelled"].ID,
		headerByNo:    make(map[uint64]*types.Header),
	}, nil
}

// Close releases the RPC connection.
func (s *Source) Close() {
	s.client.Close()
}

// ConfirmedHead returns the newest block the indexer may consume: the chain
// head minus the configured confirmation depth.
func (s *Source) ConfirmedHead(ctx context.Context) (uint64, error) {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("ethereum: block number: %w", err)
	}
	if head < s.confirmations {
		return 0, nil
	}
	return head - s.confirmations, nil
}

// ListEvents implements domain.EventSource. Logs at or before the cursor are
// dropped, the rest are decoded and returned in (block, logIndex) order.
func (s *Source) ListEvents(ctx context.Context, contract string, after domain.Cursor, toBlock uint64) ([]domain.ChainEvent, error) {
	addr := common.HexToAddress(contract)
	assetID, ok := s.assets[addr]
	if !ok {
		return nil, fmt.Errorf("ethereum: contract %s: %w", contract, domain.ErrUnknownAsset)
	}
	if toBlock < after.BlockNumber {
		return nil, nil
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(after.BlockNumber),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{addr},
		Topics:    [][]common.Hash{{s.sigCreated, s.sigFilled, s.sigCancelled}},
	}
	logs, err := s.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ethereum: filter logs: %w", err)
	}

	var events []domain.ChainEvent
	for _, lg := range logs {
		pos := domain.Cursor{BlockNumber: lg.BlockNumber, LogIndex: lg.Index}
		if !after.Before(pos) {
			continue
		}
		blockTime, err := s.blockTime(ctx, lg.BlockNumber)
		if err != nil {
			return nil, err
		}
		ev := s.decodeLog(lg, assetID, blockTime)
		events = append(events, ev)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Cursor().Before(events[j].Cursor())
	})
	return events, nil
}

// VerifyCanonical reports whether the cursor's last consumed block is still
// on the canonical chain.
func (s *Source) VerifyCanonical(ctx context.Context, cur domain.EventCursor) (bool, error) {
	if cur.BlockHash == "" || cur.Position.BlockNumber == 0 {
		return true, nil
	}
	header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(cur.Position.BlockNumber))
	if err != nil {
		return false, fmt.Errorf("ethereum: header %d: %w", cur.Position.BlockNumber, err)
	}
	return strings.EqualFold(header.Hash().Hex(), cur.BlockHash), nil
}

// decodeLog turns one raw log into a ChainEvent. Decode failures keep the
// event's provenance but leave the payload empty, so the applier
// quarantines the event instead of the indexer stalling on it.
func (s *Source) decodeLog(lg types.Log, assetID string, blockTime time.Time) domain.ChainEvent {
	ev := domain.ChainEvent{
		Contract:    lg.Address.Hex(),
		AssetID:     assetID,
		BlockNumber: lg.BlockNumber,
		BlockHash:   lg.BlockHash.Hex(),
		LogIndex:    lg.Index,
		TxHash:      lg.TxHash.Hex(),
		BlockTime:   blockTime,
	}
	if len(lg.Topics) == 0 {
		return ev
	}

	switch lg.Topics[0] {
	case s.sigCreated:
		ev.Kind = domain.EventOrderCreated
		if len(lg.Topics) < 3 {
			return ev
		}
		var data struct {
			Side   uint8
			Amount *big.Int
			Price  *big.Int
		}
		if err := s.abi.UnpackIntoInterface(&data, "OrderCreated", lg.Data); err != nil {
			return ev
		}
		orderID, ok1 := toInt64(new(big.Int).SetBytes(lg.Topics[1].Bytes()))
		amount, ok2 := toInt64(data.Amount)
		price, ok3 := toInt64(data.Price)
		if !ok1 || !ok2 || !ok3 {
			return ev
		}
		ev.Created = &domain.OrderCreatedPayload{
			OrderID:    orderID,
			Maker:      common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
			Side:       sideOf(data.Side),
			Amount:     amount,
			PriceTicks: price,
		}
	case s.sigFilled:
		ev.Kind = domain.EventOrderFilled
		if len(lg.Topics) < 3 {
			return ev
		}
		var data struct {
			Amount *big.Int
			Price  *big.Int
		}
		if err := s.abi.UnpackIntoInterface(&data, "OrderFilled", lg.Data); err != nil {
			return ev
		}
		orderID, ok1 := toInt64(new(big.Int).SetBytes(lg.Topics[1].Bytes()))
		amount, ok2 := toInt64(data.Amount)
		price, ok3 := toInt64(data.Price)
		if !ok1 || !ok2 || !ok3 {
			return ev
		}
		ev.Filled = &domain.OrderFilledPayload{
			OrderID:    orderID,
			Taker:      common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
			Amount:     amount,
			PriceTicks: price,
		}
	case s.sigCancelled:
		ev.Kind = domain.EventOrderCancelled
		if len(lg.Topics) < 2 {
			return ev
		}
		orderID, ok := toInt64(new(big.Int).SetBytes(lg.Topics[1].Bytes()))
		if !ok {
			return ev
		}
		ev.Cancelled = &domain.OrderCancelledPayload{OrderID: orderID}
	}
	return ev
}

func (s *Source) blockTime(ctx context.Context, number uint64) (time.Time, error) {
	s.mu.Lock()
	header, ok := s.headerByNo[number]
	s.mu.Unlock()
	if !ok {
		var err error
		header, err = s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return time.Time{}, fmt.Errorf("ethereum: header %d: %w", number, err)
		}
		s.mu.Lock()
		// Bound the cache; batches revisit only recent blocks.
		if len(s.headerByNo) > 4096 {
			s.headerByNo = make(map[uint64]*types.Header)
		}
		s.headerByNo[number] = header
		s.mu.Unlock()
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

func sideOf(v uint8) domain.OrderSide {
	if v == 0 {
		return domain.OrderSideBuy
	}
	return domain.OrderSideSell
}

func toInt64(v *big.Int) (int64, bool) {
	if v == nil || !v.IsInt64() {
		return 0, false
	}
	return v.Int64(), true
}

// Package mock provides an in-process chain for standalone mode and tests:
// a scripted event source plus canned wallet balances behind the same
// capability interfaces as the ethereum package.
package mock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/brixmarket/syncengine/internal/domain"
)

// Source implements domain.EventSource and domain.BalanceProvider from
// scripted data. All methods are safe for concurrent use.
type Source struct {
	mu       sync.Mutex
	head     uint64
	events   map[string][]domain.ChainEvent // keyed by lowercase contract
	hashes   map[uint64]string              // canonical hash per block
	balances map[string]map[string]int64    // token -> wallet -> amount
}

// New returns an empty Source.
func New() *Source {
	return &Source{
		events:   make(map[string][]domain.ChainEvent),
		hashes:   make(map[uint64]string),
		balances: make(map[string]map[string]int64),
	}
}

// Append scripts events onto the chain. The head advances to the highest
// appended block, and each block's canonical hash is recorded from the
// event's BlockHash (or synthesized when empty).
func (s *Source) Append(events ...domain.ChainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range events {
		ev := events[i]
		if ev.BlockHash == "" {
			ev.BlockHash = synthHash(ev.BlockNumber)
		}
		key := strings.ToLower(ev.Contract)
		s.events[key] = append(s.events[key], ev)
		s.hashes[ev.BlockNumber] = ev.BlockHash
		if ev.BlockNumber > s.head {
			s.head = ev.BlockNumber
		}
	}
	for key := range s.events {
		evs := s.events[key]
		sort.Slice(evs, func(i, j int) bool {
			return evs[i].Cursor().Before(evs[j].Cursor())
		})
	}
}

// SetHead moves the confirmed head explicitly, e.g. to hold events below
// the confirmation depth back from the indexer.
func (s *Source) SetHead(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = n
}

// Reorg rewrites the canonical hash of every block at or above fromBlock,
// so VerifyCanonical fails for cursors that consumed the old branch.
func (s *Source) Reorg(fromBlock uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for block := range s.hashes {
		if block >= fromBlock {
			s.hashes[block] = s.hashes[block] + "'"
		}
	}
}

// SetBalance scripts a wallet's on-chain token balance.
func (s *Source) SetBalance(tokenAddress, wallet string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := strings.ToLower(tokenAddress)
	if s.balances[token] == nil {
		s.balances[token] = make(map[string]int64)
	}
	s.balances[token][strings.ToLower(wallet)] = amount
}

// ConfirmedHead implements domain.EventSource.
func (s *Source) ConfirmedHead(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head, nil
}

// ListEvents implements domain.EventSource.
func (s *Source) ListEvents(ctx context.Context, contract string, after domain.Cursor, toBlock uint64) ([]domain.ChainEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ChainEvent
	for _, ev := range s.events[strings.ToLower(contract)] {
		if ev.BlockNumber > toBlock {
			break
		}
		if !after.Before(ev.Cursor()) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// VerifyCanonical implements domain.EventSource.
func (s *Source) VerifyCanonical(ctx context.Context, cur domain.EventCursor) (bool, error) {
	if cur.BlockHash == "" || cur.Position.BlockNumber == 0 {
		return true, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	hash, ok := s.hashes[cur.Position.BlockNumber]
	if !ok {
		// The block vanished entirely; treat as reorged.
		return false, nil
	}
	return hash == cur.BlockHash, nil
}

// WalletBalance implements domain.BalanceProvider.
func (s *Source) WalletBalance(ctx context.Context, tokenAddress, wallet string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallets, ok := s.balances[strings.ToLower(tokenAddress)]
	if !ok {
		return 0, nil
	}
	return wallets[strings.ToLower(wallet)], nil
}

func synthHash(block uint64) string {
	return fmt.Sprintf("0x%016x", block)
}

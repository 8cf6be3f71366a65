package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/brixmarket/syncengine/internal/domain"
)

// BalanceProvider implements domain.BalanceProvider via ERC-20 balanceOf
// calls against the latest block.
type BalanceProvider struct {
	client *ethclient.Client
	abi    gethabi.ABI
}

// NewBalanceProvider builds a provider sharing the source's RPC connection.
func NewBalanceProvider(src *Source) (*BalanceProvider, error) {
	parsed, err := gethabi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("ethereum: parse erc20 abi: %w", err)
	}
	return &BalanceProvider{client: src.client, abi: parsed}, nil
}

// WalletBalance returns the wallet's current on-chain token balance in
// whole token units.
func (p *BalanceProvider) WalletBalance(ctx context.Context, tokenAddress, wallet string) (int64, error) {
	token := common.HexToAddress(tokenAddress)
	input, err := p.abi.Pack("balanceOf", common.HexToAddress(wallet))
	if err != nil {
		return 0, fmt.Errorf("ethereum: pack balanceOf: %w", err)
	}

	out, err := p.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: input}, nil)
	if err != nil {
		return 0, fmt.Errorf("ethereum: call balanceOf %s: %w", wallet, err)
	}

	results, err := p.abi.Unpack("balanceOf", out)
	if err != nil {
		return 0, fmt.Errorf("ethereum: unpack balanceOf: %w", err)
	}
	if len(results) != 1 {
		return 0, fmt.Errorf("ethereum: balanceOf returned %d values: %w", len(results), domain.ErrIntegrity)
	}
	v, ok := results[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("ethereum: balanceOf result type %T: %w", results[0], domain.ErrIntegrity)
	}
	bal, ok := toInt64(v)
	if !ok {
		return 0, fmt.Errorf("ethereum: balance %s exceeds int64: %w", v, domain.ErrIntegrity)
	}
	return bal, nil
}

package client

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/icefree/TriRPC-Lab/contract"
	"github.com/icefree/TriRPC-Lab/scenario"
)

// GethRunner drives the scenarios through go-ethereum's typed
// ethclient API.
type GethRunner struct {
	counter *contract.Counter
	logger  *slog.Logger
}

// NewGethRunner creates the ethclient-backed runner.
func NewGethRunner(counter *contract.Counter, logger *slog.Logger) *GethRunner {
	return &GethRunner{
		counter: counter,
		logger:  logger.With(slog.String("client", "geth/ethclient")),
	}
}

// Name identifies this runner in reports.
func (r *GethRunner) Name() string { return "geth/ethclient" }

// RunAll executes the six scenarios in fixed order and always returns
// six results, one per scenario, regardless of individual failures.
func (r *GethRunner) RunAll(
	ctx context.Context,
	sc scenario.Context,
) []scenario.Result {
	eth, err := ethclient.DialContext(ctx, sc.RPCURL)
	if err != nil {
		return failAll(ctx, r.logger,
			fmt.Errorf("dial %s: %w", sc.RPCURL, err))
	}
	defer eth.Close()

	results := make([]scenario.Result, 0, len(scenario.All()))

	var hashes txHashes

	collect(ctx, r.logger, &results, scenario.ChainInfo,
		func(ctx context.Context) (map[string]any, error) {
			chainID, err := eth.ChainID(ctx)
			if err != nil {
				return nil, fmt.Errorf("chain id: %w", err)
			}

			head, err := eth.BlockNumber(ctx)
			if err != nil {
				return nil, fmt.Errorf("block number: %w", err)
			}

			return map[string]any{
				"chainId":     chainID.String(),
				"blockNumber": head,
			}, nil
		})

	collect(ctx, r.logger, &results, scenario.AccountState,
		func(ctx context.Context) (map[string]any, error) {
			balance, err := eth.BalanceAt(ctx, sc.From, nil)
			if err != nil {
				return nil, fmt.Errorf("balance: %w", err)
			}

			nonce, err := eth.PendingNonceAt(ctx, sc.From)
			if err != nil {
				return nil, fmt.Errorf("nonce: %w", err)
			}

			return map[string]any{
				"balance": balance.String(),
				"nonce":   nonce,
			}, nil
		})

	collect(ctx, r.logger, &results, scenario.ContractRead,
		func(ctx context.Context) (map[string]any, error) {
			data, err := r.counter.PackGetCount()
			if err != nil {
				return nil, err
			}

			ret, err := eth.CallContract(ctx, ethereum.CallMsg{
				To:   &sc.CounterAddress,
				Data: data,
			}, nil)
			if err != nil {
				return nil, fmt.Errorf("call getCount: %w", err)
			}

			count, err := r.counter.UnpackCount(ret)
			if err != nil {
				return nil, err
			}

			return map[string]any{"count": count.String()}, nil
		})

	collect(ctx, r.logger, &results, scenario.TxSendNative,
		func(ctx context.Context) (map[string]any, error) {
			if !common.IsHexAddress(sc.ToAddress) {
				return nil, invalidAddressErr(sc.ToAddress)
			}

			to := common.HexToAddress(sc.ToAddress)

			signed, receipt, err := r.sendAndWait(
				ctx, eth, sc, to, transferAmountWei, nil,
			)
			if err != nil {
				return nil, err
			}

			hashes.sendNative = signed.Hash().Hex()

			return hashOutput(
				signed.Hash().Hex(),
				receipt.Status,
				receipt.BlockNumber.Uint64(),
			), nil
		})

	collect(ctx, r.logger, &results, scenario.TxWriteContract,
		func(ctx context.Context) (map[string]any, error) {
			data, err := r.counter.PackIncrement()
			if err != nil {
				return nil, err
			}

			signed, receipt, err := r.sendAndWait(
				ctx, eth, sc, sc.CounterAddress, big.NewInt(0), data,
			)
			if err != nil {
				return nil, err
			}

			hashes.writeContract = signed.Hash().Hex()

			return hashOutput(
				signed.Hash().Hex(),
				receipt.Status,
				receipt.BlockNumber.Uint64(),
			), nil
		})

	collect(ctx, r.logger, &results, scenario.TxQueryLifecycle,
		func(ctx context.Context) (map[string]any, error) {
			hash, err := hashes.last()
			if err != nil {
				return nil, err
			}

			txHash := common.HexToHash(hash)

			tx, pending, err := eth.TransactionByHash(ctx, txHash)
			if err != nil {
				return nil, fmt.Errorf("transaction %s: %w", hash, err)
			}

			receipt, err := eth.TransactionReceipt(ctx, txHash)
			if err != nil {
				return nil, fmt.Errorf("receipt %s: %w", hash, err)
			}

			head, err := eth.BlockNumber(ctx)
			if err != nil {
				return nil, fmt.Errorf("block number: %w", err)
			}

			return map[string]any{
				"txFound":       tx != nil,
				"pending":       pending,
				"receiptFound":  true,
				"status":        receipt.Status,
				"confirmations": confirmations(head, receipt.BlockNumber.Uint64()),
			}, nil
		})

	return results
}

// sendAndWait builds, signs, and broadcasts a legacy transaction, then
// blocks until it is mined.
func (r *GethRunner) sendAndWait(
	ctx context.Context,
	eth *ethclient.Client,
	sc scenario.Context,
	to common.Address,
	value *big.Int,
	data []byte,
) (*types.Transaction, *types.Receipt, error) {
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("chain id: %w", err)
	}

	nonce, err := eth.PendingNonceAt(ctx, sc.From)
	if err != nil {
		return nil, nil, fmt.Errorf("nonce: %w", err)
	}

	gasPrice, err := eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("gas price: %w", err)
	}

	gas, err := eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  sc.From,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(
		tx, types.LatestSignerForChainID(chainID), sc.PrivateKey,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("sign: %w", err)
	}

	if err := eth.SendTransaction(ctx, signed); err != nil {
		return nil, nil, fmt.Errorf("broadcast: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, eth, signed)
	if err != nil {
		return nil, nil, fmt.Errorf("wait mined %s: %w", signed.Hash(), err)
	}

	return signed, receipt, nil
}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-resty/resty/v2"

	"github.com/icefree/TriRPC-Lab/contract"
	"github.com/icefree/TriRPC-Lab/scenario"
)

const receiptPollInterval = 500 * time.Millisecond

// JSONRPCRunner drives the scenarios through hand-framed JSON-RPC 2.0
// over resty. Transaction signing and ABI encoding still come from
// go-ethereum; the wire format is what differs from GethRunner.
type JSONRPCRunner struct {
	counter *contract.Counter
	logger  *slog.Logger
}

// NewJSONRPCRunner creates the resty-backed runner.
func NewJSONRPCRunner(
	counter *contract.Counter,
	logger *slog.Logger,
) *JSONRPCRunner {
	return &JSONRPCRunner{
		counter: counter,
		logger:  logger.With(slog.String("client", "resty/jsonrpc")),
	}
}

// Name identifies this runner in reports.
func (r *JSONRPCRunner) Name() string { return "resty/jsonrpc" }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// rpcReceipt is the subset of the receipt object this runner reads.
type rpcReceipt struct {
	TransactionHash common.Hash    `json:"transactionHash"`
	Status          hexutil.Uint64 `json:"status"`
	BlockNumber     hexutil.Uint64 `json:"blockNumber"`
}

// rpcTransaction is the subset of the transaction object this runner
// reads. BlockNumber is null while the transaction is pending.
type rpcTransaction struct {
	Hash        common.Hash     `json:"hash"`
	BlockNumber *hexutil.Uint64 `json:"blockNumber"`
}

type rpcClient struct {
	http *resty.Client
	seq  int
}

func newRPCClient(url string) *rpcClient {
	return &rpcClient{
		http: resty.New().
			SetBaseURL(url).
			SetHeader("Content-Type", "application/json"),
	}
}

func (c *rpcClient) call(
	ctx context.Context,
	out any,
	method string,
	params ...any,
) error {
	c.seq++

	if params == nil {
		params = []any{}
	}

	var res rpcResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rpcRequest{
			JSONRPC: "2.0",
			ID:      c.seq,
			Method:  method,
			Params:  params,
		}).
		SetResult(&res).
		Post("/")
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	if resp.IsError() {
		return fmt.Errorf("%s: http %s", method, resp.Status())
	}

	if res.Error != nil {
		return fmt.Errorf("%s: %w", method, res.Error)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(res.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}

	return nil
}

// waitReceipt polls until the node knows the receipt. The run-level
// context bounds the wait.
func (c *rpcClient) waitReceipt(
	ctx context.Context,
	hash common.Hash,
) (*rpcReceipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		var rec *rpcReceipt
		if err := c.call(
			ctx, &rec, "eth_getTransactionReceipt", hash.Hex(),
		); err != nil {
			return nil, err
		}

		if rec != nil {
			return rec, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait receipt %s: %w", hash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// RunAll executes the six scenarios in fixed order and always returns
// six results, one per scenario, regardless of individual failures.
func (r *JSONRPCRunner) RunAll(
	ctx context.Context,
	sc scenario.Context,
) []scenario.Result {
	rpc := newRPCClient(sc.RPCURL)
	results := make([]scenario.Result, 0, len(scenario.All()))

	var hashes txHashes

	collect(ctx, r.logger, &results, scenario.ChainInfo,
		func(ctx context.Context) (map[string]any, error) {
			var chainID hexutil.Big
			if err := rpc.call(ctx, &chainID, "eth_chainId"); err != nil {
				return nil, err
			}

			var head hexutil.Uint64
			if err := rpc.call(ctx, &head, "eth_blockNumber"); err != nil {
				return nil, err
			}

			return map[string]any{
				"chainId":     chainID.ToInt().String(),
				"blockNumber": uint64(head),
			}, nil
		})

	collect(ctx, r.logger, &results, scenario.AccountState,
		func(ctx context.Context) (map[string]any, error) {
			var balance hexutil.Big
			if err := rpc.call(
				ctx, &balance, "eth_getBalance", sc.From.Hex(), "latest",
			); err != nil {
				return nil, err
			}

			var nonce hexutil.Uint64
			if err := rpc.call(
				ctx, &nonce,
				"eth_getTransactionCount", sc.From.Hex(), "pending",
			); err != nil {
				return nil, err
			}

			return map[string]any{
				"balance": balance.ToInt().String(),
				"nonce":   uint64(nonce),
			}, nil
		})

	collect(ctx, r.logger, &results, scenario.ContractRead,
		func(ctx context.Context) (map[string]any, error) {
			data, err := r.counter.PackGetCount()
			if err != nil {
				return nil, err
			}

			var ret hexutil.Bytes
			if err := rpc.call(ctx, &ret, "eth_call", map[string]any{
				"to":   sc.CounterAddress.Hex(),
				"data": hexutil.Encode(data),
			}, "latest"); err != nil {
				return nil, err
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

			hash, receipt, err := r.sendAndWait(
				ctx, rpc, sc, to, transferAmountWei, nil,
			)
			if err != nil {
				return nil, err
			}

			hashes.sendNative = hash.Hex()

			return hashOutput(
				hash.Hex(),
				uint64(receipt.Status),
				uint64(receipt.BlockNumber),
			), nil
		})

	collect(ctx, r.logger, &results, scenario.TxWriteContract,
		func(ctx context.Context) (map[string]any, error) {
			data, err := r.counter.PackIncrement()
			if err != nil {
				return nil, err
			}

			hash, receipt, err := r.sendAndWait(
				ctx, rpc, sc, sc.CounterAddress, big.NewInt(0), data,
			)
			if err != nil {
				return nil, err
			}

			hashes.writeContract = hash.Hex()

			return hashOutput(
				hash.Hex(),
				uint64(receipt.Status),
				uint64(receipt.BlockNumber),
			), nil
		})

	collect(ctx, r.logger, &results, scenario.TxQueryLifecycle,
		func(ctx context.Context) (map[string]any, error) {
			hash, err := hashes.last()
			if err != nil {
				return nil, err
			}

			var tx *rpcTransaction
			if err := rpc.call(
				ctx, &tx, "eth_getTransactionByHash", hash,
			); err != nil {
				return nil, err
			}

			var rec *rpcReceipt
			if err := rpc.call(
				ctx, &rec, "eth_getTransactionReceipt", hash,
			); err != nil {
				return nil, err
			}
			if rec == nil {
				return nil, fmt.Errorf("receipt %s not found", hash)
			}

			var head hexutil.Uint64
			if err := rpc.call(ctx, &head, "eth_blockNumber"); err != nil {
				return nil, err
			}

			return map[string]any{
				"txFound":      tx != nil,
				"pending":      tx != nil && tx.BlockNumber == nil,
				"receiptFound": true,
				"status":       uint64(rec.Status),
				"confirmations": confirmations(
					uint64(head), uint64(rec.BlockNumber),
				),
			}, nil
		})

	return results
}

// sendAndWait builds and signs a legacy transaction locally, then
// broadcasts it as raw bytes and polls for the receipt.
func (r *JSONRPCRunner) sendAndWait(
	ctx context.Context,
	rpc *rpcClient,
	sc scenario.Context,
	to common.Address,
	value *big.Int,
	data []byte,
) (common.Hash, *rpcReceipt, error) {
	var chainID hexutil.Big
	if err := rpc.call(ctx, &chainID, "eth_chainId"); err != nil {
		return common.Hash{}, nil, err
	}

	var nonce hexutil.Uint64
	if err := rpc.call(
		ctx, &nonce, "eth_getTransactionCount", sc.From.Hex(), "pending",
	); err != nil {
		return common.Hash{}, nil, err
	}

	var gasPrice hexutil.Big
	if err := rpc.call(ctx, &gasPrice, "eth_gasPrice"); err != nil {
		return common.Hash{}, nil, err
	}

	callObj := map[string]any{
		"from":  sc.From.Hex(),
		"to":    to.Hex(),
		"value": hexutil.EncodeBig(value),
	}
	if len(data) > 0 {
		callObj["data"] = hexutil.Encode(data)
	}

	var gas hexutil.Uint64
	if err := rpc.call(ctx, &gas, "eth_estimateGas", callObj); err != nil {
		return common.Hash{}, nil, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    uint64(nonce),
		To:       &to,
		Value:    value,
		Gas:      uint64(gas),
		GasPrice: gasPrice.ToInt(),
		Data:     data,
	})

	signed, err := types.SignTx(
		tx, types.LatestSignerForChainID(chainID.ToInt()), sc.PrivateKey,
	)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("sign: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("encode: %w", err)
	}

	var hash common.Hash
	if err := rpc.call(
		ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(raw),
	); err != nil {
		return common.Hash{}, nil, err
	}

	receipt, err := rpc.waitReceipt(ctx, hash)
	if err != nil {
		return common.Hash{}, nil, err
	}

	return hash, receipt, nil
}

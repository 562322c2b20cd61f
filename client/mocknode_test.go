package client

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// mockNode is a minimal JSON-RPC Ethereum node. It accepts raw signed
// transactions, mines each one into its own block immediately, and
// serves the handful of methods the runners use.
type mockNode struct {
	srv *httptest.Server

	mu          sync.Mutex
	chainID     *big.Int
	head        uint64
	nonce       uint64
	balance     *big.Int
	count       uint64
	counterAddr common.Address
	rejectSends bool
	txs         map[common.Hash]*types.Transaction
	receipts    map[common.Hash]*types.Receipt
}

func newMockNode(t *testing.T) *mockNode {
	t.Helper()

	n := &mockNode{
		chainID:     big.NewInt(31337),
		head:        5,
		balance:     new(big.Int).Exp(big.NewInt(10), big.NewInt(19), nil),
		count:       1,
		counterAddr: common.HexToAddress("0xCfee7c08871578f6b5ab1ae7c2c5b5a2e8d9c5a1"),
		txs:         make(map[common.Hash]*types.Transaction),
		receipts:    make(map[common.Hash]*types.Receipt),
	}

	n.srv = httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(n.srv.Close)

	return n
}

func (n *mockNode) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	switch req.Method {
	case "eth_chainId":
		n.reply(w, req.ID, hexutil.EncodeBig(n.chainID))

	case "eth_blockNumber":
		n.reply(w, req.ID, hexutil.EncodeUint64(n.head))

	case "eth_getBalance":
		n.reply(w, req.ID, hexutil.EncodeBig(n.balance))

	case "eth_getTransactionCount":
		n.reply(w, req.ID, hexutil.EncodeUint64(n.nonce))

	case "eth_gasPrice":
		n.reply(w, req.ID, hexutil.EncodeUint64(1_000_000_000))

	case "eth_estimateGas":
		n.reply(w, req.ID, hexutil.EncodeUint64(100_000))

	case "eth_call":
		// Only getCount() is read via eth_call.
		encoded := common.LeftPadBytes(
			new(big.Int).SetUint64(n.count).Bytes(), 32,
		)
		n.reply(w, req.ID, hexutil.Encode(encoded))

	case "eth_sendRawTransaction":
		n.handleSendRaw(w, req.ID, req.Params)

	case "eth_getTransactionReceipt":
		var hash common.Hash
		if err := json.Unmarshal(req.Params[0], &hash); err != nil {
			n.replyError(w, req.ID, -32602, err.Error())

			return
		}

		rec, ok := n.receipts[hash]
		if !ok {
			n.replyRaw(w, req.ID, []byte("null"))

			return
		}

		data, err := json.Marshal(rec)
		if err != nil {
			n.replyError(w, req.ID, -32603, err.Error())

			return
		}

		n.replyRaw(w, req.ID, data)

	case "eth_getTransactionByHash":
		n.handleTxByHash(w, req.ID, req.Params)

	default:
		n.replyError(w, req.ID, -32601, "method not found: "+req.Method)
	}
}

func (n *mockNode) handleSendRaw(
	w http.ResponseWriter,
	id json.RawMessage,
	params []json.RawMessage,
) {
	if n.rejectSends {
		n.replyError(w, id, -32000, "insufficient funds for transfer")

		return
	}

	var rawHex string
	if err := json.Unmarshal(params[0], &rawHex); err != nil {
		n.replyError(w, id, -32602, err.Error())

		return
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(common.FromHex(rawHex)); err != nil {
		n.replyError(w, id, -32602, "invalid raw transaction: "+err.Error())

		return
	}

	n.head++
	n.nonce++

	if tx.To() != nil && *tx.To() == n.counterAddr && len(tx.Data()) > 0 {
		n.count++
	}

	n.txs[tx.Hash()] = tx
	n.receipts[tx.Hash()] = &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: 21000,
		Logs:              []*types.Log{},
		TxHash:            tx.Hash(),
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(1_000_000_000),
		BlockHash:         common.BytesToHash([]byte{byte(n.head)}),
		BlockNumber:       new(big.Int).SetUint64(n.head),
		TransactionIndex:  0,
	}

	n.reply(w, id, tx.Hash().Hex())
}

func (n *mockNode) handleTxByHash(
	w http.ResponseWriter,
	id json.RawMessage,
	params []json.RawMessage,
) {
	var hash common.Hash
	if err := json.Unmarshal(params[0], &hash); err != nil {
		n.replyError(w, id, -32602, err.Error())

		return
	}

	tx, ok := n.txs[hash]
	if !ok {
		n.replyRaw(w, id, []byte("null"))

		return
	}

	data, err := json.Marshal(tx)
	if err != nil {
		n.replyError(w, id, -32603, err.Error())

		return
	}

	// Add the inclusion fields a node reports for a mined transaction.
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		n.replyError(w, id, -32603, err.Error())

		return
	}

	rec := n.receipts[hash]
	obj["blockNumber"] = hexutil.EncodeBig(rec.BlockNumber)
	obj["blockHash"] = rec.BlockHash.Hex()
	obj["transactionIndex"] = "0x0"

	from, err := types.Sender(
		types.LatestSignerForChainID(n.chainID), tx,
	)
	if err == nil {
		obj["from"] = from.Hex()
	}

	data, err = json.Marshal(obj)
	if err != nil {
		n.replyError(w, id, -32603, err.Error())

		return
	}

	n.replyRaw(w, id, data)
}

func (n *mockNode) reply(w http.ResponseWriter, id json.RawMessage, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		n.replyError(w, id, -32603, err.Error())

		return
	}

	n.replyRaw(w, id, data)
}

func (n *mockNode) replyRaw(
	w http.ResponseWriter,
	id json.RawMessage,
	result []byte,
) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, id, result)
}

func (n *mockNode) replyError(
	w http.ResponseWriter,
	id json.RawMessage,
	code int,
	msg string,
) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w,
		`{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q}}`,
		id, code, msg,
	)
}

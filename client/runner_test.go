package client

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/icefree/TriRPC-Lab/contract"
	"github.com/icefree/TriRPC-Lab/scenario"
)

// devKeyHex is the first dev account of the standard test mnemonic,
// used by Anvil and Hardhat alike. Safe by construction.
const devKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func devKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()

	key, err := crypto.HexToECDSA(devKeyHex)
	require.NoError(t, err)

	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func testContext(t *testing.T, n *mockNode) scenario.Context {
	t.Helper()

	key, from := devKey(t)

	return scenario.Context{
		RPCURL:         n.srv.URL,
		PrivateKey:     key,
		From:           from,
		ToAddress:      "0xdc64a140aa3e981100a9beca4e685f962f0cf6c9",
		CounterAddress: n.counterAddr,
	}
}

func testRunners(t *testing.T) map[string]func() Runner {
	t.Helper()

	counter, err := contract.Load()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return map[string]func() Runner{
		"geth/ethclient": func() Runner { return NewGethRunner(counter, logger) },
		"resty/jsonrpc":  func() Runner { return NewJSONRPCRunner(counter, logger) },
	}
}

func TestRunAllHappyPath(t *testing.T) {
	for name, build := range testRunners(t) {
		t.Run(name, func(t *testing.T) {
			node := newMockNode(t)
			sc := testContext(t, node)

			runner := build()
			require.Equal(t, name, runner.Name())

			results := runner.RunAll(context.Background(), sc)
			require.Len(t, results, len(scenario.All()))

			for i, id := range scenario.All() {
				require.Equal(t, id, results[i].ID, "result order")
			}

			for _, res := range results {
				require.True(t, res.Success, "%s failed: %s", res.ID, res.Error)
				require.GreaterOrEqual(t, res.DurationMs, int64(0))
				require.Empty(t, res.Error)
			}

			// Counter state is 1 before the increment scenario runs.
			require.Equal(t, "1", results[2].Output["count"])

			require.Equal(t, uint64(0), results[1].Output["nonce"])

			hash, ok := results[4].Output["hash"].(string)
			require.True(t, ok, "tx-write-contract must report a hash")
			require.Len(t, hash, 66)
			require.True(t, strings.HasPrefix(hash, "0x"))

			lifecycle := results[5].Output
			require.Equal(t, true, lifecycle["txFound"])
			require.Equal(t, false, lifecycle["pending"])
			require.Equal(t, true, lifecycle["receiptFound"])
			require.Equal(t, uint64(1), lifecycle["status"])
			require.Equal(t, uint64(1), lifecycle["confirmations"])
		})
	}
}

func TestRunAllMalformedToAddress(t *testing.T) {
	for name, build := range testRunners(t) {
		t.Run(name, func(t *testing.T) {
			node := newMockNode(t)
			sc := testContext(t, node)
			sc.ToAddress = "not-an-address"

			results := build().RunAll(context.Background(), sc)
			require.Len(t, results, len(scenario.All()))

			sendNative := results[3]
			require.False(t, sendNative.Success)
			require.Contains(t, sendNative.Error, "invalid destination address")
			require.Empty(t, sendNative.Output)

			// The failure is contained: the contract write still runs
			// and the lifecycle query uses its hash.
			require.True(t, results[4].Success, results[4].Error)
			require.True(t, results[5].Success, results[5].Error)
		})
	}
}

func TestRunAllLifecycleWithoutHash(t *testing.T) {
	for name, build := range testRunners(t) {
		t.Run(name, func(t *testing.T) {
			node := newMockNode(t)
			node.rejectSends = true
			sc := testContext(t, node)

			results := build().RunAll(context.Background(), sc)
			require.Len(t, results, len(scenario.All()))

			// Reads still pass.
			require.True(t, results[0].Success, results[0].Error)
			require.True(t, results[1].Success, results[1].Error)
			require.True(t, results[2].Success, results[2].Error)

			// Both writes fail, so the lifecycle query has no hash.
			require.False(t, results[3].Success)
			require.False(t, results[4].Success)
			require.False(t, results[5].Success)
			require.Contains(t, results[5].Error, "no transaction hash")
		})
	}
}

func TestRunAllDialFailure(t *testing.T) {
	counter, err := contract.Load()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	key, from := devKey(t)

	sc := scenario.Context{
		RPCURL:     "://not-a-url",
		PrivateKey: key,
		From:       from,
	}

	results := NewGethRunner(counter, logger).RunAll(context.Background(), sc)
	require.Len(t, results, len(scenario.All()))

	for i, id := range scenario.All() {
		require.Equal(t, id, results[i].ID)
		require.False(t, results[i].Success)
		require.NotEmpty(t, results[i].Error)
	}
}

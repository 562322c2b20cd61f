// Package client contains one runner per Ethereum client library under
// test. Every runner executes the same six scenarios in the same order
// against the same node; only the calling conventions differ.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/icefree/TriRPC-Lab/scenario"
)

// Runner drives all scenarios through one client library. Runners are
// stateless across runs; per-run bookkeeping lives inside RunAll.
type Runner interface {
	Name() string
	RunAll(ctx context.Context, sc scenario.Context) []scenario.Result
}

// transferAmountWei is the fixed native transfer of 0.0001 units.
var transferAmountWei = decimal.RequireFromString("0.0001").Shift(18).BigInt()

var errNoTxHash = errors.New(
	"no transaction hash recorded by a prior write scenario",
)

// txHashes tracks the write hashes produced within a single RunAll
// invocation. tx-query-lifecycle uses the contract write when it
// succeeded, falling back to the native transfer.
type txHashes struct {
	sendNative    string
	writeContract string
}

func (h *txHashes) last() (string, error) {
	if h.writeContract != "" {
		return h.writeContract, nil
	}
	if h.sendNative != "" {
		return h.sendNative, nil
	}

	return "", errNoTxHash
}

// collect wraps scenario.Run with per-scenario logging and appends the
// result, so runners share one reporting shape.
func collect(
	ctx context.Context,
	logger *slog.Logger,
	results *[]scenario.Result,
	id scenario.ID,
	task scenario.Task,
) {
	res := scenario.Run(ctx, id, task)

	if res.Success {
		logger.Info("scenario passed",
			slog.String("scenario", string(id)),
			slog.Int64("duration_ms", res.DurationMs),
		)
	} else {
		logger.Warn("scenario failed",
			slog.String("scenario", string(id)),
			slog.Int64("duration_ms", res.DurationMs),
			slog.String("error", res.Error),
		)
	}

	*results = append(*results, res)
}

// failAll reports the same setup error for every scenario, preserving
// the fixed six-result shape when a runner cannot even connect.
func failAll(
	ctx context.Context,
	logger *slog.Logger,
	setupErr error,
) []scenario.Result {
	results := make([]scenario.Result, 0, len(scenario.All()))
	for _, id := range scenario.All() {
		collect(ctx, logger, &results, id,
			func(context.Context) (map[string]any, error) {
				return nil, setupErr
			})
	}

	return results
}

// confirmations is the inclusive block distance from the inclusion
// block to the current head.
func confirmations(head, included uint64) uint64 {
	if head < included {
		return 0
	}

	return head - included + 1
}

func hashOutput(hash string, status, blockNumber uint64) map[string]any {
	return map[string]any{
		"hash":        hash,
		"status":      status,
		"blockNumber": blockNumber,
	}
}

func invalidAddressErr(addr string) error {
	return fmt.Errorf("invalid destination address %q", addr)
}

// Package scenario defines the fixed units of on-chain work that every
// client runner executes identically, and the timing envelope that
// turns one unit into a uniform result record.
package scenario

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
)

// ID names one fixed scenario.
type ID string

const (
	ChainInfo        ID = "chain-info"
	AccountState     ID = "account-state"
	ContractRead     ID = "contract-read"
	TxSendNative     ID = "tx-send-native"
	TxWriteContract  ID = "tx-write-contract"
	TxQueryLifecycle ID = "tx-query-lifecycle"
)

// All returns the scenario identifiers in execution order. Later
// scenarios depend on transaction hashes produced by earlier ones, so
// runners must not reorder them.
func All() []ID {
	return []ID{
		ChainInfo,
		AccountState,
		ContractRead,
		TxSendNative,
		TxWriteContract,
		TxQueryLifecycle,
	}
}

// Context carries the per-run inputs shared by every runner. It is
// built once from flags, environment, and the deployment record, and
// is read-only afterwards.
type Context struct {
	RPCURL     string
	PrivateKey *ecdsa.PrivateKey
	From       common.Address

	// ToAddress stays a raw string so that a malformed destination
	// fails inside tx-send-native rather than at config load.
	ToAddress string

	CounterAddress common.Address
}

// Result is the uniform record produced for one scenario execution.
type Result struct {
	ID         ID             `json:"id"`
	Success    bool           `json:"success"`
	DurationMs int64          `json:"duration_ms"`
	Output     map[string]any `json:"output"`
	Error      string         `json:"error,omitempty"`
}

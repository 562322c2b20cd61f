// Package contract embeds the compiled counter artifact and the call
// encoding shared by every runner. The artifact is produced by a
// separate compilation step; only the ABI and creation bytecode are
// consumed here.
package contract

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed counter.json
var artifactJSON []byte

type artifact struct {
	ABI      json.RawMessage `json:"abi"`
	Bytecode string          `json:"bytecode"`
}

// Counter wraps the parsed counter artifact.
type Counter struct {
	abi      abi.ABI
	bytecode []byte
}

// Load parses the embedded counter artifact.
func Load() (*Counter, error) {
	var art artifact
	if err := json.Unmarshal(artifactJSON, &art); err != nil {
		return nil, fmt.Errorf("parse counter artifact: %w", err)
	}

	parsed, err := abi.JSON(bytes.NewReader(art.ABI))
	if err != nil {
		return nil, fmt.Errorf("parse counter ABI: %w", err)
	}

	code := common.FromHex(art.Bytecode)
	if len(code) == 0 {
		return nil, fmt.Errorf("counter artifact has no bytecode")
	}

	return &Counter{abi: parsed, bytecode: code}, nil
}

// PackGetCount returns the calldata for getCount().
func (c *Counter) PackGetCount() ([]byte, error) {
	return c.abi.Pack("getCount")
}

// PackIncrement returns the calldata for increment().
func (c *Counter) PackIncrement() ([]byte, error) {
	return c.abi.Pack("increment")
}

// UnpackCount decodes the return data of getCount().
func (c *Counter) UnpackCount(data []byte) (*big.Int, error) {
	vals, err := c.abi.Unpack("getCount", data)
	if err != nil {
		return nil, fmt.Errorf("unpack getCount: %w", err)
	}

	count, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getCount returned %T, want *big.Int", vals[0])
	}

	return count, nil
}

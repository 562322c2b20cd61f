package contract

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Deployment is the on-disk record connecting a deploy run to later
// benchmark runs.
type Deployment struct {
	Contracts  map[string]string `json:"contracts"`
	DeployedAt time.Time         `json:"deployedAt"`
}

// Deploy publishes the counter contract through the given endpoint and
// waits for inclusion.
func (c *Counter) Deploy(
	ctx context.Context,
	rpcURL string,
	key *ecdsa.PrivateKey,
) (common.Address, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return common.Address{}, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain id: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return common.Address{}, fmt.Errorf("build transactor: %w", err)
	}

	auth.Context = ctx

	addr, tx, _, err := bind.DeployContract(auth, c.abi, c.bytecode, client)
	if err != nil {
		return common.Address{}, fmt.Errorf("deploy counter: %w", err)
	}

	if _, err := bind.WaitDeployed(ctx, client, tx); err != nil {
		return common.Address{}, fmt.Errorf(
			"wait for counter deployment %s: %w", tx.Hash(), err,
		)
	}

	return addr, nil
}

// WriteDeployment records the counter address at path, creating parent
// directories as needed.
func WriteDeployment(path string, addr common.Address) error {
	rec := Deployment{
		Contracts:  map[string]string{"counter": addr.Hex()},
		DeployedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode deployment record: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create deployment dir %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write deployment record %s: %w", path, err)
	}

	return nil
}

// ReadDeployment loads the record at path and returns the recorded
// counter address string, unvalidated. Callers decide how strictly to
// check it.
func ReadDeployment(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read deployment record %s: %w", path, err)
	}

	var rec Deployment
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("parse deployment record %s: %w", path, err)
	}

	addr, ok := rec.Contracts["counter"]
	if !ok || addr == "" {
		return "", fmt.Errorf(
			"deployment record %s has no counter address", path,
		)
	}

	return addr, nil
}

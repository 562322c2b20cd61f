// Package main provides the CLI entry point for trirpc, a benchmark
// harness that runs the same on-chain scenarios through different
// Ethereum client libraries and compares their timings.
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/icefree/TriRPC-Lab/client"
	"github.com/icefree/TriRPC-Lab/contract"
	"github.com/icefree/TriRPC-Lab/report"
	"github.com/icefree/TriRPC-Lab/scenario"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Error("run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "trirpc",
		Short: "Benchmark Ethereum client libraries against one node",
		Long: `Trirpc runs a fixed sequence of on-chain scenarios (chain reads,
account reads, a contract view call, a native transfer, a contract write, and
a transaction lifecycle query) through each supported client library against
the same node, then renders a markdown report comparing the timings.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(logger))
	root.AddCommand(newDeployCmd(logger))

	return root
}

// runConfig is validated before any scenario starts; a missing
// required input aborts the whole run.
type runConfig struct {
	RPCURL         string `validate:"required,url"`
	PrivateKey     string `validate:"required,hexadecimal"`
	ToAddress      string `validate:"required"`
	CounterAddress string `validate:"required,eth_addr"`
	OutputPath     string `validate:"required"`
	OutputJSON     bool
	Timeout        time.Duration
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var (
		rpcURL         string
		privateKey     string
		toAddress      string
		deploymentPath string
		outputPath     string
		outputJSON     bool
		timeout        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run all scenarios through every client library",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBenchmark(cmd.Context(), logger, rawRunConfig{
				rpcURL:         rpcURL,
				privateKey:     privateKey,
				toAddress:      toAddress,
				deploymentPath: deploymentPath,
				outputPath:     outputPath,
				outputJSON:     outputJSON,
				timeout:        timeout,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&rpcURL, "rpc-url",
		envOr("ETH_RPC_URL", "http://127.0.0.1:8545"),
		"Ethereum node JSON-RPC endpoint")
	flags.StringVar(&privateKey, "private-key",
		os.Getenv("PRIVATE_KEY"),
		"Hex private key of the signing account")
	flags.StringVar(&toAddress, "to",
		os.Getenv("TO_ADDRESS"),
		"Destination address for the native transfer scenario")
	flags.StringVar(&deploymentPath, "deployment",
		"deployments/localhost.json",
		"Path to the deployment record holding the counter address")
	flags.StringVar(&outputPath, "output", "benchmark-report.md",
		"Path of the rendered markdown report")
	flags.BoolVar(&outputJSON, "json", false,
		"Also print raw results as JSON to stdout")
	flags.DurationVar(&timeout, "timeout", 10*time.Minute,
		"Overall run timeout (0 = none)")

	return cmd
}

type rawRunConfig struct {
	rpcURL         string
	privateKey     string
	toAddress      string
	deploymentPath string
	outputPath     string
	outputJSON     bool
	timeout        time.Duration
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	raw rawRunConfig,
) error {
	counterAddr, err := contract.ReadDeployment(raw.deploymentPath)
	if err != nil {
		return err
	}

	cfg := runConfig{
		RPCURL:         raw.rpcURL,
		PrivateKey:     raw.privateKey,
		ToAddress:      raw.toAddress,
		CounterAddress: counterAddr,
		OutputPath:     raw.outputPath,
		OutputJSON:     raw.outputJSON,
		Timeout:        raw.timeout,
	}

	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	key, err := parseKey(cfg.PrivateKey)
	if err != nil {
		return err
	}

	counter, err := contract.Load()
	if err != nil {
		return err
	}

	sc := scenario.Context{
		RPCURL:         cfg.RPCURL,
		PrivateKey:     key,
		From:           crypto.PubkeyToAddress(key.PublicKey),
		ToAddress:      cfg.ToAddress,
		CounterAddress: common.HexToAddress(cfg.CounterAddress),
	}

	logger.InfoContext(ctx, "starting benchmark",
		slog.String("rpc_url", cfg.RPCURL),
		slog.String("from", sc.From.Hex()),
		slog.String("counter", cfg.CounterAddress),
	)

	runners := []client.Runner{
		client.NewGethRunner(counter, logger),
		client.NewJSONRPCRunner(counter, logger),
	}

	reports := make([]report.ClientReport, 0, len(runners))

	for _, r := range runners {
		logger.InfoContext(ctx, "running scenarios",
			slog.String("client", r.Name()),
		)

		reports = append(reports, report.ClientReport{
			Name:    r.Name(),
			Results: r.RunAll(ctx, sc),
		})
	}

	if err := report.WriteFile(cfg.OutputPath, time.Now(), reports); err != nil {
		return err
	}

	if cfg.OutputJSON {
		if err := report.GenerateJSON(os.Stdout, reports); err != nil {
			return fmt.Errorf("generate JSON report: %w", err)
		}
	}

	logger.InfoContext(ctx, "benchmark complete",
		slog.String("report", cfg.OutputPath),
	)

	return nil
}

func newDeployCmd(logger *slog.Logger) *cobra.Command {
	var (
		rpcURL         string
		privateKey     string
		deploymentPath string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the counter contract and record its address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeploy(
				cmd.Context(), logger, rpcURL, privateKey, deploymentPath,
			)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&rpcURL, "rpc-url",
		envOr("ETH_RPC_URL", "http://127.0.0.1:8545"),
		"Ethereum node JSON-RPC endpoint")
	flags.StringVar(&privateKey, "private-key",
		os.Getenv("PRIVATE_KEY"),
		"Hex private key of the deploying account")
	flags.StringVar(&deploymentPath, "deployment",
		"deployments/localhost.json",
		"Path of the deployment record to write")

	return cmd
}

func runDeploy(
	ctx context.Context,
	logger *slog.Logger,
	rpcURL, privateKey, deploymentPath string,
) error {
	if privateKey == "" {
		return fmt.Errorf("a private key is required (--private-key or PRIVATE_KEY)")
	}

	key, err := parseKey(privateKey)
	if err != nil {
		return err
	}

	counter, err := contract.Load()
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "deploying counter",
		slog.String("rpc_url", rpcURL),
	)

	addr, err := counter.Deploy(ctx, rpcURL, key)
	if err != nil {
		return err
	}

	if err := contract.WriteDeployment(deploymentPath, addr); err != nil {
		return err
	}

	logger.InfoContext(ctx, "counter deployed",
		slog.String("address", addr.Hex()),
		slog.String("record", deploymentPath),
	)

	return nil
}

func parseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return key, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

// Package main enumerates the NFTs a wallet owns across a set of
// contracts and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nftcred/internal/ethereum"
	"nftcred/internal/metadata"
	"nftcred/internal/nft"
)

func main() {
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("RPC_URL"), "Ethereum RPC HTTP endpoint")
	multicall := flag.String("multicall", os.Getenv("MULTICALL_ADDRESS"), "Multicall3 contract address (empty disables batching)")
	owner := flag.String("owner", "", "Wallet address to scan")
	contracts := flag.String("contracts", "", "Comma-separated NFT contract addresses")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall scan timeout")
	flag.Parse()

	if *rpcEndpoint == "" {
		fmt.Fprintln(os.Stderr, "--rpc-endpoint is required")
		os.Exit(1)
	}
	if *owner == "" {
		fmt.Fprintln(os.Stderr, "--owner is required")
		os.Exit(1)
	}
	var contractList []string
	for _, c := range strings.Split(*contracts, ",") {
		if c = strings.TrimSpace(c); c != "" {
			contractList = append(contractList, c)
		}
	}
	if len(contractList) == 0 {
		fmt.Fprintln(os.Stderr, "--contracts is required")
		os.Exit(1)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client := ethereum.NewHTTPClient(*rpcEndpoint)
	aggregator := nft.NewAggregator(nft.AggregatorOptions{
		Client:    client,
		Multicall: ethereum.NewMulticall(client, *multicall),
		Resolver:  metadata.NewResolver(metadata.ResolverOptions{Logger: logger}),
		Logger:    logger,
	})

	results, err := aggregator.ScanOwner(ctx, *owner, contractList)
	if err != nil {
		logger.Fatal("scan failed", zap.Error(err))
	}

	out := make([]map[string]any, len(results))
	for i, res := range results {
		entry := map[string]any{"contractAddress": res.ContractAddress}
		switch {
		case res.Err != nil:
			entry["error"] = res.Err.Error()
		case res.NotFound():
			entry["message"] = "NFT not found"
		default:
			entry["tokens"] = res.Tokens
		}
		out[i] = entry
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Fatal("encode results", zap.Error(err))
	}
}

package nft

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nftcred/internal/ethereum"
	"nftcred/internal/ethereum/stub"
	"nftcred/internal/metadata"
)

func testAddr(n byte) string {
	return "0x" + strings.Repeat(fmt.Sprintf("%02x", n), 20)
}

// metadataServer serves one JSON document per token path.
func metadataServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "broken") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"name":"Token %s"}`, strings.TrimPrefix(r.URL.Path, "/"))
	}))
}

func newTestAggregator(rpc *stub.RPCClient) *Aggregator {
	agg := NewAggregator(AggregatorOptions{
		Client:     rpc,
		Resolver:   metadata.NewResolver(metadata.ResolverOptions{}),
		BatchDelay: time.Millisecond,
	})
	return agg
}

// stubEnumerable scripts a fully enumerable contract with the given
// token IDs and URIs.
func stubEnumerable(t *testing.T, rpc *stub.RPCClient, contract, owner string, tokens map[int64]string) {
	t.Helper()

	balData, err := ethereum.EncodeCall("balanceOf(address)", owner)
	if err != nil {
		t.Fatal(err)
	}
	rpc.StubUint(contract, balData, big.NewInt(int64(len(tokens))))

	supData, err := ethereum.EncodeCall("supportsInterface(bytes4)", ethereum.EnumerableInterfaceID)
	if err != nil {
		t.Fatal(err)
	}
	rpc.StubBool(contract, supData, true)

	index := int64(0)
	ids := make([]int64, 0, len(tokens))
	for id := range tokens {
		ids = append(ids, id)
	}
	// deterministic enumeration order
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	for _, id := range ids {
		idxData, err := ethereum.EncodeCall("tokenOfOwnerByIndex(address,uint256)", owner, big.NewInt(index))
		if err != nil {
			t.Fatal(err)
		}
		rpc.StubUint(contract, idxData, big.NewInt(id))

		uriData, err := ethereum.EncodeCall("tokenURI(uint256)", big.NewInt(id))
		if err != nil {
			t.Fatal(err)
		}
		rpc.StubString(contract, uriData, tokens[id])
		index++
	}
}

func TestAggregator_EnumerableScan(t *testing.T) {
	server := metadataServer(t)
	defer server.Close()

	owner := testAddr(0x01)
	contract := testAddr(0xaa)

	rpc := stub.NewRPCClient()
	stubEnumerable(t, rpc, contract, owner, map[int64]string{
		11: server.URL + "/11",
		12: server.URL + "/12",
	})

	agg := newTestAggregator(rpc)
	results, err := agg.ScanOwner(context.Background(), owner, []string{contract})
	if err != nil {
		t.Fatalf("ScanOwner: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.Err != nil {
		t.Fatalf("unexpected contract error: %v", res.Err)
	}
	if len(res.Tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(res.Tokens))
	}
	if res.Tokens[0].TokenID != "11" || res.Tokens[1].TokenID != "12" {
		t.Errorf("token order: %s, %s", res.Tokens[0].TokenID, res.Tokens[1].TokenID)
	}
	if res.Tokens[0].Metadata.Name() != "Token 11" {
		t.Errorf("metadata name = %q", res.Tokens[0].Metadata.Name())
	}
}

func TestAggregator_ZeroBalanceIsNotFound(t *testing.T) {
	owner := testAddr(0x01)
	contract := testAddr(0xaa)

	rpc := stub.NewRPCClient()
	balData, _ := ethereum.EncodeCall("balanceOf(address)", owner)
	rpc.StubUint(contract, balData, big.NewInt(0))

	agg := newTestAggregator(rpc)
	results, err := agg.ScanOwner(context.Background(), owner, []string{contract})
	if err != nil {
		t.Fatalf("ScanOwner: %v", err)
	}
	if !results[0].NotFound() {
		t.Errorf("expected not-found sentinel, got %+v", results[0])
	}
}

func TestAggregator_ContractErrorIsolation(t *testing.T) {
	server := metadataServer(t)
	defer server.Close()

	owner := testAddr(0x01)
	broken := testAddr(0xbb)
	healthy := testAddr(0xaa)

	rpc := stub.NewRPCClient()
	stubEnumerable(t, rpc, healthy, owner, map[int64]string{7: server.URL + "/7"})
	// broken contract has no scripted balanceOf: the eth_call fails,
	// which the sequential fallback reports per-call

	agg := newTestAggregator(rpc)
	results, err := agg.ScanOwner(context.Background(), owner, []string{broken, healthy})
	if err != nil {
		t.Fatalf("ScanOwner: %v", err)
	}
	if results[0].Err == nil {
		t.Error("expected error for broken contract")
	}
	if results[0].ContractAddress != broken {
		t.Errorf("input order not preserved: %s", results[0].ContractAddress)
	}
	if results[1].Err != nil {
		t.Fatalf("healthy contract failed: %v", results[1].Err)
	}
	if len(results[1].Tokens) != 1 || results[1].Tokens[0].TokenID != "7" {
		t.Errorf("healthy contract tokens: %+v", results[1].Tokens)
	}
}

func TestAggregator_MetadataFailureDropsToken(t *testing.T) {
	server := metadataServer(t)
	defer server.Close()

	owner := testAddr(0x01)
	contract := testAddr(0xaa)

	rpc := stub.NewRPCClient()
	stubEnumerable(t, rpc, contract, owner, map[int64]string{
		1: server.URL + "/1",
		2: server.URL + "/broken",
	})

	agg := newTestAggregator(rpc)
	results, err := agg.ScanOwner(context.Background(), owner, []string{contract})
	if err != nil {
		t.Fatalf("ScanOwner: %v", err)
	}
	if len(results[0].Tokens) != 1 {
		t.Fatalf("expected the broken-metadata token dropped, got %d tokens", len(results[0].Tokens))
	}
	if results[0].Tokens[0].TokenID != "1" {
		t.Errorf("kept token = %s", results[0].Tokens[0].TokenID)
	}
}

func TestAggregator_TransferLogFallback(t *testing.T) {
	server := metadataServer(t)
	defer server.Close()

	owner := testAddr(0x01)
	other := testAddr(0x02)
	contract := testAddr(0xaa)

	rpc := stub.NewRPCClient()

	balData, _ := ethereum.EncodeCall("balanceOf(address)", owner)
	rpc.StubUint(contract, balData, big.NewInt(1))

	// Not enumerable
	supData, _ := ethereum.EncodeCall("supportsInterface(bytes4)", ethereum.EnumerableInterfaceID)
	rpc.StubBool(contract, supData, false)

	transferTopic := ethereum.EventTopic(ethereum.TransferEventSig)
	ownerTopic := "0x000000000000000000000000" + owner[2:]
	idTopic := func(id int64) string {
		return fmt.Sprintf("0x%064x", id)
	}
	rpc.StubLogs(contract, []ethereum.Log{
		{Address: contract, Topics: []string{transferTopic, idTopic(0), ownerTopic, idTopic(5)}},
		{Address: contract, Topics: []string{transferTopic, idTopic(0), ownerTopic, idTopic(9)}},
	})

	// Token 5 still owned, token 9 transferred away since.
	owner5, _ := ethereum.EncodeCall("ownerOf(uint256)", big.NewInt(5))
	word := make([]byte, 32)
	copy(word[12:], mustHexBytes(t, owner))
	rpc.StubCall(contract, owner5, word)

	owner9, _ := ethereum.EncodeCall("ownerOf(uint256)", big.NewInt(9))
	word9 := make([]byte, 32)
	copy(word9[12:], mustHexBytes(t, other))
	rpc.StubCall(contract, owner9, word9)

	uriData, _ := ethereum.EncodeCall("tokenURI(uint256)", big.NewInt(5))
	rpc.StubString(contract, uriData, server.URL+"/5")

	agg := newTestAggregator(rpc)
	results, err := agg.ScanOwner(context.Background(), owner, []string{contract})
	if err != nil {
		t.Fatalf("ScanOwner: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("contract error: %v", results[0].Err)
	}
	if len(results[0].Tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(results[0].Tokens))
	}
	if results[0].Tokens[0].TokenID != "5" {
		t.Errorf("expected token 5, got %s", results[0].Tokens[0].TokenID)
	}
}

func TestAggregator_BatchDelayBetweenBatches(t *testing.T) {
	owner := testAddr(0x01)

	rpc := stub.NewRPCClient()
	contracts := make([]string, 12)
	for i := range contracts {
		contracts[i] = testAddr(byte(0x20 + i))
		balData, _ := ethereum.EncodeCall("balanceOf(address)", owner)
		rpc.StubUint(contracts[i], balData, big.NewInt(0))
	}

	agg := newTestAggregator(rpc)
	var sleeps int
	agg.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}

	results, err := agg.ScanOwner(context.Background(), owner, contracts)
	if err != nil {
		t.Fatalf("ScanOwner: %v", err)
	}
	if len(results) != 12 {
		t.Fatalf("expected 12 results, got %d", len(results))
	}
	// 12 contracts at batch size 10 means one inter-batch pause
	if sleeps != 1 {
		t.Errorf("expected 1 inter-batch sleep, got %d", sleeps)
	}
	for i, res := range results {
		if res.ContractAddress != contracts[i] {
			t.Errorf("order broken at %d: %s", i, res.ContractAddress)
		}
	}
}

func mustHexBytes(t *testing.T, addr string) []byte {
	t.Helper()
	b, err := ethereum.HexToBytes(addr)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

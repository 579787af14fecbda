package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"nftcred/internal/observability"
)

// Multicall3 aggregate3((address,bool,bytes)[]) selector.
var aggregate3Selector = Bytes4{0x82, 0xad, 0x56, 0xcb}

// Call is a single read bundled into a multicall batch.
type Call struct {
	To   string
	Data []byte
}

// BatchResult carries the per-call outcome of an aggregate3 batch. A
// failed call does not fail the batch.
type BatchResult struct {
	Success    bool
	ReturnData []byte
}

// Multicall batches eth_call reads through the Multicall3 contract.
// With an empty contract address it degrades to sequential eth_call,
// preserving per-call failure isolation.
type Multicall struct {
	client   RPCClient
	contract string
}

// NewMulticall creates a batcher. contract may be empty to disable
// on-chain aggregation.
func NewMulticall(client RPCClient, contract string) *Multicall {
	return &Multicall{client: client, contract: contract}
}

// Aggregate executes calls as one aggregate3 invocation and returns one
// result per call, in input order.
func (m *Multicall) Aggregate(ctx context.Context, calls []Call) ([]BatchResult, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	if m.contract == "" {
		return m.sequential(ctx, calls)
	}

	data, err := encodeAggregate3(calls)
	if err != nil {
		return nil, readErr("aggregate3", m.contract, err)
	}
	out, err := m.client.CallContract(ctx, m.contract, data)
	if err != nil {
		return nil, readErr("aggregate3", m.contract, err)
	}
	results, err := decodeAggregate3(out)
	if err != nil {
		return nil, readErr("aggregate3", m.contract, err)
	}
	if len(results) != len(calls) {
		return nil, readErr("aggregate3", m.contract,
			fmt.Errorf("result count %d does not match call count %d", len(results), len(calls)))
	}
	observability.RecordMulticallBatch()
	return results, nil
}

func (m *Multicall) sequential(ctx context.Context, calls []Call) ([]BatchResult, error) {
	results := make([]BatchResult, len(calls))
	for i, call := range calls {
		out, err := m.client.CallContract(ctx, call.To, call.Data)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			results[i] = BatchResult{Success: false}
			continue
		}
		results[i] = BatchResult{Success: true, ReturnData: out}
	}
	return results, nil
}

// encodeAggregate3 builds calldata for aggregate3. Each element of the
// dynamic tuple array is (address target, bool allowFailure, bytes
// callData) with allowFailure always true.
func encodeAggregate3(calls []Call) ([]byte, error) {
	n := len(calls)

	elements := make([][]byte, n)
	for i, call := range calls {
		target, err := encodeWord(call.To)
		if err != nil {
			return nil, fmt.Errorf("call %d target: %w", i, err)
		}
		el := make([]byte, 0, 4*wordSize+padded(len(call.Data)))
		el = append(el, target...)
		el = append(el, encodeUint(1)...)          // allowFailure = true
		el = append(el, encodeUint(3*wordSize)...) // offset of bytes within tuple
		el = append(el, encodeUint(uint64(len(call.Data)))...)
		el = append(el, padRight(call.Data)...)
		elements[i] = el
	}

	// Head: offsets of each element relative to the start of the
	// element area (right after the length word).
	head := make([]byte, 0, n*wordSize)
	offset := n * wordSize
	for _, el := range elements {
		head = append(head, encodeUint(uint64(offset))...)
		offset += len(el)
	}

	data := make([]byte, 0, 4+2*wordSize+len(head)+offset)
	data = append(data, aggregate3Selector[:]...)
	data = append(data, encodeUint(wordSize)...) // offset of array
	data = append(data, encodeUint(uint64(n))...)
	data = append(data, head...)
	for _, el := range elements {
		data = append(data, el...)
	}
	return data, nil
}

// decodeAggregate3 parses the (bool success, bytes returnData)[] return
// value of aggregate3. The return data crosses a trust boundary, so
// every offset, length and element count is validated against the
// buffer in uint64 space before any slice or allocation uses it.
func decodeAggregate3(out []byte) ([]BatchResult, error) {
	lengthPos, err := offsetAt(out, 0)
	if err != nil {
		return nil, err
	}
	n, err := offsetAt(out, lengthPos)
	if err != nil {
		return nil, fmt.Errorf("array length: %w", err)
	}

	base := lengthPos + wordSize
	results := make([]BatchResult, n)
	for i := uint64(0); i < n; i++ {
		elOffset, err := offsetAt(out, base+i*wordSize)
		if err != nil {
			return nil, fmt.Errorf("result %d offset: %w", i, err)
		}
		elPos := base + elOffset

		success, err := wordAt(out, elPos)
		if err != nil {
			return nil, fmt.Errorf("result %d success: %w", i, err)
		}
		dataOffset, err := offsetAt(out, elPos+wordSize)
		if err != nil {
			return nil, fmt.Errorf("result %d data offset: %w", i, err)
		}
		dataPos := elPos + dataOffset
		dataLen, err := offsetAt(out, dataPos)
		if err != nil {
			return nil, fmt.Errorf("result %d data length: %w", i, err)
		}
		if dataLen > uint64(len(out))-wordSize-dataPos {
			return nil, fmt.Errorf("result %d data truncated", i)
		}
		data := make([]byte, dataLen)
		copy(data, out[dataPos+wordSize:dataPos+wordSize+dataLen])
		results[i] = BatchResult{
			Success:    success.Sign() != 0,
			ReturnData: data,
		}
	}
	return results, nil
}

func wordAt(b []byte, pos uint64) (*big.Int, error) {
	if pos > uint64(len(b)) || uint64(len(b))-pos < wordSize {
		return nil, fmt.Errorf("word at %d out of range (len %d)", pos, len(b))
	}
	return new(big.Int).SetBytes(b[pos : pos+wordSize]), nil
}

// offsetAt reads the word at pos as an offset, length or count,
// rejecting values that exceed the buffer.
func offsetAt(b []byte, pos uint64) (uint64, error) {
	w, err := wordAt(b, pos)
	if err != nil {
		return 0, err
	}
	if !w.IsUint64() || w.Uint64() > uint64(len(b)) {
		return 0, fmt.Errorf("value %s at %d exceeds data length %d", w, pos, len(b))
	}
	return w.Uint64(), nil
}

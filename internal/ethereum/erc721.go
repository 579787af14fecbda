package ethereum

import (
	"context"
	"math/big"
)

// Canonical ERC-721 signatures used by the ownership scanner.
const (
	sigBalanceOf           = "balanceOf(address)"
	sigOwnerOf             = "ownerOf(uint256)"
	sigTokenOfOwnerByIndex = "tokenOfOwnerByIndex(address,uint256)"
	sigTokenURI            = "tokenURI(uint256)"
	sigSupportsInterface   = "supportsInterface(bytes4)"
	sigApprove             = "approve(address,uint256)"

	// TransferEventSig is the ERC-721 Transfer event signature.
	TransferEventSig = "Transfer(address,address,uint256)"
)

// EnumerableInterfaceID is the ERC-165 interface id of ERC-721 Enumerable.
var EnumerableInterfaceID = Bytes4{0x78, 0x0e, 0x9d, 0x63}

// ERC721 reads ERC-721 contracts through an RPCClient.
type ERC721 struct {
	client RPCClient
}

// NewERC721 creates a new ERC-721 reader.
func NewERC721(client RPCClient) *ERC721 {
	return &ERC721{client: client}
}

// BalanceOf returns the number of tokens owned by owner.
func (c *ERC721) BalanceOf(ctx context.Context, contract, owner string) (*big.Int, error) {
	data, err := EncodeCall(sigBalanceOf, owner)
	if err != nil {
		return nil, readErr("balanceOf", contract, err)
	}
	out, err := c.client.CallContract(ctx, contract, data)
	if err != nil {
		return nil, readErr("balanceOf", contract, err)
	}
	v, err := DecodeUint256(out)
	if err != nil {
		return nil, readErr("balanceOf", contract, err)
	}
	return v, nil
}

// OwnerOf returns the current owner of tokenID (lowercase hex).
func (c *ERC721) OwnerOf(ctx context.Context, contract string, tokenID *big.Int) (string, error) {
	data, err := EncodeCall(sigOwnerOf, tokenID)
	if err != nil {
		return "", readErr("ownerOf", contract, err)
	}
	out, err := c.client.CallContract(ctx, contract, data)
	if err != nil {
		return "", readErr("ownerOf", contract, err)
	}
	addr, err := DecodeAddress(out)
	if err != nil {
		return "", readErr("ownerOf", contract, err)
	}
	return addr, nil
}

// TokenOfOwnerByIndex returns the tokenID at the given index of owner's
// enumeration (ERC-721 Enumerable).
func (c *ERC721) TokenOfOwnerByIndex(ctx context.Context, contract, owner string, index *big.Int) (*big.Int, error) {
	data, err := EncodeCall(sigTokenOfOwnerByIndex, owner, index)
	if err != nil {
		return nil, readErr("tokenOfOwnerByIndex", contract, err)
	}
	out, err := c.client.CallContract(ctx, contract, data)
	if err != nil {
		return nil, readErr("tokenOfOwnerByIndex", contract, err)
	}
	v, err := DecodeUint256(out)
	if err != nil {
		return nil, readErr("tokenOfOwnerByIndex", contract, err)
	}
	return v, nil
}

// TokenURI returns the metadata URI of tokenID.
func (c *ERC721) TokenURI(ctx context.Context, contract string, tokenID *big.Int) (string, error) {
	data, err := EncodeCall(sigTokenURI, tokenID)
	if err != nil {
		return "", readErr("tokenURI", contract, err)
	}
	out, err := c.client.CallContract(ctx, contract, data)
	if err != nil {
		return "", readErr("tokenURI", contract, err)
	}
	uri, err := DecodeString(out)
	if err != nil {
		return "", readErr("tokenURI", contract, err)
	}
	return uri, nil
}

// SupportsEnumerable reports whether the contract implements ERC-721
// Enumerable. Contracts without ERC-165 revert here; the caller treats
// that as not supported.
func (c *ERC721) SupportsEnumerable(ctx context.Context, contract string) (bool, error) {
	data, err := EncodeCall(sigSupportsInterface, EnumerableInterfaceID)
	if err != nil {
		return false, readErr("supportsInterface", contract, err)
	}
	out, err := c.client.CallContract(ctx, contract, data)
	if err != nil {
		return false, readErr("supportsInterface", contract, err)
	}
	v, err := DecodeBool(out)
	if err != nil {
		return false, readErr("supportsInterface", contract, err)
	}
	return v, nil
}

// Call-data builders for multicall batching.

// BalanceOfCall builds a batched balanceOf call.
func BalanceOfCall(contract, owner string) (Call, error) {
	data, err := EncodeCall(sigBalanceOf, owner)
	if err != nil {
		return Call{}, err
	}
	return Call{To: contract, Data: data}, nil
}

// TokenOfOwnerByIndexCall builds a batched tokenOfOwnerByIndex call.
func TokenOfOwnerByIndexCall(contract, owner string, index *big.Int) (Call, error) {
	data, err := EncodeCall(sigTokenOfOwnerByIndex, owner, index)
	if err != nil {
		return Call{}, err
	}
	return Call{To: contract, Data: data}, nil
}

// TokenURICall builds a batched tokenURI call.
func TokenURICall(contract string, tokenID *big.Int) (Call, error) {
	data, err := EncodeCall(sigTokenURI, tokenID)
	if err != nil {
		return Call{}, err
	}
	return Call{To: contract, Data: data}, nil
}

// ApproveData builds calldata for approve(spender, tokenId), used when
// submitting the collateral approval transaction.
func ApproveData(spender string, tokenID *big.Int) ([]byte, error) {
	return EncodeCall(sigApprove, spender, tokenID)
}

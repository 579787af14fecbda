package ethereum

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Minimal ABI codec covering the call shapes this application makes:
// static arguments (address, uint256, bytes4) and static or single
// dynamic return values. Signatures use canonical Solidity form,
// e.g. "balanceOf(address)".

const wordSize = 32

// Bytes4 is a fixed 4-byte ABI value (interface IDs).
type Bytes4 [4]byte

// Keccak256 computes the legacy Keccak-256 hash used by the EVM.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// Selector returns the 4-byte function selector for a canonical signature.
func Selector(signature string) []byte {
	return Keccak256([]byte(signature))[:4]
}

// EventTopic returns the 32-byte topic hash for a canonical event signature,
// hex-encoded with 0x prefix.
func EventTopic(signature string) string {
	return "0x" + hex.EncodeToString(Keccak256([]byte(signature)))
}

// EncodeCall builds calldata for a function with static arguments.
// Supported argument types: hex address string, *big.Int, uint64, int,
// bool, Bytes4.
func EncodeCall(signature string, args ...any) ([]byte, error) {
	data := make([]byte, 0, 4+len(args)*wordSize)
	data = append(data, Selector(signature)...)

	for i, arg := range args {
		word, err := encodeWord(arg)
		if err != nil {
			return nil, fmt.Errorf("encode arg %d of %s: %w", i, signature, err)
		}
		data = append(data, word...)
	}

	return data, nil
}

func encodeWord(arg any) ([]byte, error) {
	word := make([]byte, wordSize)

	switch v := arg.(type) {
	case string:
		b, err := HexToBytes(v)
		if err != nil {
			return nil, fmt.Errorf("address %q: %w", v, err)
		}
		if len(b) != 20 {
			return nil, fmt.Errorf("address %q: want 20 bytes, got %d", v, len(b))
		}
		copy(word[wordSize-20:], b)
	case *big.Int:
		if v.Sign() < 0 {
			return nil, fmt.Errorf("negative uint256 %s", v)
		}
		b := v.Bytes()
		if len(b) > wordSize {
			return nil, fmt.Errorf("uint256 overflow: %s", v)
		}
		copy(word[wordSize-len(b):], b)
	case uint64:
		return encodeWord(new(big.Int).SetUint64(v))
	case int:
		if v < 0 {
			return nil, fmt.Errorf("negative uint256 %d", v)
		}
		return encodeWord(new(big.Int).SetInt64(int64(v)))
	case bool:
		if v {
			word[wordSize-1] = 1
		}
	case Bytes4:
		copy(word[:4], v[:]) // left-aligned, right-padded
	default:
		return nil, fmt.Errorf("unsupported argument type %T", arg)
	}

	return word, nil
}

// encodeUint packs a uint64 into a 32-byte word.
func encodeUint(v uint64) []byte {
	word := make([]byte, wordSize)
	binary.BigEndian.PutUint64(word[wordSize-8:], v)
	return word
}

// padded rounds n up to the next word boundary.
func padded(n int) int {
	if n%wordSize == 0 {
		return n
	}
	return n + wordSize - n%wordSize
}

// padRight right-pads b with zeros to a word boundary.
func padRight(b []byte) []byte {
	out := make([]byte, padded(len(b)))
	copy(out, b)
	return out
}

// DecodeUint256 decodes a single uint256 return value.
func DecodeUint256(data []byte) (*big.Int, error) {
	if len(data) < wordSize {
		return nil, fmt.Errorf("uint256 return: want %d bytes, got %d", wordSize, len(data))
	}
	return new(big.Int).SetBytes(data[:wordSize]), nil
}

// DecodeAddress decodes a single address return value to lowercase hex.
func DecodeAddress(data []byte) (string, error) {
	if len(data) < wordSize {
		return "", fmt.Errorf("address return: want %d bytes, got %d", wordSize, len(data))
	}
	return "0x" + hex.EncodeToString(data[wordSize-20:wordSize]), nil
}

// DecodeBool decodes a single bool return value.
func DecodeBool(data []byte) (bool, error) {
	if len(data) < wordSize {
		return false, fmt.Errorf("bool return: want %d bytes, got %d", wordSize, len(data))
	}
	return data[wordSize-1] != 0, nil
}

// DecodeString decodes a single dynamic string return value.
func DecodeString(data []byte) (string, error) {
	if len(data) < wordSize {
		return "", fmt.Errorf("string return: want at least %d bytes, got %d", wordSize, len(data))
	}

	offset, err := DecodeUint256(data)
	if err != nil {
		return "", err
	}
	// All bounds are checked in uint64 space so hostile offsets close to
	// 2^64 cannot wrap past the length check.
	if !offset.IsUint64() || offset.Uint64() > uint64(len(data))-wordSize {
		return "", fmt.Errorf("string return: offset %s out of range", offset)
	}

	o := offset.Uint64()
	length := new(big.Int).SetBytes(data[o : o+wordSize])
	if !length.IsUint64() || length.Uint64() > uint64(len(data))-wordSize-o {
		return "", fmt.Errorf("string return: length %s out of range", length)
	}

	return string(data[o+wordSize : o+wordSize+length.Uint64()]), nil
}

// TopicToAddress extracts the address encoded in an indexed event topic.
func TopicToAddress(topic string) (string, error) {
	b, err := HexToBytes(topic)
	if err != nil {
		return "", fmt.Errorf("topic %q: %w", topic, err)
	}
	if len(b) != wordSize {
		return "", fmt.Errorf("topic %q: want %d bytes, got %d", topic, wordSize, len(b))
	}
	return "0x" + hex.EncodeToString(b[wordSize-20:]), nil
}

// TopicToBig extracts the uint256 encoded in an indexed event topic.
func TopicToBig(topic string) (*big.Int, error) {
	b, err := HexToBytes(topic)
	if err != nil {
		return nil, fmt.Errorf("topic %q: %w", topic, err)
	}
	return new(big.Int).SetBytes(b), nil
}

// HexToBytes decodes a 0x-prefixed (or bare) hex string.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

// BytesToHex encodes bytes as a 0x-prefixed hex string.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// HexToUint64 decodes a 0x-prefixed hex quantity.
func HexToUint64(s string) (uint64, error) {
	b, err := HexToBytes(s)
	if err != nil {
		return 0, err
	}
	v := new(big.Int).SetBytes(b)
	if !v.IsUint64() {
		return 0, fmt.Errorf("quantity %q overflows uint64", s)
	}
	return v.Uint64(), nil
}

// Uint64ToHex encodes a quantity as minimal 0x-prefixed hex.
func Uint64ToHex(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

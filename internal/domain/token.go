package domain

// TokenMetadata is the off-chain JSON blob attached to an NFT. The schema is
// not fixed; specific fields are validated at the point of consumption.
type TokenMetadata map[string]any

// Name returns the metadata name field, or empty string.
func (m TokenMetadata) Name() string {
	return m.str("name")
}

// Image returns the metadata image URL, or empty string.
func (m TokenMetadata) Image() string {
	return m.str("image")
}

// SetImage replaces the image field.
func (m TokenMetadata) SetImage(url string) {
	m["image"] = url
}

// IssuerName returns issuer.name when present, or empty string.
func (m TokenMetadata) IssuerName() string {
	issuer, ok := m["issuer"].(map[string]any)
	if !ok {
		return ""
	}
	name, _ := issuer["name"].(string)
	return name
}

func (m TokenMetadata) str(key string) string {
	s, _ := m[key].(string)
	return s
}

// OwnedToken is a single NFT owned by a wallet, with resolved metadata.
// Ephemeral: recomputed on every ownership query, never persisted directly.
type OwnedToken struct {
	ContractAddress string
	TokenID         string
	Metadata        TokenMetadata
}

// ContractResult is the per-contract outcome of an ownership scan.
// A failed contract carries Err; a contract the wallet owns nothing of
// carries neither tokens nor an error (the "not found" case).
type ContractResult struct {
	ContractAddress string
	Tokens          []OwnedToken
	Err             error
}

// NotFound reports whether the wallet owns zero tokens of this contract.
func (r ContractResult) NotFound() bool {
	return r.Err == nil && len(r.Tokens) == 0
}

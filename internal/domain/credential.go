package domain

import "time"

// VerificationStatus is the review state of a credential record.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationRejected VerificationStatus = "REJECTED"
)

// ValidVerificationStatus reports whether s is one of the known statuses.
func ValidVerificationStatus(s VerificationStatus) bool {
	switch s {
	case VerificationPending, VerificationVerified, VerificationRejected:
		return true
	}
	return false
}

// Credential is the off-chain record created when an NFT is pledged as
// collateral. Corresponds to credentials table in PostgreSQL.
type Credential struct {
	ID               string
	UserID           string
	CredentialTypeID string
	ContractAddress  string
	TokenID          string
	Institution      string
	Verification     VerificationStatus
	Metadata         TokenMetadata
	CreatedAt        time.Time
}

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nftcred/internal/domain"
	"nftcred/internal/storage"
)

func testCredential(id, userID string) *domain.Credential {
	return &domain.Credential{
		ID:               id,
		UserID:           userID,
		CredentialTypeID: "ct-degree",
		ContractAddress:  "0x2222222222222222222222222222222222222222",
		TokenID:          "7",
		Institution:      "MIT",
		Verification:     domain.VerificationPending,
		Metadata: domain.TokenMetadata{
			"name":  "Degree #7",
			"image": "https://ipfs.io/ipfs/QmExample",
		},
	}
}

func TestCredentialStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCredentialStore(pool)
	seedCredentialType(t, pool, "ct-degree")
	ctx := context.Background()

	cred := testCredential("cred-001", "user-1")
	require.NoError(t, store.Insert(ctx, cred))

	retrieved, err := store.GetByID(ctx, "cred-001")
	require.NoError(t, err)

	assert.Equal(t, cred.UserID, retrieved.UserID)
	assert.Equal(t, cred.CredentialTypeID, retrieved.CredentialTypeID)
	assert.Equal(t, cred.ContractAddress, retrieved.ContractAddress)
	assert.Equal(t, cred.TokenID, retrieved.TokenID)
	assert.Equal(t, cred.Institution, retrieved.Institution)
	assert.Equal(t, domain.VerificationPending, retrieved.Verification)
	assert.Equal(t, "Degree #7", retrieved.Metadata["name"])
	assert.NotZero(t, retrieved.CreatedAt)
}

func TestCredentialStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCredentialStore(pool)
	seedCredentialType(t, pool, "ct-degree")
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testCredential("cred-dup", "user-1")))
	err := store.Insert(ctx, testCredential("cred-dup", "user-1"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestCredentialStore_InsertInvalidVerification(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCredentialStore(pool)
	cred := testCredential("cred-bad", "user-1")
	cred.Verification = "MAYBE"

	err := store.Insert(context.Background(), cred)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestCredentialStore_ListByUser(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCredentialStore(pool)
	seedCredentialType(t, pool, "ct-degree")
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testCredential("cred-a", "user-1")))
	require.NoError(t, store.Insert(ctx, testCredential("cred-b", "user-1")))
	require.NoError(t, store.Insert(ctx, testCredential("cred-c", "user-2")))

	creds, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, creds, 2)

	creds, err = store.ListByUser(ctx, "user-3")
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestCredentialStore_UpdateVerification(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCredentialStore(pool)
	seedCredentialType(t, pool, "ct-degree")
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testCredential("cred-v", "user-1")))

	require.NoError(t, store.UpdateVerification(ctx, "cred-v", domain.VerificationVerified))

	retrieved, err := store.GetByID(ctx, "cred-v")
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationVerified, retrieved.Verification)

	err = store.UpdateVerification(ctx, "nonexistent", domain.VerificationRejected)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.UpdateVerification(ctx, "cred-v", "MAYBE")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

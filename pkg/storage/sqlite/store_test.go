package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon"
	"github.com/CenterForOpenScience/gravyvalet/pkg/credentials"
	"github.com/CenterForOpenScience/gravyvalet/pkg/models"
	"github.com/CenterForOpenScience/gravyvalet/pkg/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "gravyvalet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedService(t *testing.T, store *Store) *models.ExternalService {
	t.Helper()
	ctx := context.Background()

	clientConfig := &models.OAuth2ClientConfig{
		AuthURI:      "https://box.example/oauth2/authorize",
		TokenURI:     "https://box.example/oauth2/token",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scopes:       []string{"root_readwrite"},
	}
	require.NoError(t, store.CreateOAuth2ClientConfig(ctx, clientConfig))

	service := &models.ExternalService{
		Name:                  "Box",
		ProviderName:          "BOX",
		ImpNumber:             1001,
		CredentialFormat:      credentials.FormatOAuth2,
		SupportedCapabilities: addon.CapabilityAccess | addon.CapabilityUpdate,
		APIBaseURL:            "https://api.box.example/2.0/",
		WBProviderKey:         "box",
		OAuth2ClientConfigID:  &clientConfig.ID,
	}
	require.NoError(t, store.CreateService(ctx, service))
	return service
}

func seedAccount(t *testing.T, store *Store, service *models.ExternalService, userURI string) *models.AuthorizedAccount {
	t.Helper()
	ctx := context.Background()

	user, err := store.EnsureUser(ctx, userURI)
	require.NoError(t, err)

	account := &models.AuthorizedAccount{
		UserReferenceID:        user.ID,
		ExternalServiceID:      service.ID,
		AuthorizedCapabilities: addon.CapabilityAccess,
		DisplayName:            "my box",
	}
	require.NoError(t, store.CreateAccount(ctx, account))
	return account
}

func TestServiceRoundTrip(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	service := seedService(t, store)

	got, err := store.GetService(ctx, service.ID)
	require.NoError(t, err)
	assert.Equal(t, "BOX", got.ProviderName)
	assert.Equal(t, 1001, got.ImpNumber)
	assert.Equal(t, credentials.FormatOAuth2, got.CredentialFormat)
	assert.Equal(t, addon.CapabilityAccess|addon.CapabilityUpdate, got.SupportedCapabilities)
	require.NotNil(t, got.OAuth2ClientConfigID)

	clientConfig, err := store.GetOAuth2ClientConfig(ctx, *got.OAuth2ClientConfigID)
	require.NoError(t, err)
	assert.Equal(t, []string{"root_readwrite"}, clientConfig.Scopes)

	services, err := store.ListServices(ctx)
	require.NoError(t, err)
	assert.Len(t, services, 1)

	_, err = store.GetService(ctx, 9999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.EnsureUser(ctx, "https://osf.example/abcde")
	require.NoError(t, err)
	second, err := store.EnsureUser(ctx, "https://osf.example/abcde")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestDeactivateUserFiltersAccounts(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	service := seedService(t, store)
	account := seedAccount(t, store, service, "https://osf.example/abcde")

	active, err := store.ListAccountsForUser(ctx, account.UserReferenceID, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, store.DeactivateUser(ctx, account.UserReferenceID))

	active, err = store.ListAccountsForUser(ctx, account.UserReferenceID, true)
	require.NoError(t, err)
	assert.Empty(t, active, "deactivated users drop out of active listings")

	all, err := store.ListAccountsForUser(ctx, account.UserReferenceID, false)
	require.NoError(t, err)
	assert.Len(t, all, 1, "rows stay queryable for audit")

	user, err := store.GetUser(ctx, account.UserReferenceID)
	require.NoError(t, err)
	assert.False(t, user.Active())
}

func TestMergeUsersTransfersAccounts(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	service := seedService(t, store)
	fromAccount := seedAccount(t, store, service, "https://osf.example/from1")
	toUser, err := store.EnsureUser(ctx, "https://osf.example/to1")
	require.NoError(t, err)

	require.NoError(t, store.MergeUsers(ctx, fromAccount.UserReferenceID, toUser.ID))

	transferred, err := store.ListAccountsForUser(ctx, toUser.ID, true)
	require.NoError(t, err)
	assert.Len(t, transferred, 1)

	fromUser, err := store.GetUser(ctx, fromAccount.UserReferenceID)
	require.NoError(t, err)
	assert.False(t, fromUser.Active(), "merged-away user is deactivated")
}

func TestConfiguredAddonFindByWaterbutlerPair(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	service := seedService(t, store)
	account := seedAccount(t, store, service, "https://osf.example/abcde")

	resource, err := store.EnsureResource(ctx, "https://osf.example/proj1")
	require.NoError(t, err)

	configured := &models.ConfiguredAddon{
		AuthorizedAccountID:   account.ID,
		ResourceReferenceID:   resource.ID,
		ConnectedCapabilities: addon.CapabilityAccess,
		ConnectedRootID:       "folder-7",
	}
	require.NoError(t, store.CreateConfiguredAddon(ctx, configured))

	found, err := store.FindConfiguredAddon(ctx, "https://osf.example/proj1", "box")
	require.NoError(t, err)
	assert.Equal(t, configured.ID, found.ID)
	assert.Equal(t, "folder-7", found.ConnectedRootID)

	_, err = store.FindConfiguredAddon(ctx, "https://osf.example/proj1", "dropbox")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCredentialsStateTokenLookup(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	creds := &models.ExternalCredentials{
		Format:        credentials.FormatOAuth2,
		EncryptedBlob: []byte("blob"),
		KeyParameters: credentials.KeyParameters{
			Salt: []byte("0123456789abcdef0"), CostLog2: 17, BlockSize: 8, Parallelization: 1,
		},
		StateToken: "state-abc",
	}
	require.NoError(t, store.CreateCredentials(ctx, creds))

	found, err := store.GetCredentialsByStateToken(ctx, "state-abc")
	require.NoError(t, err)
	assert.Equal(t, creds.ID, found.ID)
	assert.Equal(t, 17, found.KeyParameters.CostLog2)

	_, err = store.GetCredentialsByStateToken(ctx, "")
	assert.ErrorIs(t, err, storage.ErrNotFound, "empty state token never matches")

	// Two in-flight authorizations cannot share a state token.
	dup := &models.ExternalCredentials{
		Format:        credentials.FormatOAuth2,
		EncryptedBlob: []byte("blob2"),
		KeyParameters: creds.KeyParameters,
		StateToken:    "state-abc",
	}
	assert.ErrorIs(t, store.CreateCredentials(ctx, dup), storage.ErrAlreadyExists)

	// Completing the handshake clears the token and frees it for reuse.
	creds.StateToken = ""
	require.NoError(t, store.UpdateCredentials(ctx, creds))
	_, err = store.GetCredentialsByStateToken(ctx, "state-abc")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListCredentialsModifiedBefore(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	params := credentials.KeyParameters{
		Salt: []byte("0123456789abcdef0"), CostLog2: 17, BlockSize: 8, Parallelization: 1,
	}
	old := &models.ExternalCredentials{
		Format: credentials.FormatAccessToken, EncryptedBlob: []byte("old"), KeyParameters: params,
	}
	require.NoError(t, store.CreateCredentials(ctx, old))

	stale, err := store.ListCredentialsModifiedBefore(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	fresh, err := store.ListCredentialsModifiedBefore(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestInvocationClaimIsCompareAndSet(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	service := seedService(t, store)
	account := seedAccount(t, store, service, "https://osf.example/abcde")

	inv := &models.OperationInvocation{
		ID:                  uuid.NewString(),
		Status:              models.StatusStarting,
		OperationName:       "BOX:list_root_items",
		Args:                json.RawMessage(`{}`),
		ByUserID:            account.UserReferenceID,
		AuthorizedAccountID: account.ID,
	}
	require.NoError(t, store.CreateInvocation(ctx, inv))

	require.NoError(t, store.ClaimInvocation(ctx, inv.ID))
	assert.ErrorIs(t, store.ClaimInvocation(ctx, inv.ID), storage.ErrStaleStatus,
		"second claim loses the compare-and-set")
	assert.ErrorIs(t, store.ClaimInvocation(ctx, "no-such-id"), storage.ErrNotFound)

	inv.Status = models.StatusSuccess
	inv.Result = json.RawMessage(`{"items": []}`)
	require.NoError(t, store.FinalizeInvocation(ctx, inv))

	got, err := store.GetInvocation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.JSONEq(t, `{"items": []}`, string(got.Result))
}

func TestFinalizeRejectsNonTerminalStatus(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	service := seedService(t, store)
	account := seedAccount(t, store, service, "https://osf.example/abcde")

	inv := &models.OperationInvocation{
		ID:                  uuid.NewString(),
		Status:              models.StatusStarting,
		OperationName:       "BOX:get_item_info",
		ByUserID:            account.UserReferenceID,
		AuthorizedAccountID: account.ID,
	}
	require.NoError(t, store.CreateInvocation(ctx, inv))

	inv.Status = models.StatusInProgress
	assert.Error(t, store.FinalizeInvocation(ctx, inv))
}

func TestListInvocationsByOperation(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	service := seedService(t, store)
	account := seedAccount(t, store, service, "https://osf.example/abcde")

	for i := 0; i < 3; i++ {
		inv := &models.OperationInvocation{
			ID:                  uuid.NewString(),
			Status:              models.StatusStarting,
			OperationName:       "BOX:list_root_items",
			ByUserID:            account.UserReferenceID,
			AuthorizedAccountID: account.ID,
		}
		require.NoError(t, store.CreateInvocation(ctx, inv))
	}

	listed, err := store.ListInvocationsByOperation(ctx, "BOX:list_root_items", 2)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	none, err := store.ListInvocationsByOperation(ctx, "BOX:download", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon"
	"github.com/CenterForOpenScience/gravyvalet/pkg/credentials"
)

func TestAccountCapabilitiesWithinService(t *testing.T) {
	t.Parallel()

	service := &ExternalService{
		Name:                  "Box",
		ProviderName:          "BOX",
		ImpNumber:             1001,
		SupportedCapabilities: addon.CapabilityAccess | addon.CapabilityUpdate,
	}

	ok := &AuthorizedAccount{AuthorizedCapabilities: addon.CapabilityAccess}
	assert.NoError(t, ok.Validate(service))

	over := &AuthorizedAccount{AuthorizedCapabilities: addon.CapabilityAccess | addon.CapabilityWebhook}
	assert.Error(t, over.Validate(service))
}

func TestAddonCapabilitiesWithinAccount(t *testing.T) {
	t.Parallel()

	account := &AuthorizedAccount{
		AuthorizedCapabilities: addon.CapabilityAccess | addon.CapabilityUpdate,
	}

	ok := &ConfiguredAddon{ConnectedCapabilities: addon.CapabilityAccess}
	assert.NoError(t, ok.Validate(account))

	over := &ConfiguredAddon{ConnectedCapabilities: addon.CapabilityWebhook}
	assert.Error(t, over.Validate(account))
}

func TestServiceValidateRequiresClientConfig(t *testing.T) {
	t.Parallel()

	configID := int64(7)
	testCases := []struct {
		name    string
		service ExternalService
		valid   bool
	}{
		{
			name: "oauth2 with client config",
			service: ExternalService{
				ProviderName: "BOX", ImpNumber: 1001,
				CredentialFormat: credentials.FormatOAuth2, OAuth2ClientConfigID: &configID,
			},
			valid: true,
		},
		{
			name: "oauth2 without client config",
			service: ExternalService{
				ProviderName: "BOX", ImpNumber: 1001,
				CredentialFormat: credentials.FormatOAuth2,
			},
			valid: false,
		},
		{
			name: "oauth1 without client config",
			service: ExternalService{
				ProviderName: "ZOTERO", ImpNumber: 1010,
				CredentialFormat: credentials.FormatOAuth1a,
			},
			valid: false,
		},
		{
			name: "pat needs no client config",
			service: ExternalService{
				ProviderName: "ZENODO", ImpNumber: 1030,
				CredentialFormat: credentials.FormatAccessToken,
			},
			valid: true,
		},
		{
			name:    "missing imp number",
			service: ExternalService{ProviderName: "BOX"},
			valid:   false,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.service.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestWaterbutlerKeyFallsBackToProviderName(t *testing.T) {
	t.Parallel()

	s := &ExternalService{ProviderName: "OWNCLOUD"}
	assert.Equal(t, "OWNCLOUD", s.WaterbutlerKey())

	s.WBProviderKey = "owncloud"
	assert.Equal(t, "owncloud", s.WaterbutlerKey())
}

func TestInvocationStateMachine(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		from    InvocationStatus
		to      InvocationStatus
		allowed bool
	}{
		{StatusStarting, StatusInProgress, true},
		{StatusStarting, StatusDibsDenied, true},
		{StatusStarting, StatusProblem, true},
		{StatusStarting, StatusSuccess, false},
		{StatusInProgress, StatusSuccess, true},
		{StatusInProgress, StatusProblem, true},
		{StatusInProgress, StatusDibsDenied, false},
		{StatusSuccess, StatusProblem, false},
		{StatusProblem, StatusInProgress, false},
		{StatusDibsDenied, StatusInProgress, false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			t.Parallel()
			inv := &OperationInvocation{ID: "inv", Status: tc.from}
			err := inv.Transition(tc.to)
			if tc.allowed {
				require.NoError(t, err)
				assert.Equal(t, tc.to, inv.Status)
			} else {
				require.Error(t, err)
				assert.Equal(t, tc.from, inv.Status, "failed transition leaves status unchanged")
			}
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	t.Parallel()

	assert.False(t, StatusStarting.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusProblem.Terminal())
	assert.True(t, StatusDibsDenied.Terminal())
}

func TestUserReferenceActive(t *testing.T) {
	t.Parallel()

	u := &UserReference{UserURI: "https://osf.example/abcde"}
	assert.True(t, u.Active())

	now := u.Created
	u.Deactivated = &now
	assert.False(t, u.Active())
}

func TestQuirks(t *testing.T) {
	t.Parallel()

	q := QuirkOnlyAccessToken | QuirkNonRotatingRefreshToken
	assert.True(t, q.Has(QuirkOnlyAccessToken))
	assert.True(t, q.Has(QuirkNonRotatingRefreshToken))
	assert.False(t, ServiceQuirks(0).Has(QuirkOnlyAccessToken))
}

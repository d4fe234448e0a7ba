package channel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetbridge/devicegw"
	"github.com/fleetbridge/devicegw/internal/identity"
)

type fakeIdentity struct {
	grade identity.Grade
	err   error
}

func (f *fakeIdentity) Resolve(context.Context, string) (identity.User, error) {
	return identity.User{}, nil
}

func (f *fakeIdentity) PermissionGrade(context.Context, string, devicegw.DeviceID) (identity.Grade, error) {
	return f.grade, f.err
}

func TestNewClientIDIsDeterministicPrefixButUniqueSuffix(t *testing.T) {
	a := newClientID("user-1")
	b := newClientID("user-1")
	assert.NotEqual(t, a, b, "two tabs for the same user must get distinct client ids")
	assert.Equal(t, a[:8], b[:8], "the user-hash prefix should be stable for the same user")
}

func TestAuthoriseGuestAlwaysBypasses(t *testing.T) {
	c := &Client{user: identity.ResolveGuest(), identity: &fakeIdentity{grade: identity.GradeNone}}
	assert.True(t, c.authorise("some-custom-device-name"))
}

func TestAuthoriseMACKeyedDeviceGrantsRWithoutConsultingIdentity(t *testing.T) {
	c := &Client{user: identity.User{UserID: "alice"}, identity: &fakeIdentity{grade: identity.GradeNone}}
	assert.True(t, c.authorise("AA-BB-CC-DD-EE-01"))
}

func TestAuthoriseNonMACDeviceConsultsIdentity(t *testing.T) {
	allowed := &Client{user: identity.User{UserID: "alice"}, identity: &fakeIdentity{grade: identity.GradeR}}
	assert.True(t, allowed.authorise("custom-named-node"))

	denied := &Client{user: identity.User{UserID: "alice"}, identity: &fakeIdentity{grade: identity.GradeNone}}
	assert.False(t, denied.authorise("custom-named-node"))
}

func TestAuthoriseWithoutIdentityCollaboratorDeniesNonMACDevice(t *testing.T) {
	c := &Client{user: identity.User{UserID: "alice"}, identity: nil}
	require.False(t, c.authorise("custom-named-node"))
}

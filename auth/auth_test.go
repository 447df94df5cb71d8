package auth

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	userID string
	roles  []Role
	hash   string
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string) (string, []Role, string, bool) {
	if username != "u" {
		return "", nil, "", false
	}
	return f.userID, f.roles, f.hash, true
}

type fakeAudit struct {
	calls int
	lastLockedOut bool
}

func (f *fakeAudit) LoginFailure(_ context.Context, _ string, lockedOut bool, _ time.Time) {
	f.calls++
	f.lastLockedOut = lockedOut
}

func newTestService(t *testing.T) (*Service, *fakeUsers, *fakeAudit) {
	hash, err := HashPassword("Correct-Horse-1!")
	require.NoError(t, err)
	users := &fakeUsers{userID: "user-1", roles: []Role{RoleAnalyst}, hash: hash}
	audit := &fakeAudit{}
	svc := NewService(zerolog.New(io.Discard), users, audit, Config{
		SecretKey:        "test-secret",
		PasswordMinLen:   12,
		MaxLoginAttempts: 5,
		LockoutMinutes:   30,
		IdleTimeout:      30 * time.Minute,
	})
	return svc, users, audit
}

func TestLoginSuccess(t *testing.T) {
	svc, _, _ := newTestService(t)
	res, err := svc.Login(context.Background(), "u", "Correct-Horse-1!", "1.2.3.4", "test-agent")
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	require.NotNil(t, res.Session)
}

func TestLoginWrongPasswordRecordsFailure(t *testing.T) {
	svc, _, audit := newTestService(t)
	_, err := svc.Login(context.Background(), "u", "wrong", "1.2.3.4", "ua")
	require.Error(t, err)
	require.Equal(t, 1, audit.calls)
	require.False(t, audit.lastLockedOut)
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	svc, _, audit := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = svc.Login(ctx, "u", "wrong", "1.2.3.4", "ua")
	}
	require.True(t, audit.lastLockedOut)

	_, err := svc.Login(ctx, "u", "Correct-Horse-1!", "1.2.3.4", "ua")
	require.Error(t, err)
	var lockErr *ErrLockedOut
	require.ErrorAs(t, err, &lockErr)
}

func TestAuthenticateRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	res, err := svc.Login(ctx, "u", "Correct-Horse-1!", "1.2.3.4", "ua")
	require.NoError(t, err)

	claims, sess, err := svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, res.Session.ID, sess.ID)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	res, err := svc.Login(ctx, "u", "Correct-Horse-1!", "1.2.3.4", "ua")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, res.AccessToken))

	_, _, err = svc.Authenticate(ctx, res.AccessToken)
	require.Error(t, err)
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	res, err := svc.Login(ctx, "u", "Correct-Horse-1!", "1.2.3.4", "ua")
	require.NoError(t, err)

	access, err := svc.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, access)

	claims, _, err := svc.Authenticate(ctx, access)
	require.NoError(t, err)
	require.Equal(t, TokenAccess, claims.Type)
}

func TestValidatePasswordPolicy(t *testing.T) {
	require.NoError(t, ValidatePassword("Correct-Horse-1!", PasswordPolicy{MinLength: 12}))
	require.Error(t, ValidatePassword("short1!A", PasswordPolicy{MinLength: 12}))
	require.Error(t, ValidatePassword("alllowercase1!", PasswordPolicy{MinLength: 12}))
}

func TestGetUserPermissionsUnion(t *testing.T) {
	perms := GetUserPermissions([]Role{RoleViewer, RoleAuditor})
	require.True(t, HasPermission(perms, PermRead))
	require.True(t, HasPermission(perms, PermAuditView))
	require.False(t, HasPermission(perms, PermWrite))
}

func TestAdminHasAllPermissions(t *testing.T) {
	perms := GetUserPermissions([]Role{RoleAdmin})
	for _, p := range []Permission{PermRead, PermWrite, PermExecute, PermAuditView, PermExport} {
		require.True(t, HasPermission(perms, p))
	}
}

package security_test

import (
	"encoding/base64"
	"media-gateway/internal/security"
	"media-gateway/internal/util"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccessControl(t *testing.T, versions ...string) *security.AccessControl {
	t.Helper()
	cfg := testAuthConfig(t)
	if len(versions) > 0 {
		cfg.AuthorizedVersions = versions
	}
	ac, err := security.NewAccessControl(cfg, util.DiscardLogger())
	require.NoError(t, err)
	return ac
}

func basic(credentials string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
}

func TestGetAccessStatus_Basic(t *testing.T) {
	ac := newTestAccessControl(t)

	tests := []struct {
		name          string
		authorization string
		user          string
		group         string
		code          security.Code
	}{
		{"valid", basic("rudiprod:secret"), "rudiprod", "producer", security.CodeNone},
		{"explicit group", basic("rudiprod@producer:secret"), "rudiprod", "producer", security.CodeNone},
		{"foreign group", basic("rudiprod@monitor:secret"), "rudiprod", "monitor", security.CodeInvalidUserGroup},
		{"wrong password", basic("rudiprod:nope"), "rudiprod", "-", security.CodeInvalidCredentials},
		{"missing password", basic("rudiprod"), "-", "-", security.CodeInvalidMethod},
		{"not base64", "Basic ???", "-", "-", security.CodeInvalidMethod},
		{"unsupported scheme", "Digest username=x", "-", "-", security.CodeInvalidMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/list", nil)
			r.Header.Set("Authorization", tt.authorization)

			status := ac.GetAccessStatus(httptest.NewRecorder(), r)
			assert.Equal(t, tt.code, status.Err)
			assert.Equal(t, tt.user, status.UserName)
			assert.Equal(t, tt.group, status.GroupName)
			assert.NotNil(t, status.Context())
		})
	}
}

func TestGetAccessStatus_Tokens(t *testing.T) {
	ac := newTestAccessControl(t)
	token, err := ac.AclDB().ForgeJwtFor("2001", "alice", "producer", nil)
	require.NoError(t, err)

	bearer := httptest.NewRequest(http.MethodGet, "/list", nil)
	bearer.Header.Set("Authorization", "Bearer "+token)

	cookie := httptest.NewRequest(http.MethodGet, "/list", nil)
	cookie.AddCookie(&http.Cookie{Name: security.AuthCookieName, Value: token})

	mediaCookie := httptest.NewRequest(http.MethodGet, "/list", nil)
	mediaCookie.Header.Set(security.MediaCookieField, "lang=fr; "+security.AuthCookieName+"="+token)

	for name, r := range map[string]*http.Request{"bearer": bearer, "cookie": cookie, "media_cookie": mediaCookie} {
		t.Run(name, func(t *testing.T) {
			status := ac.GetAccessStatus(httptest.NewRecorder(), r)
			require.Equal(t, security.CodeNone, status.Err)
			assert.Equal(t, "alice", status.UserName)
			assert.Equal(t, "producer", status.GroupName)
		})
	}
}

func TestGetAccessStatus_Anonymous(t *testing.T) {
	ac := newTestAccessControl(t)
	w := httptest.NewRecorder()

	status := ac.GetAccessStatus(w, httptest.NewRequest(http.MethodGet, "/list", nil))
	assert.Equal(t, security.CodeNone, status.Err)
	assert.Equal(t, "-", status.UserName)

	access, ok := ac.CheckSystemAccessStatus(status, security.NoAccess)
	assert.True(t, ok)
	assert.Equal(t, security.NoAccess, access)

	_, ok = ac.CheckSystemAccessStatus(status, security.ReadMask)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckSystemAccessStatus(t *testing.T) {
	ac := newTestAccessControl(t)

	r := httptest.NewRequest(http.MethodPost, "/post", nil)
	r.Header.Set("Authorization", basic("rudiprod:secret"))
	w := httptest.NewRecorder()
	status := ac.GetAccessStatus(w, r)

	access, ok := ac.CheckSystemAccessStatus(status, security.WriteMask)
	assert.True(t, ok)
	assert.Equal(t, security.WriteMask, access)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	status = ac.GetAccessStatus(w, r)
	_, ok = ac.CheckSystemAccessStatus(status, security.ExecMask)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "execution access")
}

func TestCheckSystemAccessStatus_Version(t *testing.T) {
	ac := newTestAccessControl(t, "1.0", "1.1")

	r := httptest.NewRequest(http.MethodPost, "/commit", nil)
	r.Header.Set("Authorization", basic("rudiprod:secret"))
	w := httptest.NewRecorder()
	_, ok := ac.CheckSystemAccessStatus(ac.GetAccessStatus(w, r), security.ExecMask)
	assert.False(t, ok)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	// a valid version moves on to the execute check
	r.Header.Set(security.VersionHeader, "1.1")
	w = httptest.NewRecorder()
	_, ok = ac.CheckSystemAccessStatus(ac.GetAccessStatus(w, r), security.ExecMask)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestForgeJwt(t *testing.T) {
	ac := newTestAccessControl(t)

	r := httptest.NewRequest(http.MethodPost, "/jwt/forge", nil)
	w := httptest.NewRecorder()
	status := ac.GetAccessStatus(w, r)

	token, ok := ac.ForgeJwt(status, "2001", "alice", "producer", nil)
	require.True(t, ok)
	assert.NotEmpty(t, token)
	assert.Equal(t, "alice", ac.AclDB().FindIdsFromJwt(token).UserName)

	token, ok = ac.ForgeJwt(status, "50", "bob", "producer", nil)
	assert.False(t, ok)
	assert.Empty(t, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid user/group")
}

func TestForgeJwt_ExpiryThroughAccessControl(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	ac, err := security.NewAccessControl(testAuthConfig(t), util.DiscardLogger(), security.WithClock(clock.Now))
	require.NoError(t, err)

	token, ok := ac.ForgeJwt(ac.AclDB().AnonymousStatus(), "2001", "alice", "producer", nil)
	require.True(t, ok)

	clock.Advance(299 * time.Second)
	assert.Equal(t, security.CodeNone, ac.AclDB().FindIdsFromJwt(token).Err)
	clock.Advance(2 * time.Second)
	assert.Equal(t, security.CodeExpiredToken, ac.AclDB().FindIdsFromJwt(token).Err)
}

package security_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"media-gateway/config"
	"media-gateway/internal/security"
	"media-gateway/internal/util"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signClaims(t *testing.T, key ed25519.PrivateKey, claims security.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestForgeJwtFor_RoundTrip(t *testing.T) {
	acldb, clock := newTestAclDB(t)

	token, err := acldb.ForgeJwtFor("2001", "alice", "producer", map[string]any{"origin": "test"})
	require.NoError(t, err)

	claims := &security.Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.ClientID)
	assert.Equal(t, security.DelegateGroup, claims.Subject)
	assert.Equal(t, 2001, claims.UserID)
	assert.Equal(t, 102, claims.GroupID)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, "alice", claims.XAttr["name"])
	assert.Equal(t, "producer", claims.XAttr["group"])
	assert.Equal(t, "test", claims.XAttr["origin"])
	assert.Equal(t, clock.Now().Add(300*time.Second).Unix(), claims.ExpiresAt.Unix())

	status := acldb.FindIdsFromJwt(token)
	require.Equal(t, security.CodeNone, status.Err)
	assert.Equal(t, "alice", status.UserName)
	assert.Equal(t, "producer", status.GroupName)
	assert.Equal(t, 2001, status.User.ID)

	clock.Advance(301 * time.Second)
	status = acldb.FindIdsFromJwt(token)
	assert.Equal(t, security.CodeExpiredToken, status.Err)
}

func TestForgeJwtFor_DefaultGroupAndReuse(t *testing.T) {
	acldb, _ := newTestAclDB(t)

	first, err := acldb.ForgeJwtFor("2001", "alice", "", nil)
	require.NoError(t, err)
	second, err := acldb.ForgeJwtFor("2001", "alice", "producer", nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	assert.Equal(t, "producer", acldb.FindIdsFromJwt(first).GroupName)
	assert.Same(t, acldb.LookupUser("alice"), acldb.LookupUser("2001"))
}

func TestForgeJwtFor_ReservedNameIsPrefixed(t *testing.T) {
	acldb, _ := newTestAclDB(t)

	token, err := acldb.ForgeJwtFor("2003", "rudiprod", "producer", nil)
	require.NoError(t, err)

	status := acldb.FindIdsFromJwt(token)
	require.Equal(t, security.CodeNone, status.Err)
	assert.Equal(t, "ext::rudiprod", status.UserName)
	assert.Equal(t, 2003, status.User.ID)
	assert.Equal(t, 102, acldb.LookupUser("rudiprod").ID)
}

func TestForgeJwtFor_Failures(t *testing.T) {
	acldb, _ := newTestAclDB(t)
	_, err := acldb.ForgeJwtFor("2001", "alice", "producer", nil)
	require.NoError(t, err)

	_, err = acldb.ForgeJwtFor("2002", "alice", "producer", nil)
	assert.Equal(t, security.CodeInconsistentUser, security.CodeOf(err))

	_, err = acldb.ForgeJwtFor("50", "bob", "producer", nil)
	assert.Equal(t, security.CodeInvalidUserGroup, security.CodeOf(err))

	_, err = acldb.ForgeJwtFor("2004", "carol", "ghosts", nil)
	assert.Equal(t, security.CodeInvalidUserGroup, security.CodeOf(err))

	_, err = acldb.ForgeJwtFor("2001", "alice", "monitor", nil)
	assert.Equal(t, security.CodeInvalidUserGroup, security.CodeOf(err))
}

func TestForgeJwtFor_NoSigningKey(t *testing.T) {
	cfg := config.DefaultConfig().Auth
	admin := cfg.Users["admin"]
	admin.KeyFile = ""
	cfg.Users["admin"] = admin

	acldb, err := security.NewAclDB(&cfg, util.DiscardLogger())
	require.NoError(t, err)

	_, err = acldb.ForgeJwtFor("2001", "alice", "producer", nil)
	assert.Equal(t, security.CodeForgeFailed, security.CodeOf(err))
}

func TestFindIdsFromJwt_Failures(t *testing.T) {
	acldb, clock := newTestAclDB(t)
	_, stranger, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	delegate := func(mutate func(*security.Claims)) security.Claims {
		claims := security.Claims{
			ClientID: "admin",
			UserID:   2001,
			GroupID:  102,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   security.DelegateGroup,
				ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Minute)),
			},
		}
		if mutate != nil {
			mutate(&claims)
		}
		return claims
	}

	tests := []struct {
		name  string
		token string
		code  security.Code
	}{
		{"not a token", "definitely not a token", security.CodeMalformedToken},
		{"undecodable", "abc.def.ghi", security.CodeUndecodableToken},
		{"foreign signature", signClaims(t, stranger, delegate(nil)), security.CodeInvalidSignature},
		{"expired before signature", signClaims(t, stranger, delegate(func(c *security.Claims) {
			c.ExpiresAt = jwt.NewNumericDate(clock.Now().Add(-time.Second))
		})), security.CodeExpiredToken},
		{"premature before signature", signClaims(t, stranger, delegate(func(c *security.Claims) {
			c.NotBefore = jwt.NewNumericDate(clock.Now().Add(time.Minute))
		})), security.CodePrematureToken},
		{"issuer without key", signClaims(t, stranger, delegate(func(c *security.Claims) {
			c.ClientID = "rudiprod"
			c.Subject = "producer"
		})), security.CodeNoKey},
		{"unknown issuer", signClaims(t, stranger, delegate(func(c *security.Claims) {
			c.ClientID = "mallory"
		})), security.CodeInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, acldb.FindIdsFromJwt(tt.token).Err)
		})
	}
}

func TestFindIdsFromJwt_DelegationUnwrapsOnce(t *testing.T) {
	keyFile, key := writeEdKey(t)
	cfg := config.DefaultConfig().Auth
	admin := cfg.Users["admin"]
	admin.KeyFile = keyFile
	cfg.Users["admin"] = admin

	acldb, err := security.NewAclDB(&cfg, util.DiscardLogger())
	require.NoError(t, err)

	// the embedded ids point back at the admin in its delegate group
	token := signClaims(t, key, security.Claims{
		ClientID: "admin",
		UserID:   security.AdminID,
		GroupID:  100,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   security.DelegateGroup,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})

	status := acldb.FindIdsFromJwt(token)
	require.Equal(t, security.CodeNone, status.Err)
	assert.Equal(t, "admin", status.UserName)
	assert.Equal(t, security.DelegateGroup, status.GroupName)

	// an unknown embedded subject fails resolution
	token = signClaims(t, key, security.Claims{
		ClientID: "admin",
		UserID:   4444,
		GroupID:  102,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   security.DelegateGroup,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	assert.Equal(t, security.CodeInvalidCredentials, acldb.FindIdsFromJwt(token).Err)
}

package security_test

import (
	"media-gateway/internal/security"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const namespace = "media.rudi.aqmo.org"

func TestIDFromString_Numeric(t *testing.T) {
	id, uid, err := security.IDFromString("alice", "2001", namespace)
	require.NoError(t, err)
	assert.Equal(t, 2001, id)

	parsed, err := uuid.Parse(uid)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
	assert.Equal(t, uuid.NewSHA1(uuid.NameSpaceURL, []byte("2001."+namespace)), parsed)

	_, again, err := security.IDFromString("bob", "2001", namespace)
	require.NoError(t, err)
	assert.Equal(t, uid, again)
}

func TestIDFromString_Ranges(t *testing.T) {
	tests := []struct {
		name  string
		value string
		valid bool
	}{
		{"admin", "4", true},
		{"alice", "4", false},
		{"alice", "50", false},
		{"auth", "101", true},
		{"alice", "500", false},
		{"alice", "999", false},
		{"alice", "1000", true},
		{"alice", "-3", false},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.value, func(t *testing.T) {
			_, _, err := security.IDFromString(tt.name, tt.value, namespace)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, security.ErrInvalidIdentity)
			}
		})
	}
}

func TestIDFromString_UUID(t *testing.T) {
	v4 := uuid.New()
	id, uid, err := security.IDFromString("alice", v4.String(), namespace)
	require.NoError(t, err)
	assert.Equal(t, v4.String(), uid)
	assert.Equal(t, security.UserIDStart+int(v4[10])<<8+int(v4[11]), id)

	v5 := uuid.NewSHA1(uuid.NameSpaceURL, []byte("anything"))
	_, _, err = security.IDFromString("alice", v5.String(), namespace)
	assert.ErrorIs(t, err, security.ErrIrreversibleUUID)

	v1 := uuid.Must(uuid.NewUUID())
	_, _, err = security.IDFromString("alice", v1.String(), namespace)
	assert.ErrorIs(t, err, security.ErrInvalidIdentity)

	_, _, err = security.IDFromString("alice", "not-an-id", namespace)
	assert.ErrorIs(t, err, security.ErrInvalidIdentity)
}

func TestIdentityRoundTrip(t *testing.T) {
	for _, id := range []int{1000, 1001, 2001, 4242, 66535} {
		uid, err := security.UUIDFromID(id)
		require.NoError(t, err)

		back, err := security.IDFromUUID(uid)
		require.NoError(t, err)
		assert.Equal(t, id, back)

		again, err := security.UUIDFromID(back)
		require.NoError(t, err)
		assert.Equal(t, uid, again)
	}

	_, err := security.UUIDFromID(999)
	assert.ErrorIs(t, err, security.ErrInvalidIdentity)
	_, err = security.UUIDFromID(66536)
	assert.ErrorIs(t, err, security.ErrInvalidIdentity)
}

func TestIDFromUUID_RejectsV5(t *testing.T) {
	_, uid, err := security.IDFromString("alice", "2001", namespace)
	require.NoError(t, err)

	_, err = security.IDFromUUID(uid)
	assert.ErrorIs(t, err, security.ErrIrreversibleUUID)
}

package apikey_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-filing/internal/apikey"
)

func TestGenerateAndMatch(t *testing.T) {
	key, record, err := apikey.Generate()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(key, "vf_"))

	id, _, err := apikey.Split(key)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(record, id+":$argon2id$v=19$m=19456,t=1,p=1$"))

	ring, err := apikey.NewKeyring([]string{record})
	require.NoError(t, err)
	require.True(t, ring.Enabled())

	got, ok := ring.Match(key)
	require.True(t, ok)
	require.Equal(t, id, got)

	_, ok = ring.Match(key + "x")
	require.False(t, ok)
	_, ok = ring.Match("vf_ffffffff.secret")
	require.False(t, ok)
	_, ok = ring.Match("")
	require.False(t, ok)
}

func TestRecordRoundTrip(t *testing.T) {
	record, err := apikey.Hash("vf_0a0b0c0d.s3cret")
	require.NoError(t, err)

	r, err := apikey.ParseRecord(record)
	require.NoError(t, err)
	require.Equal(t, "0a0b0c0d", r.ID)
	require.Equal(t, record, r.String())
	require.True(t, r.Verify("s3cret"))
	require.False(t, r.Verify("s3cret!"))
}

func TestSplit(t *testing.T) {
	id, secret, err := apikey.Split(" vf_abc.def ")
	require.NoError(t, err)
	require.Equal(t, "abc", id)
	require.Equal(t, "def", secret)

	for _, bad := range []string{"abc.def", "vf_abc", "vf_.def", "vf_abc.", ""} {
		_, _, err := apikey.Split(bad)
		require.ErrorIs(t, err, apikey.ErrMalformedKey, bad)
	}
	_, err = apikey.Hash("not-a-key")
	require.ErrorIs(t, err, apikey.ErrMalformedKey)
}

func TestNewKeyringRejectsBadRecords(t *testing.T) {
	record, err := apikey.Hash("vf_01.secret")
	require.NoError(t, err)

	for _, bad := range [][]string{
		{"garbage"},
		{"01:$bcrypt$nope"},
		{"01:$argon2id$v=18$m=19456,t=1,p=1$c2FsdA$c3Vt"},
		{"01:$argon2id$v=19$m=0,t=1,p=1$c2FsdA$c3Vt"},
		{record, record},
	} {
		_, err := apikey.NewKeyring(bad)
		require.Error(t, err, bad)
	}

	empty, err := apikey.NewKeyring(nil)
	require.NoError(t, err)
	require.False(t, empty.Enabled())
	_, ok := empty.Match("vf_01.secret")
	require.False(t, ok)
}

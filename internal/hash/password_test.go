package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	digest, err := Hash("correct horse battery staple")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse battery staple", digest)

	require.True(t, Verify("correct horse battery staple", digest))
	require.False(t, Verify("wrong password", digest))
}

func TestVerifyRejectsMalformedStoredHash(t *testing.T) {
	require.False(t, Verify("anything", "not-a-bcrypt-hash"))
}

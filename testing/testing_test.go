package testing

import (
	"testing"

	"student_25_hbbft/networking"
	"student_25_hbbft/tpke"

	"github.com/stretchr/testify/require"
)

func TestSetupNetwork(t *testing.T) {
	ifaces, err := SetupNetwork(networking.NewFakeNetwork(), 4)
	require.NoError(t, err)
	require.Len(t, ifaces, 4)
	for i, iface := range ifaces {
		require.Equal(t, int64(i), iface.GetID())
	}
	require.NoError(t, CloseNetwork(ifaces))
}

func TestSetupSchemes(t *testing.T) {
	schemes, err := SetupSchemes(4, 1)
	require.NoError(t, err)
	require.Len(t, schemes, 4)

	ciphertext, err := schemes[0].Encrypt([]byte("hello"))
	require.NoError(t, err)

	s1, err := schemes[1].DecryptShare(ciphertext)
	require.NoError(t, err)
	s3, err := schemes[3].DecryptShare(ciphertext)
	require.NoError(t, err)
	require.True(t, schemes[2].ShareGood(ciphertext, s1))

	plaintext, err := schemes[2].Decrypt(ciphertext, []*tpke.DecryptionShare{s1, s3})
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), plaintext)
}

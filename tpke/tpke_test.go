package tpke

import (
	"testing"

	"student_25_hbbft/honeybadger"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v4/group/edwards25519"
	"go.dedis.ch/kyber/v4/share"
)

var _ honeybadger.ThresholdEncryption[*DecryptionShare] = (*Scheme)(nil)

func setupSchemes(t *testing.T, n, threshold int) []*Scheme {
	suite := edwards25519.NewBlakeSHA256Ed25519()
	pk, sks, err := Deal(suite, n, threshold)
	require.NoError(t, err)
	require.Len(t, sks, n)

	schemes := make([]*Scheme, n)
	for i, sk := range sks {
		require.Equal(t, i, sk.Index())
		schemes[i] = NewScheme(pk, sk)
	}
	return schemes
}

func decryptionShares(t *testing.T, schemes []*Scheme, ciphertext []byte) []*DecryptionShare {
	shares := make([]*DecryptionShare, len(schemes))
	for i, s := range schemes {
		d, err := s.DecryptShare(ciphertext)
		require.NoError(t, err)
		require.True(t, schemes[0].ShareGood(ciphertext, d))
		shares[i] = d
	}
	return shares
}

func TestDeal_InvalidThreshold(t *testing.T) {
	suite := edwards25519.NewBlakeSHA256Ed25519()
	_, _, err := Deal(suite, 4, 0)
	require.Error(t, err)
	_, _, err = Deal(suite, 4, 5)
	require.Error(t, err)
}

func TestScheme_RoundTrip(t *testing.T) {
	schemes := setupSchemes(t, 4, 2)
	plaintext := []byte("Hello Honey Badger")

	ciphertext, err := schemes[3].Encrypt(plaintext)
	require.NoError(t, err)
	require.NotContains(t, string(ciphertext), string(plaintext))

	shares := decryptionShares(t, schemes, ciphertext)

	// any two shares decrypt
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			decrypted, err := schemes[0].Decrypt(ciphertext, []*DecryptionShare{shares[i], shares[j]})
			require.NoError(t, err)
			require.Equal(t, plaintext, decrypted)
		}
	}
}

func TestScheme_EmptyPlaintext(t *testing.T) {
	schemes := setupSchemes(t, 1, 1)
	ciphertext, err := schemes[0].Encrypt(nil)
	require.NoError(t, err)

	d, err := schemes[0].DecryptShare(ciphertext)
	require.NoError(t, err)
	decrypted, err := schemes[0].Decrypt(ciphertext, []*DecryptionShare{d})
	require.NoError(t, err)
	require.Empty(t, decrypted)
}

func TestScheme_InsufficientShares(t *testing.T) {
	schemes := setupSchemes(t, 4, 2)
	ciphertext, err := schemes[0].Encrypt([]byte("secret"))
	require.NoError(t, err)
	shares := decryptionShares(t, schemes, ciphertext)

	_, err = schemes[0].Decrypt(ciphertext, shares[:1])
	require.ErrorIs(t, err, ErrInsufficientShares)

	// the same share twice only counts once
	_, err = schemes[0].Decrypt(ciphertext, []*DecryptionShare{shares[1], shares[1]})
	require.ErrorIs(t, err, ErrInsufficientShares)
}

func TestScheme_TamperedCiphertext(t *testing.T) {
	schemes := setupSchemes(t, 4, 2)
	ciphertext, err := schemes[0].Encrypt([]byte("do not touch"))
	require.NoError(t, err)
	shares := decryptionShares(t, schemes, ciphertext)

	tampered := append([]byte{}, ciphertext...)
	tampered[len(tampered)-1] ^= 0xff

	_, err = schemes[1].DecryptShare(tampered)
	require.ErrorIs(t, err, ErrMalformedCiphertext)
	require.False(t, schemes[1].ShareGood(tampered, shares[0]))
	_, err = schemes[1].Decrypt(tampered, shares)
	require.ErrorIs(t, err, ErrMalformedCiphertext)

	_, err = schemes[1].DecryptShare([]byte("short"))
	require.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestScheme_ShareOfAnotherCiphertext(t *testing.T) {
	schemes := setupSchemes(t, 4, 2)
	c1, err := schemes[0].Encrypt([]byte("one"))
	require.NoError(t, err)
	c2, err := schemes[0].Encrypt([]byte("two"))
	require.NoError(t, err)

	d, err := schemes[2].DecryptShare(c1)
	require.NoError(t, err)
	require.True(t, schemes[0].ShareGood(c1, d))
	require.False(t, schemes[0].ShareGood(c2, d))
	require.False(t, schemes[0].ShareGood(c1, nil))
}

func TestScheme_InvalidSharesAreReported(t *testing.T) {
	schemes := setupSchemes(t, 4, 2)
	ciphertext, err := schemes[0].Encrypt([]byte("secret"))
	require.NoError(t, err)
	shares := decryptionShares(t, schemes, ciphertext)

	// share of node 2 relabelled as node 3's
	forged := &DecryptionShare{Share: &share.PubShare{I: 3, V: shares[2].Share.V}, Proof: shares[2].Proof}
	require.False(t, schemes[0].ShareGood(ciphertext, forged))

	_, err = schemes[0].Decrypt(ciphertext, []*DecryptionShare{shares[0], forged})
	var invalid *InvalidSharesError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, []int{3}, invalid.Indices)
	require.Equal(t, 1, invalid.Valid)
	require.ErrorIs(t, err, ErrInsufficientShares)

	// enough valid shares decrypt despite the forged one
	plaintext, err := schemes[0].Decrypt(ciphertext, []*DecryptionShare{forged, shares[0], shares[1]})
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), plaintext)
}

func TestDecryptionShare_Marshalling(t *testing.T) {
	schemes := setupSchemes(t, 4, 2)
	ciphertext, err := schemes[0].Encrypt([]byte("secret"))
	require.NoError(t, err)
	d, err := schemes[1].DecryptShare(ciphertext)
	require.NoError(t, err)

	data, err := d.MarshalBinary()
	require.NoError(t, err)

	suite := edwards25519.NewBlakeSHA256Ed25519()
	decoded, err := UnmarshalDecryptionShare(suite, data)
	require.NoError(t, err)
	require.Equal(t, 1, decoded.Index())
	require.True(t, schemes[0].ShareGood(ciphertext, decoded))

	_, err = UnmarshalDecryptionShare(suite, append(data, 0))
	require.ErrorIs(t, err, ErrInvalidShare)
	_, err = UnmarshalDecryptionShare(suite, data[:10])
	require.ErrorIs(t, err, ErrInvalidShare)
}

func TestPrivateKey_Marshalling(t *testing.T) {
	suite := edwards25519.NewBlakeSHA256Ed25519()
	pk, sks, err := Deal(suite, 4, 2)
	require.NoError(t, err)

	data, err := sks[2].MarshalBinary()
	require.NoError(t, err)
	sk, err := UnmarshalPrivateKey(suite, data)
	require.NoError(t, err)
	require.Equal(t, 2, sk.Index())
	require.True(t, sks[2].Share.V.Equal(sk.Share.V))

	// the restored key still produces valid shares
	scheme := NewScheme(pk, sk)
	ciphertext, err := scheme.Encrypt([]byte("x"))
	require.NoError(t, err)
	d, err := scheme.DecryptShare(ciphertext)
	require.NoError(t, err)
	require.True(t, scheme.ShareGood(ciphertext, d))
}

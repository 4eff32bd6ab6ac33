package tpke

import (
	"sort"

	"go.dedis.ch/kyber/v4/share"
	"golang.org/x/xerrors"
)

// Scheme is the threshold encryption of one participant: the public key
// and its own key share. It works on encoded ciphertexts and is safe for
// concurrent use.
type Scheme struct {
	pk *PublicKey
	sk *PrivateKey
}

func NewScheme(pk *PublicKey, sk *PrivateKey) *Scheme {
	return &Scheme{pk: pk, sk: sk}
}

func (s *Scheme) PublicKey() *PublicKey {
	return s.pk
}

func (s *Scheme) Threshold() int {
	return s.pk.T
}

func (s *Scheme) Encrypt(plaintext []byte) ([]byte, error) {
	c, err := s.pk.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	return c.MarshalBinary()
}

// ShareGood tells whether share is a valid decryption share of a valid
// ciphertext
func (s *Scheme) ShareGood(ciphertext []byte, share *DecryptionShare) bool {
	c, err := s.pk.parse(ciphertext)
	if err != nil {
		return false
	}
	return s.pk.verifyShare(c, share) == nil
}

// DecryptShare computes the local decryption share. It fails with
// ErrMalformedCiphertext if the ciphertext is not valid.
func (s *Scheme) DecryptShare(ciphertext []byte) (*DecryptionShare, error) {
	c, err := s.pk.parse(ciphertext)
	if err != nil {
		return nil, err
	}
	return s.pk.decryptionShare(s.sk, c)
}

// Decrypt combines the valid shares among the given ones. Shares are
// identified by their index: only the first share of each index counts.
// Invalid shares are skipped, and reported in an *InvalidSharesError if
// fewer than T valid ones remain.
func (s *Scheme) Decrypt(ciphertext []byte, shares []*DecryptionShare) ([]byte, error) {
	c, err := s.pk.parse(ciphertext)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]struct{}, len(shares))
	valid := make([]*share.PubShare, 0, len(shares))
	invalid := make([]int, 0)
	for _, d := range shares {
		if d == nil || d.Share == nil {
			continue
		}
		if _, ok := seen[d.Index()]; ok {
			continue
		}
		seen[d.Index()] = struct{}{}

		if s.pk.verifyShare(c, d) != nil {
			invalid = append(invalid, d.Index())
			continue
		}
		valid = append(valid, d.Share)
	}

	if len(valid) < s.pk.T {
		if len(invalid) > 0 {
			sort.Ints(invalid)
			return nil, &InvalidSharesError{Indices: invalid, Valid: len(valid), Needed: s.pk.T}
		}
		return nil, xerrors.Errorf("%d of %d: %w", len(valid), s.pk.T, ErrInsufficientShares)
	}

	// rY = x U, interpolated in the exponent
	k, err := share.RecoverCommit(s.pk.suite, valid, s.pk.T, s.pk.N())
	if err != nil {
		return nil, err
	}
	return mask(s.pk.suite, k, c.V)
}

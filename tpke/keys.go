// Package tpke implements a threshold public key encryption scheme in the
// style of TDH2 (Shoup and Gennaro): ciphertexts carry a proof of their own
// validity, and decryption shares carry a proof that they were computed
// with the key share of their sender.
//
// The key shares are dealt by a trusted dealer, which is only meant for
// tests and simulations.
package tpke

import (
	"fmt"

	"student_25_hbbft/marshalling"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/share"
	"golang.org/x/xerrors"
)

type Suite interface {
	kyber.Group
	kyber.HashFactory
	kyber.XOFFactory
	kyber.Random
}

// PublicKey is known to every participant
type PublicKey struct {
	suite Suite
	// Y = xG is the encryption key
	Y kyber.Point
	// VKs[i] = x_i G verifies the decryption shares of participant i
	VKs []*share.PubShare
	// T shares are needed to decrypt
	T int
}

// N is the number of key shares
func (pk *PublicKey) N() int {
	return len(pk.VKs)
}

// PrivateKey is the key share of a single participant
type PrivateKey struct {
	Share *share.PriShare
}

// Index returns the index of the participant owning the key share
func (sk *PrivateKey) Index() int {
	return int(sk.Share.I)
}

func (sk *PrivateKey) MarshalBinary() ([]byte, error) {
	return marshalling.MarshalPriShare(sk.Share)
}

func UnmarshalPrivateKey(g kyber.Group, data []byte) (*PrivateKey, error) {
	s, err := marshalling.UnmarshalPriShare(data, g)
	if err != nil {
		return nil, xerrors.Errorf("invalid private key: %w", err)
	}
	return &PrivateKey{Share: s}, nil
}

// Deal samples a fresh key and splits it into n shares, any t of which can
// decrypt. Share i belongs to participant i.
func Deal(suite Suite, n, t int) (*PublicKey, []*PrivateKey, error) {
	if t < 1 || t > n {
		return nil, nil, fmt.Errorf("threshold %d out of range [1, %d]", t, n)
	}

	poly := share.NewPriPoly(suite, t, nil, suite.RandomStream())
	pubPoly := poly.Commit(nil)

	pk := &PublicKey{
		suite: suite,
		Y:     pubPoly.Commit(),
		VKs:   pubPoly.Shares(n),
		T:     t,
	}

	priShares := poly.Shares(n)
	sks := make([]*PrivateKey, n)
	for i, s := range priShares {
		sks[i] = &PrivateKey{Share: s}
	}
	return pk, sks, nil
}

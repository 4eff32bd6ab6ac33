// Package honeybadger implements one epoch of HoneyBadgerBFT: every node
// encrypts its proposal, the nodes agree on a common subset of ciphertexts,
// and each agreed ciphertext is threshold-decrypted by accumulating shares
// from peers. The proposals that decrypt and decode form the block.
//
// The package is parametric over four capabilities supplied by the
// embedding system: a threshold encryption scheme, an asynchronous common
// subset agreement, a share exchange channel and the application protocol.
package honeybadger

import (
	"context"
)

// ThresholdEncryption is a threshold encryption scheme with verifiable
// decryption shares of type S. Implementations must be safe for concurrent
// use: the same handle is given to every accumulator of an epoch.
type ThresholdEncryption[S any] interface {
	// Threshold returns how many shares are required to decrypt.
	// Should be equal to f+1.
	Threshold() int
	// Encrypt encrypts a plaintext
	Encrypt(plaintext []byte) ([]byte, error)
	// ShareGood returns whether the share is a valid decryption share for
	// the ciphertext.
	ShareGood(ciphertext []byte, share S) bool
	// DecryptShare creates the local decryption share. Fails if the
	// ciphertext is malformed.
	DecryptShare(ciphertext []byte) (S, error)
	// Decrypt combines decryption shares. Fails if there are fewer than
	// Threshold valid shares or if the ciphertext is invalid.
	Decrypt(ciphertext []byte, shares []S) ([]byte, error)
}

// CommonSubset reaches agreement with all other nodes on the set of
// (potentially invalid) ciphertexts.
type CommonSubset interface {
	// Agree inputs the local ciphertext and blocks until the nodes agree on
	// a mapping from origin index to the ciphertext that origin
	// contributed. It only fails if more than f nodes misbehave or the
	// epoch is aborted.
	Agree(ctx context.Context, input []byte) (map[int][]byte, error)
}

// ShareExchange exchanges decryption shares with peers. If the local node
// finds a ciphertext invalid, it sends an absent vote attesting to it.
type ShareExchange[S any] interface {
	// ExchangeShares sends the local vote for the ciphertext of origin and
	// returns the stream of votes received from peers for it.
	ExchangeShares(origin int, local Vote[S]) VoteStream[S]
}

// VoteStream delivers the votes of peers for one ciphertext, in arrival
// order.
type VoteStream[S any] interface {
	// Next blocks until the next vote arrives. It returns io.EOF once no
	// further vote will arrive and the context error if ctx is done. Any
	// other error is transient and the call may be retried.
	Next(ctx context.Context) (Vote[S], error)
}

// Protocol is the application HoneyBadgerBFT is run for.
type Protocol[P any, B any] interface {
	// DecodeProposal decodes a decrypted proposal
	DecodeProposal(data []byte) (P, error)
	// CombineProposals combines a set of proposals into a block in such a
	// way that ordering doesn't matter.
	CombineProposals(proposals []P) B
}

// Vote is either a decryption share or an attestation that the ciphertext
// is invalid.
type Vote[S any] struct {
	share   S
	present bool
}

// ShareVote returns a vote carrying the given share
func ShareVote[S any](share S) Vote[S] {
	return Vote[S]{share: share, present: true}
}

// AbsentVote returns a vote attesting to the ciphertext's invalidity
func AbsentVote[S any]() Vote[S] {
	return Vote[S]{}
}

// Share returns the share of the vote and true, or false if the vote is an
// invalidity attestation.
func (v Vote[S]) Share() (S, bool) {
	return v.share, v.present
}

// IsAbsent returns true for invalidity attestations
func (v Vote[S]) IsAbsent() bool {
	return !v.present
}

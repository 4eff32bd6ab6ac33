package tpke

import (
	"fmt"

	"golang.org/x/xerrors"
)

var (
	// ErrMalformedCiphertext is returned for ciphertexts that cannot be
	// parsed or whose validity proof does not verify
	ErrMalformedCiphertext = xerrors.New("malformed ciphertext")
	// ErrInsufficientShares is returned when fewer than T valid shares are
	// given to Decrypt
	ErrInsufficientShares = xerrors.New("not enough valid decryption shares")
	ErrInvalidShare       = xerrors.New("invalid decryption share")
)

// InvalidSharesError is returned by Decrypt when rejected shares left it
// without enough valid ones. Indices lists the participants whose shares
// were rejected.
type InvalidSharesError struct {
	Indices []int
	Valid   int
	Needed  int
}

func (e *InvalidSharesError) Error() string {
	return fmt.Sprintf("%d valid decryption shares of %d needed, rejected shares from %v",
		e.Valid, e.Needed, e.Indices)
}

func (e *InvalidSharesError) Unwrap() error {
	return ErrInsufficientShares
}

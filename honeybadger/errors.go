package honeybadger

import (
	"errors"
	"fmt"
)

// Epoch-fatal errors. These are the only errors returned by Epoch.Run.
var (
	ErrAgreementFailed  = errors.New("agreement failed")
	ErrEpochAborted     = errors.New("epoch aborted")
	ErrProposalEncoding = errors.New("failed to encrypt local proposal")
	ErrEpochReused      = errors.New("epoch already run")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// ErrCiphertextInvalid is the root of every reason a ciphertext is excluded
// from the block by its accumulator.
var ErrCiphertextInvalid = errors.New("bad ciphertext")

var (
	// ErrBadCiphertext means 2f+1 peers attested to the ciphertext's invalidity
	ErrBadCiphertext = fmt.Errorf("%w: invalidity quorum reached", ErrCiphertextInvalid)
	// ErrDecryptFailed means decryption failed after threshold good shares
	ErrDecryptFailed = fmt.Errorf("%w: decryption failed", ErrCiphertextInvalid)
	// ErrInconclusive means the votes ran out before either quorum
	ErrInconclusive = fmt.Errorf("%w: votes exhausted without quorum", ErrCiphertextInvalid)
)

// ErrNotResolved is returned when querying the result of an accumulator
// still accumulating.
var ErrNotResolved = errors.New("accumulator not resolved")

// DecodeError is a decrypted proposal the protocol failed to decode
type DecodeError struct {
	Origin int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode proposal of origin %d: %v", e.Origin, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

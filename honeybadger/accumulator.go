package honeybadger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	retryInitialInterval = time.Millisecond
	retryMaxInterval     = 200 * time.Millisecond
)

// State is the state of a ShareAccumulator
type State int8

const (
	Accumulating State = iota
	Good
	Bad
)

func (s State) String() string {
	switch s {
	case Accumulating:
		return "accumulating"
	case Good:
		return "good"
	case Bad:
		return "bad"
	default:
		return fmt.Sprintf("state(%d)", int8(s))
	}
}

// AccumulatorConfig holds what a ShareAccumulator needs for one agreed
// ciphertext
type AccumulatorConfig[S any] struct {
	Origin        int
	NParticipants int
	Ciphertext    []byte
	Scheme        ThresholdEncryption[S]
	Votes         VoteStream[S]
	Metrics       *Metrics
	Logger        zerolog.Logger
}

// ShareAccumulator resolves the decryption of one agreed ciphertext from
// the votes of the peers. It ends either Good, with the plaintext, or Bad.
// A ShareAccumulator is owned by a single goroutine.
type ShareAccumulator[S any] struct {
	origin     int
	n          int
	ciphertext []byte
	scheme     ThresholdEncryption[S]
	votes      VoteStream[S]
	metrics    *Metrics
	log        zerolog.Logger

	state      State
	goodShares []S
	badVotes   int
	consumed   int
	plaintext  []byte
	err        error
}

// NewShareAccumulator creates an accumulator and applies the local vote to
// it, which may already resolve it.
func NewShareAccumulator[S any](conf *AccumulatorConfig[S], local Vote[S]) *ShareAccumulator[S] {
	a := &ShareAccumulator[S]{
		origin:     conf.Origin,
		n:          conf.NParticipants,
		ciphertext: conf.Ciphertext,
		scheme:     conf.Scheme,
		votes:      conf.Votes,
		metrics:    conf.Metrics,
		log:        conf.Logger.With().Int("origin", conf.Origin).Logger(),
		state:      Accumulating,
		goodShares: make([]S, 0, conf.Scheme.Threshold()),
	}
	a.accumulate(local)
	return a
}

// Origin returns the index of the node whose ciphertext is accumulated
func (a *ShareAccumulator[S]) Origin() int {
	return a.origin
}

// State returns the current state
func (a *ShareAccumulator[S]) State() State {
	return a.state
}

// BadVotes returns the number of invalidity attestations applied so far
func (a *ShareAccumulator[S]) BadVotes() int {
	return a.badVotes
}

// GoodShares returns the number of valid shares applied so far
func (a *ShareAccumulator[S]) GoodShares() int {
	return len(a.goodShares)
}

// Resolve pulls votes from the stream until the accumulator resolves and
// returns its result. Transient stream errors are retried with an
// exponential backoff, without touching the state. If ctx is done first,
// the context error is returned and the accumulator stays unresolved. Once
// resolved, Resolve returns the same result without reading the stream.
func (a *ShareAccumulator[S]) Resolve(ctx context.Context) ([]byte, error) {
	var retry *backoff.ExponentialBackOff
	for a.state == Accumulating {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vote, err := a.votes.Next(ctx)
		switch {
		case err == nil:
			if retry != nil {
				retry.Reset()
			}
			a.accumulate(vote)
		case errors.Is(err, io.EOF):
			a.log.Debug().Msgf("vote stream ended after %d votes", a.consumed)
			a.resolveBad(ErrInconclusive)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			a.metrics.transientError()
			if retry == nil {
				retry = backoff.NewExponentialBackOff(
					backoff.WithInitialInterval(retryInitialInterval),
					backoff.WithMaxInterval(retryMaxInterval),
					backoff.WithMaxElapsedTime(0),
				)
			}
			wait := retry.NextBackOff()
			a.log.Debug().Err(err).Msgf("failed to receive vote, retrying in %s", wait)
			err = sleep(ctx, wait)
			if err != nil {
				return nil, err
			}
		}
	}
	return a.Result()
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result returns the plaintext if the accumulator resolved Good, the reason
// if it resolved Bad, and ErrNotResolved otherwise.
func (a *ShareAccumulator[S]) Result() ([]byte, error) {
	switch a.state {
	case Good:
		return a.plaintext, nil
	case Bad:
		return nil, a.err
	default:
		return nil, ErrNotResolved
	}
}

// accumulate applies one vote. Applying a vote to a resolved accumulator
// is an orchestration bug.
func (a *ShareAccumulator[S]) accumulate(vote Vote[S]) {
	if a.state != Accumulating {
		panic(fmt.Sprintf("vote applied to %s accumulator of origin %d", a.state, a.origin))
	}
	a.consumed++

	share, ok := vote.Share()
	if !ok {
		a.badVotes++
		f := a.scheme.Threshold() - 1
		if a.badVotes >= 2*f+1 {
			a.resolveBad(ErrBadCiphertext)
			return
		}
	} else if !a.scheme.ShareGood(a.ciphertext, share) {
		// junk shares are noise, not evidence of invalidity
		a.metrics.shareDiscarded()
		a.log.Debug().Msg("discarding invalid decryption share")
	} else {
		a.goodShares = append(a.goodShares, share)
		if len(a.goodShares) >= a.scheme.Threshold() {
			plaintext, err := a.scheme.Decrypt(a.ciphertext, a.goodShares)
			if err != nil {
				a.log.Warn().Err(err).Msg("decryption failed with verified shares")
				a.resolveBad(fmt.Errorf("%w: %w", ErrDecryptFailed, err))
				return
			}
			a.resolveGood(plaintext)
			return
		}
	}

	if a.n > 0 && a.consumed >= a.n {
		a.resolveBad(ErrInconclusive)
	}
}

func (a *ShareAccumulator[S]) resolveGood(plaintext []byte) {
	a.state = Good
	a.plaintext = plaintext
	a.log.Debug().Msgf("decrypted after %d votes", a.consumed)
}

func (a *ShareAccumulator[S]) resolveBad(reason error) {
	a.state = Bad
	a.err = reason
	a.log.Debug().Err(reason).Msgf("excluded after %d votes, %d bad", a.consumed, a.badVotes)
}

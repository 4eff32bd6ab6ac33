package honeybadger

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"student_25_hbbft/logging"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// OutcomeKind tells how the proposal of an agreed origin ended up
type OutcomeKind int8

const (
	Included OutcomeKind = iota
	Invalid
	Inconclusive
	Undecodable
)

func (k OutcomeKind) String() string {
	switch k {
	case Included:
		return "included"
	case Invalid:
		return "invalid"
	case Inconclusive:
		return "inconclusive"
	case Undecodable:
		return "undecodable"
	default:
		return fmt.Sprintf("outcome(%d)", int8(k))
	}
}

// Outcome is the fate of one agreed origin's proposal in an epoch
type Outcome struct {
	Origin int
	Kind   OutcomeKind
	// Err is nil for included proposals
	Err error
}

// Epoch runs a single epoch of HoneyBadgerBFT. An Epoch can only be run
// once.
type Epoch[P encoding.BinaryMarshaler, B any, S any] struct {
	conf     *Config
	scheme   ThresholdEncryption[S]
	acs      CommonSubset
	exchange ShareExchange[S]
	protocol Protocol[P, B]
	metrics  *Metrics
	log      zerolog.Logger

	mu       sync.Mutex
	started  bool
	outcomes []Outcome
}

// NewEpoch validates the configuration and creates an epoch over the
// given capabilities.
func NewEpoch[P encoding.BinaryMarshaler, B any, S any](
	conf *Config,
	scheme ThresholdEncryption[S],
	acs CommonSubset,
	exchange ShareExchange[S],
	protocol Protocol[P, B],
) (*Epoch[P, B, S], error) {
	err := conf.Validate(scheme.Threshold())
	if err != nil {
		return nil, err
	}

	var logger zerolog.Logger
	if conf.Logger != nil {
		logger = *conf.Logger
	} else {
		logger = logging.GetLogger(conf.NodeID)
	}

	return &Epoch[P, B, S]{
		conf:     conf,
		scheme:   scheme,
		acs:      acs,
		exchange: exchange,
		protocol: protocol,
		metrics:  conf.Metrics,
		log:      logger.With().Uint64("epoch", conf.Epoch).Logger(),
	}, nil
}

// Run runs the epoch with the local proposal and returns the block. Only
// agreement failures, aborts (context cancellation or the configured
// timeout) and a local proposal that cannot be encrypted are returned as
// errors: without a ciphertext the node has nothing to agree on. Proposals
// that cannot be decrypted or decoded are left out of the block.
func (e *Epoch[P, B, S]) Run(ctx context.Context, proposal P) (B, error) {
	var block B

	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return block, ErrEpochReused
	}
	e.started = true
	e.mu.Unlock()

	if e.conf.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.conf.Timeout)
		defer cancel()
	}
	start := time.Now()

	data, err := proposal.MarshalBinary()
	if err != nil {
		e.metrics.aborted()
		return block, fmt.Errorf("%w: %w", ErrProposalEncoding, err)
	}
	ciphertext, err := e.scheme.Encrypt(data)
	if err != nil {
		e.metrics.aborted()
		return block, fmt.Errorf("%w: %w", ErrProposalEncoding, err)
	}

	subset, err := e.acs.Agree(ctx, ciphertext)
	if err != nil {
		e.metrics.aborted()
		if ctx.Err() != nil {
			return block, fmt.Errorf("%w: %w", ErrEpochAborted, ctx.Err())
		}
		e.log.Error().Err(err).Msg("agreement failed")
		return block, fmt.Errorf("%w: %w", ErrAgreementFailed, err)
	}
	e.log.Info().Msgf("agreed on %d ciphertexts", len(subset))

	accumulators := e.accumulators(subset)

	g, gctx := errgroup.WithContext(ctx)
	for _, acc := range accumulators {
		g.Go(func() error {
			_, err := acc.Resolve(gctx)
			if err != nil && !errors.Is(err, ErrCiphertextInvalid) {
				return err
			}
			return nil
		})
	}
	err = g.Wait()
	if err != nil {
		e.metrics.aborted()
		e.log.Warn().Err(err).Msg("epoch aborted while accumulating shares")
		return block, fmt.Errorf("%w: %w", ErrEpochAborted, err)
	}

	proposals := make([]P, 0, len(accumulators))
	outcomes := make([]Outcome, 0, len(accumulators))
	for _, acc := range accumulators {
		outcome := Outcome{Origin: acc.Origin()}
		plaintext, err := acc.Result()
		switch {
		case errors.Is(err, ErrInconclusive):
			outcome.Kind, outcome.Err = Inconclusive, err
		case err != nil:
			outcome.Kind, outcome.Err = Invalid, err
		default:
			p, err := e.protocol.DecodeProposal(plaintext)
			if err != nil {
				outcome.Kind, outcome.Err = Undecodable, &DecodeError{Origin: acc.Origin(), Err: err}
				break
			}
			outcome.Kind = Included
			proposals = append(proposals, p)
		}
		if outcome.Err != nil {
			e.log.Info().Err(outcome.Err).Int("origin", outcome.Origin).Msg("proposal excluded")
		}
		e.metrics.outcome(outcome.Kind)
		outcomes = append(outcomes, outcome)
	}

	block = e.protocol.CombineProposals(proposals)

	e.mu.Lock()
	e.outcomes = outcomes
	e.mu.Unlock()

	e.metrics.finished(start)
	e.log.Info().Msgf("block ready with %d of %d proposals in %s", len(proposals), len(accumulators),
		time.Since(start))
	return block, nil
}

// accumulators creates the accumulator of every agreed origin, in origin
// order, seeding each with the local vote.
func (e *Epoch[P, B, S]) accumulators(subset map[int][]byte) []*ShareAccumulator[S] {
	origins := make([]int, 0, len(subset))
	for origin := range subset {
		origins = append(origins, origin)
	}
	sort.Ints(origins)

	accumulators := make([]*ShareAccumulator[S], 0, len(origins))
	for _, origin := range origins {
		ciphertext := subset[origin]

		local := AbsentVote[S]()
		share, err := e.scheme.DecryptShare(ciphertext)
		if err != nil {
			e.log.Info().Err(err).Int("origin", origin).Msg("voting ciphertext invalid")
		} else {
			local = ShareVote(share)
		}

		votes := e.exchange.ExchangeShares(origin, local)
		accumulators = append(accumulators, NewShareAccumulator(&AccumulatorConfig[S]{
			Origin:        origin,
			NParticipants: e.conf.NParticipants,
			Ciphertext:    ciphertext,
			Scheme:        e.scheme,
			Votes:         votes,
			Metrics:       e.metrics,
			Logger:        e.log,
		}, local))
	}
	return accumulators
}

// Outcomes returns the fate of every agreed origin's proposal, sorted by
// origin. It is empty until Run returns a block.
func (e *Epoch[P, B, S]) Outcomes() []Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	res := make([]Outcome, len(e.outcomes))
	copy(res, e.outcomes)
	return res
}

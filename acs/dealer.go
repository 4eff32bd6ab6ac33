// Package acs provides a simulated asynchronous common subset: a dealer
// trusted by every participant collects their inputs and fixes the subset
// once n-f of them arrived.
package acs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrAborted        = errors.New("agreement aborted")
	ErrDuplicateInput = errors.New("participant already proposed")
	ErrUnknownNode    = errors.New("unknown participant")
)

// Dealer decides a common subset for a group of n participants of which at
// most f are faulty
type Dealer struct {
	n, f int
	log  zerolog.Logger

	mu      sync.Mutex
	inputs  map[int][]byte
	subset  map[int][]byte
	err     error
	decided chan struct{}
}

func NewDealer(n, f int, logger zerolog.Logger) (*Dealer, error) {
	if n < 1 || f < 0 || n < 3*f+1 {
		return nil, fmt.Errorf("cannot tolerate %d faults among %d participants", f, n)
	}
	return &Dealer{
		n:       n,
		f:       f,
		log:     logger.With().Str("component", "acs").Logger(),
		inputs:  make(map[int][]byte),
		decided: make(chan struct{}),
	}, nil
}

// Participant returns the view of the dealer of participant id, which
// implements honeybadger.CommonSubset
func (d *Dealer) Participant(id int) *Participant {
	return &Participant{dealer: d, id: id}
}

// Abort fails every pending and future agreement with ErrAborted
func (d *Dealer) Abort(reason error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isDecided() {
		return
	}
	d.err = fmt.Errorf("%w: %w", ErrAborted, reason)
	close(d.decided)
	d.log.Warn().Err(reason).Msg("agreement aborted")
}

// must be called with the lock held
func (d *Dealer) isDecided() bool {
	select {
	case <-d.decided:
		return true
	default:
		return false
	}
}

func (d *Dealer) propose(id int, input []byte) error {
	if id < 0 || id >= d.n {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inputs[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateInput, id)
	}
	d.inputs[id] = append([]byte{}, input...)

	if !d.isDecided() && len(d.inputs) >= d.n-d.f {
		d.subset = make(map[int][]byte, len(d.inputs))
		for origin, in := range d.inputs {
			d.subset[origin] = in
		}
		close(d.decided)
		d.log.Info().Msgf("subset decided with %d inputs", len(d.subset))
	}
	return nil
}

func (d *Dealer) result(ctx context.Context) (map[int][]byte, error) {
	select {
	case <-d.decided:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	// every caller gets its own copy of the map, the inputs are shared
	res := make(map[int][]byte, len(d.subset))
	for origin, in := range d.subset {
		res[origin] = in
	}
	return res, nil
}

// Participant is the view of a dealer of a single participant
type Participant struct {
	dealer *Dealer
	id     int
}

// Agree proposes input and waits for the subset. Inputs arriving after the
// decision are not part of it.
func (p *Participant) Agree(ctx context.Context, input []byte) (map[int][]byte, error) {
	err := p.dealer.propose(p.id, input)
	if err != nil {
		return nil, err
	}
	return p.dealer.result(ctx)
}

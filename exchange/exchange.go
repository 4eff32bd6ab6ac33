// Package exchange broadcasts the decryption share votes of an epoch over a
// network interface and delivers the votes of the peers, one stream per
// agreed ciphertext.
package exchange

import (
	"context"
	"sync"
	"sync/atomic"

	"student_25_hbbft/honeybadger"
	"student_25_hbbft/logging"
	"student_25_hbbft/networking"
	"student_25_hbbft/tools"

	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
)

// Codec encodes the shares of a threshold encryption scheme. Index
// returns the ID of the node that issued a share.
type Codec[S any] interface {
	Marshal(S) ([]byte, error)
	Unmarshal([]byte) (S, error)
	Index(S) int
}

type Config[S any] struct {
	Epoch         uint64
	NParticipants int
	Iface         networking.NetworkInterface
	Codec         Codec[S]
	// Logger overrides the default node logger
	Logger *zerolog.Logger
}

// Exchange implements honeybadger.ShareExchange. Every peer is expected to
// vote once per origin: later votes of the same sender are dropped, and the
// stream of an origin ends once all n-1 peers voted or the exchange is
// closed. A peer may only vote with its own share, so that each share
// index is delivered at most once.
type Exchange[S any] struct {
	conf    *Config[S]
	id      int64
	node    *networking.Node
	origins *tools.ConcurrentMap[int64, *originVotes[S]]
	log     zerolog.Logger

	closeOnce sync.Once
	closed    atomic.Bool
}

// originVotes collects the votes on a single origin
type originVotes[S any] struct {
	queue *tools.ConcurrentQueue[honeybadger.Vote[S]]

	mu      sync.Mutex
	senders map[int64]struct{}
}

func NewExchange[S any](conf *Config[S]) *Exchange[S] {
	id := conf.Iface.GetID()
	var logger zerolog.Logger
	if conf.Logger != nil {
		logger = *conf.Logger
	} else {
		logger = logging.GetLogger(id)
	}

	e := &Exchange[S]{
		conf:    conf,
		id:      id,
		node:    networking.NewNode(conf.Iface),
		origins: tools.NewConcurrentMap[int64, *originVotes[S]](),
		log:     logger.With().Uint64("epoch", conf.Epoch).Str("component", "exchange").Logger(),
	}
	e.node.SetCallback(e.handleMessage)
	return e
}

// Start receives votes until the context is done or the network interface
// is closed
func (e *Exchange[S]) Start(ctx context.Context) error {
	return e.node.Start(ctx)
}

// Close ends every vote stream. Votes already received can still be read.
func (e *Exchange[S]) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		for _, o := range e.origins.Values() {
			o.queue.Close()
		}
	})
}

func (e *Exchange[S]) votes(origin int64) *originVotes[S] {
	return e.origins.GetOrCreate(origin, func() *originVotes[S] {
		queue := tools.NewConcurrentQueue[honeybadger.Vote[S]](e.conf.NParticipants)
		if e.closed.Load() {
			queue.Close()
		}
		return &originVotes[S]{
			queue:   queue,
			senders: make(map[int64]struct{}),
		}
	})
}

// ExchangeShares broadcasts the local vote on the ciphertext of origin and
// returns the stream of the votes of the peers. A failed broadcast is
// logged: the peers will do without this vote.
func (e *Exchange[S]) ExchangeShares(origin int, local honeybadger.Vote[S]) honeybadger.VoteStream[S] {
	votes := e.votes(int64(origin))

	msg := &VoteMessage{Epoch: e.conf.Epoch, Origin: int64(origin), Sender: e.id}
	if share, ok := local.Share(); ok {
		bs, err := e.conf.Codec.Marshal(share)
		if err != nil {
			e.log.Error().Err(err).Int("origin", origin).Msg("failed to marshal local share")
			return stream[S]{votes.queue}
		}
		msg.Share = bs
	}

	bs, err := msg.MarshalBinary()
	if err == nil {
		err = e.node.Broadcast(bs)
	}
	if err != nil {
		e.log.Warn().Err(err).Int("origin", origin).Msg("failed to broadcast vote")
	}
	return stream[S]{votes.queue}
}

func (e *Exchange[S]) handleMessage(bs []byte) error {
	msg := &VoteMessage{}
	err := msg.UnmarshalBinary(bs)
	if err != nil {
		return err
	}

	n := int64(e.conf.NParticipants)
	switch {
	case msg.Epoch != e.conf.Epoch:
		return xerrors.Errorf("vote of epoch %d in epoch %d: %w", msg.Epoch, e.conf.Epoch, ErrInvalidMessage)
	case msg.Sender == e.id:
		// own broadcast, the local vote is already applied
		return nil
	case msg.Sender < 0 || msg.Sender >= n:
		return xerrors.Errorf("sender %d out of range: %w", msg.Sender, ErrInvalidMessage)
	case msg.Origin < 0 || msg.Origin >= n:
		return xerrors.Errorf("origin %d out of range: %w", msg.Origin, ErrInvalidMessage)
	}

	votes := e.votes(msg.Origin)
	votes.mu.Lock()
	defer votes.mu.Unlock()
	if _, ok := votes.senders[msg.Sender]; ok {
		e.log.Debug().Msgf("dropping duplicate vote of %d on origin %d", msg.Sender, msg.Origin)
		return nil
	}
	votes.senders[msg.Sender] = struct{}{}

	vote := honeybadger.AbsentVote[S]()
	if msg.Share != nil {
		share, err := e.conf.Codec.Unmarshal(msg.Share)
		if err != nil {
			// an unreadable share is not an invalidity attestation
			e.log.Debug().Err(err).Msgf("dropping unreadable share of %d on origin %d", msg.Sender, msg.Origin)
			e.closeIfComplete(votes)
			return nil
		}
		if idx := e.conf.Codec.Index(share); idx != int(msg.Sender) {
			// replayed share of another node, it would count twice
			e.log.Warn().Msgf("dropping share of %d sent by %d on origin %d", idx, msg.Sender, msg.Origin)
			e.closeIfComplete(votes)
			return nil
		}
		vote = honeybadger.ShareVote(share)
	}

	err = votes.queue.Push(vote)
	if err != nil {
		e.log.Debug().Err(err).Msgf("dropping vote of %d on origin %d", msg.Sender, msg.Origin)
	}
	e.closeIfComplete(votes)
	return nil
}

// closeIfComplete ends the stream once every peer voted. Must be called
// with votes.mu held.
func (e *Exchange[S]) closeIfComplete(votes *originVotes[S]) {
	if len(votes.senders) >= e.conf.NParticipants-1 {
		votes.queue.Close()
	}
}

type stream[S any] struct {
	queue *tools.ConcurrentQueue[honeybadger.Vote[S]]
}

// Next returns the next vote, or io.EOF once no vote will arrive
func (s stream[S]) Next(ctx context.Context) (honeybadger.Vote[S], error) {
	return s.queue.Pop(ctx)
}

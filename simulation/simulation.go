// Package simulation runs HoneyBadgerBFT epochs between in-process nodes
// connected by a fake or a TCP network, some of which may be byzantine.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"student_25_hbbft/acs"
	"student_25_hbbft/batch"
	"student_25_hbbft/exchange"
	"student_25_hbbft/honeybadger"
	"student_25_hbbft/networking"
	test "student_25_hbbft/testing"
	"student_25_hbbft/tpke"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/kyber/v4/group/edwards25519"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

var (
	ErrInvalidConfig = errors.New("invalid simulation configuration")
	// ErrDivergence means two honest nodes produced different blocks
	ErrDivergence = errors.New("honest nodes disagree on the block")
)

const (
	TransportFake = "fake"
	TransportTCP  = "tcp"
)

type Config struct {
	Nodes int `mapstructure:"nodes"`
	// Faulty is the number of faults f tolerated by the keys. Defaults to
	// the largest f with Nodes >= 3f+1.
	Faulty int `mapstructure:"faulty"`
	// Byzantine is the number of nodes misbehaving, at most Faulty. They
	// are the nodes with the lowest IDs.
	Byzantine int       `mapstructure:"byzantine"`
	Behaviour Behaviour `mapstructure:"behaviour"`
	Epochs    int       `mapstructure:"epochs"`
	// BatchSize is the number of transactions proposed by each node
	BatchSize int           `mapstructure:"batch-size"`
	Transport string        `mapstructure:"transport"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// DefaultConfig is four honest nodes running a single epoch
func DefaultConfig() Config {
	return Config{
		Nodes:     4,
		Faulty:    -1,
		Behaviour: Silent,
		Epochs:    1,
		BatchSize: 8,
		Transport: TransportFake,
		Timeout:   10 * time.Second,
	}
}

// Validate checks the configuration and fills in the default number of
// faults
func (c *Config) Validate() error {
	if c.Nodes < 1 {
		return fmt.Errorf("%w: need at least one node", ErrInvalidConfig)
	}
	if c.Faulty < 0 {
		c.Faulty = (c.Nodes - 1) / 3
	}
	if c.Nodes < 3*c.Faulty+1 {
		return fmt.Errorf("%w: %d nodes cannot tolerate %d faults", ErrInvalidConfig, c.Nodes, c.Faulty)
	}
	if c.Byzantine < 0 || c.Byzantine > c.Faulty {
		return fmt.Errorf("%w: %d byzantine nodes, at most %d tolerated", ErrInvalidConfig, c.Byzantine, c.Faulty)
	}
	if _, err := ParseBehaviour(string(c.Behaviour)); err != nil {
		return err
	}
	if c.Epochs < 1 {
		return fmt.Errorf("%w: need at least one epoch", ErrInvalidConfig)
	}
	if c.BatchSize < 0 || c.BatchSize > batch.DefaultMaxTxs {
		return fmt.Errorf("%w: batch size %d out of range [0, %d]", ErrInvalidConfig, c.BatchSize,
			batch.DefaultMaxTxs)
	}
	if c.Transport != TransportFake && c.Transport != TransportTCP {
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	return nil
}

// EpochResult is the block every honest node output in an epoch
type EpochResult struct {
	Epoch uint64
	Block batch.Block
	// Outcomes as seen by the first honest node
	Outcomes []honeybadger.Outcome
}

type node struct {
	id        int64
	byzantine bool
	scheme    *tpke.Scheme
}

// Simulation holds the nodes and keys shared by every epoch
type Simulation struct {
	conf     Config
	nodes    []node
	protocol batch.Protocol
	metrics  *honeybadger.Metrics
	log      zerolog.Logger
}

// New deals the keys of the nodes. Metrics are registered on reg if it is
// not nil.
func New(conf Config, reg prometheus.Registerer, logger zerolog.Logger) (*Simulation, error) {
	err := conf.Validate()
	if err != nil {
		return nil, err
	}

	schemes, err := test.SetupSchemes(conf.Nodes, conf.Faulty)
	if err != nil {
		return nil, xerrors.Errorf("failed to deal keys: %w", err)
	}
	nodes := make([]node, conf.Nodes)
	for i := range nodes {
		nodes[i] = node{id: int64(i), byzantine: i < conf.Byzantine, scheme: schemes[i]}
	}

	return &Simulation{
		conf:     conf,
		nodes:    nodes,
		protocol: batch.NewProtocol(),
		metrics:  honeybadger.NewMetrics(reg),
		log:      logger.With().Str("component", "simulation").Logger(),
	}, nil
}

// Run deals the keys and runs the configured number of epochs
func Run(ctx context.Context, conf Config, reg prometheus.Registerer, logger zerolog.Logger) ([]EpochResult, error) {
	sim, err := New(conf, reg, logger)
	if err != nil {
		return nil, err
	}
	return sim.Run(ctx)
}

func (s *Simulation) Run(ctx context.Context) ([]EpochResult, error) {
	results := make([]EpochResult, 0, s.conf.Epochs)
	for epoch := uint64(0); epoch < uint64(s.conf.Epochs); epoch++ {
		res, err := s.RunEpoch(ctx, epoch)
		if err != nil {
			return results, xerrors.Errorf("epoch %d: %w", epoch, err)
		}
		s.log.Info().Msgf("epoch %d: block of %d transactions, digest %x", epoch, len(res.Block.Txs),
			res.Block.Digest[:8])
		results = append(results, res)
	}
	return results, nil
}

func (s *Simulation) network() networking.Network {
	if s.conf.Transport == TransportTCP {
		return networking.NewTCPNetwork()
	}
	// every node receives at most one vote per node and origin
	return networking.NewFakeNetworkWithBuffer(s.conf.Nodes*s.conf.Nodes + 1)
}

// RunEpoch runs one epoch on a fresh network and agreement, and checks the
// honest nodes agree on the block
func (s *Simulation) RunEpoch(ctx context.Context, epoch uint64) (EpochResult, error) {
	n := s.conf.Nodes
	ifaces, err := test.SetupNetwork(s.network(), n)
	if err != nil {
		return EpochResult{}, xerrors.Errorf("failed to setup network: %w", err)
	}
	defer func() {
		err := test.CloseNetwork(ifaces)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to close network")
		}
	}()

	dealer, err := acs.NewDealer(n, s.conf.Faulty, s.log)
	if err != nil {
		return EpochResult{}, err
	}

	// the exchanges receive until every node is done with the epoch
	rcvCtx, stopReceiving := context.WithCancel(ctx)
	receivers := sync.WaitGroup{}
	exchanges := make([]*exchange.Exchange[*tpke.DecryptionShare], n)
	codec := exchange.NewDecryptionShareCodec(edwards25519.NewBlakeSHA256Ed25519())
	for i, iface := range ifaces {
		logger := s.log.With().Int64("nodeID", iface.GetID()).Logger()
		exchanges[i] = exchange.NewExchange(&exchange.Config[*tpke.DecryptionShare]{
			Epoch:         epoch,
			NParticipants: n,
			Iface:         iface,
			Codec:         codec,
			Logger:        &logger,
		})
		receivers.Add(1)
		go func() {
			defer receivers.Done()
			_ = exchanges[i].Start(rcvCtx)
		}()
	}
	defer func() {
		stopReceiving()
		receivers.Wait()
		for _, e := range exchanges {
			e.Close()
		}
	}()

	blocks := make([]*batch.Block, n)
	outcomes := make([][]honeybadger.Outcome, n)
	// a failed honest node aborts the others
	g, gctx := errgroup.WithContext(ctx)
	for i, nd := range s.nodes {
		if nd.byzantine && s.conf.Behaviour == Silent {
			continue
		}
		g.Go(func() error {
			block, out, err := s.runNode(gctx, epoch, nd, dealer, exchanges[i])
			if err != nil {
				if nd.byzantine {
					s.log.Info().Err(err).Msgf("byzantine node %d failed", nd.id)
					return nil
				}
				return xerrors.Errorf("node %d: %w", nd.id, err)
			}
			blocks[i] = &block
			outcomes[i] = out
			return nil
		})
	}
	err = g.Wait()
	if err != nil {
		dealer.Abort(err)
		return EpochResult{}, err
	}

	return s.checkAgreement(epoch, blocks, outcomes)
}

func (s *Simulation) runNode(ctx context.Context, epoch uint64, nd node, dealer *acs.Dealer,
	e *exchange.Exchange[*tpke.DecryptionShare]) (batch.Block, []honeybadger.Outcome, error) {

	logger := s.log.With().Int64("nodeID", nd.id).Logger()
	var scheme honeybadger.ThresholdEncryption[*tpke.DecryptionShare] = nd.scheme
	var votes shareExchange = e
	if nd.byzantine {
		scheme = wrapScheme(s.conf.Behaviour, nd.scheme, s.nodes[s.conf.Byzantine].scheme)
		votes = wrapExchange(s.conf.Behaviour, e)
	}

	hb, err := honeybadger.NewEpoch[batch.Batch, batch.Block, *tpke.DecryptionShare](&honeybadger.Config{
		Epoch:         epoch,
		NodeID:        nd.id,
		NParticipants: s.conf.Nodes,
		Timeout:       s.conf.Timeout,
		Logger:        &logger,
		Metrics:       s.metrics,
	}, scheme, dealer.Participant(int(nd.id)), votes, s.protocol)
	if err != nil {
		return batch.Block{}, nil, err
	}

	block, err := hb.Run(ctx, proposal(epoch, nd.id, s.conf.BatchSize))
	if err != nil {
		return batch.Block{}, nil, err
	}
	return block, hb.Outcomes(), nil
}

// checkAgreement compares the blocks of the honest nodes
func (s *Simulation) checkAgreement(epoch uint64, blocks []*batch.Block,
	outcomes [][]honeybadger.Outcome) (EpochResult, error) {

	var res *EpochResult
	for i, nd := range s.nodes {
		if nd.byzantine {
			continue
		}
		if res == nil {
			res = &EpochResult{Epoch: epoch, Block: *blocks[i], Outcomes: outcomes[i]}
			continue
		}
		if blocks[i].Digest != res.Block.Digest {
			return EpochResult{}, xerrors.Errorf("node %d has digest %x, node %d has %x: %w",
				nd.id, blocks[i].Digest, s.conf.Byzantine, res.Block.Digest, ErrDivergence)
		}
	}
	if res == nil {
		// only byzantine nodes
		return EpochResult{Epoch: epoch}, nil
	}
	return *res, nil
}

// proposal is the batch of a node in an epoch
func proposal(epoch uint64, id int64, size int) batch.Batch {
	txs := make([][]byte, size)
	for i := range txs {
		txs[i] = []byte(fmt.Sprintf("epoch %d node %d tx %d", epoch, id, i))
	}
	return batch.Batch{Txs: txs}
}

package honeybadger

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testConfig(metrics *Metrics) *Config {
	logger := zerolog.Nop()
	return &Config{
		Epoch:         1,
		NodeID:        0,
		NParticipants: testN,
		Logger:        &logger,
		Metrics:       metrics,
	}
}

type testEpoch = Epoch[textProposal, []string, testShare]

func newTestEpoch(t *testing.T, conf *Config, scheme *fakeScheme, acs CommonSubset,
	exchange ShareExchange[testShare]) *testEpoch {
	epoch, err := NewEpoch[textProposal, []string, testShare](conf, scheme, acs, exchange, textProtocol{})
	require.NoError(t, err)
	return epoch
}

// exampleC builds the four origins of the mixed epoch: origin 0 and 3
// decode, origin 1 is an invalid ciphertext and origin 2 decrypts to
// something that is not a proposal. delays spreads the completion order.
func exampleC(scheme *fakeScheme, delays []time.Duration) (*fakeACS, *fakeExchange) {
	acs := &fakeACS{subset: map[int][]byte{
		0: mustEncrypt(scheme, "alice"),
		1: []byte("garbage ciphertext"),
		2: []byte("ct:not a proposal"),
		3: mustEncrypt(scheme, "dave"),
	}}

	goodStream := func(d time.Duration) *scriptedStream {
		return newStream(
			step{vote: absent(), delay: d},
			step{vote: goodShare(2), delay: d},
			step{vote: goodShare(3), delay: d},
		)
	}
	exchange := newFakeExchange(map[int]*scriptedStream{
		0: goodStream(delays[0]),
		1: newStream(
			step{vote: absent(), delay: delays[1]},
			step{vote: goodShare(2), delay: delays[1]},
			step{vote: absent(), delay: delays[1]},
			step{vote: absent(), delay: delays[1]},
			step{vote: absent(), delay: delays[1]},
		),
		2: goodStream(delays[2]),
		3: goodStream(delays[3]),
	})
	return acs, exchange
}

// Example C: one Bad, one undecodable, two included
func TestEpoch_MixedOutcomes(t *testing.T) {
	defer goleak.VerifyNone(t)

	scheme := newFakeScheme(3)
	metrics := NewMetrics(prometheus.NewRegistry())
	acs, exchange := exampleC(scheme, make([]time.Duration, 4))
	epoch := newTestEpoch(t, testConfig(metrics), scheme, acs, exchange)

	block, err := epoch.Run(context.Background(), "zoe")
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "dave"}, block)

	// the local proposal was encrypted before agreement
	require.Equal(t, mustEncrypt(scheme, "zoe"), acs.input)

	// the local node voted invalid on the garbage ciphertext only
	for origin := 0; origin < 4; origin++ {
		local, ok := exchange.localVote(origin)
		require.True(t, ok)
		require.Equal(t, origin == 1, local.IsAbsent(), "origin %d", origin)
	}

	outcomes := epoch.Outcomes()
	require.Len(t, outcomes, 4)
	require.Equal(t, Outcome{Origin: 0, Kind: Included}, outcomes[0])
	require.Equal(t, Invalid, outcomes[1].Kind)
	require.ErrorIs(t, outcomes[1].Err, ErrBadCiphertext)
	require.Equal(t, Undecodable, outcomes[2].Kind)
	var decodeErr *DecodeError
	require.ErrorAs(t, outcomes[2].Err, &decodeErr)
	require.Equal(t, 2, decodeErr.Origin)
	require.Equal(t, Outcome{Origin: 3, Kind: Included}, outcomes[3])

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.Outcomes.WithLabelValues("included")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Outcomes.WithLabelValues("invalid")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Outcomes.WithLabelValues("undecodable")))
	require.Equal(t, 1, testutil.CollectAndCount(metrics.EpochDuration))
}

func TestEpoch_BlockIndependentOfCompletionOrder(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	var first []string
	for run := 0; run < 5; run++ {
		delays := make([]time.Duration, 4)
		for i := range delays {
			delays[i] = time.Duration(r.Intn(5)) * time.Millisecond
		}
		scheme := newFakeScheme(3)
		acs, exchange := exampleC(scheme, delays)
		epoch := newTestEpoch(t, testConfig(nil), scheme, acs, exchange)

		block, err := epoch.Run(context.Background(), "zoe")
		require.NoError(t, err)
		if first == nil {
			first = block
		}
		require.Equal(t, first, block, "run %d with delays %v", run, delays)
	}
}

func TestEpoch_CombineIsOrderIndependent(t *testing.T) {
	proposals := []textProposal{"a", "b", "c", "d"}
	expected := textProtocol{}.CombineProposals(proposals)

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		permuted := append([]textProposal{}, proposals...)
		r.Shuffle(len(permuted), func(i, j int) {
			permuted[i], permuted[j] = permuted[j], permuted[i]
		})
		require.Equal(t, expected, textProtocol{}.CombineProposals(permuted))
	}
}

func TestEpoch_AgreementFailureIsFatal(t *testing.T) {
	scheme := newFakeScheme(3)
	metrics := NewMetrics(prometheus.NewRegistry())
	acsErr := errors.New("too many faulty nodes")
	epoch := newTestEpoch(t, testConfig(metrics), scheme, &fakeACS{err: acsErr}, newFakeExchange(nil))

	block, err := epoch.Run(context.Background(), "zoe")
	require.ErrorIs(t, err, ErrAgreementFailed)
	require.ErrorIs(t, err, acsErr)
	require.Nil(t, block)
	require.Empty(t, epoch.Outcomes())
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.AbortedEpochs))
}

func TestEpoch_ProposalEncodingFailure(t *testing.T) {
	scheme := newFakeScheme(3)
	acs := &fakeACS{}
	epoch := newTestEpoch(t, testConfig(nil), scheme, acs, newFakeExchange(nil))

	_, err := epoch.Run(context.Background(), unmarshalable)
	require.ErrorIs(t, err, ErrProposalEncoding)
	require.Nil(t, acs.input)

	// the node has no input for agreement either when encryption fails
	scheme = newFakeScheme(3)
	scheme.failEncrypt = true
	epoch = newTestEpoch(t, testConfig(nil), scheme, acs, newFakeExchange(nil))
	_, err = epoch.Run(context.Background(), textProposal("alice"))
	require.ErrorIs(t, err, ErrProposalEncoding)
	require.Nil(t, acs.input)
}

func TestEpoch_TimeoutDuringAgreement(t *testing.T) {
	defer goleak.VerifyNone(t)

	scheme := newFakeScheme(3)
	conf := testConfig(nil)
	conf.Timeout = 20 * time.Millisecond
	epoch := newTestEpoch(t, conf, scheme, &fakeACS{hang: true}, newFakeExchange(nil))

	_, err := epoch.Run(context.Background(), "zoe")
	require.ErrorIs(t, err, ErrEpochAborted)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEpoch_CancelWhileAccumulating(t *testing.T) {
	defer goleak.VerifyNone(t)

	scheme := newFakeScheme(3)
	stuck := newStream(votes(goodShare(2))...)
	stuck.hang = true
	acs := &fakeACS{subset: map[int][]byte{
		0: mustEncrypt(scheme, "alice"),
		1: mustEncrypt(scheme, "bob"),
	}}
	exchange := newFakeExchange(map[int]*scriptedStream{
		0: newStream(votes(goodShare(2), goodShare(3))...),
		1: stuck,
	})
	epoch := newTestEpoch(t, testConfig(nil), scheme, acs, exchange)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := epoch.Run(ctx, "zoe")
	require.ErrorIs(t, err, ErrEpochAborted)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, epoch.Outcomes())
}

func TestEpoch_RunOnlyOnce(t *testing.T) {
	scheme := newFakeScheme(3)
	acs := &fakeACS{subset: map[int][]byte{}}
	epoch := newTestEpoch(t, testConfig(nil), scheme, acs, newFakeExchange(nil))

	block, err := epoch.Run(context.Background(), "zoe")
	require.NoError(t, err)
	require.Empty(t, block)

	_, err = epoch.Run(context.Background(), "zoe")
	require.ErrorIs(t, err, ErrEpochReused)
}

func TestNewEpoch_InvalidConfig(t *testing.T) {
	scheme := newFakeScheme(3)
	cases := map[string]func(*Config){
		"too few participants": func(c *Config) { c.NParticipants = 6 },
		"node out of range":    func(c *Config) { c.NodeID = 7 },
		"negative node":        func(c *Config) { c.NodeID = -1 },
		"negative timeout":     func(c *Config) { c.Timeout = -time.Second },
		"no participants":      func(c *Config) { c.NParticipants = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			conf := testConfig(nil)
			mutate(conf)
			_, err := NewEpoch[textProposal, []string, testShare](conf, scheme, &fakeACS{},
				newFakeExchange(nil), textProtocol{})
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

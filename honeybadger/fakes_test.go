package honeybadger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

var ciphertextPrefix = []byte("ct:")

// testShare is a decryption share of the fake scheme. Junk shares fail
// verification.
type testShare struct {
	id   int
	junk bool
}

func goodShare(id int) Vote[testShare] {
	return ShareVote(testShare{id: id})
}

func junkShare(id int) Vote[testShare] {
	return ShareVote(testShare{id: id, junk: true})
}

func absent() Vote[testShare] {
	return AbsentVote[testShare]()
}

// fakeScheme is a ThresholdEncryption whose ciphertexts are the plaintexts
// prefixed with "ct:".
type fakeScheme struct {
	threshold   int
	localID     int
	failDecrypt bool
	failEncrypt bool

	mu           sync.Mutex
	decryptCalls [][]testShare
}

func newFakeScheme(threshold int) *fakeScheme {
	return &fakeScheme{threshold: threshold}
}

func (s *fakeScheme) Threshold() int {
	return s.threshold
}

func (s *fakeScheme) Encrypt(plaintext []byte) ([]byte, error) {
	if s.failEncrypt {
		return nil, errors.New("no randomness")
	}
	return append(append([]byte{}, ciphertextPrefix...), plaintext...), nil
}

func (s *fakeScheme) valid(ciphertext []byte) bool {
	return bytes.HasPrefix(ciphertext, ciphertextPrefix)
}

func (s *fakeScheme) ShareGood(ciphertext []byte, share testShare) bool {
	return s.valid(ciphertext) && !share.junk
}

func (s *fakeScheme) DecryptShare(ciphertext []byte) (testShare, error) {
	if !s.valid(ciphertext) {
		return testShare{}, errors.New("malformed ciphertext")
	}
	return testShare{id: s.localID}, nil
}

func (s *fakeScheme) Decrypt(ciphertext []byte, shares []testShare) ([]byte, error) {
	s.mu.Lock()
	s.decryptCalls = append(s.decryptCalls, append([]testShare{}, shares...))
	s.mu.Unlock()

	if s.failDecrypt {
		return nil, errors.New("decryption failed")
	}
	if !s.valid(ciphertext) || len(shares) < s.threshold {
		return nil, errors.New("cannot decrypt")
	}
	return ciphertext[len(ciphertextPrefix):], nil
}

func (s *fakeScheme) calls() [][]testShare {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decryptCalls
}

// step is one scripted answer of a vote stream
type step struct {
	vote  Vote[testShare]
	err   error
	delay time.Duration
}

func votes(vs ...Vote[testShare]) []step {
	steps := make([]step, len(vs))
	for i, v := range vs {
		steps[i] = step{vote: v}
	}
	return steps
}

// scriptedStream replays its steps, then returns io.EOF, or blocks until
// the context is done if hang is set.
type scriptedStream struct {
	mu    sync.Mutex
	steps []step
	reads int
	hang  bool
}

func newStream(steps ...step) *scriptedStream {
	return &scriptedStream{steps: steps}
}

func (s *scriptedStream) Next(ctx context.Context) (Vote[testShare], error) {
	s.mu.Lock()
	if len(s.steps) == 0 {
		hang := s.hang
		s.mu.Unlock()
		if !hang {
			return Vote[testShare]{}, io.EOF
		}
		<-ctx.Done()
		return Vote[testShare]{}, ctx.Err()
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	s.reads++
	s.mu.Unlock()

	if st.delay > 0 {
		select {
		case <-time.After(st.delay):
		case <-ctx.Done():
			return Vote[testShare]{}, ctx.Err()
		}
	}
	return st.vote, st.err
}

func (s *scriptedStream) remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// fakeExchange hands out a scripted stream per origin and records the
// local votes
type fakeExchange struct {
	streams map[int]*scriptedStream

	mu    sync.Mutex
	local map[int]Vote[testShare]
}

func newFakeExchange(streams map[int]*scriptedStream) *fakeExchange {
	return &fakeExchange{streams: streams, local: make(map[int]Vote[testShare])}
}

func (e *fakeExchange) ExchangeShares(origin int, local Vote[testShare]) VoteStream[testShare] {
	e.mu.Lock()
	e.local[origin] = local
	e.mu.Unlock()
	stream, ok := e.streams[origin]
	if !ok {
		return newStream()
	}
	return stream
}

func (e *fakeExchange) localVote(origin int) (Vote[testShare], bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.local[origin]
	return v, ok
}

// fakeACS returns a fixed subset
type fakeACS struct {
	subset map[int][]byte
	err    error
	hang   bool

	mu    sync.Mutex
	input []byte
}

func (a *fakeACS) Agree(ctx context.Context, input []byte) (map[int][]byte, error) {
	a.mu.Lock()
	a.input = input
	a.mu.Unlock()
	if a.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if a.err != nil {
		return nil, a.err
	}
	return a.subset, nil
}

// textProposal is a proposal encoded as "p:<text>"
type textProposal string

// unmarshalable cannot be encoded
const unmarshalable textProposal = "\x00"

func (p textProposal) MarshalBinary() ([]byte, error) {
	if p == unmarshalable {
		return nil, errors.New("cannot marshal")
	}
	return []byte("p:" + string(p)), nil
}

// textProtocol decodes "p:" prefixed plaintexts and combines proposals into
// a sorted slice
type textProtocol struct{}

func (textProtocol) DecodeProposal(data []byte) (textProposal, error) {
	s := string(data)
	if !strings.HasPrefix(s, "p:") {
		return "", errors.New("not a proposal")
	}
	return textProposal(strings.TrimPrefix(s, "p:")), nil
}

func (textProtocol) CombineProposals(proposals []textProposal) []string {
	block := make([]string, 0, len(proposals))
	for _, p := range proposals {
		block = append(block, string(p))
	}
	sort.Strings(block)
	return block
}

func mustEncrypt(s *fakeScheme, p textProposal) []byte {
	data, _ := p.MarshalBinary()
	ct, _ := s.Encrypt(data)
	return ct
}

package simulation

import (
	"crypto/rand"
	"fmt"

	"student_25_hbbft/honeybadger"
	"student_25_hbbft/tpke"

	"go.dedis.ch/kyber/v4/share"
)

// Behaviour is how the byzantine nodes of a simulation misbehave
type Behaviour string

const (
	// Silent nodes neither propose nor vote
	Silent Behaviour = "silent"
	// Junk nodes vote with shares that fail verification
	Junk Behaviour = "junk"
	// Liar nodes attest every ciphertext is invalid
	Liar Behaviour = "liar"
	// Garbage nodes propose ciphertexts that are not valid
	Garbage Behaviour = "garbage"
	// Replay nodes vote with the valid share of an honest node
	Replay Behaviour = "replay"
)

// Behaviours lists every supported behaviour
var Behaviours = []Behaviour{Silent, Junk, Liar, Garbage, Replay}

func ParseBehaviour(s string) (Behaviour, error) {
	for _, b := range Behaviours {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: unknown behaviour %q", ErrInvalidConfig, s)
}

type (
	shareExchange = honeybadger.ShareExchange[*tpke.DecryptionShare]
	vote          = honeybadger.Vote[*tpke.DecryptionShare]
	voteStream    = honeybadger.VoteStream[*tpke.DecryptionShare]
)

// junkExchange replaces the local share with one that does not verify
type junkExchange struct {
	shareExchange
}

func (j junkExchange) ExchangeShares(origin int, local vote) voteStream {
	if s, ok := local.Share(); ok {
		v := s.Share.V.Clone()
		v.Add(v, s.Share.V.Clone().Base())
		local = honeybadger.ShareVote(&tpke.DecryptionShare{
			Share: &share.PubShare{I: s.Share.I, V: v},
			Proof: s.Proof,
		})
	}
	return j.shareExchange.ExchangeShares(origin, local)
}

// liarExchange always votes absent
type liarExchange struct {
	shareExchange
}

func (l liarExchange) ExchangeShares(origin int, _ vote) voteStream {
	return l.shareExchange.ExchangeShares(origin, honeybadger.AbsentVote[*tpke.DecryptionShare]())
}

// garbageScheme encrypts to random bytes
type garbageScheme struct {
	*tpke.Scheme
}

func (g garbageScheme) Encrypt(plaintext []byte) ([]byte, error) {
	garbage := make([]byte, len(plaintext)+64)
	_, err := rand.Read(garbage)
	return garbage, err
}

// replayScheme computes the decryption shares of another node, which the
// exchange then sends as its own
type replayScheme struct {
	*tpke.Scheme
	victim *tpke.Scheme
}

func (r replayScheme) DecryptShare(ciphertext []byte) (*tpke.DecryptionShare, error) {
	return r.victim.DecryptShare(ciphertext)
}

// wrapExchange applies the behaviour to the share exchange of a byzantine node
func wrapExchange(b Behaviour, e shareExchange) shareExchange {
	switch b {
	case Junk:
		return junkExchange{e}
	case Liar:
		return liarExchange{e}
	default:
		return e
	}
}

// wrapScheme applies the behaviour to the encryption of a byzantine node.
// victim is the honest node whose shares are replayed.
func wrapScheme(b Behaviour, s, victim *tpke.Scheme) honeybadger.ThresholdEncryption[*tpke.DecryptionShare] {
	switch b {
	case Garbage:
		return garbageScheme{s}
	case Replay:
		return replayScheme{Scheme: s, victim: victim}
	default:
		return s
	}
}

package tpke

import (
	"student_25_hbbft/marshalling"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/proof/dleq"
	"golang.org/x/xerrors"
)

var hashDomain = []byte("hbbft-tpke-h")

// Ciphertext is the encryption of a message under the public key Y:
//
//	U = rG, V = m xor XOF(rY), H = hash(U, V), Ū = rH
//
// Proof shows log_G U = log_H Ū, which binds V since H depends on it.
type Ciphertext struct {
	U     kyber.Point
	UBar  kyber.Point
	Proof *dleq.Proof
	V     []byte
}

func (c *Ciphertext) MarshalBinary() ([]byte, error) {
	points, err := marshalling.MarshalPoints(c.U, c.UBar)
	if err != nil {
		return nil, err
	}
	proof, err := marshalling.MarshalProof(c.Proof)
	if err != nil {
		return nil, err
	}

	bs := make([]byte, 0, len(points)+len(proof)+len(c.V))
	bs = append(bs, points...)
	bs = append(bs, proof...)
	return append(bs, c.V...), nil
}

// UnmarshalCiphertext parses a ciphertext without checking its proof
func UnmarshalCiphertext(g kyber.Group, data []byte) (*Ciphertext, error) {
	points, rest, err := marshalling.UnmarshalPoints(data, g, 2)
	if err != nil {
		return nil, xerrors.Errorf("%v: %w", err, ErrMalformedCiphertext)
	}
	proof, rest, err := marshalling.UnmarshalProof(rest, g)
	if err != nil {
		return nil, xerrors.Errorf("%v: %w", err, ErrMalformedCiphertext)
	}
	return &Ciphertext{
		U:     points[0],
		UBar:  points[1],
		Proof: proof,
		V:     append([]byte{}, rest...),
	}, nil
}

// Encrypt encrypts m under the public key
func (pk *PublicKey) Encrypt(m []byte) (*Ciphertext, error) {
	s := pk.suite
	r := s.Scalar().Pick(s.RandomStream())
	u := s.Point().Mul(r, nil)
	v, err := mask(s, s.Point().Mul(r, pk.Y), m)
	if err != nil {
		return nil, err
	}
	h, err := hashToPoint(s, u, v)
	if err != nil {
		return nil, err
	}

	proof, _, uBar, err := dleq.NewDLEQProof(s, s.Point().Base(), h, r)
	if err != nil {
		return nil, err
	}
	return &Ciphertext{U: u, UBar: uBar, Proof: proof, V: v}, nil
}

// Verify checks the validity proof of the ciphertext
func (pk *PublicKey) Verify(c *Ciphertext) error {
	s := pk.suite
	h, err := hashToPoint(s, c.U, c.V)
	if err != nil {
		return err
	}
	err = c.Proof.Verify(s, s.Point().Base(), h, c.U, c.UBar)
	if err != nil {
		return xerrors.Errorf("%v: %w", err, ErrMalformedCiphertext)
	}
	return nil
}

// parse unmarshals and verifies a ciphertext
func (pk *PublicKey) parse(data []byte) (*Ciphertext, error) {
	c, err := UnmarshalCiphertext(pk.suite, data)
	if err != nil {
		return nil, err
	}
	err = pk.Verify(c)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func hashToPoint(s Suite, u kyber.Point, v []byte) (kyber.Point, error) {
	uBytes, err := u.MarshalBinary()
	if err != nil {
		return nil, err
	}
	seed := make([]byte, 0, len(hashDomain)+len(uBytes)+len(v))
	seed = append(seed, hashDomain...)
	seed = append(seed, uBytes...)
	seed = append(seed, v...)
	return s.Point().Pick(s.XOF(seed)), nil
}

// mask xors m with the key stream derived from the shared point k
func mask(s Suite, k kyber.Point, m []byte) ([]byte, error) {
	kBytes, err := k.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(m))
	s.XOF(kBytes).XORKeyStream(out, m)
	return out, nil
}

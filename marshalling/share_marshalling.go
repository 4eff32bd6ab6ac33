package marshalling

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/proof/dleq"
	"go.dedis.ch/kyber/v4/share"
)

const Uint32Size = 4

var ErrShortBuffer = errors.New("buffer too short")

func MarshalPriShare(share *share.PriShare) ([]byte, error) {
	bs := make([]byte, share.V.MarshalSize()+Uint32Size)
	scalarMarshalled, err := share.V.MarshalBinary()
	if err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint32(bs[:Uint32Size], share.I)
	copy(bs[Uint32Size:], scalarMarshalled)
	return bs, nil
}

func UnmarshalPriShare(bs []byte, g kyber.Group) (*share.PriShare, error) {
	size := g.ScalarLen() + Uint32Size
	if len(bs) != size {
		return nil, fmt.Errorf("%w: private share needs %d bytes, got %d", ErrShortBuffer, size, len(bs))
	}
	idx := binary.BigEndian.Uint32(bs[:Uint32Size])

	scalar := g.Scalar()
	err := scalar.UnmarshalBinary(bs[Uint32Size:])
	if err != nil {
		return nil, err
	}

	return &share.PriShare{
		I: idx,
		V: scalar,
	}, nil
}

// PubShareSize is the encoded size of a public share of group g
func PubShareSize(g kyber.Group) int {
	return g.PointLen() + Uint32Size
}

func MarshalPubShare(share *share.PubShare) ([]byte, error) {
	bs := make([]byte, share.V.MarshalSize()+Uint32Size)
	pointMarshalled, err := share.V.MarshalBinary()
	if err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint32(bs[:Uint32Size], share.I)
	copy(bs[Uint32Size:], pointMarshalled)
	return bs, nil
}

// UnmarshalPubShare decodes a public share from the head of bs and returns
// the remaining bytes.
func UnmarshalPubShare(bs []byte, g kyber.Group) (*share.PubShare, []byte, error) {
	size := PubShareSize(g)
	if len(bs) < size {
		return nil, nil, fmt.Errorf("%w: public share needs %d bytes, got %d", ErrShortBuffer, size, len(bs))
	}
	idx := binary.BigEndian.Uint32(bs[:Uint32Size])

	point := g.Point()
	err := point.UnmarshalBinary(bs[Uint32Size:size])
	if err != nil {
		return nil, nil, err
	}

	return &share.PubShare{
		I: idx,
		V: point,
	}, bs[size:], nil
}

func MarshalPubShares(shares []*share.PubShare) ([]byte, error) {
	bs := make([]byte, 0)
	for _, s := range shares {
		shareMarshalled, err := MarshalPubShare(s)
		if err != nil {
			return nil, err
		}
		bs = append(bs, shareMarshalled...)
	}
	return bs, nil
}

func UnmarshalPubShares(data []byte, g kyber.Group) ([]*share.PubShare, error) {
	size := PubShareSize(g)
	if len(data)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrShortBuffer, len(data), size)
	}

	shares := make([]*share.PubShare, 0, len(data)/size)
	for len(data) > 0 {
		var s *share.PubShare
		var err error
		s, data, err = UnmarshalPubShare(data, g)
		if err != nil {
			return nil, err
		}
		shares = append(shares, s)
	}
	return shares, nil
}

// MarshalPoints concatenates the encodings of the points
func MarshalPoints(points ...kyber.Point) ([]byte, error) {
	bs := make([]byte, 0)
	for _, p := range points {
		pointMarshalled, err := p.MarshalBinary()
		if err != nil {
			return nil, err
		}
		bs = append(bs, pointMarshalled...)
	}
	return bs, nil
}

// UnmarshalPoints decodes count points from the head of bs and returns the
// remaining bytes.
func UnmarshalPoints(bs []byte, g kyber.Group, count int) ([]kyber.Point, []byte, error) {
	pointSize := g.PointLen()
	if len(bs) < count*pointSize {
		return nil, nil, fmt.Errorf("%w: %d points need %d bytes, got %d", ErrShortBuffer, count,
			count*pointSize, len(bs))
	}
	points := make([]kyber.Point, count)
	for i := range points {
		points[i] = g.Point()
		err := points[i].UnmarshalBinary(bs[:pointSize])
		if err != nil {
			return nil, nil, err
		}
		bs = bs[pointSize:]
	}
	return points, bs, nil
}

// ProofSize is the encoded size of a DLEQ proof over group g
func ProofSize(g kyber.Group) int {
	return 2*g.ScalarLen() + 2*g.PointLen()
}

// MarshalProof encodes a DLEQ proof as C ‖ R ‖ VG ‖ VH
func MarshalProof(proof *dleq.Proof) ([]byte, error) {
	c, err := proof.C.MarshalBinary()
	if err != nil {
		return nil, err
	}
	r, err := proof.R.MarshalBinary()
	if err != nil {
		return nil, err
	}
	points, err := MarshalPoints(proof.VG, proof.VH)
	if err != nil {
		return nil, err
	}

	bs := make([]byte, 0, len(c)+len(r)+len(points))
	bs = append(bs, c...)
	bs = append(bs, r...)
	return append(bs, points...), nil
}

// UnmarshalProof decodes a DLEQ proof from the head of bs and returns the
// remaining bytes.
func UnmarshalProof(bs []byte, g kyber.Group) (*dleq.Proof, []byte, error) {
	size := ProofSize(g)
	if len(bs) < size {
		return nil, nil, fmt.Errorf("%w: proof needs %d bytes, got %d", ErrShortBuffer, size, len(bs))
	}
	scalarSize := g.ScalarLen()

	c := g.Scalar()
	err := c.UnmarshalBinary(bs[:scalarSize])
	if err != nil {
		return nil, nil, err
	}
	r := g.Scalar()
	err = r.UnmarshalBinary(bs[scalarSize : 2*scalarSize])
	if err != nil {
		return nil, nil, err
	}
	points, rest, err := UnmarshalPoints(bs[2*scalarSize:], g, 2)
	if err != nil {
		return nil, nil, err
	}

	return &dleq.Proof{C: c, R: r, VG: points[0], VH: points[1]}, rest, nil
}

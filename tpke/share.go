package tpke

import (
	"student_25_hbbft/marshalling"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/proof/dleq"
	"go.dedis.ch/kyber/v4/share"
	"golang.org/x/xerrors"
)

// DecryptionShare is U_i = x_i U for a ciphertext (U, ...), with a proof
// that log_G VK_i = log_U U_i
type DecryptionShare struct {
	Share *share.PubShare
	Proof *dleq.Proof
}

// Index returns the index of the participant that computed the share
func (d *DecryptionShare) Index() int {
	return int(d.Share.I)
}

func (d *DecryptionShare) MarshalBinary() ([]byte, error) {
	s, err := marshalling.MarshalPubShare(d.Share)
	if err != nil {
		return nil, err
	}
	proof, err := marshalling.MarshalProof(d.Proof)
	if err != nil {
		return nil, err
	}
	return append(s, proof...), nil
}

func UnmarshalDecryptionShare(g kyber.Group, data []byte) (*DecryptionShare, error) {
	s, rest, err := marshalling.UnmarshalPubShare(data, g)
	if err != nil {
		return nil, xerrors.Errorf("%v: %w", err, ErrInvalidShare)
	}
	proof, rest, err := marshalling.UnmarshalProof(rest, g)
	if err != nil {
		return nil, xerrors.Errorf("%v: %w", err, ErrInvalidShare)
	}
	if len(rest) != 0 {
		return nil, xerrors.Errorf("%d trailing bytes: %w", len(rest), ErrInvalidShare)
	}
	return &DecryptionShare{Share: s, Proof: proof}, nil
}

// decryptionShare computes the share of sk for a verified ciphertext
func (pk *PublicKey) decryptionShare(sk *PrivateKey, c *Ciphertext) (*DecryptionShare, error) {
	s := pk.suite
	proof, _, ui, err := dleq.NewDLEQProof(s, s.Point().Base(), c.U, sk.Share.V)
	if err != nil {
		return nil, err
	}
	return &DecryptionShare{
		Share: &share.PubShare{I: sk.Share.I, V: ui},
		Proof: proof,
	}, nil
}

// verifyShare checks a decryption share against a verified ciphertext
func (pk *PublicKey) verifyShare(c *Ciphertext, d *DecryptionShare) error {
	if d == nil || d.Share == nil || d.Proof == nil {
		return xerrors.Errorf("incomplete share: %w", ErrInvalidShare)
	}
	idx := d.Index()
	if idx < 0 || idx >= pk.N() {
		return xerrors.Errorf("index %d out of range: %w", idx, ErrInvalidShare)
	}
	s := pk.suite
	err := d.Proof.Verify(s, s.Point().Base(), c.U, pk.VKs[idx].V, d.Share.V)
	if err != nil {
		return xerrors.Errorf("share of %d: %v: %w", idx, err, ErrInvalidShare)
	}
	return nil
}

package exchange

import (
	"student_25_hbbft/tpke"

	"go.dedis.ch/kyber/v4"
)

// DecryptionShareCodec encodes tpke decryption shares of group g
type DecryptionShareCodec struct {
	g kyber.Group
}

func NewDecryptionShareCodec(g kyber.Group) DecryptionShareCodec {
	return DecryptionShareCodec{g: g}
}

func (c DecryptionShareCodec) Marshal(s *tpke.DecryptionShare) ([]byte, error) {
	return s.MarshalBinary()
}

func (c DecryptionShareCodec) Unmarshal(data []byte) (*tpke.DecryptionShare, error) {
	return tpke.UnmarshalDecryptionShare(c.g, data)
}

func (c DecryptionShareCodec) Index(s *tpke.DecryptionShare) int {
	return s.Index()
}

package exchange

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// VoteMessage field numbers
const (
	epochField  protowire.Number = 1
	originField protowire.Number = 2
	senderField protowire.Number = 3
	shareField  protowire.Number = 4
)

var ErrInvalidMessage = errors.New("invalid vote message")

// VoteMessage carries the vote of Sender on the ciphertext of Origin. A
// nil Share is an attestation that the ciphertext is invalid.
type VoteMessage struct {
	Epoch  uint64
	Origin int64
	Sender int64
	Share  []byte
}

// MarshalBinary encodes the message as a protobuf message
func (m *VoteMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, 16+len(m.Share))
	b = protowire.AppendTag(b, epochField, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Epoch)
	b = protowire.AppendTag(b, originField, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Origin))
	b = protowire.AppendTag(b, senderField, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Sender))
	if m.Share != nil {
		b = protowire.AppendTag(b, shareField, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Share)
	}
	return b, nil
}

// UnmarshalBinary decodes a protobuf encoded message. Unknown fields are
// skipped.
func (m *VoteMessage) UnmarshalBinary(b []byte) error {
	*m = VoteMessage{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrInvalidMessage, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == epochField && typ == protowire.VarintType:
			m.Epoch, n = protowire.ConsumeVarint(b)
		case num == originField && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			m.Origin = int64(v)
		case num == senderField && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			m.Sender = int64(v)
		case num == shareField && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			m.Share = append([]byte{}, v...)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %w", ErrInvalidMessage, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

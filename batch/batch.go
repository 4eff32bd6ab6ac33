// Package batch is the transaction batch protocol run on top of the epoch:
// every node proposes a batch of transactions and the block of an epoch
// holds the union of the agreed batches.
package batch

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"go.dedis.ch/protobuf"
)

const (
	DefaultMaxTxs    = 1024
	DefaultMaxTxSize = 64 * 1024
)

var ErrInvalidBatch = errors.New("invalid batch")

// Batch is the proposal of a node
type Batch struct {
	Txs [][]byte
}

// wireBatch is the protobuf encoding of a Batch. Batch itself cannot be
// handed to protobuf.Encode, which would call back MarshalBinary.
type wireBatch struct {
	Txs [][]byte
}

func (b Batch) MarshalBinary() ([]byte, error) {
	return protobuf.Encode(&wireBatch{Txs: b.Txs})
}

// Block is the output of an epoch: the transactions of every included
// batch, sorted and without duplicates
type Block struct {
	Txs    [][]byte
	Digest [sha256.Size]byte
}

// Protocol decodes batches and combines them into blocks. It implements
// honeybadger.Protocol[Batch, Block].
type Protocol struct {
	MaxTxs    int
	MaxTxSize int
}

func NewProtocol() Protocol {
	return Protocol{MaxTxs: DefaultMaxTxs, MaxTxSize: DefaultMaxTxSize}
}

// Validate checks the limits of the protocol: a bounded number of non empty
// transactions of bounded size
func (p Protocol) Validate(b Batch) error {
	if len(b.Txs) > p.MaxTxs {
		return fmt.Errorf("%w: %d transactions, at most %d allowed", ErrInvalidBatch, len(b.Txs), p.MaxTxs)
	}
	for i, tx := range b.Txs {
		if len(tx) == 0 {
			return fmt.Errorf("%w: transaction %d is empty", ErrInvalidBatch, i)
		}
		if len(tx) > p.MaxTxSize {
			return fmt.Errorf("%w: transaction %d has %d bytes, at most %d allowed", ErrInvalidBatch, i,
				len(tx), p.MaxTxSize)
		}
	}
	return nil
}

func (p Protocol) DecodeProposal(data []byte) (Batch, error) {
	w := wireBatch{}
	err := protobuf.Decode(data, &w)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %w", ErrInvalidBatch, err)
	}
	b := Batch{Txs: w.Txs}
	err = p.Validate(b)
	if err != nil {
		return Batch{}, err
	}
	return b, nil
}

// CombineProposals merges the batches. The result does not depend on the
// order of the batches.
func (p Protocol) CombineProposals(proposals []Batch) Block {
	txs := make([][]byte, 0)
	for _, b := range proposals {
		txs = append(txs, b.Txs...)
	}
	sort.Slice(txs, func(i, j int) bool {
		return bytes.Compare(txs[i], txs[j]) < 0
	})

	unique := make([][]byte, 0, len(txs))
	for i, tx := range txs {
		if i > 0 && bytes.Equal(tx, txs[i-1]) {
			continue
		}
		unique = append(unique, tx)
	}

	return Block{Txs: unique, Digest: digest(unique)}
}

// digest hashes the length prefixed transactions
func digest(txs [][]byte) [sha256.Size]byte {
	h := sha256.New()
	prefix := make([]byte, 4)
	for _, tx := range txs {
		binary.BigEndian.PutUint32(prefix, uint32(len(tx)))
		h.Write(prefix)
		h.Write(tx)
	}
	var d [sha256.Size]byte
	copy(d[:], h.Sum(nil))
	return d
}

package networking

import (
	"context"
	"errors"
)

// ErrNetworkClosed is returned by Receive once the interface is closed
var ErrNetworkClosed = errors.New("network interface closed")

// NetworkInterface represents an interface used by a node to communicate in the network
type NetworkInterface interface {
	// Send allows to send a byte message to a recipient addressed by an int
	Send([]byte, int64) error
	// Broadcast sends the given byte message to everyone in the network, the sender included
	Broadcast([]byte) error
	// Receive waits for a message to arrive. Blocks until a message arrives, the context
	// is done or the interface is closed
	Receive(context.Context) ([]byte, error)
	GetID() int64
	GetSent() [][]byte
	GetReceived() [][]byte
	Close() error
}

// Network hands out the interfaces of the nodes. Nodes get consecutive IDs
// starting from 0 in the order they join.
type Network interface {
	JoinNetwork() (NetworkInterface, error)
}

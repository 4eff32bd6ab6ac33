package networking

import (
	"context"
	"errors"
	"sync"

	"student_25_hbbft/logging"

	"github.com/rs/zerolog"
)

type Callback func([]byte) error

// Node runs the receive loop of an interface and hands every message to
// its callback
type Node struct {
	iface    NetworkInterface
	callback Callback
	logger   zerolog.Logger
	sync.Mutex
}

func NewNode(iface NetworkInterface) *Node {
	return &Node{
		iface:  iface,
		logger: logging.GetLogger(iface.GetID()),
	}
}

// Start receives until the context is done or the interface is closed.
// Callback errors are logged and do not stop the loop.
func (n *Node) Start(ctx context.Context) error {
	for {
		bs, err := n.iface.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, ErrNetworkClosed) {
				return err
			}
			n.logger.Warn().Err(err).Msg("failed to receive message")
			continue
		}

		err = n.handleMessage(bs)
		if err != nil {
			n.logger.Debug().Err(err).Msg("failed to handle message")
		}
	}
}

func (n *Node) handleMessage(message []byte) error {
	n.Lock()
	callback := n.callback
	n.Unlock()
	if callback == nil {
		return errors.New("no callback set")
	}
	return callback(message)
}

func (n *Node) SetCallback(callback Callback) {
	n.Lock()
	defer n.Unlock()
	n.callback = callback
}

func (n *Node) Broadcast(bs []byte) error {
	return n.iface.Broadcast(bs)
}

func (n *Node) GetID() int64 {
	return n.iface.GetID()
}

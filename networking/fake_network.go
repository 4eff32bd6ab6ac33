package networking

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const defaultQueueSize = 100

// FakeNetwork is an in-memory network connecting the interfaces of all nodes
type FakeNetwork struct {
	mu        sync.RWMutex
	nodes     map[int64]chan []byte
	delayMap  map[int64]time.Duration
	queueSize int
}

func NewFakeNetwork() *FakeNetwork {
	return NewFakeNetworkWithBuffer(defaultQueueSize)
}

// NewFakeNetworkWithBuffer creates a network whose nodes can hold size
// undelivered messages before senders block
func NewFakeNetworkWithBuffer(size int) *FakeNetwork {
	return &FakeNetwork{
		nodes:     make(map[int64]chan []byte),
		delayMap:  make(map[int64]time.Duration),
		queueSize: size,
	}
}

// DelayNode adds the given delay to the node when sending a packet.
// Mimics a node having slow connection
func (n *FakeNetwork) DelayNode(id int64, delay time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delayMap[id] = delay
}

func (n *FakeNetwork) JoinNetwork() (NetworkInterface, error) {
	return n.JoinFake(), nil
}

// JoinFake is JoinNetwork returning the concrete interface
func (n *FakeNetwork) JoinFake() *FakeInterface {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := int64(len(n.nodes))
	queue := make(chan []byte, n.queueSize)
	n.nodes[id] = queue
	return NewFakeInterface(queue, n.Send, n.Broadcast, id)
}

func (n *FakeNetwork) Send(msg []byte, from, to int64) error {
	n.mu.RLock()
	rcv, ok := n.nodes[to]
	delay, delayed := n.delayMap[from]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("destination node %d not found", to)
	}

	// Put the message in the recipient's receive channel
	if delayed {
		go func() {
			time.Sleep(delay)
			rcv <- msg
		}()
	} else {
		rcv <- msg
	}
	return nil
}

func (n *FakeNetwork) Broadcast(msg []byte, from int64) error {
	n.mu.RLock()
	ids := make([]int64, 0, len(n.nodes))
	for id := range n.nodes {
		ids = append(ids, id)
	}
	n.mu.RUnlock()

	for _, id := range ids {
		err := n.Send(msg, from, id)
		if err != nil {
			return err
		}
	}
	return nil
}

type FakeInterface struct {
	rcvQueue     chan []byte
	sendMsg      func([]byte, int64, int64) error
	broadcastMsg func([]byte, int64) error
	id           int64
	received     [][]byte
	sent         [][]byte
	closing      chan struct{}
	closeOnce    sync.Once
	sync.RWMutex
}

func NewFakeInterface(rcv chan []byte, sendMsg func([]byte, int64, int64) error,
	broadcastMsg func([]byte, int64) error, id int64) *FakeInterface {
	return &FakeInterface{
		rcvQueue:     rcv,
		sendMsg:      sendMsg,
		broadcastMsg: broadcastMsg,
		id:           id,
		received:     make([][]byte, 0),
		sent:         make([][]byte, 0),
		closing:      make(chan struct{}),
	}
}

func (f *FakeInterface) Send(msg []byte, to int64) error {
	err := f.sendMsg(msg, f.id, to)
	if err != nil {
		return err
	}
	f.Lock()
	defer f.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *FakeInterface) Broadcast(msg []byte) error {
	err := f.broadcastMsg(msg, f.id)
	if err != nil {
		return err
	}
	f.Lock()
	defer f.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *FakeInterface) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-f.closing:
		return nil, ErrNetworkClosed
	default:
	}

	select {
	case msg := <-f.rcvQueue:
		f.Lock()
		defer f.Unlock()
		f.received = append(f.received, msg)
		return msg, nil
	case <-f.closing:
		return nil, ErrNetworkClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *FakeInterface) GetID() int64 {
	return f.id
}

func (f *FakeInterface) GetSent() [][]byte {
	f.RLock()
	defer f.RUnlock()
	return f.sent
}

func (f *FakeInterface) GetReceived() [][]byte {
	f.RLock()
	defer f.RUnlock()
	return f.received
}

// Close stops Receive. Messages sent to the interface afterwards are still
// queued.
func (f *FakeInterface) Close() error {
	f.closeOnce.Do(func() {
		close(f.closing)
	})
	return nil
}

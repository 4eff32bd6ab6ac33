package networking

// Network interface over TCP sockets on the loopback, one listener per node.
// Messages are framed with a 4 bytes big endian length.

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	maxFrameSize       = 1 << 24
	tcpIncomingBuffer  = 1000
	defaultSendTimeout = time.Second
)

type TCPNetwork struct {
	mu      sync.Mutex
	nextID  int64
	peers   *PeerMap
	timeout time.Duration
}

func NewTCPNetwork() *TCPNetwork {
	return &TCPNetwork{
		peers:   NewPeerMap(),
		timeout: defaultSendTimeout,
	}
}

type PeerMap struct {
	sync.RWMutex
	peers map[int64]string
}

func NewPeerMap() *PeerMap {
	return &PeerMap{peers: make(map[int64]string)}
}

func (pm *PeerMap) Get(id int64) (string, bool) {
	pm.RLock()
	defer pm.RUnlock()
	addr, ok := pm.peers[id]
	return addr, ok
}

func (pm *PeerMap) IDs() []int64 {
	pm.RLock()
	defer pm.RUnlock()
	ids := make([]int64, 0, len(pm.peers))
	for id := range pm.peers {
		ids = append(ids, id)
	}
	return ids
}

func (pm *PeerMap) Add(id int64, addr string) {
	pm.Lock()
	defer pm.Unlock()
	pm.peers[id] = addr
}

func (n *TCPNetwork) JoinNetwork() (NetworkInterface, error) {
	return n.JoinTCP()
}

// JoinTCP is JoinNetwork returning the concrete interface
func (n *TCPNetwork) JoinTCP() (*TCPInterface, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("could not listen: %w", err)
	}

	id := n.nextID
	n.nextID++
	n.peers.Add(id, ln.Addr().String())

	iface := &TCPInterface{
		id:       id,
		listener: ln,
		peers:    n.peers,
		timeout:  n.timeout,
		conns:    make(map[int64]net.Conn),
		accepted: make(map[net.Conn]struct{}),
		incoming: make(chan []byte, tcpIncomingBuffer),
		closing:  make(chan struct{}),
	}
	iface.wg.Add(1)
	go iface.acceptLoop()
	return iface, nil
}

type TCPInterface struct {
	id       int64
	listener net.Listener
	peers    *PeerMap
	timeout  time.Duration

	mu       sync.Mutex
	conns    map[int64]net.Conn
	accepted map[net.Conn]struct{}

	incoming  chan []byte
	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	statsMu  sync.RWMutex
	sent     [][]byte
	received [][]byte
}

func (t *TCPInterface) GetID() int64 {
	return t.id
}

// Address returns the address the interface listens on
func (t *TCPInterface) Address() string {
	return t.listener.Addr().String()
}

func (t *TCPInterface) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closing:
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				continue
			}
		}

		t.mu.Lock()
		select {
		case <-t.closing:
			t.mu.Unlock()
			conn.Close()
			return
		default:
		}
		t.accepted[conn] = struct{}{}
		t.mu.Unlock()

		t.wg.Add(1)
		go t.handleConnection(conn)
	}
}

func (t *TCPInterface) handleConnection(conn net.Conn) {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		delete(t.accepted, conn)
		t.mu.Unlock()
		conn.Close()
	}()

	reader := bufio.NewReader(conn)
	header := make([]byte, 4)
	for {
		_, err := io.ReadFull(reader, header)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug().Msgf("%v", err)
			}
			return
		}
		size := binary.BigEndian.Uint32(header)
		if size > maxFrameSize {
			log.Warn().Msgf("dropping connection sending a %d bytes frame", size)
			return
		}
		msg := make([]byte, size)
		_, err = io.ReadFull(reader, msg)
		if err != nil {
			log.Debug().Msgf("truncated frame: %v", err)
			return
		}

		select {
		case t.incoming <- msg:
		case <-t.closing:
			return
		default:
			log.Info().Msgf("node %d drops a message because its incoming buffer is full", t.id)
		}
	}
}

func (t *TCPInterface) conn(to int64) (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, exists := t.conns[to]
	if exists {
		return conn, nil
	}
	addr, ok := t.peers.Get(to)
	if !ok {
		return nil, fmt.Errorf("unknown peer ID: %d", to)
	}
	conn, err := net.DialTimeout("tcp", addr, t.timeout)
	if err != nil {
		return nil, err
	}
	t.conns[to] = conn
	return conn, nil
}

func (t *TCPInterface) send(msg []byte, to int64) error {
	select {
	case <-t.closing:
		return ErrNetworkClosed
	default:
	}

	conn, err := t.conn(to)
	if err != nil {
		return err
	}

	frame := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(msg)))
	copy(frame[4:], msg)

	// writes to the same connection must not interleave
	t.mu.Lock()
	defer t.mu.Unlock()
	err = conn.SetWriteDeadline(time.Now().Add(t.timeout))
	if err != nil {
		log.Error().Msgf("failed to set write deadline")
		return err
	}
	_, err = conn.Write(frame)
	if err != nil {
		delete(t.conns, to)
		conn.Close()
		return err
	}
	return nil
}

func (t *TCPInterface) Send(msg []byte, to int64) error {
	err := t.send(msg, to)
	if err != nil {
		return err
	}
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	t.sent = append(t.sent, msg)
	return nil
}

func (t *TCPInterface) Broadcast(msg []byte) error {
	var errs []error
	for _, id := range t.peers.IDs() {
		err := t.send(msg, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("to %d: %w", id, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	t.sent = append(t.sent, msg)
	return nil
}

func (t *TCPInterface) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-t.closing:
		return nil, ErrNetworkClosed
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closing:
		return nil, ErrNetworkClosed
	case msg := <-t.incoming:
		t.statsMu.Lock()
		defer t.statsMu.Unlock()
		t.received = append(t.received, msg)
		return msg, nil
	}
}

func (t *TCPInterface) GetSent() [][]byte {
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()
	return t.sent
}

func (t *TCPInterface) GetReceived() [][]byte {
	t.statsMu.RLock()
	defer t.statsMu.RUnlock()
	return t.received
}

// Close stops the listener and closes every connection, then waits for
// the connection handlers to return
func (t *TCPInterface) Close() error {
	err := ErrNetworkClosed
	t.closeOnce.Do(func() {
		close(t.closing)
		err = t.listener.Close()

		t.mu.Lock()
		for _, conn := range t.conns {
			conn.Close()
		}
		for conn := range t.accepted {
			conn.Close()
		}
		t.mu.Unlock()
	})
	t.wg.Wait()
	return err
}

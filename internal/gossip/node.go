// Package gossip implements a small topic overlay over UDP. Every node keeps a
// mesh view of peers and sends each published message to all of them.
// Delivery is best-effort and unacknowledged.
package gossip

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotStarted = errors.New("gossip: node not started")

const seenLimit = 4096

type Node struct {
	id       string
	bindAddr string
	onError  func(error)

	conn     *net.UDPConn
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	messages chan Received

	topicsMu sync.RWMutex
	topics   map[string]struct{}

	peersMu sync.RWMutex
	peers   map[string]string

	seenMu sync.Mutex
	seen   *seenCache
}

// NewNode creates an overlay node. Seeds are added to the mesh view keyed by
// their address until discovery reports them under their peer id.
func NewNode(nodeID, bindAddr string, seeds []string, onError func(error)) *Node {
	peers := make(map[string]string)
	for _, seed := range filterPeers(bindAddr, seeds) {
		peers[seed] = seed
	}
	return &Node{
		id:       nodeID,
		bindAddr: bindAddr,
		onError:  onError,
		stop:     make(chan struct{}),
		messages: make(chan Received, 64),
		topics:   make(map[string]struct{}),
		peers:    peers,
		seen:     newSeenCache(seenLimit),
	}
}

func (n *Node) Start() error {
	addr, err := net.ResolveUDPAddr("udp", n.bindAddr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	n.conn = conn
	n.bindAddr = conn.LocalAddr().String()

	n.wg.Add(1)
	go n.readLoop()
	return nil
}

func (n *Node) Stop() error {
	n.stopOnce.Do(func() {
		close(n.stop)
		if n.conn != nil {
			_ = n.conn.Close()
		}
		n.wg.Wait()
	})
	return nil
}

// ID returns the local peer id.
func (n *Node) ID() string {
	return n.id
}

// Addr returns the bound address. Before Start it is the configured one.
func (n *Node) Addr() string {
	return n.bindAddr
}

// Messages delivers messages received on subscribed topics.
func (n *Node) Messages() <-chan Received {
	return n.messages
}

func (n *Node) Subscribe(topic string) {
	n.topicsMu.Lock()
	n.topics[topic] = struct{}{}
	n.topicsMu.Unlock()
}

func (n *Node) subscribed(topic string) bool {
	n.topicsMu.RLock()
	_, ok := n.topics[topic]
	n.topicsMu.RUnlock()
	return ok
}

// Publish sends data on topic to every peer in the mesh view.
func (n *Node) Publish(topic string, data []byte) error {
	if n.conn == nil {
		return ErrNotStarted
	}
	env := Envelope{
		ID:     uuid.NewString(),
		Topic:  topic,
		Source: n.id,
		Data:   data,
	}
	n.markSeen(env.ID)
	frame, err := encodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("gossip: encode message: %w", err)
	}
	if len(frame) > maxDatagram {
		return fmt.Errorf("gossip: message of %d bytes exceeds datagram limit", len(frame))
	}

	var errs []error
	for _, addr := range n.peerAddrs() {
		if err := n.send(addr, frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AddPeer puts a peer into the mesh view. It reports whether the view changed.
func (n *Node) AddPeer(id, addr string) bool {
	if id == "" || id == n.id || addr == "" || addr == n.bindAddr {
		return false
	}
	n.peersMu.Lock()
	defer n.peersMu.Unlock()
	if current, ok := n.peers[id]; ok && current == addr {
		return false
	}
	// a seed entry is replaced once the peer is known by id
	delete(n.peers, addr)
	n.peers[id] = addr
	return true
}

// RemovePeer drops a peer from the mesh view. It reports whether the peer was
// present.
func (n *Node) RemovePeer(id string) bool {
	n.peersMu.Lock()
	defer n.peersMu.Unlock()
	if _, ok := n.peers[id]; !ok {
		return false
	}
	delete(n.peers, id)
	return true
}

// Peers returns the ids in the mesh view, sorted.
func (n *Node) Peers() []string {
	n.peersMu.RLock()
	out := make([]string, 0, len(n.peers))
	for id := range n.peers {
		out = append(out, id)
	}
	n.peersMu.RUnlock()
	slices.Sort(out)
	return out
}

func (n *Node) peerAddrs() []string {
	n.peersMu.RLock()
	out := make([]string, 0, len(n.peers))
	for _, addr := range n.peers {
		out = append(out, addr)
	}
	n.peersMu.RUnlock()
	return out
}

func (n *Node) markSeen(id string) bool {
	n.seenMu.Lock()
	defer n.seenMu.Unlock()
	return n.seen.add(id)
}

func (n *Node) readLoop() {
	defer n.wg.Done()
	buf := make([]byte, maxDatagram)

	for {
		n.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		nbytes, _, err := n.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-n.stop:
				return
			default:
				continue
			}
		}

		env, err := decodeEnvelope(buf[:nbytes])
		if err != nil {
			n.reportErr(fmt.Errorf("gossip: decode message: %w", err))
			continue
		}
		if env.Source == n.id || !n.subscribed(env.Topic) {
			continue
		}
		if !n.markSeen(env.ID) {
			continue
		}
		msg := Received{Source: env.Source, Topic: env.Topic, Data: env.Data}
		select {
		case n.messages <- msg:
		case <-n.stop:
			return
		}
	}
}

func (n *Node) send(addr string, frame []byte) error {
	peerAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("gossip: resolve addr: %w", err)
	}
	if _, err := n.conn.WriteToUDP(frame, peerAddr); err != nil {
		return fmt.Errorf("gossip: send to %s: %w", addr, err)
	}
	return nil
}

func filterPeers(bindAddr string, peers []string) []string {
	seen := make(map[string]struct{}, len(peers))
	out := make([]string, 0, len(peers))
	for _, peer := range peers {
		if peer == "" || peer == bindAddr {
			continue
		}
		if _, ok := seen[peer]; ok {
			continue
		}
		seen[peer] = struct{}{}
		out = append(out, peer)
	}
	return out
}

func (n *Node) reportErr(err error) {
	if n.onError == nil || err == nil {
		return
	}
	n.onError(err)
}

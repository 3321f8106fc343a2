package gossip

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "recipes"

func startNode(t *testing.T, id string) *Node {
	t.Helper()
	node := NewNode(id, "127.0.0.1:0", nil, func(err error) { t.Logf("%s: %v", id, err) })
	require.NoError(t, node.Start())
	node.Subscribe(testTopic)
	t.Cleanup(func() { _ = node.Stop() })
	return node
}

func receive(t *testing.T, node *Node) Received {
	t.Helper()
	select {
	case msg := <-node.Messages():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("no message for %s", node.ID())
		return Received{}
	}
}

func assertSilent(t *testing.T, node *Node) {
	t.Helper()
	select {
	case msg := <-node.Messages():
		t.Fatalf("unexpected message %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNodePublishReachesMeshView(t *testing.T) {
	a := startNode(t, "node-a")
	b := startNode(t, "node-b")
	c := startNode(t, "node-c")

	require.True(t, a.AddPeer(b.ID(), b.Addr()))
	require.True(t, a.AddPeer(c.ID(), c.Addr()))

	require.NoError(t, a.Publish(testTopic, []byte("hello")))

	for _, node := range []*Node{b, c} {
		msg := receive(t, node)
		assert.Equal(t, "node-a", msg.Source)
		assert.Equal(t, testTopic, msg.Topic)
		assert.Equal(t, []byte("hello"), msg.Data)
	}
}

func TestNodeDropsOtherTopics(t *testing.T) {
	a := startNode(t, "node-a")
	b := startNode(t, "node-b")
	a.AddPeer(b.ID(), b.Addr())

	require.NoError(t, a.Publish("weather", []byte("rain")))
	assertSilent(t, b)
}

func TestNodeSuppressesDuplicates(t *testing.T) {
	b := startNode(t, "node-b")

	frame, err := encodeEnvelope(Envelope{ID: "m-1", Topic: testTopic, Source: "node-x", Data: []byte("once")})
	require.NoError(t, err)
	conn, err := net.Dial("udp", b.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(frame)
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)

	msg := receive(t, b)
	assert.Equal(t, []byte("once"), msg.Data)
	assertSilent(t, b)
}

func TestNodeSurvivesGarbage(t *testing.T) {
	reported := make(chan error, 8)
	b := NewNode("node-b", "127.0.0.1:0", nil, func(err error) {
		select {
		case reported <- err:
		default:
		}
	})
	require.NoError(t, b.Start())
	b.Subscribe(testTopic)
	defer b.Stop()

	conn, err := net.Dial("udp", b.Addr())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, err)

	frame, err := encodeEnvelope(Envelope{ID: "m-2", Topic: testTopic, Source: "node-x", Data: []byte("after")})
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)

	msg := receive(t, b)
	assert.Equal(t, []byte("after"), msg.Data)
	assert.Positive(t, len(reported))
}

func TestNodePeerView(t *testing.T) {
	a := NewNode("node-a", "127.0.0.1:7000", []string{"127.0.0.1:7001", "127.0.0.1:7000", "127.0.0.1:7001"}, nil)

	assert.Equal(t, []string{"127.0.0.1:7001"}, a.Peers())

	assert.True(t, a.AddPeer("node-b", "127.0.0.1:7001"))
	assert.Equal(t, []string{"node-b"}, a.Peers())
	assert.False(t, a.AddPeer("node-b", "127.0.0.1:7001"))
	assert.True(t, a.AddPeer("node-b", "127.0.0.1:7002"))
	assert.False(t, a.AddPeer("node-a", "127.0.0.1:7003"))
	assert.False(t, a.AddPeer("node-c", "127.0.0.1:7000"))

	assert.True(t, a.RemovePeer("node-b"))
	assert.False(t, a.RemovePeer("node-b"))
	assert.Empty(t, a.Peers())
}

func TestNodePublishBeforeStart(t *testing.T) {
	a := NewNode("node-a", "127.0.0.1:0", nil, nil)
	require.ErrorIs(t, a.Publish(testTopic, []byte("x")), ErrNotStarted)
}

func TestNodePublishRejectsOversizedMessage(t *testing.T) {
	a := startNode(t, "node-a")
	err := a.Publish(testTopic, make([]byte, maxDatagram))
	require.Error(t, err)
}

func TestNodeStopIsIdempotent(t *testing.T) {
	a := NewNode("node-a", "127.0.0.1:0", nil, nil)
	require.NoError(t, a.Start())
	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())
}

func TestSeenCacheEvictsOldest(t *testing.T) {
	cache := newSeenCache(2)
	assert.True(t, cache.add("a"))
	assert.True(t, cache.add("b"))
	assert.False(t, cache.add("a"))
	assert.True(t, cache.add("c"))
	assert.True(t, cache.add("a"))
	assert.False(t, cache.add("c"))
}

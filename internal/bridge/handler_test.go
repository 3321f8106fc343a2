package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DobryySoul/recipeshare/internal/protocol"
	"github.com/DobryySoul/recipeshare/internal/recipe"
	"github.com/DobryySoul/recipeshare/internal/storage"
	"github.com/DobryySoul/recipeshare/internal/telemetry"
)

var testIdentity = protocol.Identity{PeerID: "peer-a", Topic: protocol.DefaultTopic}

type fakeNetwork struct {
	mu        sync.Mutex
	peers     []string
	published [][]byte
	err       error
}

func (f *fakeNetwork) Peers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.peers...)
}

func (f *fakeNetwork) Publish(topic string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, data)
	return nil
}

func (f *fakeNetwork) requests(t *testing.T) []protocol.ListRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.ListRequest, 0, len(f.published))
	for _, data := range f.published {
		req, err := protocol.DecodeRequest(data)
		require.NoError(t, err)
		out = append(out, req)
	}
	return out
}

type brokenStore struct {
	storage.Store
}

var errDisk = &storage.StorageError{Op: "read", Path: "recipes.json", Err: errors.New("disk on fire")}

func (brokenStore) Append(context.Context, recipe.Record) (recipe.Record, error) {
	return recipe.Record{}, errDisk
}

func (brokenStore) SetPublic(context.Context, uint64) error {
	return errDisk
}

func (brokenStore) ListPublic(context.Context) ([]recipe.Record, error) {
	return nil, errDisk
}

func newTestHandler(t *testing.T, store storage.Store, network *fakeNetwork) (*Handler, *telemetry.Metrics) {
	t.Helper()
	metrics := telemetry.New()
	return NewHandler(testIdentity, store, network, zaptest.NewLogger(t), metrics), metrics
}

func handle(t *testing.T, h *Handler, line string) string {
	t.Helper()
	reply, _ := h.Handle(context.Background(), line)
	data, err := json.Marshal(reply)
	require.NoError(t, err)
	return string(data)
}

func TestHandlerScenarios(t *testing.T) {
	store := storage.NewMemoryStore()
	h, _ := newTestHandler(t, store, &fakeNetwork{})

	// create, then the record is private
	assert.JSONEq(t, `{"status":"Recipe created"}`, handle(t, h, `create r "Soup|Water,Salt|Boil"`))
	assert.JSONEq(t, `[]`, handle(t, h, "ls r all"))

	// publish makes it visible
	assert.JSONEq(t, `{"status":"Recipe published"}`, handle(t, h, "publish r 1"))
	assert.JSONEq(t,
		`[{"id":1,"name":"Soup","ingredients":"Water,Salt","instructions":"Boil","public":true}]`,
		handle(t, h, "ls r all"))

	// unknown id is an explicit failure and changes nothing
	before, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Recipe not found"}`, handle(t, h, "publish r 999"))
	after, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.JSONEq(t, `{"error":"Invalid command"}`, handle(t, h, "frobnicate"))
}

func TestHandlerMalformedCommandsReply(t *testing.T) {
	store := storage.NewMemoryStore()
	h, metrics := newTestHandler(t, store, &fakeNetwork{})

	assert.JSONEq(t, `{"error":"Malformed command: invalid recipe id \"abc\""}`, handle(t, h, "publish r abc"))
	assert.JSONEq(t, `{"error":"Malformed command: expected 3 '|'-separated fields, got 1"}`, handle(t, h, "create r Soup"))

	records, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CommandsTotal.WithLabelValues("publish", "malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CommandsTotal.WithLabelValues("create", "malformed")))
}

func TestHandlerStorageFailure(t *testing.T) {
	h, metrics := newTestHandler(t, brokenStore{}, &fakeNetwork{})

	for _, line := range []string{"create r Soup|Water|Boil", "publish r 1", "ls r all"} {
		assert.JSONEq(t, `{"error":"Storage failure"}`, handle(t, h, line), line)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CommandsTotal.WithLabelValues("create", "storage_error")))
}

func TestHandlerListPeers(t *testing.T) {
	h, _ := newTestHandler(t, storage.NewMemoryStore(), &fakeNetwork{})
	assert.JSONEq(t, `{"type":"peers","peers":[]}`, handle(t, h, "ls p"))

	h, _ = newTestHandler(t, storage.NewMemoryStore(), &fakeNetwork{peers: []string{"peer-b", "peer-c"}})
	assert.JSONEq(t, `{"type":"peers","peers":["peer-b","peer-c"]}`, handle(t, h, "ls p"))
}

func TestHandlerListRequests(t *testing.T) {
	network := &fakeNetwork{}
	h, _ := newTestHandler(t, storage.NewMemoryStore(), network)

	assert.JSONEq(t, `[]`, handle(t, h, "ls r all"))
	assert.JSONEq(t, `{"status":"List request sent"}`, handle(t, h, "ls r peer-b"))

	reqs := network.requests(t)
	require.Len(t, reqs, 2)
	assert.Equal(t, protocol.All(), reqs[0].Mode)
	assert.Equal(t, protocol.One("peer-b"), reqs[1].Mode)
}

func TestHandlerNetworkFailure(t *testing.T) {
	network := &fakeNetwork{err: errors.New("no route")}
	store := storage.NewMemoryStore(recipe.Record{ID: 1, Name: "Tea", Visibility: recipe.Public})
	h, _ := newTestHandler(t, store, network)

	// local listing still answers when the broadcast fails
	assert.JSONEq(t,
		`[{"id":1,"name":"Tea","ingredients":"","instructions":"","public":true}]`,
		handle(t, h, "ls r all"))
	assert.JSONEq(t, `{"error":"Network failure"}`, handle(t, h, "ls r peer-b"))
}

func TestHandlerQuit(t *testing.T) {
	h, _ := newTestHandler(t, storage.NewMemoryStore(), &fakeNetwork{})
	reply, quit := h.Handle(context.Background(), "quit")
	assert.True(t, quit)
	assert.Equal(t, Status{Status: "Bye"}, reply)

	_, quit = h.Handle(context.Background(), "ls p")
	assert.False(t, quit)
}

package bridge

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DobryySoul/recipeshare/internal/recipe"
	"github.com/DobryySoul/recipeshare/internal/storage"
	"github.com/DobryySoul/recipeshare/internal/telemetry"
)

// startServer runs a server and serves its sessions the way the node's event
// loop does.
func startServer(t *testing.T, store storage.Store) *Server {
	t.Helper()
	metrics := telemetry.New()
	h := NewHandler(testIdentity, store, &fakeNetwork{}, zap.NewNop(), metrics)
	srv := NewServer(h, zap.NewNop(), metrics)
	require.NoError(t, srv.Listen("127.0.0.1:0"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Serve() }()
	go func() {
		for {
			select {
			case sess := <-srv.Sessions():
				go sess.Serve(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		_ = srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, line string) string {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(line)))
	return readText(t, conn)
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	return string(data)
}

func TestServerCommandSession(t *testing.T) {
	srv := startServer(t, storage.NewMemoryStore())
	conn := dial(t, srv)

	assert.Equal(t, `{"status":"Recipe created"}`, roundTrip(t, conn, `create r "Soup|Water,Salt|Boil"`))
	assert.Equal(t, `[]`, roundTrip(t, conn, "ls r all"))
	assert.Equal(t, `{"status":"Recipe published"}`, roundTrip(t, conn, "publish r 1"))
	assert.Equal(t,
		`[{"id":1,"name":"Soup","ingredients":"Water,Salt","instructions":"Boil","public":true}]`,
		roundTrip(t, conn, "ls r all"))
	assert.Equal(t, `{"error":"Recipe not found"}`, roundTrip(t, conn, "publish r 999"))
	assert.Equal(t, `{"error":"Invalid command"}`, roundTrip(t, conn, "frobnicate"))

	// a malformed id does not end the session
	assert.Equal(t, `{"error":"Malformed command: invalid recipe id \"x\""}`, roundTrip(t, conn, "publish r x"))
	assert.Equal(t, `{"type":"peers","peers":[]}`, roundTrip(t, conn, "ls p"))
}

func TestServerBinaryFrame(t *testing.T) {
	srv := startServer(t, storage.NewMemoryStore())
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x00, 0x01}))
	assert.Equal(t, `{"error":"Invalid command"}`, readText(t, conn))
	assert.Equal(t, `{"type":"peers","peers":[]}`, roundTrip(t, conn, "ls p"))
}

func TestServerQuitClosesSession(t *testing.T) {
	srv := startServer(t, storage.NewMemoryStore())
	conn := dial(t, srv)

	assert.Equal(t, `{"status":"Bye"}`, roundTrip(t, conn, "quit"))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestServerConcurrentCreates(t *testing.T) {
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "recipes.json"), nil)
	require.NoError(t, store.Init(context.Background()))
	srv := startServer(t, store)
	const n = 20

	var wg sync.WaitGroup
	replies := make(chan string, n)
	for i := 0; i < n; i++ {
		conn := dial(t, srv)
		wg.Add(1)
		go func(i int, conn *websocket.Conn) {
			defer wg.Done()
			if err := conn.WriteMessage(websocket.TextMessage, []byte("create r r"+strconv.Itoa(i)+"|x|y")); err != nil {
				replies <- err.Error()
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			_, data, err := conn.ReadMessage()
			if err != nil {
				replies <- err.Error()
				return
			}
			replies <- string(data)
		}(i, conn)
	}
	wg.Wait()
	close(replies)
	for reply := range replies {
		assert.Equal(t, `{"status":"Recipe created"}`, reply)
	}

	records, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, n)
	seen := make(map[uint64]bool)
	for _, r := range records {
		assert.False(t, seen[r.ID], "duplicate id %d", r.ID)
		seen[r.ID] = true
	}
}

func TestServerBroadcast(t *testing.T) {
	srv := startServer(t, storage.NewMemoryStore())
	first := dial(t, srv)
	second := dial(t, srv)
	// a round trip guarantees both sessions are registered
	roundTrip(t, first, "ls p")
	roundTrip(t, second, "ls p")

	srv.Broadcast(NewRemoteRecipes("peer-b", []recipe.Record{{ID: 3, Name: "Tea", Visibility: recipe.Public}}))

	want := `{"type":"recipes","peer":"peer-b","recipes":[{"id":3,"name":"Tea","ingredients":"","instructions":"","public":true}]}`
	assert.Equal(t, want, readText(t, first))
	assert.Equal(t, want, readText(t, second))
}

func TestServerHTTPEndpoints(t *testing.T) {
	srv := startServer(t, storage.NewMemoryStore())
	conn := dial(t, srv)
	roundTrip(t, conn, "ls p")

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `recipeshare_commands_total{command="ls_peers",result="ok"} 1`)
	assert.Contains(t, string(body), `recipeshare_sessions 1`)
}

func TestServerCloseEndsSessions(t *testing.T) {
	srv := startServer(t, storage.NewMemoryStore())
	conn := dial(t, srv)
	roundTrip(t, conn, "ls p")

	require.NoError(t, srv.Close())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	_, _, err = websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/", nil)
	require.Error(t, err)
}

func TestServerRejectsSessionNobodyTakes(t *testing.T) {
	h := NewHandler(testIdentity, storage.NewMemoryStore(), &fakeNetwork{}, zap.NewNop(), nil)
	srv := NewServer(h, zap.NewNop(), nil)
	srv.handoff = 50 * time.Millisecond
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Close() })

	conn := dial(t, srv)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)
}

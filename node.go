package recipeshare

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/DobryySoul/recipeshare/internal/bridge"
	"github.com/DobryySoul/recipeshare/internal/discovery"
	"github.com/DobryySoul/recipeshare/internal/gossip"
	"github.com/DobryySoul/recipeshare/internal/protocol"
	"github.com/DobryySoul/recipeshare/internal/router"
	"github.com/DobryySoul/recipeshare/internal/storage"
	"github.com/DobryySoul/recipeshare/internal/telemetry"
)

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("recipeshare: node already running")

// Node represents a running recipeshare peer.
// It is safe for concurrent use by multiple goroutines.
type Node struct {
	cfg     Config
	ident   protocol.Identity
	log     *zap.Logger
	metrics *telemetry.Metrics

	store     storage.Store
	gossip    *gossip.Node
	discovery *discovery.MDNS
	server    *bridge.Server
	router    *router.Router

	mu      sync.RWMutex
	closed  bool
	running bool
}

// New creates a node with the provided options. The gossip socket and the
// command listener are bound before New returns; nothing is served until Run.
func New(opts ...Option) (*Node, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	n := &Node{
		cfg:     cfg,
		ident:   protocol.Identity{PeerID: cfg.NodeID, Topic: cfg.Topic},
		log:     cfg.logger.With(zap.String("peer", cfg.NodeID)),
		metrics: telemetry.New(),
	}
	if err := n.open(); err != nil {
		n.shutdown()
		return nil, err
	}
	n.log.Info("node ready",
		zap.String("topic", cfg.Topic),
		zap.String("gossip", n.gossip.Addr()),
		zap.String("command", n.server.Addr()),
		zap.Bool("discovery", n.discovery != nil),
	)
	return n, nil
}

func (n *Node) open() error {
	if n.cfg.StorePath == "" {
		n.store = storage.NewMemoryStore()
	} else {
		fs := storage.NewFileStore(n.cfg.StorePath, n.cfg.codec)
		if err := fs.Init(context.Background()); err != nil {
			return err
		}
		n.store = fs
	}

	n.gossip = gossip.NewNode(n.cfg.NodeID, n.cfg.GossipAddr, n.cfg.Seeds, n.reporter("gossip"))
	if err := n.gossip.Start(); err != nil {
		n.gossip = nil
		return fmt.Errorf("recipeshare: start gossip: %w", err)
	}
	n.gossip.Subscribe(n.cfg.Topic)
	n.metrics.SetPeers(len(n.gossip.Peers()))

	if n.cfg.Discovery {
		mdns, err := discovery.NewMDNS(n.cfg.NodeID, n.gossip.Addr(), n.cfg.DiscoveryInterval, n.cfg.PeerTTL, n.reporter("discovery"))
		if err != nil {
			return err
		}
		n.discovery = mdns
	}

	bridgeLog := n.log.Named("bridge")
	handler := bridge.NewHandler(n.ident, n.store, n.gossip, bridgeLog, n.metrics)
	server := bridge.NewServer(handler, bridgeLog, n.metrics)
	if err := server.Listen(n.cfg.CommandAddr); err != nil {
		return fmt.Errorf("recipeshare: listen for commands: %w", err)
	}
	n.server = server

	n.router = router.New(n.ident, n.store, n.gossip, server, n.log.Named("router"), n.metrics)
	return nil
}

// reporter logs background errors of a component and forwards them to the
// configured error handler.
func (n *Node) reporter(component string) func(error) {
	log := n.log.Named(component)
	return func(err error) {
		log.Debug("background error", zap.Error(err))
		if n.cfg.errorHandler != nil {
			n.cfg.errorHandler(err)
		}
	}
}

// Run serves command connections and runs the event loop until ctx is
// cancelled. It returns nil after a clean shutdown. Call Close afterwards to
// release the overlay and the store.
func (n *Node) Run(ctx context.Context) error {
	if err := n.check(ctx); err != nil {
		return err
	}
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return ErrAlreadyRunning
	}
	n.running = true
	n.mu.Unlock()

	var events <-chan discovery.Event
	if n.discovery != nil {
		events = n.discovery.Events()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(n.server.Serve)
	g.Go(func() error {
		return n.router.Run(gctx, router.Sources{
			Sessions:  n.server.Sessions(),
			Discovery: events,
			Messages:  n.gossip.Messages(),
		})
	})
	g.Go(func() error {
		<-gctx.Done()
		return n.server.Close()
	})
	err := g.Wait()
	n.log.Info("node stopped")
	return err
}

// Create stores a new private recipe and returns it with its assigned id.
func (n *Node) Create(ctx context.Context, name, ingredients, instructions string) (Recipe, error) {
	if err := n.check(ctx); err != nil {
		return Recipe{}, err
	}
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" {
		return Recipe{}, fmt.Errorf("recipeshare: recipe name cannot be empty")
	}
	rec, err := n.store.Append(ctx, Recipe{
		Name:         name,
		Ingredients:  strings.TrimSpace(norm.NFC.String(ingredients)),
		Instructions: strings.TrimSpace(norm.NFC.String(instructions)),
	})
	if err != nil {
		return Recipe{}, mapStoreErr(err)
	}
	return rec, nil
}

// Publish makes the recipe with the given id visible to other peers.
// It returns ErrNotFound if no recipe has that id.
func (n *Node) Publish(ctx context.Context, id uint64) error {
	if err := n.check(ctx); err != nil {
		return err
	}
	return mapStoreErr(n.store.SetPublic(ctx, id))
}

// PublicRecipes returns the local public recipes.
func (n *Node) PublicRecipes(ctx context.Context) ([]Recipe, error) {
	if err := n.check(ctx); err != nil {
		return nil, err
	}
	records, err := n.store.ListPublic(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return records, nil
}

// RequestList asks peers for their public recipes. An empty peer asks every
// peer. Answers are pushed to open command connections.
func (n *Node) RequestList(ctx context.Context, peer string) error {
	if err := n.check(ctx); err != nil {
		return err
	}
	mode := protocol.All()
	if peer != "" {
		mode = protocol.One(peer)
	}
	data, err := protocol.EncodeRequest(protocol.ListRequest{Mode: mode})
	if err != nil {
		return err
	}
	return n.gossip.Publish(n.cfg.Topic, data)
}

// Peers returns the ids in the gossip mesh view.
func (n *Node) Peers() []string {
	return n.gossip.Peers()
}

// ID returns the local peer id.
func (n *Node) ID() string {
	return n.cfg.NodeID
}

// GossipAddr returns the bound gossip address.
func (n *Node) GossipAddr() string {
	return n.gossip.Addr()
}

// CommandAddr returns the bound command listener address.
func (n *Node) CommandAddr() string {
	return n.server.Addr()
}

// Close releases resources and marks the node as closed.
// Further operations will return ErrClosed.
// The provided context allows cancellation of the close operation.
func (n *Node) Close(ctx context.Context) error {
	if err := mapContextErr(ctx); err != nil {
		return err
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	n.closed = true
	n.mu.Unlock()
	return n.shutdown()
}

func (n *Node) shutdown() error {
	if n.discovery != nil {
		n.discovery.Stop()
	}
	if n.server != nil {
		_ = n.server.Close()
	}
	if n.gossip != nil {
		_ = n.gossip.Stop()
	}
	if n.store == nil {
		return nil
	}
	return mapStoreErr(n.store.Close())
}

func (n *Node) check(ctx context.Context) error {
	if err := mapContextErr(ctx); err != nil {
		return err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}
	return nil
}

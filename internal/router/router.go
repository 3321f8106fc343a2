// Package router runs the node's single event loop. It multiplexes new
// command sessions, discovery events and gossip messages, and answers list
// requests from other peers.
package router

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/DobryySoul/recipeshare/internal/bridge"
	"github.com/DobryySoul/recipeshare/internal/discovery"
	"github.com/DobryySoul/recipeshare/internal/gossip"
	"github.com/DobryySoul/recipeshare/internal/protocol"
	"github.com/DobryySoul/recipeshare/internal/storage"
	"github.com/DobryySoul/recipeshare/internal/telemetry"
)

// Overlay is the part of the gossip node the loop drives.
type Overlay interface {
	Publish(topic string, data []byte) error
	AddPeer(id, addr string) bool
	RemovePeer(id string) bool
	Peers() []string
}

// Broadcaster pushes unsolicited messages to open command sessions.
type Broadcaster interface {
	Broadcast(v any)
}

// Sources are the event streams the loop selects over. A nil channel is never
// selected, so any of them may be left out.
type Sources struct {
	Sessions  <-chan *bridge.Session
	Discovery <-chan discovery.Event
	Messages  <-chan gossip.Received
}

type Router struct {
	ident   protocol.Identity
	store   storage.Store
	overlay Overlay
	hub     Broadcaster
	log     *zap.Logger
	metrics *telemetry.Metrics

	wg sync.WaitGroup
}

func New(ident protocol.Identity, store storage.Store, overlay Overlay, hub Broadcaster, log *zap.Logger, metrics *telemetry.Metrics) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		ident:   ident,
		store:   store,
		overlay: overlay,
		hub:     hub,
		log:     log,
		metrics: metrics,
	}
}

// Run handles events until ctx is done. Slow work (sessions, replies to list
// requests, pushes to clients) runs on its own goroutine so the loop keeps
// draining events. Run waits for that work before returning.
func (r *Router) Run(ctx context.Context, src Sources) error {
	defer r.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil

		case sess, ok := <-src.Sessions:
			if !ok {
				src.Sessions = nil
				continue
			}
			r.log.Debug("session accepted", zap.String("session", sess.ID()))
			r.spawn(func() { sess.Serve(ctx) })

		case ev, ok := <-src.Discovery:
			if !ok {
				src.Discovery = nil
				continue
			}
			r.handleDiscovery(ev)

		case msg, ok := <-src.Messages:
			if !ok {
				src.Messages = nil
				continue
			}
			r.handleMessage(ctx, msg)
		}
	}
}

func (r *Router) spawn(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

func (r *Router) handleDiscovery(ev discovery.Event) {
	switch ev.Kind {
	case discovery.PeerAppeared:
		if r.overlay.AddPeer(ev.PeerID, ev.Addr) {
			r.log.Info("peer discovered", zap.String("peer", ev.PeerID), zap.String("addr", ev.Addr))
		}
	case discovery.PeerExpired:
		if r.overlay.RemovePeer(ev.PeerID) {
			r.log.Info("peer expired", zap.String("peer", ev.PeerID))
		}
	}
	// an address change or a seed taking its peer id leaves the view size as is
	r.metrics.SetPeers(len(r.overlay.Peers()))
}

func (r *Router) handleMessage(ctx context.Context, msg gossip.Received) {
	if req, err := protocol.DecodeRequest(msg.Data); err == nil {
		if !r.addressed(req.Mode) {
			r.metrics.GossipMessage("ignored")
			return
		}
		r.metrics.GossipMessage("request")
		r.log.Debug("list request", zap.String("from", msg.Source), zap.Stringer("mode", req.Mode))
		r.spawn(func() { r.answer(ctx, msg.Source, req.Mode) })
		return
	}

	if resp, err := protocol.DecodeResponse(msg.Data); err == nil {
		if resp.Receiver != r.ident.PeerID {
			r.metrics.GossipMessage("ignored")
			return
		}
		r.metrics.GossipMessage("response")
		r.log.Info("recipes received", zap.String("from", msg.Source), zap.Int("count", len(resp.Data)))
		remote := bridge.NewRemoteRecipes(msg.Source, resp.Data)
		r.spawn(func() { r.hub.Broadcast(remote) })
		return
	}

	r.metrics.GossipMessage("ignored")
	r.log.Debug("unrecognized gossip payload", zap.String("from", msg.Source), zap.Int("size", len(msg.Data)))
}

func (r *Router) addressed(mode protocol.ListMode) bool {
	switch mode.Kind {
	case protocol.ModeAll:
		return true
	case protocol.ModeOne:
		return mode.Peer == r.ident.PeerID
	default:
		return false
	}
}

// answer replies to source with our public recipes.
func (r *Router) answer(ctx context.Context, source string, mode protocol.ListMode) {
	records, err := r.store.ListPublic(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Error("list public recipes", zap.Error(err))
		}
		return
	}
	data, err := protocol.EncodeResponse(protocol.ListResponse{
		Mode:     mode,
		Data:     records,
		Receiver: source,
	})
	if err != nil {
		r.log.Error("encode list response", zap.Error(err))
		return
	}
	if err := r.overlay.Publish(r.ident.Topic, data); err != nil {
		r.log.Warn("publish list response", zap.String("to", source), zap.Error(err))
		return
	}
	r.log.Debug("list response sent", zap.String("to", source), zap.Int("count", len(records)))
}

package bridge

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DobryySoul/recipeshare/internal/protocol"
	"github.com/DobryySoul/recipeshare/internal/recipe"
	"github.com/DobryySoul/recipeshare/internal/storage"
	"github.com/DobryySoul/recipeshare/internal/telemetry"
)

// Network is the part of the gossip overlay the bridge needs.
type Network interface {
	Peers() []string
	Publish(topic string, data []byte) error
}

// Handler executes command lines against the store and the overlay. Every
// line yields exactly one reply.
type Handler struct {
	ident   protocol.Identity
	store   storage.Store
	network Network
	log     *zap.Logger
	metrics *telemetry.Metrics
}

func NewHandler(ident protocol.Identity, store storage.Store, network Network, log *zap.Logger, metrics *telemetry.Metrics) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		ident:   ident,
		store:   store,
		network: network,
		log:     log,
		metrics: metrics,
	}
}

// Handle runs one command line. quit reports that the client asked to close
// the connection.
func (h *Handler) Handle(ctx context.Context, line string) (reply any, quit bool) {
	start := time.Now()
	cmd, err := Parse(line)
	if err != nil {
		var perr *ProtocolError
		if errors.As(err, &perr) {
			h.metrics.ObserveCommand(perr.Command, "malformed", time.Since(start))
			return Failure{Error: msgMalformed + perr.Reason}, false
		}
		h.metrics.ObserveCommand("invalid", "invalid", time.Since(start))
		return Failure{Error: msgInvalidCommand}, false
	}

	reply, result := h.execute(ctx, cmd)
	h.metrics.ObserveCommand(cmd.Kind.String(), result, time.Since(start))
	return reply, cmd.Kind == Quit
}

func (h *Handler) execute(ctx context.Context, cmd Command) (any, string) {
	switch cmd.Kind {
	case ListPublic:
		records, err := h.store.ListPublic(ctx)
		if err != nil {
			return h.storageFailure(cmd, err), "storage_error"
		}
		if err := h.requestList(protocol.All()); err != nil {
			h.log.Warn("broadcast list request failed", zap.Error(err))
		}
		return recipe.Clone(records), "ok"

	case ListPeers:
		peers := h.network.Peers()
		if peers == nil {
			peers = []string{}
		}
		return PeerList{Type: "peers", Peers: peers}, "ok"

	case ListPeer:
		if err := h.requestList(protocol.One(cmd.Peer)); err != nil {
			h.log.Warn("directed list request failed", zap.String("peer", cmd.Peer), zap.Error(err))
			return Failure{Error: msgNetworkFailure}, "network_error"
		}
		return Status{Status: msgListRequestSent}, "ok"

	case Publish:
		err := h.store.SetPublic(ctx, cmd.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return Failure{Error: msgNotFound}, "not_found"
		case err != nil:
			return h.storageFailure(cmd, err), "storage_error"
		}
		h.log.Info("recipe published", zap.Uint64("id", cmd.ID))
		return Status{Status: msgPublished}, "ok"

	case Create:
		stored, err := h.store.Append(ctx, cmd.Recipe)
		if err != nil {
			return h.storageFailure(cmd, err), "storage_error"
		}
		h.log.Info("recipe created", zap.Uint64("id", stored.ID), zap.String("name", stored.Name))
		return Status{Status: msgCreated}, "ok"

	case Quit:
		return Status{Status: msgBye}, "ok"

	default:
		return Failure{Error: msgInvalidCommand}, "invalid"
	}
}

func (h *Handler) requestList(mode protocol.ListMode) error {
	data, err := protocol.EncodeRequest(protocol.ListRequest{Mode: mode})
	if err != nil {
		return err
	}
	return h.network.Publish(h.ident.Topic, data)
}

func (h *Handler) storageFailure(cmd Command, err error) Failure {
	h.log.Error("store operation failed", zap.Stringer("command", cmd.Kind), zap.Error(err))
	return Failure{Error: msgStorageFailure}
}

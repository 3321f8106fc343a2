package discovery

import (
	"slices"
	"time"
)

type EventKind int

const (
	PeerAppeared EventKind = iota
	PeerExpired
)

func (k EventKind) String() string {
	switch k {
	case PeerAppeared:
		return "appeared"
	case PeerExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Event reports a change in peer reachability. Addr is empty for expiries.
type Event struct {
	Kind   EventKind
	PeerID string
	Addr   string
}

type peerState struct {
	addr     string
	lastSeen time.Time
}

// tracker turns repeated browse sightings into appeared/expired events.
type tracker struct {
	ttl   time.Duration
	peers map[string]peerState
}

func newTracker(ttl time.Duration) *tracker {
	return &tracker{ttl: ttl, peers: make(map[string]peerState)}
}

// observe records a sighting. It returns an appeared event for new peers and
// for known peers whose address changed.
func (t *tracker) observe(id, addr string, now time.Time) (Event, bool) {
	prev, known := t.peers[id]
	t.peers[id] = peerState{addr: addr, lastSeen: now}
	if known && prev.addr == addr {
		return Event{}, false
	}
	return Event{Kind: PeerAppeared, PeerID: id, Addr: addr}, true
}

// expire forgets peers last seen more than ttl ago, in id order.
func (t *tracker) expire(now time.Time) []Event {
	var gone []string
	for id, state := range t.peers {
		if now.Sub(state.lastSeen) > t.ttl {
			gone = append(gone, id)
		}
	}
	slices.Sort(gone)
	events := make([]Event, 0, len(gone))
	for _, id := range gone {
		delete(t.peers, id)
		events = append(events, Event{Kind: PeerExpired, PeerID: id})
	}
	return events
}

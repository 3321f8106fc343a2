package discovery

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/grandcat/zeroconf"
)

const (
	serviceName = "_recipeshare._udp"
	nodeTXT     = "node="
	drainGrace  = 250 * time.Millisecond
)

// MDNS announces the local node and reports peers on the LAN as they appear
// and expire.
type MDNS struct {
	nodeID   string
	server   *zeroconf.Server
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	events   chan Event
	tracker  *tracker
	interval time.Duration
	onError  func(error)
}

// NewMDNS registers nodeID on the port of bindAddr and starts browsing every
// interval. Peers not seen for ttl are reported as expired.
func NewMDNS(nodeID, bindAddr string, interval, ttl time.Duration, onError func(error)) (*MDNS, error) {
	_, portStr, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return nil, fmt.Errorf("discovery: invalid bind addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("discovery: invalid port: %w", err)
	}
	if interval <= 0 || ttl <= 0 {
		return nil, fmt.Errorf("discovery: interval and ttl must be positive")
	}

	var server *zeroconf.Server
	err = backoff.Retry(func() error {
		s, err := zeroconf.Register(nodeID, serviceName, "local.", port, []string{nodeTXT + nodeID}, nil)
		if err != nil {
			return err
		}
		server = s
		return nil
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3))
	if err != nil {
		return nil, fmt.Errorf("discovery: register: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &MDNS{
		nodeID:   nodeID,
		server:   server,
		cancel:   cancel,
		events:   make(chan Event, 16),
		tracker:  newTracker(ttl),
		interval: interval,
		onError:  onError,
	}
	m.wg.Add(1)
	go m.loop(ctx)
	return m, nil
}

// Events delivers peer appeared/expired notifications. It is closed by Stop.
func (m *MDNS) Events() <-chan Event {
	return m.events
}

func (m *MDNS) loop(ctx context.Context) {
	defer m.wg.Done()
	defer close(m.events)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if !m.browse(ctx) {
			return
		}
		for _, ev := range m.tracker.expire(time.Now()) {
			if !m.emit(ctx, ev) {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// browse runs one resolver round. A resolver shuts down with its context, so
// every round gets a fresh one.
func (m *MDNS) browse(ctx context.Context) bool {
	window := m.interval / 2
	if window < time.Second {
		window = time.Second
	}
	roundCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		m.reportErr(fmt.Errorf("discovery: resolver: %w", err))
		return ctx.Err() == nil
	}
	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(roundCtx, serviceName, "local.", entries); err != nil {
		m.reportErr(fmt.Errorf("discovery: browse: %w", err))
		cancel()
		drain(entries)
		return ctx.Err() == nil
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return ctx.Err() == nil
			}
			if !m.observe(ctx, entry) {
				drain(entries)
				return false
			}
		case <-roundCtx.Done():
			drain(entries)
			return ctx.Err() == nil
		}
	}
}

func (m *MDNS) observe(ctx context.Context, entry *zeroconf.ServiceEntry) bool {
	if entry == nil || m.isSelf(entry) {
		return true
	}
	id, addr, ok := entryPeer(entry)
	if !ok {
		return true
	}
	ev, changed := m.tracker.observe(id, addr, time.Now())
	if !changed {
		return true
	}
	return m.emit(ctx, ev)
}

func (m *MDNS) emit(ctx context.Context, ev Event) bool {
	select {
	case m.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// drain keeps the resolver from blocking on a send while it shuts down.
func drain(entries <-chan *zeroconf.ServiceEntry) {
	timer := time.NewTimer(drainGrace)
	defer timer.Stop()
	for {
		select {
		case _, ok := <-entries:
			if !ok {
				return
			}
		case <-timer.C:
			return
		}
	}
}

// isSelf returns true if the discovered service entry belongs to this node.
func (m *MDNS) isSelf(entry *zeroconf.ServiceEntry) bool {
	return slices.Contains(entry.Text, nodeTXT+m.nodeID)
}

// entryPeer extracts the peer id and the first usable address.
func entryPeer(entry *zeroconf.ServiceEntry) (string, string, bool) {
	var id string
	for _, txt := range entry.Text {
		if strings.HasPrefix(txt, nodeTXT) {
			id = strings.TrimPrefix(txt, nodeTXT)
			break
		}
	}
	if id == "" || entry.Port <= 0 {
		return "", "", false
	}
	port := strconv.Itoa(entry.Port)
	switch {
	case len(entry.AddrIPv4) > 0:
		return id, net.JoinHostPort(entry.AddrIPv4[0].String(), port), true
	case len(entry.AddrIPv6) > 0:
		return id, net.JoinHostPort(entry.AddrIPv6[0].String(), port), true
	default:
		return "", "", false
	}
}

// Stop shuts down the discovery service.
func (m *MDNS) Stop() {
	if m == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.server.Shutdown()
}

func (m *MDNS) reportErr(err error) {
	if m.onError == nil || err == nil {
		return
	}
	m.onError(err)
}

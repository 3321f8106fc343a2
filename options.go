package recipeshare

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/DobryySoul/recipeshare/internal/protocol"
)

// Option configures the node on creation.
// Return an error to reject an invalid option value.
type Option func(*Config) error

// Config holds runtime configuration for a recipeshare node.
// Users typically set it via Option helpers.
type Config struct {
	NodeID            string
	Topic             string
	GossipAddr        string
	Seeds             []string
	Discovery         bool
	DiscoveryInterval time.Duration
	PeerTTL           time.Duration
	CommandAddr       string
	StorePath         string
	codec             Codec
	logger            *zap.Logger
	errorHandler      func(error)
}

func defaultConfig() Config {
	return Config{
		Topic:             protocol.DefaultTopic,
		GossipAddr:        "0.0.0.0:0",
		Discovery:         true,
		DiscoveryInterval: 10 * time.Second,
		PeerTTL:           30 * time.Second,
		CommandAddr:       "127.0.0.1:9000",
	}
}

func (c *Config) finalize() error {
	if c.NodeID == "" {
		id, err := randomNodeID()
		if err != nil {
			return err
		}
		c.NodeID = id
	}
	if err := validateAddr(c.GossipAddr); err != nil {
		return err
	}
	if err := validateAddr(c.CommandAddr); err != nil {
		return err
	}
	if c.DiscoveryInterval <= 0 || c.PeerTTL <= 0 {
		return fmt.Errorf("recipeshare: discovery interval and peer ttl must be positive")
	}
	if c.PeerTTL < c.DiscoveryInterval {
		return fmt.Errorf("recipeshare: peer ttl %s shorter than discovery interval %s", c.PeerTTL, c.DiscoveryInterval)
	}
	if c.codec == nil {
		c.codec = JSONCodec{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return nil
}

// WithNodeID sets a stable peer identifier used on the overlay.
// If omitted, a random ID is generated.
func WithNodeID(nodeID string) Option {
	return func(c *Config) error {
		if nodeID == "" {
			return fmt.Errorf("recipeshare: node id cannot be empty")
		}
		c.NodeID = nodeID
		return nil
	}
}

// WithTopic sets the gossip topic recipes are shared on.
func WithTopic(topic string) Option {
	return func(c *Config) error {
		if topic == "" {
			return fmt.Errorf("recipeshare: topic cannot be empty")
		}
		c.Topic = topic
		return nil
	}
}

// WithGossipAddr sets the UDP address of the gossip overlay in host:port form.
// Port 0 picks a free port.
func WithGossipAddr(addr string) Option {
	return func(c *Config) error {
		if err := validateAddr(addr); err != nil {
			return err
		}
		c.GossipAddr = addr
		return nil
	}
}

// WithSeeds sets gossip addresses that are in the mesh view from the start.
func WithSeeds(seeds []string) Option {
	return func(c *Config) error {
		for _, seed := range seeds {
			if err := validateAddr(seed); err != nil {
				return err
			}
		}
		c.Seeds = append([]string(nil), seeds...)
		return nil
	}
}

// WithDiscovery enables or disables mDNS discovery.
func WithDiscovery(enabled bool) Option {
	return func(c *Config) error {
		c.Discovery = enabled
		return nil
	}
}

// WithDiscoveryInterval sets how often the LAN is browsed for peers.
func WithDiscoveryInterval(interval time.Duration) Option {
	return func(c *Config) error {
		if interval <= 0 {
			return fmt.Errorf("recipeshare: discovery interval must be positive")
		}
		c.DiscoveryInterval = interval
		return nil
	}
}

// WithPeerTTL sets how long a discovered peer stays in the mesh view without
// being seen again.
func WithPeerTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		if ttl <= 0 {
			return fmt.Errorf("recipeshare: peer ttl must be positive")
		}
		c.PeerTTL = ttl
		return nil
	}
}

// WithCommandAddr sets the TCP address command clients connect to.
func WithCommandAddr(addr string) Option {
	return func(c *Config) error {
		if err := validateAddr(addr); err != nil {
			return err
		}
		c.CommandAddr = addr
		return nil
	}
}

// WithStorePath sets the record file. Without it records live in memory.
func WithStorePath(path string) Option {
	return func(c *Config) error {
		if path == "" {
			return fmt.Errorf("recipeshare: store path cannot be empty")
		}
		c.StorePath = path
		return nil
	}
}

// WithCodec sets the record file encoding. JSONCodec is the default.
func WithCodec(codec Codec) Option {
	return func(c *Config) error {
		if codec == nil {
			return fmt.Errorf("recipeshare: codec cannot be nil")
		}
		c.codec = codec
		return nil
	}
}

// WithLogger sets the logger. Components log under named children of it.
func WithLogger(log *zap.Logger) Option {
	return func(c *Config) error {
		if log == nil {
			return fmt.Errorf("recipeshare: logger cannot be nil")
		}
		c.logger = log
		return nil
	}
}

// WithErrorHandler sets a callback for background errors (decoding, network).
// It is best-effort and must be fast and non-blocking.
func WithErrorHandler(handler func(error)) Option {
	return func(c *Config) error {
		if handler == nil {
			return fmt.Errorf("recipeshare: error handler cannot be nil")
		}
		c.errorHandler = handler
		return nil
	}
}

func randomNodeID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("recipeshare: generate node id: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

func validateAddr(addr string) error {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("recipeshare: invalid address %q: %w", addr, err)
	}
	return nil
}

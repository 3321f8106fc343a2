// Package config loads node settings from a YAML or JSON file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DobryySoul/recipeshare"
)

// FileConfig is the layout of the config file. Empty fields keep the node
// defaults.
type FileConfig struct {
	NodeID  string        `yaml:"node_id" json:"node_id"`
	Topic   string        `yaml:"topic" json:"topic"`
	Command CommandConfig `yaml:"command" json:"command"`
	Gossip  GossipConfig  `yaml:"gossip" json:"gossip"`
	Store   StoreConfig   `yaml:"store" json:"store"`
}

type CommandConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

type GossipConfig struct {
	Addr      string          `yaml:"addr" json:"addr"`
	Seeds     []string        `yaml:"seeds" json:"seeds"`
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`
}

type DiscoveryConfig struct {
	Enabled  *bool  `yaml:"enabled" json:"enabled"`
	Interval string `yaml:"interval" json:"interval"`
	PeerTTL  string `yaml:"peer_ttl" json:"peer_ttl"`
}

type StoreConfig struct {
	Path  string `yaml:"path" json:"path"`
	Codec string `yaml:"codec" json:"codec"`
}

// LoadFile reads path. The format follows the extension.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unsupported format %q", ext)
	}
	return &cfg, nil
}

// ToOptions converts the file into node options. Later options override
// earlier ones, so callers append flag-derived options after these.
func (f *FileConfig) ToOptions() ([]recipeshare.Option, error) {
	var opts []recipeshare.Option
	if f.NodeID != "" {
		opts = append(opts, recipeshare.WithNodeID(f.NodeID))
	}
	if f.Topic != "" {
		opts = append(opts, recipeshare.WithTopic(f.Topic))
	}
	if f.Command.Addr != "" {
		opts = append(opts, recipeshare.WithCommandAddr(f.Command.Addr))
	}
	if f.Gossip.Addr != "" {
		opts = append(opts, recipeshare.WithGossipAddr(f.Gossip.Addr))
	}
	if len(f.Gossip.Seeds) > 0 {
		opts = append(opts, recipeshare.WithSeeds(f.Gossip.Seeds))
	}

	disc := f.Gossip.Discovery
	if disc.Enabled != nil {
		opts = append(opts, recipeshare.WithDiscovery(*disc.Enabled))
	}
	if disc.Interval != "" {
		d, err := time.ParseDuration(disc.Interval)
		if err != nil {
			return nil, fmt.Errorf("config: invalid discovery interval: %w", err)
		}
		opts = append(opts, recipeshare.WithDiscoveryInterval(d))
	}
	if disc.PeerTTL != "" {
		d, err := time.ParseDuration(disc.PeerTTL)
		if err != nil {
			return nil, fmt.Errorf("config: invalid peer ttl: %w", err)
		}
		opts = append(opts, recipeshare.WithPeerTTL(d))
	}

	if f.Store.Path != "" {
		opts = append(opts, recipeshare.WithStorePath(f.Store.Path))
	}
	switch strings.ToLower(f.Store.Codec) {
	case "", "json":
	case "gob":
		opts = append(opts, recipeshare.WithCodec(recipeshare.GobCodec{}))
	default:
		return nil, fmt.Errorf("config: unknown store codec %q", f.Store.Codec)
	}
	return opts, nil
}

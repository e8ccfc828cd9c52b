package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk YAML shape a node is started from. Zero values
// for the duration fields fall back to pkg/consensus's own defaults.
type Config struct {
	Node struct {
		ID              string `yaml:"id"`
		ImagesDirectory string `yaml:"images_directory"`
	} `yaml:"node"`

	Registry struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"registry"`

	Raft struct {
		Port                  int `yaml:"port"`
		ElectionTimeoutLowMs  int `yaml:"election_timeout_low_ms"`
		ElectionTimeoutHighMs int `yaml:"election_timeout_high_ms"`
		HeartbeatIntervalMs   int `yaml:"heartbeat_interval_ms"`
	} `yaml:"raft"`

	Peers []string `yaml:"peers"`

	Mirroring struct {
		Realm    string `yaml:"realm"`
		Service  string `yaml:"service"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"mirroring"`

	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`

	Metrics struct {
		Address string `yaml:"address"`
	} `yaml:"metrics"`
}

// loadConfig reads and parses the YAML config file at path.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if cfg.Node.ID == "" {
		return nil, fmt.Errorf("config: node.id is required")
	}
	if cfg.Node.ImagesDirectory == "" {
		return nil, fmt.Errorf("config: node.images_directory is required")
	}
	return &cfg, nil
}

func (c *Config) electionTimeoutLow() time.Duration {
	if c.Raft.ElectionTimeoutLowMs <= 0 {
		return 0
	}
	return time.Duration(c.Raft.ElectionTimeoutLowMs) * time.Millisecond
}

func (c *Config) electionTimeoutHigh() time.Duration {
	if c.Raft.ElectionTimeoutHighMs <= 0 {
		return 0
	}
	return time.Duration(c.Raft.ElectionTimeoutHighMs) * time.Millisecond
}

func (c *Config) heartbeatInterval() time.Duration {
	if c.Raft.HeartbeatIntervalMs <= 0 {
		return 0
	}
	return time.Duration(c.Raft.HeartbeatIntervalMs) * time.Millisecond
}

func (c *Config) raftAddr() string {
	return fmt.Sprintf("%s:%d", c.Registry.Address, c.Raft.Port)
}

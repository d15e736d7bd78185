// File: control/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine configuration, YAML-loadable, with reload listener propagation.

package control

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config holds engine settings. Zero fields fall back to defaults at
// assembly time; chunk sizes of 0 defer to the kernel probe.
type Config struct {
	ListenAddr    string `yaml:"listen_addr"`
	Backlog       int    `yaml:"backlog"`
	MaxEvents     int    `yaml:"max_events"`
	SendChunkSize int    `yaml:"send_chunk_size"`
	RecvChunkSize int    `yaml:"recv_chunk_size"`
	AccessLogPath string `yaml:"access_log_path"`
	AcceptRate    int    `yaml:"accept_rate"` // accepts/sec, 0 = unlimited
	Workers       int    `yaml:"workers"`
	OpQueueSize   int    `yaml:"op_queue_size"`
	Debug         bool   `yaml:"debug"`
}

// DefaultConfig returns the baseline settings.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr: ":8558",
		Backlog:    1024,
		MaxEvents:  256,
		Workers:    4,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("control: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("control: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Store publishes the active Config and notifies listeners on replacement.
type Store struct {
	mu        sync.RWMutex
	cfg       *Config
	listeners []func(*Config)
}

// NewStore wraps an initial configuration.
func NewStore(cfg *Config) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Store{cfg: cfg}
}

// Get returns the active configuration.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Replace installs cfg and dispatches reload listeners.
func (s *Store) Replace(cfg *Config) {
	s.mu.Lock()
	s.cfg = cfg
	listeners := append([]func(*Config){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}

// OnReload registers a listener invoked after each Replace.
func (s *Store) OnReload(fn func(*Config)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

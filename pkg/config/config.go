package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rookeryhq/rookery/pkg/macpool"
)

// fileConfig mirrors the YAML document. Durations are strings ("90s", "2m")
// resolved during Load.
type fileConfig struct {
	NodeID      string `yaml:"node_id"`
	DataDir     string `yaml:"data_dir"`
	RaftBind    string `yaml:"raft_bind"`
	JoinAddr    string `yaml:"join_addr"`
	MACPrefix   string `yaml:"mac_prefix"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`

	Broker struct {
		URL      string `yaml:"url"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		ClientID string `yaml:"client_id"`
	} `yaml:"broker"`

	Deploy struct {
		AckTimeout    string `yaml:"ack_timeout"`
		SweepInterval string `yaml:"sweep_interval"`
		MaxResends    *int   `yaml:"max_resends"`
	} `yaml:"deploy"`

	Upgrade struct {
		ScanInterval string `yaml:"scan_interval"`
		GroupID      string `yaml:"group_id"`
	} `yaml:"upgrade"`

	Liveness struct {
		Interval     string `yaml:"interval"`
		OfflineAfter string `yaml:"offline_after"`
	} `yaml:"liveness"`
}

// Broker holds the MQTT connection settings
type Broker struct {
	URL      string
	Username string
	Password string
	ClientID string
}

// Config is the resolved runtime configuration of one control-plane member
type Config struct {
	NodeID      string
	DataDir     string
	RaftBind    string
	JoinAddr    string
	MACPrefix   macpool.Prefix
	MetricsAddr string
	LogLevel    string

	Broker Broker

	AckTimeout    time.Duration
	SweepInterval time.Duration
	MaxResends    int

	ScanInterval time.Duration
	UpgradeGroup string

	LivenessInterval time.Duration
	OfflineAfter     time.Duration
}

// Default returns a single-member development configuration
func Default() *Config {
	prefix, _ := macpool.ParsePrefix("02:00:01")
	return &Config{
		NodeID:      "rookery-1",
		DataDir:     "./rookery-data",
		RaftBind:    "127.0.0.1:7946",
		MACPrefix:   prefix,
		MetricsAddr: "127.0.0.1:9090",
		LogLevel:    "info",
		Broker: Broker{
			URL: "tcp://127.0.0.1:1883",
		},
		AckTimeout:       2 * time.Minute,
		SweepInterval:    15 * time.Second,
		MaxResends:       2,
		ScanInterval:     5 * time.Minute,
		LivenessInterval: 30 * time.Second,
		OfflineAfter:     90 * time.Second,
	}
}

// Load reads and resolves a YAML config file over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse resolves YAML content over the defaults
func Parse(data []byte) (*Config, error) {
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()
	if file.NodeID != "" {
		cfg.NodeID = file.NodeID
	}
	if file.DataDir != "" {
		cfg.DataDir = file.DataDir
	}
	if file.RaftBind != "" {
		cfg.RaftBind = file.RaftBind
	}
	cfg.JoinAddr = file.JoinAddr
	if file.MACPrefix != "" {
		prefix, err := macpool.ParsePrefix(file.MACPrefix)
		if err != nil {
			return nil, fmt.Errorf("mac_prefix: %w", err)
		}
		cfg.MACPrefix = prefix
	}
	if file.MetricsAddr != "" {
		cfg.MetricsAddr = file.MetricsAddr
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}

	if file.Broker.URL != "" {
		cfg.Broker.URL = file.Broker.URL
	}
	cfg.Broker.Username = file.Broker.Username
	cfg.Broker.Password = file.Broker.Password
	cfg.Broker.ClientID = file.Broker.ClientID

	var err error
	if cfg.AckTimeout, err = duration("deploy.ack_timeout", file.Deploy.AckTimeout, cfg.AckTimeout); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = duration("deploy.sweep_interval", file.Deploy.SweepInterval, cfg.SweepInterval); err != nil {
		return nil, err
	}
	if file.Deploy.MaxResends != nil {
		cfg.MaxResends = *file.Deploy.MaxResends
	}
	if cfg.ScanInterval, err = duration("upgrade.scan_interval", file.Upgrade.ScanInterval, cfg.ScanInterval); err != nil {
		return nil, err
	}
	cfg.UpgradeGroup = file.Upgrade.GroupID
	if cfg.LivenessInterval, err = duration("liveness.interval", file.Liveness.Interval, cfg.LivenessInterval); err != nil {
		return nil, err
	}
	if cfg.OfflineAfter, err = duration("liveness.offline_after", file.Liveness.OfflineAfter, cfg.OfflineAfter); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func duration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}
	return d, nil
}

// Validate checks the resolved configuration for usable values
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.RaftBind == "" {
		return fmt.Errorf("raft_bind is required")
	}
	if c.Broker.URL == "" {
		return fmt.Errorf("broker.url is required")
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("deploy.ack_timeout must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("deploy.sweep_interval must be positive")
	}
	if c.MaxResends < 0 {
		return fmt.Errorf("deploy.max_resends must not be negative")
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("upgrade.scan_interval must be positive")
	}
	if c.LivenessInterval <= 0 {
		return fmt.Errorf("liveness.interval must be positive")
	}
	if c.OfflineAfter <= 0 {
		return fmt.Errorf("liveness.offline_after must be positive")
	}
	return nil
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is a declarative fleet document: hosts to onboard, node types and
// version catalogs to publish, groups to form. The server applies it
// idempotently after winning leadership, so the same manifest can ship with
// every member.
type Manifest struct {
	OrgID         string                 `yaml:"org_id"`
	Hosts         []ManifestHost         `yaml:"hosts"`
	NodeTypes     []ManifestNodeType     `yaml:"node_types"`
	ChainVersions []ManifestChainVersion `yaml:"chain_versions"`
	Groups        []ManifestGroup        `yaml:"groups"`
}

// ManifestHost declares one host's identity and capacity
type ManifestHost struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	CPUCores int64  `yaml:"cpu_cores"`
	RAMMB    int64  `yaml:"ram_mb"`
	DiskMB   int64  `yaml:"disk_mb"`
}

// ManifestNodeType declares a workload category and its per-node requirement
type ManifestNodeType struct {
	Key        string             `yaml:"key"`
	ChainID    string             `yaml:"chain_id"`
	CPUCores   int64              `yaml:"cpu_cores"`
	RAMMB      int64              `yaml:"ram_mb"`
	DiskMB     int64              `yaml:"disk_mb"`
	Properties []ManifestProperty `yaml:"properties"`
}

// ManifestProperty declares one configurable node type field
type ManifestProperty struct {
	Name     string `yaml:"name"`
	Label    string `yaml:"label"`
	UIType   string `yaml:"ui_type"`
	Default  string `yaml:"default"`
	Required bool   `yaml:"required"`
}

// ManifestChainVersion publishes one catalog entry
type ManifestChainVersion struct {
	ChainID  string `yaml:"chain_id"`
	NodeType string `yaml:"node_type"`
	Version  string `yaml:"version"`
}

// ManifestGroup declares a named host/node collection
type ManifestGroup struct {
	Name  string   `yaml:"name"`
	Hosts []string `yaml:"hosts"`
	Nodes []string `yaml:"nodes"`
}

// LoadManifest reads and validates a fleet manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest parses and validates fleet manifest content
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest for applyable declarations
func (m *Manifest) Validate() error {
	if m.OrgID == "" {
		return fmt.Errorf("org_id is required")
	}
	for i, h := range m.Hosts {
		if h.ID == "" {
			return fmt.Errorf("hosts[%d]: id is required", i)
		}
		if h.CPUCores <= 0 || h.RAMMB <= 0 || h.DiskMB <= 0 {
			return fmt.Errorf("host %s: capacity must be positive on every dimension", h.ID)
		}
	}
	for i, nt := range m.NodeTypes {
		if nt.Key == "" || nt.ChainID == "" {
			return fmt.Errorf("node_types[%d]: key and chain_id are required", i)
		}
		if nt.CPUCores <= 0 || nt.RAMMB <= 0 || nt.DiskMB <= 0 {
			return fmt.Errorf("node type %s/%s: requirement must be positive on every dimension", nt.ChainID, nt.Key)
		}
	}
	for i, cv := range m.ChainVersions {
		if cv.ChainID == "" || cv.NodeType == "" || cv.Version == "" {
			return fmt.Errorf("chain_versions[%d]: chain_id, node_type, and version are required", i)
		}
	}
	seen := make(map[string]bool)
	for i, g := range m.Groups {
		if g.Name == "" {
			return fmt.Errorf("groups[%d]: name is required", i)
		}
		if seen[g.Name] {
			return fmt.Errorf("group %s declared twice", g.Name)
		}
		seen[g.Name] = true
	}
	return nil
}

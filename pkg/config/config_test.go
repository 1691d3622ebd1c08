package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rookeryhq/rookery/pkg/macpool"
)

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
node_id: cp-east-1
data_dir: /var/lib/rookery
raft_bind: 10.0.0.5:7946
mac_prefix: "02:f0:0d"
log_level: debug

broker:
  url: tcp://broker.internal:1883
  username: rookery
  password: hunter2

deploy:
  ack_timeout: 5m
  max_resends: 4

liveness:
  offline_after: 3m
`))
	require.NoError(t, err)

	assert.Equal(t, "cp-east-1", cfg.NodeID)
	assert.Equal(t, "/var/lib/rookery", cfg.DataDir)
	assert.Equal(t, "10.0.0.5:7946", cfg.RaftBind)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "tcp://broker.internal:1883", cfg.Broker.URL)
	assert.Equal(t, "rookery", cfg.Broker.Username)

	prefix, err := macpool.ParsePrefix("02:f0:0d")
	require.NoError(t, err)
	assert.Equal(t, prefix, cfg.MACPrefix)

	// Overridden durations.
	assert.Equal(t, 5*time.Minute, cfg.AckTimeout)
	assert.Equal(t, 4, cfg.MaxResends)
	assert.Equal(t, 3*time.Minute, cfg.OfflineAfter)

	// Untouched fields keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.SweepInterval)
	assert.Equal(t, 5*time.Minute, cfg.ScanInterval)
	assert.Equal(t, 30*time.Second, cfg.LivenessInterval)
	assert.Equal(t, "127.0.0.1:9090", cfg.MetricsAddr)
}

func TestParseEmptyIsDefault(t *testing.T) {
	cfg, err := Parse([]byte(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad duration", yaml: "deploy:\n  ack_timeout: fast\n"},
		{name: "bad mac prefix", yaml: "mac_prefix: zz:00:01\n"},
		{name: "zero resends stay valid, negative rejected", yaml: "deploy:\n  max_resends: -1\n"},
		{name: "not yaml", yaml: "node_id: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseAllowsZeroResends(t *testing.T) {
	cfg, err := Parse([]byte("deploy:\n  max_resends: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MaxResends)
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node_id: from-file\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.NodeID)

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`
org_id: org-1
hosts:
  - id: host-a
    name: rack-1
    cpu_cores: 16
    ram_mb: 32768
    disk_mb: 204800
node_types:
  - key: validator
    chain_id: testchain
    cpu_cores: 2
    ram_mb: 4096
    disk_mb: 10240
    properties:
      - name: network
        label: Network
        ui_type: text
        default: mainnet
        required: true
chain_versions:
  - chain_id: testchain
    node_type: validator
    version: 1.0.0
groups:
  - name: canary
    hosts: [host-a]
`))
	require.NoError(t, err)

	assert.Equal(t, "org-1", m.OrgID)
	require.Len(t, m.Hosts, 1)
	assert.Equal(t, int64(32768), m.Hosts[0].RAMMB)
	require.Len(t, m.NodeTypes, 1)
	require.Len(t, m.NodeTypes[0].Properties, 1)
	assert.Equal(t, "network", m.NodeTypes[0].Properties[0].Name)
	require.Len(t, m.ChainVersions, 1)
	require.Len(t, m.Groups, 1)
	assert.Equal(t, []string{"host-a"}, m.Groups[0].Hosts)
}

func TestParseManifestRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing org", yaml: "hosts:\n  - id: h1\n    cpu_cores: 1\n    ram_mb: 1\n    disk_mb: 1\n"},
		{name: "host without id", yaml: "org_id: o\nhosts:\n  - cpu_cores: 1\n    ram_mb: 1\n    disk_mb: 1\n"},
		{name: "zero capacity", yaml: "org_id: o\nhosts:\n  - id: h1\n    cpu_cores: 0\n    ram_mb: 1\n    disk_mb: 1\n"},
		{name: "node type without chain", yaml: "org_id: o\nnode_types:\n  - key: validator\n    cpu_cores: 1\n    ram_mb: 1\n    disk_mb: 1\n"},
		{name: "version without version", yaml: "org_id: o\nchain_versions:\n  - chain_id: c\n    node_type: t\n"},
		{name: "duplicate group", yaml: "org_id: o\ngroups:\n  - name: a\n  - name: a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

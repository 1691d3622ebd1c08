// Package config loads the server configuration and the fleet manifest.
//
// # Server Configuration
//
// One YAML document per control-plane member, resolved over built-in
// development defaults. Durations are Go duration strings.
//
//	node_id: cp-east-1
//	data_dir: /var/lib/rookery
//	raft_bind: 10.0.0.5:7946
//	join_addr: 10.0.0.4:7946        # omit on the bootstrap member
//	mac_prefix: "02:f0:0d"
//	metrics_addr: 0.0.0.0:9090
//	log_level: info
//
//	broker:
//	  url: tcp://broker.internal:1883
//	  username: rookery
//	  password: hunter2
//
//	deploy:
//	  ack_timeout: 2m
//	  sweep_interval: 15s
//	  max_resends: 2
//
//	upgrade:
//	  scan_interval: 5m
//
//	liveness:
//	  interval: 30s
//	  offline_after: 90s
//
// # Fleet Manifest
//
// A declarative seed document of hosts, node types, chain versions, and
// groups. The server applies it after winning leadership; every apply is
// idempotent, so the same manifest ships with each member and with each
// restart.
package config

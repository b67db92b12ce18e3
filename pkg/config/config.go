// Package config loads the YAML daemon configuration for the coordinator
// (tfsns) and storage-node (tfsds) binaries, following the same
// flag-plus-file pattern the original CLI used for resource manifests.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LogConfig is embedded in both daemon configs and mirrors pkg/log.Config.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Coordinator is the tfsns daemon configuration.
type Coordinator struct {
	ListenAddr string    `yaml:"listen_addr"`
	DataDir    string    `yaml:"data_dir"`
	PeerAddr   string    `yaml:"peer_addr"`
	VipDevice  string    `yaml:"vip_device"`
	VipAddress string    `yaml:"vip_address"`
	Log        LogConfig `yaml:"log"`

	ReplicationFactor  int           `yaml:"replication_factor"`
	HeartbeatQueueSize int           `yaml:"heartbeat_queue_size"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	ReportBlockEvery   int           `yaml:"report_block_every"`
	DeadAfterMissed    int           `yaml:"dead_after_missed_heartbeats"`

	PlanInterval      time.Duration `yaml:"plan_interval"`
	CompactRatio      float64       `yaml:"compact_ratio"`
	MaxPlansPerServer int           `yaml:"max_plans_per_server"`
	PlanTimeout       time.Duration `yaml:"plan_timeout"`
	PlanRetryMax      int           `yaml:"plan_retry_max"`

	MasterHeartInterval time.Duration `yaml:"master_heart_interval"`
	SafeModeTime        time.Duration `yaml:"safe_mode_time"`
	PeerFailureLimit    int           `yaml:"peer_failure_limit"`

	OplogDir       string        `yaml:"oplog_dir"`
	OplogRetain    int           `yaml:"oplog_retain_margin"`
	OplogSyncEvery time.Duration `yaml:"oplog_sync_every"`

	ObjectDeadMaxTime  time.Duration `yaml:"object_dead_max_time"`
	ObjectClearMaxTime time.Duration `yaml:"object_clear_max_time"`
}

// DefaultCoordinator returns the spec's documented defaults.
func DefaultCoordinator() Coordinator {
	return Coordinator{
		ListenAddr:          ":7900",
		DataDir:             "/var/lib/tfsns",
		Log:                 LogConfig{Level: "info"},
		ReplicationFactor:   2,
		HeartbeatQueueSize:  4096,
		HeartbeatInterval:   2 * time.Second,
		ReportBlockEvery:    10,
		DeadAfterMissed:     3,
		PlanInterval:        5 * time.Second,
		CompactRatio:        0.3,
		MaxPlansPerServer:   2,
		PlanTimeout:         30 * time.Second,
		PlanRetryMax:        3,
		MasterHeartInterval: 2 * time.Second,
		SafeModeTime:        300 * time.Second,
		PeerFailureLimit:    3,
		OplogDir:            "/var/lib/tfsns/oplog",
		OplogRetain:         1024,
		OplogSyncEvery:      100 * time.Millisecond,
		ObjectDeadMaxTime:   10 * time.Minute,
		ObjectClearMaxTime:  10 * time.Minute,
	}
}

// Storage is the tfsds daemon configuration.
type Storage struct {
	ListenAddr      string    `yaml:"listen_addr"`
	DataDir         string    `yaml:"data_dir"`
	CoordinatorAddr string    `yaml:"coordinator_addr"`
	Log             LogConfig `yaml:"log"`

	BlockSize       int64         `yaml:"block_size"`
	MainBlockCount  int           `yaml:"main_block_count"`
	ExtBlockCount   int           `yaml:"ext_block_count"`
	IndexBuckets    int           `yaml:"index_buckets"`
	CompactReadSize int64         `yaml:"compact_read_size"`
	HeartbeatEvery  time.Duration `yaml:"heartbeat_interval"`
	ReportBlockEvery int          `yaml:"report_block_interval"`
	ClientRetryCount int          `yaml:"client_retry_count"`
}

// DefaultStorage returns the spec's documented defaults.
func DefaultStorage() Storage {
	return Storage{
		ListenAddr:       ":7800",
		DataDir:          "/var/lib/tfsds",
		Log:              LogConfig{Level: "info"},
		BlockSize:        64 << 20,
		MainBlockCount:   512,
		ExtBlockCount:    128,
		IndexBuckets:     4099,
		CompactReadSize:  8 << 20,
		HeartbeatEvery:   2 * time.Second,
		ReportBlockEvery: 10,
		ClientRetryCount: 3,
	}
}

// LoadCoordinator reads and merges a YAML file over DefaultCoordinator.
func LoadCoordinator(path string) (Coordinator, error) {
	cfg := DefaultCoordinator()
	if path == "" {
		return cfg, nil
	}
	if err := load(path, &cfg); err != nil {
		return Coordinator{}, err
	}
	return cfg, nil
}

// LoadStorage reads and merges a YAML file over DefaultStorage.
func LoadStorage(path string) (Storage, error) {
	cfg := DefaultStorage()
	if path == "" {
		return cfg, nil
	}
	if err := load(path, &cfg); err != nil {
		return Storage{}, err
	}
	return cfg, nil
}

func load(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

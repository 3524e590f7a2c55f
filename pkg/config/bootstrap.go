package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied to bootstrap files that leave optional fields empty.
const (
	DefaultControlTopic        = "pan_tilt/all_angles"
	DefaultDetectionsTopic     = "perception/detections"
	DefaultCodec               = "json"
	DefaultMessageBufferSize   = 1000
	DefaultReconnectIntervalMs = 1000
)

// BootstrapConfig holds the per-node settings: how to log, where to listen,
// how to reach the pub/sub peer and where the shared rig file lives.
type BootstrapConfig struct {
	Logging LoggingConfig         `yaml:"logging"`
	Server  BootstrapServerConfig `yaml:"server"`
	ZeroMQ  ZeroMQBootstrap       `yaml:"zeromq"`
	Data    DataConfig            `yaml:"data"`
}

// LoggingConfig holds logging settings from bootstrap
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogPath string `yaml:"log_path,omitempty"`
}

// BootstrapServerConfig holds the status API settings. A zero port disables the API.
type BootstrapServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

// ZeroMQBootstrap holds ZeroMQ settings from bootstrap.
// Endpoint is the control channel: the control node publishes on it and the
// actuation node subscribes to it. Exactly one side should bind.
type ZeroMQBootstrap struct {
	Endpoint            string `yaml:"endpoint"`
	Bind                bool   `yaml:"bind"`
	Topic               string `yaml:"topic"`
	Codec               string `yaml:"codec"`
	MessageBufferSize   int    `yaml:"message_buffer_size"`
	ReconnectIntervalMs int    `yaml:"reconnect_interval_ms"`

	// Perception feed consumed by the control node.
	DetectionsEndpoint string `yaml:"detections_endpoint,omitempty"`
	DetectionsBind     bool   `yaml:"detections_bind,omitempty"`
	DetectionsTopic    string `yaml:"detections_topic,omitempty"`
}

// ReconnectInterval returns the socket reconnect interval.
func (z ZeroMQBootstrap) ReconnectInterval() time.Duration {
	return time.Duration(z.ReconnectIntervalMs) * time.Millisecond
}

// DataConfig holds data directory settings from bootstrap
type DataConfig struct {
	Directory         string `yaml:"directory"`
	RigConfigFilename string `yaml:"rig_config_file"`
	ReplayFile        string `yaml:"replay_file,omitempty"`
}

// RigConfigPath returns the full path of the shared rig calibration file.
func (c *BootstrapConfig) RigConfigPath() string {
	return filepath.Join(c.Data.Directory, c.Data.RigConfigFilename)
}

// LoadBootstrapConfig loads a node bootstrap file.
func LoadBootstrapConfig(path string) (*BootstrapConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading bootstrap config file '%s': %w", path, err)
	}

	var bootstrapCfg BootstrapConfig
	if err := yaml.Unmarshal(data, &bootstrapCfg); err != nil {
		return nil, fmt.Errorf("error parsing bootstrap config file '%s': %w", path, err)
	}

	if bootstrapCfg.ZeroMQ.Endpoint == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: zeromq.endpoint")
	}
	if bootstrapCfg.Data.Directory == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: data.directory")
	}
	if bootstrapCfg.Data.RigConfigFilename == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: data.rig_config_file")
	}

	z := &bootstrapCfg.ZeroMQ
	if z.Topic == "" {
		z.Topic = DefaultControlTopic
	}
	if z.DetectionsTopic == "" {
		z.DetectionsTopic = DefaultDetectionsTopic
	}
	switch z.Codec {
	case "":
		z.Codec = DefaultCodec
	case "json", "flatbuffers":
	default:
		return nil, fmt.Errorf("zeromq.codec must be 'json' or 'flatbuffers', got '%s'", z.Codec)
	}
	if z.MessageBufferSize <= 0 {
		z.MessageBufferSize = DefaultMessageBufferSize
	}
	if z.ReconnectIntervalMs <= 0 {
		z.ReconnectIntervalMs = DefaultReconnectIntervalMs
	}
	if bootstrapCfg.Logging.Level == "" {
		bootstrapCfg.Logging.Level = "info"
	}

	return &bootstrapCfg, nil
}

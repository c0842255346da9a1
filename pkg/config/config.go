// Package config loads and validates the linux2rest.yaml configuration.
package config

import "time"

const (
	DefaultListen       = "0.0.0.0:6030"
	DefaultSocket       = "/tmp/linux2rest.sock"
	DefaultLogPath      = "./logs"
	DefaultBackend      = "kmsg"
	DefaultQueueSize    = 1024
	DefaultPollInterval = time.Second
)

// Config represents a linux2rest.yaml file.
type Config struct {
	Version     int            `yaml:"version"                json:"version"`
	Listen      string         `yaml:"listen"                 json:"listen"`
	Socket      string         `yaml:"socket"                 json:"socket"`
	LogPath     string         `yaml:"log_path"               json:"log_path"`
	Verbose     bool           `yaml:"verbose"                json:"verbose"`
	Journald    bool           `yaml:"journald"               json:"journald"`
	Kernel      Kernel         `yaml:"kernel"                 json:"kernel"`
	LogSettings map[string]int `yaml:"log_settings,omitempty" json:"log_settings,omitempty"` // recorder: category -> seconds
}

// Kernel configures the kernel log reader.
type Kernel struct {
	Backend      string        `yaml:"backend"       json:"backend"` // kmsg | klog | journal
	QueueSize    int           `yaml:"queue_size"    json:"queue_size"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"` // klog only
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		Version: 1,
		Listen:  DefaultListen,
		Socket:  DefaultSocket,
		LogPath: DefaultLogPath,
		Kernel: Kernel{
			Backend:      DefaultBackend,
			QueueSize:    DefaultQueueSize,
			PollInterval: DefaultPollInterval,
		},
		LogSettings: map[string]int{},
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate for unusable configuration values
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete elbscaler configuration
type Config struct {
	Mesos     MesosConfig     `yaml:"mesos"`
	Task      TaskConfig      `yaml:"task"`
	Autoscale AutoscaleConfig `yaml:"autoscale"`
	AWS       AWSConfig       `yaml:"aws"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
	History   HistoryConfig   `yaml:"history"`
}

// MesosConfig controls the framework registration and offer replies
type MesosConfig struct {
	Master         string        `yaml:"master"`
	FrameworkName  string        `yaml:"framework_name"`
	User           string        `yaml:"user"`
	Role           string        `yaml:"role,omitempty"`
	RefuseSeconds  float64       `yaml:"refuse_seconds"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// TaskConfig controls offer thresholds and the per-task reservation
type TaskConfig struct {
	CPUs     float64 `yaml:"cpus"`
	MemMB    float64 `yaml:"mem_mb"`
	MinCPUs  float64 `yaml:"min_cpus"`
	MinMemMB float64 `yaml:"min_mem_mb"`
	Command  string  `yaml:"command"`
}

// AutoscaleConfig controls the traffic driven control loop
type AutoscaleConfig struct {
	Interval         time.Duration `yaml:"interval"`
	Window           time.Duration `yaml:"window"`
	Period           time.Duration `yaml:"period"`
	TargetPerBackend float64       `yaml:"target_per_backend"`
	MinReplicas      int           `yaml:"min_replicas"`
}

// AWSConfig names the load balancer and metric
type AWSConfig struct {
	Region           string            `yaml:"region,omitempty"`
	LoadBalancerName string            `yaml:"load_balancer_name"`
	MetricNamespace  string            `yaml:"metric_namespace"`
	MetricName       string            `yaml:"metric_name"`
	HostMap          map[string]string `yaml:"host_map,omitempty"` // Overrides EC2 discovery when set
}

// APIConfig holds listen addresses, empty disables the listener
type APIConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
}

// LogConfig mirrors log.Config in YAML form
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// HistoryConfig enables the decision journal when DataDir is set
type HistoryConfig struct {
	DataDir string `yaml:"data_dir,omitempty"`
	Retain  int    `yaml:"retain"` // Records kept per bucket
}

// Default returns the configuration the original elb+apache framework ran with
func Default() *Config {
	return &Config{
		Mesos: MesosConfig{
			Master:         "http://127.0.0.1:5050",
			FrameworkName:  "elb+apache",
			User:           "root",
			RefuseSeconds:  1,
			ReconnectDelay: 5 * time.Second,
		},
		Task: TaskConfig{
			CPUs:     1,
			MemMB:    1024,
			MinCPUs:  1,
			MinMemMB: 1024,
			Command:  "./startapache.sh",
		},
		Autoscale: AutoscaleConfig{
			Interval:         10 * time.Second,
			Window:           2 * time.Minute,
			Period:           time.Minute,
			TargetPerBackend: 25 * 60,
			MinReplicas:      1,
		},
		AWS: AWSConfig{
			LoadBalancerName: "my-load-balancer",
			MetricNamespace:  "AWS/ELB",
			MetricName:       "RequestCount",
		},
		API: APIConfig{
			HTTPAddr: "127.0.0.1:9090",
			GRPCAddr: "127.0.0.1:9091",
		},
		Log: LogConfig{
			Level: "info",
		},
		History: HistoryConfig{
			Retain: 10000,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks the values the scheduler depends on
func (c *Config) Validate() error {
	switch {
	case c.Mesos.Master == "":
		return fmt.Errorf("%w: mesos.master is required", ErrInvalid)
	case c.Mesos.FrameworkName == "":
		return fmt.Errorf("%w: mesos.framework_name is required", ErrInvalid)
	case c.Task.CPUs <= 0 || c.Task.MemMB <= 0:
		return fmt.Errorf("%w: task reservation must be positive", ErrInvalid)
	case c.Task.MinCPUs < c.Task.CPUs || c.Task.MinMemMB < c.Task.MemMB:
		return fmt.Errorf("%w: offer minimums must cover the task reservation", ErrInvalid)
	case c.Autoscale.Interval <= 0:
		return fmt.Errorf("%w: autoscale.interval must be positive", ErrInvalid)
	case c.Autoscale.Window <= 0 || c.Autoscale.Period <= 0:
		return fmt.Errorf("%w: autoscale.window and autoscale.period must be positive", ErrInvalid)
	case c.Autoscale.TargetPerBackend <= 0:
		return fmt.Errorf("%w: autoscale.target_per_backend must be positive", ErrInvalid)
	case c.Autoscale.MinReplicas < 1:
		return fmt.Errorf("%w: autoscale.min_replicas must be at least 1", ErrInvalid)
	case c.AWS.LoadBalancerName == "":
		return fmt.Errorf("%w: aws.load_balancer_name is required", ErrInvalid)
	case c.History.Retain < 1:
		return fmt.Errorf("%w: history.retain must be at least 1", ErrInvalid)
	}
	return nil
}

// Marshal renders the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

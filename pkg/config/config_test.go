package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "elb+apache", cfg.Mesos.FrameworkName)
	assert.Equal(t, 1.0, cfg.Task.CPUs)
	assert.Equal(t, 1024.0, cfg.Task.MemMB)
	assert.Equal(t, 1500.0, cfg.Autoscale.TargetPerBackend)
	assert.Equal(t, 1, cfg.Autoscale.MinReplicas)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "elbscaler.yaml")
	data := []byte(`
mesos:
  master: http://mesos.internal:5050
autoscale:
  interval: 30s
  target_per_backend: 3000
aws:
  load_balancer_name: web
  host_map:
    ip-10-0-0-1.ec2.internal: i-0abc
`)
	require.NoError(t, os.WriteFile(path, data, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://mesos.internal:5050", cfg.Mesos.Master)
	assert.Equal(t, 30*time.Second, cfg.Autoscale.Interval)
	assert.Equal(t, 3000.0, cfg.Autoscale.TargetPerBackend)
	assert.Equal(t, "web", cfg.AWS.LoadBalancerName)
	assert.Equal(t, "i-0abc", cfg.AWS.HostMap["ip-10-0-0-1.ec2.internal"])

	// Untouched sections keep their defaults
	assert.Equal(t, "elb+apache", cfg.Mesos.FrameworkName)
	assert.Equal(t, 2*time.Minute, cfg.Autoscale.Window)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mesos: [unterminated"), 0600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing master", func(c *Config) { c.Mesos.Master = "" }},
		{"missing framework name", func(c *Config) { c.Mesos.FrameworkName = "" }},
		{"zero cpu reservation", func(c *Config) { c.Task.CPUs = 0 }},
		{"minimum below reservation", func(c *Config) { c.Task.MinMemMB = 512 }},
		{"zero interval", func(c *Config) { c.Autoscale.Interval = 0 }},
		{"zero window", func(c *Config) { c.Autoscale.Window = 0 }},
		{"zero target", func(c *Config) { c.Autoscale.TargetPerBackend = 0 }},
		{"floor below one", func(c *Config) { c.Autoscale.MinReplicas = 0 }},
		{"missing load balancer", func(c *Config) { c.AWS.LoadBalancerName = "" }},
		{"zero retention", func(c *Config) { c.History.Retain = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "framework_name: elb+apache")
}

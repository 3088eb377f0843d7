package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Job is one output built from an ordered list of inputs
type Job struct {
	Name string `yaml:"name"`
	// Output is the destination path. "-" writes to stdout. Unused when serving.
	Output string `yaml:"output"`
	// Inputs are local paths or http(s) URLs, joined in order
	Inputs []string `yaml:"inputs"`
}

// HTTP controls how remote inputs are fetched
type HTTP struct {
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// Config is the contents of a job file
type Config struct {
	LogLevel  string `yaml:"log_level"`
	ChunkSize int    `yaml:"chunk_size"`
	// Parallel is how many jobs run at once
	Parallel int    `yaml:"parallel"`
	Listen   string `yaml:"listen"`
	HTTP     HTTP   `yaml:"http"`
	Jobs     []Job  `yaml:"jobs"`
}

// Defaults
const (
	DefaultLogLevel  = "info"
	DefaultChunkSize = 64 * 1024
	DefaultParallel  = 1
	DefaultListen    = ":8080"
	DefaultTimeout   = 5 * time.Second
	DefaultRetries   = 3
	DefaultUserAgent = "fmp4cat"
)

// Load reads and validates a job file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a job file, fills in defaults and validates it
func Parse(data []byte) (*Config, error) {
	cfg := new(Config)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaults fills in unset fields
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Parallel <= 0 {
		c.Parallel = DefaultParallel
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = DefaultTimeout
	}
	if c.HTTP.Retries <= 0 {
		c.HTTP.Retries = DefaultRetries
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = DefaultUserAgent
	}
}

// Validate checks that every job is usable
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Jobs))
	for i, job := range c.Jobs {
		if job.Name == "" {
			return fmt.Errorf("job %d: missing name", i)
		}
		if seen[job.Name] {
			return fmt.Errorf("job %q: duplicate name", job.Name)
		}
		seen[job.Name] = true
		if len(job.Inputs) == 0 {
			return fmt.Errorf("job %q: no inputs", job.Name)
		}
	}
	return nil
}

// Job returns the job with the given name
func (c *Config) Job(name string) (Job, bool) {
	for _, job := range c.Jobs {
		if job.Name == name {
			return job, true
		}
	}
	return Job{}, false
}

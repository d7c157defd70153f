// Package config decodes the on-disk YAML configuration for an indexcore
// host, the way cuemby-warren decodes its resource manifests with
// gopkg.in/yaml.v3. There is no remote config source.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Named defaults rather than magic numbers scattered through the index
// package.
const (
	DefaultBatchMaxDocs    = 1024
	DefaultBatchMaxBytes   = 8 * 1024 * 1024
	DefaultWriteErrorLimit = 10
	DefaultErrorsRingSize  = 50
	DefaultPollInterval    = time.Second
)

// Config is the top-level indexcore configuration.
type Config struct {
	StorageDir string `yaml:"storageDir"`

	BatchMaxDocs  int `yaml:"batchMaxDocs"`
	BatchMaxBytes int `yaml:"batchMaxBytes"`

	WriteErrorLimit int `yaml:"writeErrorLimit"`
	ErrorsRingSize  int `yaml:"errorsRingSize"`

	PollInterval time.Duration `yaml:"pollInterval"`
}

// Default returns a Config with every field set to its stated default
// and StorageDir pointed at the current directory.
func Default() Config {
	return Config{
		StorageDir:      ".",
		BatchMaxDocs:    DefaultBatchMaxDocs,
		BatchMaxBytes:   DefaultBatchMaxBytes,
		WriteErrorLimit: DefaultWriteErrorLimit,
		ErrorsRingSize:  DefaultErrorsRingSize,
		PollInterval:    DefaultPollInterval,
	}
}

// Load reads and decodes a YAML config file at path, filling any field
// the file omits from Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyZeroDefaults()
	return cfg, nil
}

// applyZeroDefaults re-fills any field a sparse config file left unset.
func (c *Config) applyZeroDefaults() {
	d := Default()
	if c.BatchMaxDocs == 0 {
		c.BatchMaxDocs = d.BatchMaxDocs
	}
	if c.BatchMaxBytes == 0 {
		c.BatchMaxBytes = d.BatchMaxBytes
	}
	if c.WriteErrorLimit == 0 {
		c.WriteErrorLimit = d.WriteErrorLimit
	}
	if c.ErrorsRingSize == 0 {
		c.ErrorsRingSize = d.ErrorsRingSize
	}
	if c.PollInterval == 0 {
		c.PollInterval = d.PollInterval
	}
	if c.StorageDir == "" {
		c.StorageDir = d.StorageDir
	}
}

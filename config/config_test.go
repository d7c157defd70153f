package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.BatchMaxDocs != DefaultBatchMaxDocs {
		t.Fatalf("BatchMaxDocs = %d, want %d", cfg.BatchMaxDocs, DefaultBatchMaxDocs)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Fatalf("PollInterval = %v, want %v", cfg.PollInterval, DefaultPollInterval)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "indexcore.yaml")
	body := "storageDir: /var/lib/indexcore\nbatchMaxDocs: 256\npollInterval: 5s\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorageDir != "/var/lib/indexcore" {
		t.Fatalf("StorageDir = %q", cfg.StorageDir)
	}
	if cfg.BatchMaxDocs != 256 {
		t.Fatalf("BatchMaxDocs = %d, want 256", cfg.BatchMaxDocs)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
	// Fields the YAML document omits keep their defaults.
	if cfg.WriteErrorLimit != DefaultWriteErrorLimit {
		t.Fatalf("WriteErrorLimit = %d, want default %d", cfg.WriteErrorLimit, DefaultWriteErrorLimit)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

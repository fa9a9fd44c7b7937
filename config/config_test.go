package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.ProjectID = "proj"
	cfg.Zone = "europe-west1-b"
	cfg.InstanceName = "scraper-vm"
	cfg.Bucket = "bucket"
	cfg.Folder = "books"
	return cfg
}

func TestLoadRequiredKeys(t *testing.T) {
	path := writeConfig(t, `{
		"project_id": "proj",
		"zone": "europe-west1-b",
		"instance_name": "scraper-vm",
		"bucket": "scrape-results",
		"folder": "2024-05-01"
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ProjectID != "proj" || cfg.Zone != "europe-west1-b" || cfg.InstanceName != "scraper-vm" {
		t.Fatalf("unexpected identity: %+v", cfg)
	}
	if cfg.Bucket != "scrape-results" || cfg.Folder != "2024-05-01" {
		t.Fatalf("unexpected destination: %+v", cfg)
	}
	if cfg.Scraper.BaseURL != DefaultBaseURL {
		t.Fatalf("base url = %q, want default", cfg.Scraper.BaseURL)
	}
	if cfg.Scraper.RequestTimeout != 0 {
		t.Fatalf("request timeout = %v, want none", cfg.Scraper.RequestTimeout)
	}
	if cfg.Storage.Backend != BackendGCS || !cfg.Reaper.Enabled || !cfg.Logging.Cloud {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if got := cfg.ObjectName(); got != "2024-05-01/results.json" {
		t.Fatalf("object name = %q", got)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"project_id": "proj",
		"zone": "us-central1-a",
		"instance_name": "vm",
		"bucket": "b",
		"folder": "f/",
		"scraper": {"base_url": "http://example.test", "request_timeout": "30s"},
		"storage": {"backend": "FILE", "local_dir": "/tmp/out", "chunk_size": 262144},
		"logging": {"development": true, "cloud": false},
		"metrics": {"pushgateway_url": "http://push:9091"},
		"reaper": {"enabled": false}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scraper.RequestTimeout != 30*time.Second {
		t.Fatalf("timeout = %v", cfg.Scraper.RequestTimeout)
	}
	if cfg.Storage.Backend != BackendFile || cfg.Storage.LocalDir != "/tmp/out" || cfg.Storage.ChunkSize != 262144 {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if !cfg.Logging.Development || cfg.Logging.Cloud || cfg.Logging.LogName != "scraper" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Metrics.JobName != "books_scraper" || cfg.Reaper.Enabled {
		t.Fatalf("metrics/reaper = %+v %+v", cfg.Metrics, cfg.Reaper)
	}
	if got := cfg.PageURLTemplate(); got != "http://example.test/catalogue/page-%d.html" {
		t.Fatalf("template = %q", got)
	}
	if got := cfg.ObjectName(); got != "f/results.json" {
		t.Fatalf("object name = %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty bucket", mutate: func(c *Config) { c.Bucket = "" }, wantErr: "bucket"},
		{name: "empty folder", mutate: func(c *Config) { c.Folder = " " }, wantErr: "folder"},
		{name: "empty base url", mutate: func(c *Config) { c.Scraper.BaseURL = "" }, wantErr: "base_url"},
		{name: "base url without host", mutate: func(c *Config) { c.Scraper.BaseURL = "http://" }, wantErr: "host"},
		{name: "negative timeout", mutate: func(c *Config) { c.Scraper.RequestTimeout = -time.Second }, wantErr: "request_timeout"},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }, wantErr: "storage.backend"},
		{name: "file backend without dir", mutate: func(c *Config) {
			c.Storage.Backend = BackendFile
			c.Storage.LocalDir = ""
		}, wantErr: "local_dir"},
		{name: "negative chunk size", mutate: func(c *Config) { c.Storage.ChunkSize = -1 }, wantErr: "chunk_size"},
		{name: "pushgateway without job", mutate: func(c *Config) {
			c.Metrics.PushgatewayURL = "http://push"
			c.Metrics.JobName = ""
		}, wantErr: "job_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidConfigPasses(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if err := cfg.ValidateInstance(); err != nil {
		t.Fatalf("valid identity rejected: %v", err)
	}
}

type fakeMetadata struct {
	onGCE   bool
	project string
	zone    string
	name    string
	err     error
	calls   int
}

func (f *fakeMetadata) OnGCE() bool { return f.onGCE }

func (f *fakeMetadata) ProjectID(context.Context) (string, error) {
	f.calls++
	return f.project, f.err
}

func (f *fakeMetadata) Zone(context.Context) (string, error) {
	f.calls++
	return f.zone, f.err
}

func (f *fakeMetadata) InstanceName(context.Context) (string, error) {
	f.calls++
	return f.name, f.err
}

func TestResolveInstanceFillsBlanks(t *testing.T) {
	cfg := validConfig()
	cfg.Zone = ""
	cfg.InstanceName = ""
	md := &fakeMetadata{onGCE: true, project: "other", zone: "asia-east1-a", name: "vm-7"}

	resolved, err := cfg.ResolveInstance(context.Background(), md)
	if err != nil {
		t.Fatalf("ResolveInstance() error = %v", err)
	}
	if resolved.ProjectID != "proj" {
		t.Fatalf("project overwritten: %q", resolved.ProjectID)
	}
	if resolved.Zone != "asia-east1-a" || resolved.InstanceName != "vm-7" {
		t.Fatalf("unexpected identity: %+v", resolved)
	}
	if md.calls != 2 {
		t.Fatalf("metadata calls = %d, want 2", md.calls)
	}
	if cfg.Zone != "" {
		t.Fatal("receiver must not be modified")
	}
}

func TestResolveInstanceCompleteSkipsMetadata(t *testing.T) {
	md := &fakeMetadata{onGCE: true}
	if _, err := validConfig().ResolveInstance(context.Background(), md); err != nil {
		t.Fatalf("ResolveInstance() error = %v", err)
	}
	if md.calls != 0 {
		t.Fatalf("metadata consulted %d times", md.calls)
	}
}

func TestResolveInstanceOffGCE(t *testing.T) {
	cfg := validConfig()
	cfg.ProjectID = ""
	_, err := cfg.ResolveInstance(context.Background(), &fakeMetadata{onGCE: false})
	if err == nil || !strings.Contains(err.Error(), "project_id") {
		t.Fatalf("expected project_id error, got %v", err)
	}
}

func TestResolveInstanceMetadataError(t *testing.T) {
	cfg := validConfig()
	cfg.InstanceName = ""
	boom := errors.New("metadata unavailable")
	_, err := cfg.ResolveInstance(context.Background(), &fakeMetadata{onGCE: true, err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped metadata error, got %v", err)
	}
}

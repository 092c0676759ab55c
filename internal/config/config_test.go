package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// chdirTemp moves into an empty temp dir so no config file is found
func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(oldWd) })
	return tmpDir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Client.Endpoint != "http://localhost:5993" {
		t.Errorf("Client.Endpoint = %s, want http://localhost:5993", cfg.Client.Endpoint)
	}
	if cfg.Client.Protocol != "msgpack" {
		t.Errorf("Client.Protocol = %s, want msgpack", cfg.Client.Protocol)
	}
	if cfg.Client.Timeout != 30 {
		t.Errorf("Client.Timeout = %d, want 30", cfg.Client.Timeout)
	}
	if cfg.Client.Compression != "none" {
		t.Errorf("Client.Compression = %s, want none", cfg.Client.Compression)
	}
	if cfg.Client.MaxResponseSize != 512*1024*1024 {
		t.Errorf("Client.MaxResponseSize = %d, want %d", cfg.Client.MaxResponseSize, 512*1024*1024)
	}
	if cfg.Client.TruncateStrings {
		t.Error("Client.TruncateStrings should default to false")
	}
	if cfg.Client.BreakerFailures != 5 || cfg.Client.BreakerCooldown != 30 {
		t.Errorf("breaker = %d/%ds, want 5/30s", cfg.Client.BreakerFailures, cfg.Client.BreakerCooldown)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %s, want info", cfg.Log.Level)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	chdirTemp(t)

	t.Setenv("MKTS_CLIENT_ENDPOINT", "http://mkts.internal:5993")
	t.Setenv("MKTS_CLIENT_PROTOCOL", "JSON")
	t.Setenv("MKTS_CLIENT_COMPRESSION", "gzip")
	t.Setenv("MKTS_CLIENT_MAX_RESPONSE_SIZE", "64MB")
	t.Setenv("MKTS_CLIENT_TRUNCATE_STRINGS", "true")
	t.Setenv("MKTS_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Client.Endpoint != "http://mkts.internal:5993" {
		t.Errorf("Client.Endpoint = %s", cfg.Client.Endpoint)
	}
	if cfg.Client.Protocol != "json" {
		t.Errorf("Client.Protocol = %s, want json", cfg.Client.Protocol)
	}
	if cfg.Client.Compression != "gzip" {
		t.Errorf("Client.Compression = %s, want gzip", cfg.Client.Compression)
	}
	if cfg.Client.MaxResponseSize != 64*1024*1024 {
		t.Errorf("Client.MaxResponseSize = %d", cfg.Client.MaxResponseSize)
	}
	if !cfg.Client.TruncateStrings {
		t.Error("Client.TruncateStrings should be true from env")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := chdirTemp(t)

	content := `
[client]
endpoint = "https://ticks.example.com"
timeout = 5

[write]
schema = "Epoch:i8,Price:f8"
is_variable_length = true
`
	if err := os.WriteFile(filepath.Join(dir, "mkts.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Client.Endpoint != "https://ticks.example.com" {
		t.Errorf("Client.Endpoint = %s", cfg.Client.Endpoint)
	}
	if cfg.Client.Timeout != 5 {
		t.Errorf("Client.Timeout = %d, want 5", cfg.Client.Timeout)
	}
	if cfg.Write.Schema != "Epoch:i8,Price:f8" {
		t.Errorf("Write.Schema = %s", cfg.Write.Schema)
	}
	if !cfg.Write.IsVariableLength {
		t.Error("Write.IsVariableLength should be true from file")
	}
}

func TestLoad_InvalidProtocol(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MKTS_CLIENT_PROTOCOL", "grpc")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should reject unknown protocol")
	}
	if !strings.Contains(err.Error(), "client.protocol") {
		t.Errorf("Error should mention client.protocol: %v", err)
	}
}

func TestLoad_InvalidMaxResponseSize(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MKTS_CLIENT_MAX_RESPONSE_SIZE", "1TB")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject invalid size")
	}
}

func TestClientConfig_Validate(t *testing.T) {
	valid := ClientConfig{Endpoint: "http://localhost:5993", Protocol: "msgpack", Compression: "none", Timeout: 30}

	tests := []struct {
		name    string
		mutate  func(c *ClientConfig)
		wantErr string
	}{
		{"valid", func(c *ClientConfig) {}, ""},
		{"missing endpoint", func(c *ClientConfig) { c.Endpoint = "" }, "endpoint"},
		{"non http endpoint", func(c *ClientConfig) { c.Endpoint = "tcp://localhost:5995" }, "http"},
		{"bad compression", func(c *ClientConfig) { c.Compression = "zstd" }, "compression"},
		{"zero timeout", func(c *ClientConfig) { c.Timeout = 0 }, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"512MB", 512 * 1024 * 1024, false},
		{"1gb", 1024 * 1024 * 1024, false},
		{"100KB", 100 * 1024, false},
		{"1.5MB", 1572864, false},
		{"42B", 42, false},
		{"4096", 4096, false},
		{"", 0, true},
		{"1TB", 0, true},
		{"abc", 0, true},
		{"-1MB", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

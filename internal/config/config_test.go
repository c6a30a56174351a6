package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "storage:\n  dir: "+dir+"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("default addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.WorkerCount != 2 || cfg.Server.QueueCapacity != 128 {
		t.Fatalf("worker defaults: %d/%d", cfg.Server.WorkerCount, cfg.Server.QueueCapacity)
	}
	if cfg.Media.FFmpegPath != "ffmpeg" || cfg.Media.StepTimeout != 5*time.Minute {
		t.Fatalf("media defaults: %q/%v", cfg.Media.FFmpegPath, cfg.Media.StepTimeout)
	}
	if cfg.Storage.PublicURLPrefix != "/files" {
		t.Fatalf("public url prefix default = %q", cfg.Storage.PublicURLPrefix)
	}
	if cfg.Storage.DatabasePath != filepath.Join(dir, "reelsmith.db") {
		t.Fatalf("db path default = %q", cfg.Storage.DatabasePath)
	}
	if cfg.Fetch.Timeout != 60*time.Second {
		t.Fatalf("fetch timeout default = %v", cfg.Fetch.Timeout)
	}
}

func TestLoad_ExplicitValuesAndEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_API_KEY", "sekrit")
	path := writeConfig(t, strings.Join([]string{
		"server:",
		"  address: :9090",
		"  workerCount: 3",
		"  maxUploadSize: 2MiB",
		"  apiKey: ${TEST_API_KEY}",
		"media:",
		"  ffmpegPath: /usr/local/bin/ffmpeg",
		"  stepTimeout: 90s",
		"storage:",
		"  dir: " + dir,
		"  publicUrlPrefix: https://cdn.example.com/media",
		"fetch:",
		"  timeout: 10s",
	}, "\n") + "\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.WorkerCount != 3 {
		t.Fatalf("server values: %+v", cfg.Server)
	}
	if cfg.Server.MaxUploadSize != ByteSize(2*1024*1024) {
		t.Fatalf("maxUploadSize = %d", cfg.Server.MaxUploadSize)
	}
	if cfg.Server.APIKey != "sekrit" {
		t.Fatalf("env expansion failed: %q", cfg.Server.APIKey)
	}
	if cfg.Media.StepTimeout != 90*time.Second {
		t.Fatalf("stepTimeout = %v", cfg.Media.StepTimeout)
	}
	if cfg.Storage.PublicURLPrefix != "https://cdn.example.com/media" {
		t.Fatalf("publicUrlPrefix = %q", cfg.Storage.PublicURLPrefix)
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	path := writeConfig(t, "server:\n  logLevel: loud\nstorage:\n  dir: "+t.TempDir()+"\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("invalid log level must be rejected")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("missing config file must be an error")
	}
}

func TestByteSize_Unmarshal(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"1024", 1024},
		{"10MB", 10 * 1000 * 1000},
		{"10MiB", 10 * 1024 * 1024},
		{"512KiB", 512 * 1024},
	}
	for _, tc := range cases {
		var b ByteSize
		if err := yaml.Unmarshal([]byte(tc.in), &b); err != nil {
			t.Fatalf("unmarshal %q: %v", tc.in, err)
		}
		if uint64(b) != tc.want {
			t.Fatalf("%q = %d, want %d", tc.in, b, tc.want)
		}
	}

	var b ByteSize
	if err := yaml.Unmarshal([]byte("\"10 elephants\""), &b); err == nil {
		t.Fatalf("garbage size must be rejected")
	}
}

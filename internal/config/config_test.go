package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

var allEnvKeys = []string{
	envListenAddr, envDBPath, envLogLevel, envDataDir, envMinFreeSpaceMB,
	envInQueue, envResponseQueue, envRedisAddr, envRedisPassword, envRedisDB,
	envConsumerID, envConcurrency, envMaxRedeliveries, envPollTimeout,
	envSpaceCheckInterval, envDrainPollInterval, envWorkOrderCmd,
	envActionOrderCmd, envExecTimeout,
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allEnvKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.DBPath != defaultDBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, defaultDBPath)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.MinFreeSpaceMB != defaultMinFreeSpaceMB {
		t.Errorf("MinFreeSpaceMB = %d, want %d", cfg.MinFreeSpaceMB, defaultMinFreeSpaceMB)
	}
	if cfg.InQueue != defaultInQueue {
		t.Errorf("InQueue = %q, want %q", cfg.InQueue, defaultInQueue)
	}
	if cfg.Concurrency != defaultConcurrency {
		t.Errorf("Concurrency = %d, want %d", cfg.Concurrency, defaultConcurrency)
	}
	if cfg.DrainPollInterval != 10*time.Second {
		t.Errorf("DrainPollInterval = %v, want 10s", cfg.DrainPollInterval)
	}
	if cfg.ConsumerID == "" {
		t.Error("ConsumerID should default to a non-empty hostname")
	}
	if len(cfg.WorkOrderCmd) != 0 || len(cfg.ActionOrderCmd) != 0 {
		t.Errorf("executor commands should be empty by default, got %v %v", cfg.WorkOrderCmd, cfg.ActionOrderCmd)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(envListenAddr, ":9090")
	t.Setenv(envDBPath, "/tmp/test.db")
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envDataDir, "/var/lib/inductor")
	t.Setenv(envMinFreeSpaceMB, "200")
	t.Setenv(envInQueue, "cloud.aws.ind")
	t.Setenv(envConcurrency, "4")
	t.Setenv(envPollTimeout, "250ms")
	t.Setenv(envDrainPollInterval, "2s")
	t.Setenv(envWorkOrderCmd, "/usr/bin/run-wo --verbose")

	cfg := Load()

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.DataDir != "/var/lib/inductor" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.MinFreeSpaceMB != 200 {
		t.Errorf("MinFreeSpaceMB = %d, want 200", cfg.MinFreeSpaceMB)
	}
	if cfg.InQueue != "cloud.aws.ind" {
		t.Errorf("InQueue = %q", cfg.InQueue)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Concurrency)
	}
	if cfg.PollTimeout != 250*time.Millisecond {
		t.Errorf("PollTimeout = %v, want 250ms", cfg.PollTimeout)
	}
	if cfg.DrainPollInterval != 2*time.Second {
		t.Errorf("DrainPollInterval = %v, want 2s", cfg.DrainPollInterval)
	}
	if len(cfg.WorkOrderCmd) != 2 || cfg.WorkOrderCmd[0] != "/usr/bin/run-wo" {
		t.Errorf("WorkOrderCmd = %v", cfg.WorkOrderCmd)
	}
}

func TestLoadInvalidNumbersKeepDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(envMinFreeSpaceMB, "lots")
	t.Setenv(envConcurrency, "0")
	t.Setenv(envDrainPollInterval, "soon")

	cfg := Load()

	if cfg.MinFreeSpaceMB != defaultMinFreeSpaceMB {
		t.Errorf("MinFreeSpaceMB = %d, want default", cfg.MinFreeSpaceMB)
	}
	if cfg.Concurrency != defaultConcurrency {
		t.Errorf("Concurrency = %d, want default", cfg.Concurrency)
	}
	if cfg.DrainPollInterval != defaultDrainPollInterval {
		t.Errorf("DrainPollInterval = %v, want default", cfg.DrainPollInterval)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		got := parseLogLevel(tt.input)
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestConfigLogValueOmitsPassword(t *testing.T) {
	clearEnv(t)
	t.Setenv(envRedisPassword, "hunter2")

	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	logger.Info("config", "config", Load())

	if strings.Contains(buf.String(), "hunter2") {
		t.Errorf("log output leaked the redis password: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "in_queue") {
		t.Errorf("log output missing in_queue: %s", buf.String())
	}
}

func TestNewLoggerOutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("logger output is not valid JSON: %v\noutput: %s", err, buf.String())
	}

	for _, key := range []string{"time", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("JSON output missing expected key %q", key)
		}
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
}

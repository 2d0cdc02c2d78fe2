package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
slot_duration_ms: 250
epoch_length: 20
principal_threshold: "1000000"
genesis_time: 1700000000
network_name: testnet
bootnodes:
  - /ip4/127.0.0.1/udp/9001/quic-v1
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SlotDuration != 250*time.Millisecond {
		t.Errorf("slot duration = %s", cfg.SlotDuration)
	}
	if cfg.EpochLength != 20 {
		t.Errorf("epoch length = %d", cfg.EpochLength)
	}
	if cfg.PrincipalThreshold.Uint64() != 1000000 {
		t.Errorf("threshold = %s", cfg.PrincipalThreshold.Dec())
	}
	if cfg.NetworkName != "testnet" {
		t.Errorf("network = %s", cfg.NetworkName)
	}
	if len(cfg.Bootnodes) != 1 {
		t.Errorf("bootnodes = %v", cfg.Bootnodes)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("epoch_length: 5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EpochLength != 5 {
		t.Errorf("epoch length = %d", cfg.EpochLength)
	}
	if cfg.SlotDuration != Default().SlotDuration {
		t.Errorf("slot duration = %s, want default", cfg.SlotDuration)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

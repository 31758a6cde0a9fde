// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.yaml")
	const doc = `
lattice_id: prod
bus_url: nats://bus.internal:4222
host_id: host-7
labels:
  zone: eu-1
rpc_timeout: 5s
structured_logging: true
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LatticeID != "prod" || cfg.HostID != "host-7" {
		t.Errorf("identity = %s %s, want prod host-7", cfg.LatticeID, cfg.HostID)
	}
	if cfg.rpcTimeout != 5*time.Second {
		t.Errorf("rpcTimeout = %v, want 5s", cfg.rpcTimeout)
	}
	if !cfg.StructuredLogging {
		t.Error("StructuredLogging = false, want true")
	}
	// Unset fields pick up defaults.
	if cfg.SubjectPrefix != "lattice" || cfg.healthInterval != 30*time.Second || cfg.LogLevel != "info" {
		t.Errorf("defaults not applied: prefix=%q health=%v level=%q", cfg.SubjectPrefix, cfg.healthInterval, cfg.LogLevel)
	}
}

func TestConfigRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.yaml")
	const doc = `
lattice_id: prod
bus_url: nats://bus.internal:4222
host_id: host-7
rpc_timeout: soon
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig accepted an unparseable rpc_timeout")
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.yaml")
	if err := os.WriteFile(path, []byte("lattice_id: prod\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig without host_id and bus_url succeeded, want error")
	}
}

func TestReadBootstrap(t *testing.T) {
	record, err := json.Marshal(Config{
		LatticeID: "prod",
		BusURL:    "nats://bus.internal:4222",
		HostID:    "host-7",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString(record) + "\n"

	cfg, err := ReadBootstrap(strings.NewReader(encoded))
	if err != nil {
		t.Fatalf("ReadBootstrap: %v", err)
	}
	if cfg.HostID != "host-7" || cfg.rpcTimeout != 2*time.Second {
		t.Errorf("cfg = %+v, want host-7 with default timeout", cfg)
	}
}

func TestReadBootstrapRejectsGarbage(t *testing.T) {
	if _, err := ReadBootstrap(strings.NewReader("not base64!!")); err == nil {
		t.Fatal("ReadBootstrap accepted invalid base64")
	}
	encoded := base64.StdEncoding.EncodeToString([]byte("{}"))
	if _, err := ReadBootstrap(strings.NewReader(encoded)); err == nil {
		t.Fatal("ReadBootstrap accepted an empty record")
	}
}

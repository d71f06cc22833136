package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoadConfigFile_MergesOverDefaults tests that a partial file keeps the
// defaults for everything it does not mention.
func TestLoadConfigFile_MergesOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `
wheel:
  sample_hz: 200
audio:
  volume: 25
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	if cfg.Wheel.SampleHz != 200 {
		t.Errorf("wheel.sample_hz: got %d, want 200", cfg.Wheel.SampleHz)
	}
	if cfg.Audio.Volume != 25 {
		t.Errorf("audio.volume: got %d, want 25", cfg.Audio.Volume)
	}
	if cfg.Wheel.BaselineTauS != defaultBaselineTauS {
		t.Errorf("wheel.baseline_tau_s default lost: got %f", cfg.Wheel.BaselineTauS)
	}
	if cfg.IPC.SocketPath != "/tmp/izodcore.sock" {
		t.Errorf("ipc.socket_path default lost: got %q", cfg.IPC.SocketPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("merged config invalid: %v", err)
	}
}

// TestLoadConfigFile_RejectsUnknownField tests typo detection.
func TestLoadConfigFile_RejectsUnknownField(t *testing.T) {
	path := writeConfigFile(t, `
wheel:
  sample_rate: 200
`)
	if _, err := LoadConfigFile(path); err == nil {
		t.Error("unknown field accepted")
	}
}

// TestLoadConfigFile_RejectsTrailingDocument tests multi-document rejection.
func TestLoadConfigFile_RejectsTrailingDocument(t *testing.T) {
	path := writeConfigFile(t, "simulate: true\n---\nsimulate: false\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Error("trailing yaml document accepted")
	}
}

// TestConfig_Validate tests a few representative invariants.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"sample hz too high", func(c *Config) { c.Wheel.SampleHz = 2000 }, "wheel.sample_hz"},
		{"max step out of range", func(c *Config) { c.Wheel.MaxStep = 0.6 }, "wheel.max_step"},
		{"bad sensitivity name", func(c *Config) { c.Wheel.Sensitivity = "extreme" }, "wheel.sensitivity"},
		{"mono allowed", func(c *Config) { c.Audio.Channels = 1 }, ""},
		{"bad channel count", func(c *Config) { c.Audio.Channels = 3 }, "audio.channels"},
		{"volume out of range", func(c *Config) { c.Audio.Volume = 101 }, "audio.volume"},
		{"empty playlist", func(c *Config) { c.Tracks = nil }, "tracks"},
		{"tone above nyquist", func(c *Config) { c.Tracks[0].ToneHz = 30000 }, "tone_hz"},
		{"hardware without devices", func(c *Config) { c.Simulate = false }, "buttons.devices"},
		{"hardware with device", func(c *Config) {
			c.Simulate = false
			c.Buttons.Devices = []string{"/dev/input/event0"}
		}, ""},
		{"zero bus capacity", func(c *Config) { c.Bus.Capacity = 0 }, "bus.capacity"},
		{"ws enabled without listen", func(c *Config) { c.StateWS.Listen = "" }, "state_ws.listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

// TestFlagOverrides_Apply tests that only set overrides land.
func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()
	vol := 40
	dev := "/dev/input/event3"
	o := FlagOverrides{Volume: &vol, InputDevice: &dev}
	o.Apply(&cfg)

	if cfg.Audio.Volume != 40 {
		t.Errorf("volume override: got %d, want 40", cfg.Audio.Volume)
	}
	if len(cfg.Buttons.Devices) != 1 || cfg.Buttons.Devices[0] != dev {
		t.Errorf("device override: got %v", cfg.Buttons.Devices)
	}
	if cfg.IPC.SocketPath != "/tmp/izodcore.sock" {
		t.Errorf("unset override changed socket path: %q", cfg.IPC.SocketPath)
	}
}

package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the izodcore daemon.
//
// The config file is the primary configuration surface; flags exist for
// small overrides and environments where a file is awkward. Defaults and
// validation are centralized here so the rest of the code can assume a
// well-formed config.
type Config struct {
	// Touch wheel estimator tuning
	Wheel WheelFileConfig `yaml:"wheel"`

	// Calibration behavior
	Calibration CalibrationConfig `yaml:"calibration"`

	// Audio pipeline geometry and volume
	Audio AudioFileConfig `yaml:"audio"`

	// Playlist (synthetic tone tracks)
	Tracks []TrackConfig `yaml:"tracks"`

	// Physical button input
	Buttons ButtonsConfig `yaml:"buttons"`

	// Input bus sizing
	Bus BusConfig `yaml:"bus"`

	// IPC socket
	IPC IPCConfig `yaml:"ipc"`

	// State WebSocket for UI clients
	StateWS StateWSConfig `yaml:"state_ws"`

	// Sensitivity profile persistence
	Profile ProfileConfig `yaml:"profile"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Simulate replaces the hardware front ends (electrodes, buttons,
	// audio device) with synthetic ones.
	Simulate bool `yaml:"simulate"`
}

type WheelFileConfig struct {
	SampleHz     int     `yaml:"sample_hz"`
	BaselineTauS float64 `yaml:"baseline_tau_s"`
	MaxStep      float64 `yaml:"max_step"`
	TapMaxMS     int     `yaml:"tap_max_ms"`
	Invert       bool    `yaml:"invert,omitempty"`
	Sensitivity  string  `yaml:"sensitivity"`
}

type CalibrationConfig struct {
	OnStart    bool `yaml:"on_start"`
	IntervalMS int  `yaml:"interval_ms"` // 0 disables periodic recalibration
}

type AudioFileConfig struct {
	SampleRate   int `yaml:"sample_rate"`
	Channels     int `yaml:"channels"`
	FrameSamples int `yaml:"frame_samples"`
	RingFrames   int `yaml:"ring_frames"`
	Volume       int `yaml:"volume"`
	VolumeRampMS int `yaml:"volume_ramp_ms"`
}

type TrackConfig struct {
	Name      string  `yaml:"name"`
	ToneHz    float64 `yaml:"tone_hz"`
	DurationS float64 `yaml:"duration_s"`
}

type ButtonsConfig struct {
	Devices    []string `yaml:"devices,omitempty"`
	DebounceMS int      `yaml:"debounce_ms"`
}

type BusConfig struct {
	Capacity int `yaml:"capacity"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type StateWSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

type ProfileConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`

	// Optional rotating log file; empty means stdout only.
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults.
func DefaultConfig() Config {
	return Config{
		Wheel: WheelFileConfig{
			SampleHz:     defaultSampleHz,
			BaselineTauS: defaultBaselineTauS,
			MaxStep:      defaultMaxStep,
			TapMaxMS:     defaultTapMaxMS,
			Sensitivity:  "Medium",
		},
		Calibration: CalibrationConfig{
			OnStart:    true,
			IntervalMS: defaultCalibIntervalMS,
		},
		Audio: AudioFileConfig{
			SampleRate:   defaultSampleRate,
			Channels:     defaultChannels,
			FrameSamples: defaultFrameSamples,
			RingFrames:   defaultRingFrames,
			Volume:       defaultVolume,
			VolumeRampMS: defaultVolumeRampMS,
		},
		Tracks: []TrackConfig{
			{Name: "Tone 440Hz", ToneHz: 440, DurationS: 30},
			{Name: "Tone 1kHz", ToneHz: defaultToneHz, DurationS: 30},
		},
		Buttons: ButtonsConfig{
			DebounceMS: defaultDebounceMS,
		},
		Bus: BusConfig{
			Capacity: defaultBusCapacity,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/izodcore.sock",
		},
		StateWS: StateWSConfig{
			Enabled: true,
			Listen:  "127.0.0.1:3002",
			Path:    "/ws",
		},
		Profile: ProfileConfig{
			Path: "~/.config/izodcore/profile.yml",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Simulate: true,
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Notes:
//   - The file must be valid YAML.
//   - Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies ad-hoc overrides from flags on top of a loaded
// config. Each override is only applied if the pointer is non-nil.
type FlagOverrides struct {
	Simulate      *bool
	InputDevice   *string
	IPCSocketPath *string
	WSListen      *string
	Volume        *int
	Sensitivity   *string
	LogLevel      *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is
// ignored. If the pointer is non-nil, the value is applied (even if it is a
// zero value).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Simulate != nil {
		cfg.Simulate = *o.Simulate
	}
	if o.InputDevice != nil {
		cfg.Buttons.Devices = []string{*o.InputDevice}
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.WSListen != nil {
		cfg.StateWS.Listen = *o.WSListen
	}
	if o.Volume != nil {
		cfg.Audio.Volume = *o.Volume
	}
	if o.Sensitivity != nil {
		cfg.Wheel.Sensitivity = *o.Sensitivity
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Wheel
	if c.Wheel.SampleHz <= 0 || c.Wheel.SampleHz > 1000 {
		return errors.New("wheel.sample_hz must be between 1 and 1000")
	}
	if c.Wheel.BaselineTauS <= 0 {
		return errors.New("wheel.baseline_tau_s must be > 0")
	}
	if c.Wheel.MaxStep <= 0 || c.Wheel.MaxStep > 0.5 {
		return errors.New("wheel.max_step must be in (0, 0.5]")
	}
	if c.Wheel.TapMaxMS <= 0 {
		return errors.New("wheel.tap_max_ms must be > 0")
	}
	if _, err := ParseSensitivityLevel(c.Wheel.Sensitivity); err != nil {
		return fmt.Errorf("wheel.sensitivity: %w", err)
	}

	// Calibration
	if c.Calibration.IntervalMS < 0 {
		return errors.New("calibration.interval_ms must be >= 0")
	}

	// Audio
	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be > 0")
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		return errors.New("audio.channels must be 1 or 2")
	}
	if c.Audio.FrameSamples <= 0 {
		return errors.New("audio.frame_samples must be > 0")
	}
	if c.Audio.RingFrames <= 0 {
		return errors.New("audio.ring_frames must be > 0")
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 100 {
		return errors.New("audio.volume must be between 0 and 100")
	}
	if c.Audio.VolumeRampMS <= 0 {
		return errors.New("audio.volume_ramp_ms must be > 0")
	}

	// Tracks
	if len(c.Tracks) == 0 {
		return errors.New("tracks must not be empty")
	}
	for i, t := range c.Tracks {
		if t.Name == "" {
			return fmt.Errorf("tracks[%d].name is empty", i)
		}
		if t.ToneHz <= 0 || t.ToneHz >= float64(c.Audio.SampleRate)/2 {
			return fmt.Errorf("tracks[%d].tone_hz must be in (0, sample_rate/2)", i)
		}
		if t.DurationS <= 0 {
			return fmt.Errorf("tracks[%d].duration_s must be > 0", i)
		}
	}

	// Buttons
	if !c.Simulate && len(c.Buttons.Devices) == 0 {
		return errors.New("buttons.devices must not be empty without simulate")
	}
	for i, dev := range c.Buttons.Devices {
		if dev == "" {
			return fmt.Errorf("buttons.devices[%d] is empty", i)
		}
	}
	if c.Buttons.DebounceMS <= 0 {
		return errors.New("buttons.debounce_ms must be > 0")
	}

	// Bus
	if c.Bus.Capacity <= 0 {
		return errors.New("bus.capacity must be > 0")
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// State WS
	if c.StateWS.Enabled {
		if c.StateWS.Listen == "" {
			return errors.New("state_ws.enabled is true but state_ws.listen is empty")
		}
		if c.StateWS.Path == "" {
			return errors.New("state_ws.enabled is true but state_ws.path is empty")
		}
	}

	// Profile
	if c.Profile.Path == "" {
		return errors.New("profile.path must not be empty")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ToWheelConfig converts the file config into the estimator config.
func (c *Config) ToWheelConfig() WheelConfig {
	return WheelConfig{
		SampleHz:    c.Wheel.SampleHz,
		BaselineTau: c.Wheel.BaselineTauS,
		MaxStep:     c.Wheel.MaxStep,
		TapMax:      msToDuration(c.Wheel.TapMaxMS),
		Invert:      c.Wheel.Invert,
	}
}

// ToAudioConfig converts the file config into the pipeline config.
func (c *Config) ToAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:   c.Audio.SampleRate,
		Channels:     c.Audio.Channels,
		FrameSamples: c.Audio.FrameSamples,
		RingFrames:   c.Audio.RingFrames,
		Volume:       c.Audio.Volume,
		VolumeRampMS: c.Audio.VolumeRampMS,
	}
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
// This is handy for config values like profile.path.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}

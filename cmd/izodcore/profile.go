package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProfileStore persists the sensitivity profile and calibration baseline to
// a YAML file (the host-side stand-in for the device's non-volatile config
// namespace). Callers own concurrency; the sampling context is the only
// writer.
type ProfileStore struct {
	path   string
	logger *slog.Logger
}

// persistedProfile is the on-disk document: the active profile plus the
// last calibration baseline so a reboot does not start from scratch.
type persistedProfile struct {
	Profile  SensitivityProfile      `yaml:"profile"`
	Baseline [electrodeCount]float64 `yaml:"baseline"`
}

func NewProfileStore(path string, logger *slog.Logger) *ProfileStore {
	return &ProfileStore{path: ExpandPath(path), logger: logger}
}

// Load reads the persisted profile. A missing or corrupt file falls back to
// defaults (logged, not an error to the caller). The bool reports whether a
// valid stored profile was found.
func (s *ProfileStore) Load() (SensitivityProfile, [electrodeCount]float64, bool) {
	var doc persistedProfile

	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("profile store unreadable, using defaults", "path", s.path, "error", err)
		}
		return DefaultProfile(), doc.Baseline, false
	}

	if err := yaml.Unmarshal(b, &doc); err != nil {
		s.logger.Warn("profile store corrupt, using defaults", "path", s.path, "error", err)
		return DefaultProfile(), doc.Baseline, false
	}
	if err := doc.Profile.Validate(); err != nil {
		s.logger.Warn("persisted profile invalid, using defaults", "path", s.path, "error", err)
		return DefaultProfile(), doc.Baseline, false
	}

	s.logger.Info("profile loaded", "level", doc.Profile.Level.String(), "custom_per_pad", doc.Profile.CustomPerPad)
	return doc.Profile, doc.Baseline, true
}

// Save writes the profile and baseline atomically (temp file + rename).
func (s *ProfileStore) Save(p SensitivityProfile, baseline [electrodeCount]float64) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid profile: %w", err)
	}

	b, err := yaml.Marshal(persistedProfile{Profile: p, Baseline: baseline})
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".profile-*.yml")
	if err != nil {
		return fmt.Errorf("create temp profile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close profile: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace profile: %w", err)
	}

	s.logger.Debug("profile saved", "path", s.path, "level", p.Level.String())
	return nil
}

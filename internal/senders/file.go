package senders

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrMalformed is returned when a profile file parses but has the wrong shape
var ErrMalformed = errors.New("malformed sender profile")

// LoadFile reads a profile from path. It always returns a usable profile:
// a missing file, unreadable file, bad JSON or a payload without a
// "senders" object all yield an empty profile. The error is informational
// and is nil for a missing file.
func LoadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewProfile(), nil
		}
		return NewProfile(), fmt.Errorf("failed to read sender profile: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return NewProfile(), fmt.Errorf("failed to parse sender profile: %w", err)
	}
	sendersRaw, ok := raw["senders"]
	if !ok {
		return NewProfile(), ErrMalformed
	}

	var recs map[string]*Record
	if err := json.Unmarshal(sendersRaw, &recs); err != nil {
		return NewProfile(), fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	p := NewProfile()
	for k, rec := range recs {
		if rec == nil {
			continue
		}
		p.Senders[k] = rec
	}
	return p, nil
}

// SaveFile writes the profile as indented JSON. The write goes to a temp file
// in the same directory and is renamed into place, so readers never observe
// a partially written profile.
func SaveFile(p *Profile, path string) error {
	if p == nil {
		p = NewProfile()
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sender profile: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".senders-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp profile: %w", err)
	}
	tmpName := tmp.Name()

	// CreateTemp uses 0600 and the rename keeps it
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set profile permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp profile: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp profile: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move profile into place: %w", err)
	}
	return nil
}

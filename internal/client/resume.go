package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ResumeEntry is what the client remembers between runs.
type ResumeEntry struct {
	ParticipantID string `json:"participantId"`
	RoomCode      string `json:"roomCode,omitempty"`
}

// ResumeCache persists a ResumeEntry as a small JSON file.
type ResumeCache struct {
	path string
	mu   sync.Mutex
}

func NewResumeCache(path string) *ResumeCache {
	return &ResumeCache{path: path}
}

// Path returns the file backing the cache.
func (c *ResumeCache) Path() string {
	return c.path
}

// Load returns the stored entry. A missing file is an empty entry.
func (c *ResumeCache) Load() (ResumeEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

func (c *ResumeCache) load() (ResumeEntry, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return ResumeEntry{}, nil
	}
	if err != nil {
		return ResumeEntry{}, fmt.Errorf("read resume cache: %w", err)
	}

	var entry ResumeEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return ResumeEntry{}, fmt.Errorf("decode resume cache %s: %w", c.path, err)
	}
	return entry, nil
}

// Save replaces the stored entry.
func (c *ResumeCache) Save(entry ResumeEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save(entry)
}

func (c *ResumeCache) save(entry ResumeEntry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create resume cache dir: %w", err)
	}
	return writeFileAtomic(c.path, data, 0o600)
}

// ClearRoom forgets the room but keeps the participant identity.
func (c *ResumeCache) ClearRoom() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.load()
	if err != nil {
		entry = ResumeEntry{}
	}
	if entry.RoomCode == "" && err == nil {
		return nil
	}
	entry.RoomCode = ""
	return c.save(entry)
}

// writeFileAtomic writes data to a temp file in the same directory and renames
// it over filename, so readers see either the old or the new contents.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, filename); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	committed = true
	return nil
}

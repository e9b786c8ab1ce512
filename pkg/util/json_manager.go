package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// JSONManager reads and writes one JSON document on disk.
// Saves go through a temp file and rename so readers never see a partial file.
type JSONManager struct {
	filePath string
	mu       sync.RWMutex
}

// NewJSONManager creates a new JSONManager.
func NewJSONManager(filePath string) *JSONManager {
	return &JSONManager{filePath: filePath}
}

// Load unmarshals the file into data. A missing file leaves data untouched.
func (m *JSONManager) Load(data any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, err := os.ReadFile(m.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", m.filePath, err)
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return fmt.Errorf("decode %s: %w", m.filePath, err)
	}
	return nil
}

// Save writes data as indented JSON, creating parent directories as needed.
func (m *JSONManager) Save(data any) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.filePath, err)
	}
	raw = append(raw, '\n')

	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(m.filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), m.filePath); err != nil {
		return fmt.Errorf("replace %s: %w", m.filePath, err)
	}
	return nil
}

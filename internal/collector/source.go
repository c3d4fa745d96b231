package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Source supplies candidate snapshots from the extraction side.
type Source interface {
	Fetch(ctx context.Context) (*Snapshot, error)
	Name() string
}

// FileSource reads a JSON snapshot from disk.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (f *FileSource) Name() string { return "file" }

// Fetch returns an empty snapshot if the file doesn't exist.
func (f *FileSource) Fetch(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Snapshot{Source: f.Name()}, nil
		}
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", f.Path, err)
	}
	if snap.Source == "" {
		snap.Source = f.Name()
	}
	return &snap, nil
}

// WriteSnapshot stores snap as indented JSON at path.
func WriteSnapshot(path string, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// MockSource returns a fixed snapshot or error for development and testing.
type MockSource struct {
	Snapshot *Snapshot
	Err      error
	Calls    int
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) Fetch(_ context.Context) (*Snapshot, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Snapshot == nil {
		return &Snapshot{Source: m.Name()}, nil
	}
	return m.Snapshot, nil
}

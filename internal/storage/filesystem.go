// Package storage writes generated photos and their run manifest to disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const manifestName = "manifest.yaml"

// FileStore keeps results under a root directory on the local filesystem.
type FileStore struct {
	root string
}

// NewFileStore creates root when missing.
func NewFileStore(root string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the configured directory.
func (s *FileStore) Root() string {
	return s.root
}

// Write stores data at the relative key and returns the cleaned key.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", clean, err)
	}
	return clean, nil
}

// ManifestEntry describes one task outcome of a run.
type ManifestEntry struct {
	TaskID string `yaml:"task_id"`
	Status string `yaml:"status"`
	File   string `yaml:"file,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// Manifest records what a run was asked to do and what it produced.
type Manifest struct {
	Instruction string          `yaml:"instruction"`
	Primary     []string        `yaml:"primary"`
	References  []string        `yaml:"references,omitempty"`
	Model       string          `yaml:"model,omitempty"`
	CreatedAt   time.Time       `yaml:"created_at"`
	Results     []ManifestEntry `yaml:"results"`
}

// WriteManifest stores m as manifest.yaml in the root directory.
func (s *FileStore) WriteManifest(ctx context.Context, m Manifest) (string, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	data, err := yaml.Marshal(&m)
	if err != nil {
		return "", fmt.Errorf("storage: marshal manifest: %w", err)
	}
	return s.Write(ctx, manifestName, data)
}

// ReadManifest loads manifest.yaml from the root directory.
func (s *FileStore) ReadManifest() (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.root, manifestName))
	if err != nil {
		return nil, fmt.Errorf("storage: read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("storage: parse manifest: %w", err)
	}
	return &m, nil
}

// sanitizeKey keeps keys relative to the root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimLeft(strings.TrimPrefix(key, "./"), "/")
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return cleaned, nil
}

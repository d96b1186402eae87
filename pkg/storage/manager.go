package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Ext is the beatmapset archive extension
const Ext = ".osz"

// Manager tracks which beatmapsets are already on disk and saves new ones.
// The in-memory set is seeded from the output directory at startup and only
// grows: an id is marked before its download completes so two accounts
// referencing the same set never dispatch it twice.
type Manager struct {
	outputDir  string
	downloaded map[int]bool
	mu         sync.RWMutex
}

// NewManager creates a storage manager rooted at outputDir, creating the
// directory if needed and seeding the set from existing files.
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := &Manager{
		outputDir:  outputDir,
		downloaded: make(map[int]bool),
	}

	if err := manager.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return manager, nil
}

// scanExistingFiles seeds the set from filename stems in the output directory
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != Ext {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), Ext)
		id, err := strconv.Atoi(stem)
		if err != nil {
			// Foreign files in the output directory are none of our business
			continue
		}
		m.downloaded[id] = true
	}

	return nil
}

// IsDownloaded checks if a beatmapset has already been fetched or claimed
func (m *Manager) IsDownloaded(beatmapsetID int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.downloaded[beatmapsetID]
}

// TryMark atomically claims a beatmapset for download. It returns false if
// the id was already present, so exactly one caller wins a racing claim.
func (m *Manager) TryMark(beatmapsetID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.downloaded[beatmapsetID] {
		return false
	}
	m.downloaded[beatmapsetID] = true
	return true
}

// MarkDownloaded records a beatmapset as downloaded
func (m *Manager) MarkDownloaded(beatmapsetID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloaded[beatmapsetID] = true
}

// SaveBeatmapset writes a beatmapset archive from the given reader. The
// write goes through a temporary file and a rename so partially transferred
// archives never land under their final name.
func (m *Manager) SaveBeatmapset(r io.Reader, beatmapsetID int) error {
	filename := m.Filename(beatmapsetID)

	tempFile := filename + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to save beatmapset data: %w", err)
	}

	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.MarkDownloaded(beatmapsetID)

	return nil
}

// Filename returns the on-disk path for a beatmapset id
func (m *Manager) Filename(beatmapsetID int) string {
	return filepath.Join(m.outputDir, strconv.Itoa(beatmapsetID)+Ext)
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// DownloadedCount returns the number of known beatmapsets
func (m *Manager) DownloadedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.downloaded)
}

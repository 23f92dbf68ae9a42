package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrNoCheckpoint is returned when no checkpoint exists.
	ErrNoCheckpoint = errors.New("no checkpoint found")
)

// FileName is the checkpoint file inside the checkpoint directory.
const FileName = "checkpoint.json"

// Checkpoint records which track archives a batch run has completed.
type Checkpoint struct {
	RunID     string                `json:"run_id"`
	Tracks    map[string]TrackEntry `json:"tracks"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// TrackEntry describes one converted archive.
type TrackEntry struct {
	Archive     string    `json:"archive"`
	Checksum    string    `json:"checksum"`
	Total       int       `json:"total"`
	Processed   int       `json:"processed"`
	Failed      int       `json:"failed"`
	CompletedAt time.Time `json:"completed_at"`
}

// New returns an empty checkpoint.
func New(runID string) *Checkpoint {
	return &Checkpoint{RunID: runID, Tracks: make(map[string]TrackEntry)}
}

// Record stores the outcome of a track.
func (c *Checkpoint) Record(track string, entry TrackEntry) {
	if c.Tracks == nil {
		c.Tracks = make(map[string]TrackEntry)
	}
	c.Tracks[track] = entry
	c.UpdatedAt = entry.CompletedAt
}

// Completed reports whether track was converted from an archive with the
// same checksum and without file failures.
func (c *Checkpoint) Completed(track, checksum string) bool {
	if c == nil {
		return false
	}
	e, ok := c.Tracks[track]
	return ok && e.Checksum == checksum && e.Failed == 0
}

// Manager handles checkpoint persistence and retrieval.
type Manager interface {
	// Load reads the current checkpoint.
	Load(ctx context.Context) (*Checkpoint, error)

	// Save persists the checkpoint.
	Save(ctx context.Context, cp *Checkpoint) error
}

// Config configures the checkpoint manager.
type Config struct {
	Enabled bool
	Dir     string // Directory for checkpoint files
}

// NewManager creates a checkpoint manager based on configuration.
func NewManager(cfg Config) (Manager, error) {
	if !cfg.Enabled {
		return &noopManager{}, nil
	}

	// Ensure checkpoint directory exists
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Dir, err)
	}

	return &fileManager{path: filepath.Join(cfg.Dir, FileName)}, nil
}

// fileManager persists checkpoints to a local file.
type fileManager struct {
	path string
}

// Load reads the checkpoint from file.
func (m *fileManager) Load(ctx context.Context) (*Checkpoint, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint file: %w", err)
	}
	if cp.Tracks == nil {
		cp.Tracks = make(map[string]TrackEntry)
	}

	return &cp, nil
}

// Save persists the checkpoint to file.
func (m *fileManager) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	// Write atomically
	tempPath := m.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}

	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename checkpoint file: %w", err)
	}

	return nil
}

// noopManager is a no-op checkpoint manager for when checkpointing is disabled.
type noopManager struct{}

func (m *noopManager) Load(ctx context.Context) (*Checkpoint, error) {
	return nil, ErrNoCheckpoint
}

func (m *noopManager) Save(ctx context.Context, cp *Checkpoint) error {
	return nil
}

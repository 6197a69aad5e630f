// Package snapshot persists the latest snapshot of a world to disk. Writes
// are scheduled on a worker pool so the world runner's tick goroutine never
// blocks on I/O.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cellarena/worldstate"
)

// Repository writes snapshots to {Directory}/{world_id}.json, atomically
// (write-to-temp-then-rename) and off the caller's goroutine.
type Repository struct {
	Directory string
	work      chan job
}

type job struct {
	worldID  string
	snapshot worldstate.Snapshot
}

// NewRepository creates the snapshot directory if needed and starts a small
// pool of writer goroutines.
func NewRepository(directory string, workers int) (*Repository, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create directory: %w", err)
	}
	if workers < 1 {
		workers = 1
	}

	repo := &Repository{Directory: directory, work: make(chan job, 256)}
	for i := 0; i < workers; i++ {
		go repo.worker()
	}
	return repo, nil
}

func (r *Repository) worker() {
	for j := range r.work {
		if err := r.writeNow(j.worldID, j.snapshot); err != nil {
			fmt.Printf("snapshot: failed to persist world %s: %v\n", j.worldID, err)
		}
	}
}

// SaveSnapshot enqueues a snapshot for persistence. It never blocks the
// tick goroutine for longer than it takes to push onto a buffered channel;
// if the queue is momentarily full the write is dropped rather than
// stalling the caller.
func (r *Repository) SaveSnapshot(worldID string, snapshot worldstate.Snapshot) {
	select {
	case r.work <- job{worldID: worldID, snapshot: snapshot}:
	default:
		fmt.Printf("snapshot: queue full, dropping snapshot for world %s\n", worldID)
	}
}

func (r *Repository) writeNow(worldID string, snapshot worldstate.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	path := filepath.Join(r.Directory, worldID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

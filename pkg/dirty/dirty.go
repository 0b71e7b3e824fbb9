// Package dirty tracks source files by content hash so that only files whose
// text changed are parsed, bound and analyzed again. A changed hash means
// every flow fact derived from the old text is stale.
package dirty

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// DefaultStateDir is the default directory for the persisted hashes.
const DefaultStateDir = ".ftq/cache"

// DefaultStateFile is the default file name for the persisted hashes.
const DefaultStateFile = "hashes.json"

// fileState is the tracked state of one file.
type fileState struct {
	Path     string `json:"path"`
	Hash     string `json:"hash"`
	IsDirty  bool   `json:"is_dirty"`
	LastSeen int64  `json:"last_seen"`
}

// stateData is the on-disk JSON structure.
type stateData struct {
	Version int         `json:"version"`
	Files   []fileState `json:"files"`
}

// Tracker records the content hash of every analyzed file. It is safe for
// concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	files     map[string]fileState
	stateDir  string
	stateFile string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithStateDir sets the directory Save and Load use.
func WithStateDir(dir string) Option {
	return func(t *Tracker) {
		t.stateDir = dir
	}
}

// WithStateFile sets the file name Save and Load use.
func WithStateFile(file string) Option {
	return func(t *Tracker) {
		t.stateFile = file
	}
}

// New creates a Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		files:     make(map[string]fileState),
		stateDir:  DefaultStateDir,
		stateFile: DefaultStateFile,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// HashContent returns the hex SHA-256 of content.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func normalize(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Observe records the current content of path. It reports true, and marks
// the file dirty, when the file is new or its hash changed. Observing
// unchanged content leaves the dirty flag as it was.
func (t *Tracker) Observe(path string, content []byte) bool {
	path = normalize(path)
	hash := HashContent(content)

	t.mu.Lock()
	defer t.mu.Unlock()

	existing, exists := t.files[path]
	if exists && existing.Hash == hash {
		existing.LastSeen = time.Now().Unix()
		t.files[path] = existing
		return false
	}
	t.files[path] = fileState{
		Path:     path,
		Hash:     hash,
		IsDirty:  true,
		LastSeen: time.Now().Unix(),
	}
	return true
}

// CheckAndMark reads path and observes its content.
func (t *Tracker) CheckAndMark(path string) (bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return t.Observe(path, content), nil
}

// IsDirty reports whether path changed since it was last marked clean.
func (t *Tracker) IsDirty(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, exists := t.files[normalize(path)]
	return exists && state.IsDirty
}

// DirtyFiles returns the dirty paths in lexical order.
func (t *Tracker) DirtyFiles() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]string, 0, len(t.files))
	for _, state := range t.files {
		if state.IsDirty {
			result = append(result, state.Path)
		}
	}
	sort.Strings(result)
	return result
}

// MarkClean clears the dirty flag of the given paths once they have been
// analyzed. With no paths every file is marked clean.
func (t *Tracker) MarkClean(paths ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(paths) == 0 {
		for p, state := range t.files {
			state.IsDirty = false
			t.files[p] = state
		}
		return
	}
	for _, p := range paths {
		p = normalize(p)
		if state, exists := t.files[p]; exists {
			state.IsDirty = false
			t.files[p] = state
		}
	}
}

// Hash returns the recorded hash of path.
func (t *Tracker) Hash(path string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, exists := t.files[normalize(path)]
	return state.Hash, exists
}

// Remove stops tracking path.
func (t *Tracker) Remove(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, normalize(path))
}

// Count returns the number of dirty files.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, state := range t.files {
		if state.IsDirty {
			count++
		}
	}
	return count
}

// TotalCount returns the number of tracked files.
func (t *Tracker) TotalCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.files)
}

// Clear forgets every file.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files = make(map[string]fileState)
}

// StatePath returns the file Save writes to.
func (t *Tracker) StatePath() string {
	return filepath.Join(t.stateDir, t.stateFile)
}

// Save persists the tracked hashes to StatePath.
func (t *Tracker) Save() error {
	if err := os.MkdirAll(t.stateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	f, err := os.Create(t.StatePath())
	if err != nil {
		return fmt.Errorf("failed to create state file: %w", err)
	}
	defer f.Close()
	return t.SaveTo(f)
}

// Load restores the tracked hashes from StatePath. A missing file is not an
// error.
func (t *Tracker) Load() error {
	f, err := os.Open(t.StatePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open state file: %w", err)
	}
	defer f.Close()
	return t.LoadFrom(f)
}

// SaveTo writes the tracked hashes as JSON, ordered by path.
func (t *Tracker) SaveTo(w io.Writer) error {
	t.mu.RLock()
	data := stateData{Version: 1, Files: make([]fileState, 0, len(t.files))}
	for _, state := range t.files {
		data.Files = append(data.Files, state)
	}
	t.mu.RUnlock()
	sort.Slice(data.Files, func(i, j int) bool { return data.Files[i].Path < data.Files[j].Path })

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	return nil
}

// LoadFrom replaces the tracked hashes with JSON written by SaveTo.
func (t *Tracker) LoadFrom(r io.Reader) error {
	var data stateData
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode state: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.files = make(map[string]fileState, len(data.Files))
	for _, state := range data.Files {
		t.files[state.Path] = state
	}
	return nil
}

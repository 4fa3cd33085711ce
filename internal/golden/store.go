package golden

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrBaselineNotFound = errors.New("baseline not found")
	ErrNotPNG           = errors.New("baseline content is not a PNG image")
	ErrInvalidName      = errors.New("invalid baseline name")
)

// UpdateMode controls when a run may write baselines
type UpdateMode string

const (
	// UpdateNone writes a missing baseline but still fails the step.
	UpdateNone UpdateMode = "none"
	// UpdateMissing writes missing baselines and passes.
	UpdateMissing UpdateMode = "missing"
	// UpdateAll overwrites every baseline the run compares against.
	UpdateAll UpdateMode = "all"
)

// ParseUpdateMode validates a mode name; empty means UpdateNone
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch UpdateMode(strings.ToLower(s)) {
	case "", UpdateNone:
		return UpdateNone, nil
	case UpdateMissing:
		return UpdateMissing, nil
	case UpdateAll:
		return UpdateAll, nil
	}
	return "", fmt.Errorf("unknown snapshot update mode %q (want none, missing or all)", s)
}

// Baseline describes a stored reference image
type Baseline struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// Store keeps baselines as PNG files in one directory
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore returns a store rooted at dir. The directory is created on first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the baseline directory
func (s *Store) Dir() string {
	return s.dir
}

// Path returns where a baseline is stored
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if filepath.Ext(name) == "" {
		name += ".png"
	}
	return filepath.Join(s.dir, name), nil
}

// Load reads a baseline
func (s *Store) Load(name string) ([]byte, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBaselineNotFound, name)
		}
		return nil, fmt.Errorf("reading baseline %s: %w", name, err)
	}
	return data, nil
}

// Save writes a baseline after checking that data is a PNG
func (s *Store) Save(name string, data []byte) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if mt := mimetype.Detect(data); !mt.Is("image/png") {
		return fmt.Errorf("%w: detected %s", ErrNotPNG, mt.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating baseline directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing baseline %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing baseline %s: %w", name, err)
	}
	return nil
}

// List returns every PNG baseline, sorted by name
func (s *Store) List() ([]Baseline, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Baseline{}, nil
		}
		return nil, fmt.Errorf("listing baselines: %w", err)
	}
	out := make([]Baseline, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".png" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat baseline %s: %w", e.Name(), err)
		}
		out = append(out, Baseline{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Package version keeps the linear history of generated documents for one
// device. Each entry records the prompt that produced it and, once the
// stream commits, the finished HTML. Entries are ordered newest first and
// persisted as a single JSON value in the local KV store.
package version

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	versionsKey      = "versions"
	shareFilenameKey = "share-filename"
)

// ErrNotFound indicates no version entry exists for the given id.
var ErrNotFound = errors.New("version not found")

// Version is one history entry. Code is empty while the generation that
// created the entry is still streaming. CreatedAt is a millisecond epoch
// timestamp, matching the id scheme.
type Version struct {
	ID        string `json:"id"`
	Prompt    string `json:"prompt"`
	Code      string `json:"code"`
	CreatedAt int64  `json:"createdAt"`
}

// Store manages version history on top of a KV.
// All operations are safe for concurrent use.
type Store struct {
	kv KV

	mu sync.Mutex
	// lastCreated remembers the most recent CreatePending id so a commit
	// whose stream lost track of its id can still land on the right entry.
	lastCreated string

	now func() time.Time
}

// NewStore creates a version store over kv.
func NewStore(kv KV) *Store {
	return &Store{kv: kv, now: time.Now}
}

// CreatePending inserts a new empty entry for prompt at the head of the
// history and returns its id. Ids are millisecond timestamps; a collision
// with any existing entry bumps the id forward until it is unique, so a
// rapid burst of submissions still yields distinct ids.
func (s *Store) CreatePending(prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.load()
	if err != nil {
		return "", err
	}

	ts := s.now().UnixMilli()
	for indexOf(versions, strconv.FormatInt(ts, 10)) >= 0 {
		ts++
	}
	id := strconv.FormatInt(ts, 10)

	entry := Version{
		ID:        id,
		Prompt:    prompt,
		CreatedAt: s.now().UnixMilli(),
	}
	versions = append([]Version{entry}, versions...)
	if err := s.save(versions); err != nil {
		return "", err
	}
	s.lastCreated = id
	return id, nil
}

// Finalize writes the committed document into the entry for id. When id no
// longer matches any entry the commit falls back to the most recently
// created entry, then to the newest entry, so a finished generation is
// never dropped on the floor.
func (s *Store) Finalize(id, code string) (Version, error) {
	return s.updateCode(id, code)
}

// ManualEdit overwrites the code of an existing entry, using the same
// resolution as Finalize.
func (s *Store) ManualEdit(id, code string) (Version, error) {
	return s.updateCode(id, code)
}

func (s *Store) updateCode(id, code string) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.load()
	if err != nil {
		return Version{}, err
	}
	if len(versions) == 0 {
		return Version{}, ErrNotFound
	}

	idx := indexOf(versions, id)
	if idx < 0 {
		idx = indexOf(versions, s.lastCreated)
	}
	if idx < 0 {
		idx = 0 // newest
	}

	versions[idx].Code = code
	if err := s.save(versions); err != nil {
		return Version{}, err
	}
	return versions[idx], nil
}

// Select returns the entry for id.
func (s *Store) Select(id string) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.load()
	if err != nil {
		return Version{}, err
	}
	if idx := indexOf(versions, id); idx >= 0 {
		return versions[idx], nil
	}
	return Version{}, ErrNotFound
}

// List returns all entries, newest first.
func (s *Store) List() ([]Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// ClearAll removes every entry.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCreated = ""
	return s.save([]Version{})
}

// Name returns the display name for the entry at index in a newest-first
// list of n entries. The oldest entry is v0 and numbers count up from there,
// so names stay stable as new versions are prepended.
func Name(index, n int) string {
	return fmt.Sprintf("v%d", n-1-index)
}

// ShareFilename returns this device's stable share filename, generating and
// persisting one on first use.
func (s *Store) ShareFilename() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, ok, err := s.kv.Get(shareFilenameKey)
	if err != nil {
		return "", err
	}
	if ok && name != "" {
		return name, nil
	}

	name = uuid.NewString() + ".html"
	if err := s.kv.Set(shareFilenameKey, name); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Store) load() ([]Version, error) {
	raw, ok, err := s.kv.Get(versionsKey)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var versions []Version
	if err := json.Unmarshal([]byte(raw), &versions); err != nil {
		return nil, fmt.Errorf("decoding version history: %w", err)
	}
	return versions, nil
}

func (s *Store) save(versions []Version) error {
	raw, err := json.Marshal(versions)
	if err != nil {
		return fmt.Errorf("encoding version history: %w", err)
	}
	return s.kv.Set(versionsKey, string(raw))
}

func indexOf(versions []Version, id string) int {
	if id == "" {
		return -1
	}
	for i, v := range versions {
		if v.ID == id {
			return i
		}
	}
	return -1
}

package events

import (
	"bytes"
	"encoding/json"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"adventbot/pkg/logx"
)

// DateLayout is the calendar-day key format used throughout the bot.
const DateLayout = "2006-01-02"

// Event is one day's content. Image and MapURL are optional.
type Event struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
	MapURL      string `json:"map_url,omitempty"`
}

// Store is a file-backed date→event map. The whole mapping lives in memory;
// every mutation rewrites the file (tmp+rename). The in-memory state is kept
// consistent by construction, so save is not followed by a re-read.
type Store struct {
	path string
	log  logx.Logger

	mu sync.RWMutex
	m  map[string]Event
	// lastHash guards the fsnotify reload path against reacting to our own
	// writes or no-op editor events.
	lastHash uint64
}

// Open loads the store from path. A missing file is not an error: the store
// starts empty and the file appears on first save.
func Open(path string, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{path: path, log: log, m: map[string]Event{}}

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Warn("events file not found; starting empty", logx.String("path", path))
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	m, err := decodeEvents(b)
	if err != nil {
		return nil, err
	}
	s.m = m
	s.lastHash = hashBytes(b)
	s.log.Info("events loaded", logx.Int("count", len(m)), logx.String("path", path))
	return s, nil
}

func (s *Store) Get(date string) (Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.m[date]
	return ev, ok
}

// Put stores the event under date, overwriting any existing entry, and
// persists the full mapping.
func (s *Store) Put(date string, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[date] = ev
	return s.saveLocked()
}

// Delete removes the entry for date and persists. It reports whether the
// entry existed; a missing date leaves the store and the file unchanged.
func (s *Store) Delete(date string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[date]; !ok {
		return false, nil
	}
	delete(s.m, date)
	if err := s.saveLocked(); err != nil {
		return true, err
	}
	return true, nil
}

// Dates returns all event dates in ascending order.
func (s *Store) Dates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dates := make([]string, 0, len(s.m))
	for d := range s.m {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *Store) saveLocked() error {
	b, err := encodeEvents(s.m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.lastHash = hashBytes(b)
	return nil
}

// reload replaces the in-memory mapping from disk. Used by the watcher when
// the file changes underneath us (hand edits).
func (s *Store) reload() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	h := hashBytes(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	if h == s.lastHash {
		return nil
	}
	m, err := decodeEvents(b)
	if err != nil {
		return err
	}
	s.m = m
	s.lastHash = h
	s.log.Info("events reloaded after external change", logx.Int("count", len(m)))
	return nil
}

func decodeEvents(b []byte) (map[string]Event, error) {
	m := map[string]Event{}
	if len(bytes.TrimSpace(b)) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// encodeEvents writes indented JSON with unescaped HTML so URLs and non-ASCII
// titles stay readable when the file is edited by hand.
func encodeEvents(m map[string]Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

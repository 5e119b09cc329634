// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/services"
	"github.com/desertthunder/smartsync/internal/shared"
)

// Clock is a manually advanced clock. Pass c.Now wherever a [models.Clock] is expected.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// MockCatalog is an in-memory [services.Catalog] keyed by owner.
type MockCatalog struct {
	mu      sync.Mutex
	entries map[string][]models.MediaEntry
	Err     error
	Calls   int
}

func NewMockCatalog() *MockCatalog {
	return &MockCatalog{entries: make(map[string][]models.MediaEntry)}
}

// Put replaces the catalog of ownerID.
func (m *MockCatalog) Put(ownerID string, entries ...models.MediaEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[ownerID] = entries
}

func (m *MockCatalog) Entries(ctx context.Context, ownerID string, kinds []models.MediaKind) ([]models.MediaEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}

	var out []models.MediaEntry
	for _, e := range m.entries[ownerID] {
		if slices.Contains(kinds, e.Kind) {
			out = append(out, e)
		}
	}
	return out, nil
}

// MockPlaylists is an in-memory [services.PlaylistStore].
type MockPlaylists struct {
	mu        sync.Mutex
	playlists map[string]*services.Playlist

	CreateErr  error
	ReplaceErr error
	ResolveErr error
	Creates    int
	Replaces   int
	Updates    int
}

func NewMockPlaylists() *MockPlaylists {
	return &MockPlaylists{playlists: make(map[string]*services.Playlist)}
}

// Put stores pl as is.
func (m *MockPlaylists) Put(pl services.Playlist) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlists[pl.ID] = &pl
}

// Get returns a copy of the stored playlist.
func (m *MockPlaylists) Get(id string) (services.Playlist, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pl, ok := m.playlists[id]
	if !ok {
		return services.Playlist{}, false
	}
	cp := *pl
	cp.EntryIDs = slices.Clone(pl.EntryIDs)
	return cp, true
}

// Len returns the number of stored playlists.
func (m *MockPlaylists) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.playlists)
}

// Drop deletes a playlist behind the caller's back, simulating an external deletion.
func (m *MockPlaylists) Drop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.playlists, id)
}

func (m *MockPlaylists) Resolve(ctx context.Context, id string) (*services.Playlist, error) {
	if m.ResolveErr != nil {
		return nil, m.ResolveErr
	}
	pl, ok := m.Get(id)
	if !ok {
		return nil, nil
	}
	return &pl, nil
}

func (m *MockPlaylists) Create(ctx context.Context, spec services.PlaylistSpec) (string, error) {
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Creates++
	id := shared.GenerateID()
	m.playlists[id] = &services.Playlist{ID: id, Name: spec.Name, OwnerID: spec.OwnerID, Public: spec.Public}
	return id, nil
}

func (m *MockPlaylists) ReplaceMembership(ctx context.Context, id string, entryIDs []string) error {
	if m.ReplaceErr != nil {
		return m.ReplaceErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pl, ok := m.playlists[id]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	m.Replaces++
	pl.EntryIDs = slices.Clone(entryIDs)
	return nil
}

func (m *MockPlaylists) Update(ctx context.Context, id string, spec services.PlaylistSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pl, ok := m.playlists[id]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	m.Updates++
	pl.Name = spec.Name
	pl.Public = spec.Public
	return nil
}

func (m *MockPlaylists) Delete(ctx context.Context, id string) error {
	m.Drop(id)
	return nil
}

// MockOwners is a [services.OwnerResolver] over a fixed set of owner ids.
type MockOwners struct {
	Known map[string]string
	Err   error
}

func NewMockOwners(ids ...string) *MockOwners {
	m := &MockOwners{Known: make(map[string]string)}
	for _, id := range ids {
		m.Known[id] = "user-" + id
	}
	return m
}

func (m *MockOwners) ResolveOwner(ctx context.Context, ownerID string) (*services.Owner, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	name, ok := m.Known[ownerID]
	if !ok {
		return nil, nil
	}
	return &services.Owner{ID: ownerID, Name: name}, nil
}

// Track builds an audio entry with a runtime in minutes and optional genres.
func Track(id, name string, minutes int, genres ...string) models.MediaEntry {
	e := models.NewMediaEntry(id, models.MediaAudio).With(models.FieldName, models.StringValue(name))
	if minutes > 0 {
		e = e.With(models.FieldRuntime, models.DurationValue(time.Duration(minutes)*time.Minute))
	}
	if len(genres) > 0 {
		e = e.With(models.FieldGenres, models.SetValue(genres...))
	}
	return e
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

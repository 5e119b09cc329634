// package ignores implements the per-owner exclusion ledger.
//
// Each owner's ledger is one JSON document holding every [models.ExclusionEntry] of that owner.
// Mutations read the whole collection, change it in memory and write it back. A per-owner cache
// is replaced after every successful write and dropped after a failed one, so the next read
// reloads the last state that reached storage.
//
// Concurrent writers for the same owner are last-writer-wins.
package ignores

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/shared"
	"github.com/desertthunder/smartsync/internal/store"
)

// DocumentKey is the document holding an owner's ledger.
const DocumentKey = "ignores"

// AddRequest describes one ignore to create or refresh.
type AddRequest struct {
	EntryID string
	// DurationDays of zero is permanent.
	DurationDays int
	Reason       string
	Snapshot     models.EntrySnapshot
}

// Ledger stores exclusion entries in a [store.DocumentStore].
type Ledger struct {
	store  store.DocumentStore
	clock  models.Clock
	logger *log.Logger

	mu    sync.Mutex
	cache map[string][]models.ExclusionEntry
}

// New creates a Ledger. A nil clock uses the wall clock.
func New(s store.DocumentStore, clock models.Clock, logger *log.Logger) *Ledger {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Ledger{
		store:  s,
		clock:  clock,
		logger: shared.WithLogger(logger, "component", "ignores"),
		cache:  make(map[string][]models.ExclusionEntry),
	}
}

// IsActive reports whether e still applies at the ledger's current time.
func (l *Ledger) IsActive(e models.ExclusionEntry) bool {
	return e.IsActive(l.clock.Now())
}

func (l *Ledger) load(ctx context.Context, ownerID string) ([]models.ExclusionEntry, error) {
	l.mu.Lock()
	cached, ok := l.cache[ownerID]
	l.mu.Unlock()
	if ok {
		return slices.Clone(cached), nil
	}

	data, err := l.store.Read(ctx, ownerID, DocumentKey)
	if err != nil {
		return nil, err
	}

	var entries []models.ExclusionEntry
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("%w: decoding ignores for %s: %v", shared.ErrPersistence, ownerID, err)
		}
	}

	l.mu.Lock()
	l.cache[ownerID] = entries
	l.mu.Unlock()
	return slices.Clone(entries), nil
}

func (l *Ledger) save(ctx context.Context, ownerID string, entries []models.ExclusionEntry) error {
	if entries == nil {
		entries = []models.ExclusionEntry{}
	}

	data, err := store.EncodeJSON(entries)
	if err == nil {
		err = l.store.WriteAtomic(ctx, ownerID, DocumentKey, data)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		delete(l.cache, ownerID)
		l.logger.Error("failed to persist ignores", "owner", ownerID, "error", err)
		return err
	}
	l.cache[ownerID] = slices.Clone(entries)
	return nil
}

// Invalidate drops the cached ledger of ownerID.
func (l *Ledger) Invalidate(ownerID string) {
	l.mu.Lock()
	delete(l.cache, ownerID)
	l.mu.Unlock()
}

// Add creates an ignore, or refreshes the timestamps, duration, reason and snapshot of the
// existing ignore with the same owner, list and entry.
func (l *Ledger) Add(ctx context.Context, ownerID, listID string, req AddRequest) (models.ExclusionEntry, error) {
	added, err := l.AddBulk(ctx, ownerID, listID, []AddRequest{req})
	if err != nil {
		return models.ExclusionEntry{}, err
	}
	return added[0], nil
}

// AddBulk applies several [Ledger.Add] requests with a single write.
func (l *Ledger) AddBulk(ctx context.Context, ownerID, listID string, reqs []AddRequest) ([]models.ExclusionEntry, error) {
	now := l.clock.Now()

	pending := make([]models.ExclusionEntry, 0, len(reqs))
	for _, req := range reqs {
		if req.DurationDays < 0 {
			return nil, shared.ValidationError{Field: "durationDays", Message: "cannot be negative"}
		}
		e := models.NewExclusionEntry(ownerID, listID, req.EntryID, models.DaysPtr(req.DurationDays), now)
		e.Reason = req.Reason
		e.Snapshot = req.Snapshot
		if err := e.Validate(); err != nil {
			return nil, err
		}
		pending = append(pending, e)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	entries, err := l.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	index := make(map[models.ExclusionKey]int, len(entries))
	for i, e := range entries {
		index[e.Key()] = i
	}

	out := make([]models.ExclusionEntry, 0, len(pending))
	for _, e := range pending {
		if i, ok := index[e.Key()]; ok {
			e.ID = entries[i].ID
			entries[i] = e
		} else {
			index[e.Key()] = len(entries)
			entries = append(entries, e)
		}
		out = append(out, e)
	}

	if err := l.save(ctx, ownerID, entries); err != nil {
		return nil, err
	}
	return out, nil
}

// List returns the owner's ignores, restricted to listID unless it is empty.
func (l *Ledger) List(ctx context.Context, ownerID, listID string) ([]models.ExclusionEntry, error) {
	entries, err := l.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if listID == "" {
		return entries, nil
	}
	return slices.DeleteFunc(entries, func(e models.ExclusionEntry) bool { return e.ListID != listID }), nil
}

// Get returns the ignore with id, or nil when the owner has none.
func (l *Ledger) Get(ctx context.Context, ownerID, id string) (*models.ExclusionEntry, error) {
	entries, err := l.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, nil
}

// ActiveIDsFor returns the entry ids currently ignored for a list.
func (l *Ledger) ActiveIDsFor(ctx context.Context, ownerID, listID string) (map[string]struct{}, error) {
	entries, err := l.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	ids := make(map[string]struct{})
	for _, e := range entries {
		if e.ListID == listID && e.IsActive(now) {
			ids[e.EntryID] = struct{}{}
		}
	}
	return ids, nil
}

// UpdateDuration changes the duration of an ignore. Expiry is recomputed from the original
// creation time. Returns nil when the owner has no ignore with id.
func (l *Ledger) UpdateDuration(ctx context.Context, ownerID, id string, durationDays int) (*models.ExclusionEntry, error) {
	if durationDays < 0 {
		return nil, shared.ValidationError{Field: "durationDays", Message: "cannot be negative"}
	}

	entries, err := l.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	i := slices.IndexFunc(entries, func(e models.ExclusionEntry) bool { return e.ID == id })
	if i < 0 {
		return nil, nil
	}
	entries[i].SetDuration(models.DaysPtr(durationDays))

	if err := l.save(ctx, ownerID, entries); err != nil {
		return nil, err
	}
	updated := entries[i]
	return &updated, nil
}

// Remove deletes the ignore with id and reports whether it existed.
func (l *Ledger) Remove(ctx context.Context, ownerID, id string) (bool, error) {
	n, err := l.RemoveBulk(ctx, ownerID, []string{id})
	return n > 0, err
}

// RemoveBulk deletes every listed ignore and returns how many existed.
func (l *Ledger) RemoveBulk(ctx context.Context, ownerID string, ids []string) (int, error) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	return l.removeWhere(ctx, ownerID, func(e models.ExclusionEntry) bool { return drop[e.ID] })
}

// RemoveAllForList deletes every ignore scoped to listID.
func (l *Ledger) RemoveAllForList(ctx context.Context, ownerID, listID string) (int, error) {
	return l.removeWhere(ctx, ownerID, func(e models.ExclusionEntry) bool { return e.ListID == listID })
}

// SweepExpired deletes every ignore whose expiry is at or before now.
func (l *Ledger) SweepExpired(ctx context.Context, ownerID string) (int, error) {
	now := l.clock.Now()
	n, err := l.removeWhere(ctx, ownerID, func(e models.ExclusionEntry) bool { return !e.IsActive(now) })
	if n > 0 {
		l.logger.Info("swept expired ignores", "owner", ownerID, "count", n)
	}
	return n, err
}

// Clear deletes the owner's whole ledger document.
func (l *Ledger) Clear(ctx context.Context, ownerID string) error {
	l.Invalidate(ownerID)
	return l.store.Delete(ctx, ownerID, DocumentKey)
}

func (l *Ledger) removeWhere(ctx context.Context, ownerID string, match func(models.ExclusionEntry) bool) (int, error) {
	entries, err := l.load(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	before := len(entries)
	entries = slices.DeleteFunc(entries, match)
	removed := before - len(entries)
	if removed == 0 {
		return 0, nil
	}

	if err := l.save(ctx, ownerID, entries); err != nil {
		return 0, err
	}
	return removed, nil
}

// ExpiresIn returns the time left on e, zero for expired and permanent entries.
func ExpiresIn(e models.ExclusionEntry, now time.Time) time.Duration {
	if e.ExpiresAt == nil || !e.ExpiresAt.After(now) {
		return 0
	}
	return e.ExpiresAt.Sub(now)
}

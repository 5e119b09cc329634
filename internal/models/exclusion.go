package models

import (
	"time"

	"github.com/desertthunder/smartsync/internal/shared"
)

// ExclusionEntry suppresses one entry from one smart list, permanently or until ExpiresAt.
//
// (OwnerID, ListID, EntryID) is unique within an owner's ledger.
type ExclusionEntry struct {
	ID           string        `json:"id"`
	OwnerID      string        `json:"ownerId"`
	ListID       string        `json:"listId"`
	EntryID      string        `json:"entryId"`
	CreatedAt    time.Time     `json:"createdAt"`
	DurationDays *int          `json:"durationDays,omitempty"`
	ExpiresAt    *time.Time    `json:"expiresAt,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Snapshot     EntrySnapshot `json:"snapshot"`
}

// ExclusionKey is the composite identity of an [ExclusionEntry].
type ExclusionKey struct {
	OwnerID string
	ListID  string
	EntryID string
}

// NewExclusionEntry builds an entry created at now. A nil or zero duration is permanent.
func NewExclusionEntry(ownerID, listID, entryID string, durationDays *int, now time.Time) ExclusionEntry {
	e := ExclusionEntry{
		ID:        shared.GenerateID(),
		OwnerID:   ownerID,
		ListID:    listID,
		EntryID:   entryID,
		CreatedAt: now,
	}
	e.SetDuration(durationDays)
	return e
}

// SetDuration sets DurationDays and recomputes ExpiresAt from CreatedAt.
func (e *ExclusionEntry) SetDuration(durationDays *int) {
	if durationDays == nil || *durationDays == 0 {
		e.DurationDays = nil
		e.ExpiresAt = nil
		return
	}
	d := *durationDays
	expires := e.CreatedAt.Add(shared.Days(d))
	e.DurationDays = &d
	e.ExpiresAt = &expires
}

// Permanent reports whether the entry never expires.
func (e ExclusionEntry) Permanent() bool {
	return e.ExpiresAt == nil
}

// IsActive reports whether the entry still suppresses its target at now.
func (e ExclusionEntry) IsActive(now time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

// Key returns the composite identity of the entry.
func (e ExclusionEntry) Key() ExclusionKey {
	return ExclusionKey{OwnerID: e.OwnerID, ListID: e.ListID, EntryID: e.EntryID}
}

// Validate checks ids and the duration.
func (e ExclusionEntry) Validate() error {
	for field, id := range map[string]string{"ownerId": e.OwnerID, "listId": e.ListID, "entryId": e.EntryID} {
		if !shared.ValidID(id) {
			return shared.ValidationError{Field: field, Message: "must be a UUID"}
		}
	}
	if e.DurationDays != nil && *e.DurationDays < 0 {
		return shared.ValidationError{Field: "durationDays", Message: "cannot be negative"}
	}
	return nil
}

// DaysPtr returns a pointer to n, or nil for zero. Zero and nil both mean permanent.
func DaysPtr(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

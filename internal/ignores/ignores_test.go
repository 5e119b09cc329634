package ignores

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/shared"
	"github.com/desertthunder/smartsync/internal/store"
)

const (
	owner = "11111111-1111-4111-8111-111111111111"
	listA = "22222222-2222-4222-8222-222222222222"
	listB = "33333333-3333-4333-8333-333333333333"
)

func entry(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// flakyStore fails writes while broken is set.
type flakyStore struct {
	store.DocumentStore
	broken bool
	reads  int
}

func (s *flakyStore) Read(ctx context.Context, ownerID, key string) ([]byte, error) {
	s.reads++
	return s.DocumentStore.Read(ctx, ownerID, key)
}

func (s *flakyStore) WriteAtomic(ctx context.Context, ownerID, key string, data []byte) error {
	if s.broken {
		return fmt.Errorf("%w: disk full", shared.ErrPersistence)
	}
	return s.DocumentStore.WriteAtomic(ctx, ownerID, key, data)
}

func newLedger(t *testing.T) (*Ledger, *testClock, *flakyStore) {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	clock := &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	s := &flakyStore{DocumentStore: fs}
	return New(s, clock.Now, shared.NewLogger(&bytes.Buffer{})), clock, s
}

func TestAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("duration sets expiry", func(t *testing.T) {
		l, clock, _ := newLedger(t)
		e, err := l.Add(ctx, owner, listA, AddRequest{EntryID: entry(1), DurationDays: 30})
		if err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		if want := clock.now.Add(30 * 24 * time.Hour); e.ExpiresAt == nil || !e.ExpiresAt.Equal(want) {
			t.Errorf("ExpiresAt = %v, want %v", e.ExpiresAt, want)
		}
	})

	t.Run("zero is permanent", func(t *testing.T) {
		l, _, _ := newLedger(t)
		e, _ := l.Add(ctx, owner, listA, AddRequest{EntryID: entry(1)})
		if e.ExpiresAt != nil || e.DurationDays != nil {
			t.Errorf("expected permanent entry, got %+v", e)
		}
	})

	t.Run("duplicate key upserts", func(t *testing.T) {
		l, clock, _ := newLedger(t)
		first, _ := l.Add(ctx, owner, listA, AddRequest{EntryID: entry(1), DurationDays: 1, Reason: "old"})

		clock.Advance(time.Hour)
		second, err := l.Add(ctx, owner, listA, AddRequest{
			EntryID:      entry(1),
			DurationDays: 7,
			Reason:       "new",
			Snapshot:     models.EntrySnapshot{Name: "Track"},
		})
		if err != nil {
			t.Fatalf("Add() error = %v", err)
		}

		all, _ := l.List(ctx, owner, "")
		if len(all) != 1 {
			t.Fatalf("expected one stored entry, got %d", len(all))
		}
		got := all[0]
		if got.ID != first.ID || second.ID != first.ID {
			t.Error("upsert should keep the original id")
		}
		if got.Reason != "new" || got.Snapshot.Name != "Track" || !got.CreatedAt.Equal(clock.now) {
			t.Errorf("upsert should refresh attributes, got %+v", got)
		}
		if *got.DurationDays != 7 {
			t.Errorf("DurationDays = %d, want 7", *got.DurationDays)
		}
	})

	t.Run("same entry in another list is distinct", func(t *testing.T) {
		l, _, _ := newLedger(t)
		l.Add(ctx, owner, listA, AddRequest{EntryID: entry(1)})
		l.Add(ctx, owner, listB, AddRequest{EntryID: entry(1)})
		if all, _ := l.List(ctx, owner, ""); len(all) != 2 {
			t.Errorf("expected 2 entries, got %d", len(all))
		}
	})

	t.Run("validation", func(t *testing.T) {
		l, _, _ := newLedger(t)
		if _, err := l.Add(ctx, owner, listA, AddRequest{EntryID: "nope"}); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
		if _, err := l.Add(ctx, owner, listA, AddRequest{EntryID: entry(1), DurationDays: -2}); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestActiveIDsFor(t *testing.T) {
	ctx := context.Background()
	l, clock, _ := newLedger(t)

	l.AddBulk(ctx, owner, listA, []AddRequest{
		{EntryID: entry(1), DurationDays: 1},
		{EntryID: entry(2)},
	})
	l.Add(ctx, owner, listB, AddRequest{EntryID: entry(3)})

	ids, err := l.ActiveIDsFor(ctx, owner, listA)
	if err != nil {
		t.Fatalf("ActiveIDsFor() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 active ids, got %v", ids)
	}

	clock.Advance(24 * time.Hour)
	ids, _ = l.ActiveIDsFor(ctx, owner, listA)
	if _, ok := ids[entry(1)]; ok {
		t.Error("expired but unswept entry should be inactive")
	}
	if _, ok := ids[entry(2)]; !ok {
		t.Error("permanent entry should be active")
	}
	if all, _ := l.List(ctx, owner, listA); len(all) != 2 {
		t.Error("reads should not sweep")
	}
}

func TestUpdateDuration(t *testing.T) {
	ctx := context.Background()
	l, clock, _ := newLedger(t)
	created := clock.now

	e, _ := l.Add(ctx, owner, listA, AddRequest{EntryID: entry(1), DurationDays: 1})
	clock.Advance(12 * time.Hour)

	updated, err := l.UpdateDuration(ctx, owner, e.ID, 10)
	if err != nil {
		t.Fatalf("UpdateDuration() error = %v", err)
	}
	if want := created.Add(10 * 24 * time.Hour); !updated.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v (from createdAt)", updated.ExpiresAt, want)
	}

	t.Run("revives an expired entry", func(t *testing.T) {
		clock.Advance(20 * 24 * time.Hour)
		if l.IsActive(*updated) {
			t.Fatal("entry should be expired")
		}
		revived, _ := l.UpdateDuration(ctx, owner, e.ID, 0)
		if !l.IsActive(*revived) {
			t.Error("permanent entry should be active")
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		got, err := l.UpdateDuration(ctx, owner, entry(99), 3)
		if err != nil || got != nil {
			t.Errorf("UpdateDuration() = %v, %v; want nil, nil", got, err)
		}
	})
}

func TestRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("single", func(t *testing.T) {
		l, _, _ := newLedger(t)
		e, _ := l.Add(ctx, owner, listA, AddRequest{EntryID: entry(1)})

		ok, err := l.Remove(ctx, owner, e.ID)
		if err != nil || !ok {
			t.Fatalf("Remove() = %v, %v", ok, err)
		}
		if ok, _ := l.Remove(ctx, owner, e.ID); ok {
			t.Error("second remove should report false")
		}
	})

	t.Run("bulk round trip", func(t *testing.T) {
		l, _, _ := newLedger(t)
		reqs := []AddRequest{{EntryID: entry(1)}, {EntryID: entry(2)}, {EntryID: entry(3)}}
		added, _ := l.AddBulk(ctx, owner, listA, reqs)

		ids := make([]string, len(added))
		for i, e := range added {
			ids[i] = e.ID
		}
		n, err := l.RemoveBulk(ctx, owner, ids)
		if err != nil || n != 3 {
			t.Fatalf("RemoveBulk() = %d, %v", n, err)
		}
		if active, _ := l.ActiveIDsFor(ctx, owner, listA); len(active) != 0 {
			t.Errorf("expected no active ids, got %v", active)
		}
	})

	t.Run("all for list", func(t *testing.T) {
		l, _, _ := newLedger(t)
		l.AddBulk(ctx, owner, listA, []AddRequest{{EntryID: entry(1)}, {EntryID: entry(2)}})
		l.Add(ctx, owner, listB, AddRequest{EntryID: entry(1)})

		n, _ := l.RemoveAllForList(ctx, owner, listA)
		if n != 2 {
			t.Errorf("RemoveAllForList() = %d, want 2", n)
		}
		if rest, _ := l.List(ctx, owner, ""); len(rest) != 1 || rest[0].ListID != listB {
			t.Errorf("unexpected remaining entries %+v", rest)
		}
	})
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	l, clock, _ := newLedger(t)

	l.AddBulk(ctx, owner, listA, []AddRequest{
		{EntryID: entry(1), DurationDays: 1},
		{EntryID: entry(2), DurationDays: 3},
		{EntryID: entry(3)},
	})

	clock.Advance(24 * time.Hour)
	n, err := l.SweepExpired(ctx, owner)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("SweepExpired() = %d, want 1 (expiry at exactly now is expired)", n)
	}
	if rest, _ := l.List(ctx, owner, listA); len(rest) != 2 {
		t.Errorf("expected 2 entries left, got %d", len(rest))
	}
}

func TestCache(t *testing.T) {
	ctx := context.Background()

	t.Run("reads are served from cache after a write", func(t *testing.T) {
		l, _, s := newLedger(t)
		l.Add(ctx, owner, listA, AddRequest{EntryID: entry(1)})
		reads := s.reads

		for range 3 {
			if _, err := l.ActiveIDsFor(ctx, owner, listA); err != nil {
				t.Fatalf("ActiveIDsFor() error = %v", err)
			}
		}
		if s.reads != reads {
			t.Errorf("expected cached reads, store was read %d more times", s.reads-reads)
		}
	})

	t.Run("failed write reverts to stored state", func(t *testing.T) {
		l, _, s := newLedger(t)
		l.Add(ctx, owner, listA, AddRequest{EntryID: entry(1)})

		s.broken = true
		if _, err := l.Add(ctx, owner, listA, AddRequest{EntryID: entry(2)}); !errors.Is(err, shared.ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
		s.broken = false

		ids, err := l.ActiveIDsFor(ctx, owner, listA)
		if err != nil {
			t.Fatalf("ActiveIDsFor() error = %v", err)
		}
		if _, ok := ids[entry(2)]; ok || len(ids) != 1 {
			t.Errorf("expected only the persisted entry, got %v", ids)
		}
	})

	t.Run("ledger survives a new instance", func(t *testing.T) {
		l, clock, s := newLedger(t)
		l.Add(ctx, owner, listA, AddRequest{EntryID: entry(1), DurationDays: 2})

		fresh := New(s, clock.Now, shared.NewLogger(&bytes.Buffer{}))
		all, err := fresh.List(ctx, owner, listA)
		if err != nil || len(all) != 1 {
			t.Fatalf("List() = %v, %v", all, err)
		}
		if all[0].ExpiresAt == nil {
			t.Error("expiry should round trip")
		}
	})
}

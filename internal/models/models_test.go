package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/smartsync/internal/shared"
)

const (
	ownerID = "0b5ec4a4-0a4f-4c5f-9f57-0a6f6f6b8d11"
	listID  = "5a1e2b3c-4d5e-4f60-8a7b-9c0d1e2f3a4b"
	entryID = "9d8c7b6a-5f4e-4d3c-8b2a-1f0e9d8c7b6a"
)

func TestExclusionEntry(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("expiry is createdAt plus duration", func(t *testing.T) {
		for _, d := range []int{1, 7, 30, 365} {
			e := NewExclusionEntry(ownerID, listID, entryID, DaysPtr(d), created)
			if e.ExpiresAt == nil {
				t.Fatalf("expected expiry for %d days", d)
			}
			want := created.AddDate(0, 0, d)
			if !e.ExpiresAt.Equal(want) {
				t.Errorf("ExpiresAt = %v, want %v", e.ExpiresAt, want)
			}
			if e.DurationDays == nil || *e.DurationDays != d {
				t.Errorf("DurationDays = %v, want %d", e.DurationDays, d)
			}
		}
	})

	t.Run("zero and nil are permanent", func(t *testing.T) {
		zero := 0
		for _, d := range []*int{nil, &zero} {
			e := NewExclusionEntry(ownerID, listID, entryID, d, created)
			if !e.Permanent() || e.DurationDays != nil {
				t.Errorf("expected permanent entry, got expires=%v duration=%v", e.ExpiresAt, e.DurationDays)
			}
			if !e.IsActive(created.AddDate(50, 0, 0)) {
				t.Error("permanent entry should stay active")
			}
		}
	})

	t.Run("IsActive is monotonic", func(t *testing.T) {
		e := NewExclusionEntry(ownerID, listID, entryID, DaysPtr(2), created)
		expires := *e.ExpiresAt

		tc := []struct {
			at   time.Time
			want bool
		}{
			{at: created, want: true},
			{at: expires.Add(-time.Nanosecond), want: true},
			{at: expires, want: false},
			{at: expires.Add(time.Hour), want: false},
			{at: expires.AddDate(1, 0, 0), want: false},
		}
		for _, tt := range tc {
			if got := e.IsActive(tt.at); got != tt.want {
				t.Errorf("IsActive(%v) = %v, want %v", tt.at, got, tt.want)
			}
		}
	})

	t.Run("SetDuration recomputes from createdAt", func(t *testing.T) {
		e := NewExclusionEntry(ownerID, listID, entryID, DaysPtr(2), created)
		e.SetDuration(DaysPtr(10))
		if want := created.AddDate(0, 0, 10); !e.ExpiresAt.Equal(want) {
			t.Errorf("ExpiresAt = %v, want %v", e.ExpiresAt, want)
		}
		e.SetDuration(nil)
		if !e.Permanent() {
			t.Error("expected permanent after clearing duration")
		}
	})

	t.Run("Validate", func(t *testing.T) {
		e := NewExclusionEntry(ownerID, listID, "nope", nil, created)
		if err := e.Validate(); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
		e.EntryID = entryID
		if err := e.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestSmartListConfigValidate(t *testing.T) {
	valid := func() SmartListConfig {
		return SmartListConfig{
			OwnerID:    ownerID,
			Name:       "Jazz",
			MediaTypes: []MediaKind{MediaAudio},
			Enabled:    true,
		}
	}

	tc := []struct {
		name    string
		mutate  func(c *SmartListConfig)
		wantErr error
	}{
		{name: "valid", mutate: func(c *SmartListConfig) {}},
		{name: "missing name", mutate: func(c *SmartListConfig) { c.Name = "  " }, wantErr: shared.ErrValidation},
		{name: "bad owner", mutate: func(c *SmartListConfig) { c.OwnerID = "x" }, wantErr: shared.ErrValidation},
		{name: "empty media types", mutate: func(c *SmartListConfig) { c.MediaTypes = nil }, wantErr: shared.ErrValidation},
		{name: "unknown media type", mutate: func(c *SmartListConfig) { c.MediaTypes = []MediaKind{"Podcast"} }, wantErr: shared.ErrValidation},
		{
			name:    "series rejected",
			mutate:  func(c *SmartListConfig) { c.MediaTypes = []MediaKind{MediaAudio, MediaSeries} },
			wantErr: shared.ErrUnsupportedMediaType,
		},
		{name: "negative max items", mutate: func(c *SmartListConfig) { c.MaxItems = -1 }, wantErr: shared.ErrValidation},
		{name: "unknown order field", mutate: func(c *SmartListConfig) { c.Order = OrderSpec{Field: "Mood"} }, wantErr: shared.ErrValidation},
		{
			name:    "bad direction",
			mutate:  func(c *SmartListConfig) { c.Order = OrderSpec{Field: FieldName, Direction: "Sideways"} },
			wantErr: shared.ErrValidation,
		},
		{name: "bad manual include", mutate: func(c *SmartListConfig) { c.ManualIncludeIDs = []string{"abc"} }, wantErr: shared.ErrValidation},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSmartListConfigModes(t *testing.T) {
	cfg := SmartListConfig{ManualIncludeIDs: []string{entryID}}
	if !cfg.ClosedList() {
		t.Error("list without rules or source should be closed")
	}

	cfg.Rules = RuleSet{Sets: []ExpressionSet{{}}}
	if !cfg.ClosedList() {
		t.Error("rule set with only empty sets has no expressions")
	}

	cfg.Rules.Sets[0].Expressions = []Expression{{Field: FieldGenres, Operator: OpHasAny, Operand: Operand{"Jazz"}}}
	if cfg.ClosedList() {
		t.Error("list with rules is not closed")
	}
}

func TestKeepSyncState(t *testing.T) {
	refreshed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := &SmartListConfig{
		ID:                  listID,
		CreatedAt:           refreshed.Add(-time.Hour),
		ExternalListID:      "pl-1",
		LastRefreshed:       &refreshed,
		ItemCount:           4,
		TotalRuntimeMinutes: 31,
	}

	t.Run("update copies sync state", func(t *testing.T) {
		cfg := SmartListConfig{Name: "renamed", ExternalListID: "forged", ItemCount: 99}
		cfg.KeepSyncState(prev)
		if cfg.ID != listID || cfg.ExternalListID != "pl-1" || cfg.ItemCount != 4 || cfg.LastRefreshed != &refreshed {
			t.Errorf("sync state not preserved: %+v", cfg)
		}
		if cfg.Name != "renamed" {
			t.Errorf("user fields should be kept, got %q", cfg.Name)
		}
	})

	t.Run("create resets sync state", func(t *testing.T) {
		cfg := *prev
		cfg.KeepSyncState(nil)
		if cfg.ID != "" || !cfg.CreatedAt.IsZero() || cfg.ExternalListID != "" || cfg.LastRefreshed != nil || cfg.ItemCount != 0 || cfg.TotalRuntimeMinutes != 0 {
			t.Errorf("expected cleared sync state, got %+v", cfg)
		}
	})
}

func TestOperandUnmarshal(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want Operand
	}{
		{name: "string", in: `"Jazz"`, want: Operand{"Jazz"}},
		{name: "number", in: `4.5`, want: Operand{"4.5"}},
		{name: "bool", in: `true`, want: Operand{"true"}},
		{name: "array", in: `["Jazz", "Blues"]`, want: Operand{"Jazz", "Blues"}},
		{name: "numeric range", in: `[1990, 1999]`, want: Operand{"1990", "1999"}},
		{name: "null", in: `null`, want: nil},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			var got Operand
			if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}

	t.Run("rejects objects", func(t *testing.T) {
		var got Operand
		if err := json.Unmarshal([]byte(`[{"a":1}]`), &got); err == nil {
			t.Error("expected error for object element")
		}
	})
}

func TestMediaEntry(t *testing.T) {
	e := NewMediaEntry(entryID, MediaAudio).
		With(FieldName, StringValue("So What")).
		With(FieldArtists, SetValue("Miles Davis")).
		With(FieldAlbum, StringValue("Kind of Blue")).
		With(FieldRuntime, DurationValue(9*time.Minute+22*time.Second)).
		With(FieldOverview, StringValue("   "))

	if _, ok := e.Get(FieldOverview); ok {
		t.Error("blank string should read as unset")
	}
	if v, ok := e.Get(FieldMediaType); !ok || v.Str != "Audio" {
		t.Errorf("MediaType = %v, %v", v, ok)
	}
	if d, ok := e.Runtime(); !ok || d != 9*time.Minute+22*time.Second {
		t.Errorf("Runtime() = %v, %v", d, ok)
	}

	snap := e.Snapshot()
	if snap.Name != "So What" || snap.Artist != "Miles Davis" || snap.Album != "Kind of Blue" {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	if k, ok := ParseMediaKind(" musicvideo "); !ok || k != MediaMusicVideo {
		t.Errorf("ParseMediaKind() = %v, %v", k, ok)
	}
	if MediaSeries.Playlistable() {
		t.Error("series should not be playlistable")
	}
}

func TestRefreshRun(t *testing.T) {
	cfg := &SmartListConfig{ID: listID, OwnerID: ownerID, Name: "Jazz", Enabled: true}
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	result := SyncResult{Success: true, Message: "ok", ItemCount: 3, TotalRuntime: 90 * time.Second}

	run := NewRefreshRun(cfg, ReasonManual, result, started, started.Add(time.Second))
	if run.Status != RunSucceeded || run.RuntimeSeconds != 90 {
		t.Errorf("unexpected run %+v", run)
	}
	if err := run.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	run = NewRefreshRun(cfg, ReasonLogin, Failed("boom"), started, started)
	if run.Status != RunFailed || run.Message != "boom" {
		t.Errorf("unexpected failed run %+v", run)
	}

	run.Reason = "cosmic-ray"
	if err := run.Validate(); !errors.Is(err, shared.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

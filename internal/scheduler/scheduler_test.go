package scheduler

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/smartsync/internal/composer"
	"github.com/desertthunder/smartsync/internal/ignores"
	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/repositories"
	"github.com/desertthunder/smartsync/internal/shared"
	"github.com/desertthunder/smartsync/internal/store"
	"github.com/desertthunder/smartsync/internal/tasks"
	tu "github.com/desertthunder/smartsync/internal/testing"
)

const (
	ownerID   = "11111111-1111-4111-8111-111111111111"
	otherID   = "44444444-4444-4444-8444-444444444444"
	goneID    = "77777777-7777-4777-8777-777777777777"
	jazzTrack = "00000000-0000-4000-8000-000000000001"
	rockTrack = "00000000-0000-4000-8000-000000000002"
)

type fixture struct {
	clock     *tu.Clock
	playlists *tu.MockPlaylists
	lists     *repositories.SmartListRepository
	runs      *repositories.RunRepository
	ledger    *ignores.Ledger
	engine    *tasks.SyncEngine
	scheduler *Scheduler
}

func newFixture(t *testing.T, cfg shared.SchedulerConfig) *fixture {
	t.Helper()

	docs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	db, err := shared.OpenMigrated(shared.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := shared.NewLogger(&bytes.Buffer{})
	f := &fixture{
		clock:     tu.NewClock(time.Date(2024, 6, 1, 12, 7, 0, 0, time.UTC)),
		playlists: tu.NewMockPlaylists(),
		runs:      repositories.NewRunRepository(db),
	}
	f.ledger = ignores.New(docs, f.clock.Now, logger)
	f.lists = repositories.NewSmartListRepository(docs, f.ledger, f.clock.Now)

	catalog := tu.NewMockCatalog()
	catalog.Put(ownerID, tu.Track(jazzTrack, "So What", 9, "Jazz"), tu.Track(rockTrack, "Roxanne", 3, "Rock"))
	catalog.Put(otherID, tu.Track(jazzTrack, "So What", 9, "Jazz"))

	f.engine = tasks.NewSyncEngine(catalog, f.playlists, tu.NewMockOwners(ownerID, otherID), composer.New(f.ledger, logger), f.clock.Now, logger)
	f.scheduler = New(f.lists, f.engine, f.ledger, f.runs, cfg, f.clock.Now, logger)
	return f
}

func (f *fixture) save(t *testing.T, owner, name string, mutate func(*models.SmartListConfig)) *models.SmartListConfig {
	t.Helper()
	cfg := &models.SmartListConfig{
		OwnerID:    owner,
		Name:       name,
		MediaTypes: []models.MediaKind{models.MediaAudio},
		Enabled:    true,
		Rules: models.RuleSet{Sets: []models.ExpressionSet{{Expressions: []models.Expression{
			{Field: models.FieldGenres, Operator: models.OpHasAny, Operand: models.Operand{"Jazz"}},
		}}}},
	}
	if mutate != nil {
		mutate(cfg)
	}
	if err := f.lists.Save(context.Background(), cfg); err != nil {
		t.Fatalf("failed to save list %s: %v", name, err)
	}
	return cfg
}

func defaultConfig() shared.SchedulerConfig {
	return shared.SchedulerConfig{IntervalMinutes: 15, LoginCooldownMinutes: 5, QueueSize: 8}
}

func TestNextQuarterHour(t *testing.T) {
	at := func(h, m, s int) time.Time { return time.Date(2024, 6, 1, h, m, s, 0, time.UTC) }

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"mid quarter", at(10, 7, 30), at(10, 15, 0)},
		{"on boundary moves to next", at(10, 15, 0), at(10, 30, 0)},
		{"end of hour", at(10, 59, 59), at(11, 0, 0)},
		{"end of day", at(23, 50, 0), time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextQuarterHour(tt.in)
			if !got.Equal(tt.want) {
				t.Errorf("NextQuarterHour(%v) = %v, want %v", tt.in, got, tt.want)
			}
			if got.Minute()%15 != 0 || got.Second() != 0 {
				t.Errorf("%v is not on a quarter hour", got)
			}
		})
	}
}

func TestEnqueue(t *testing.T) {
	t.Run("one pending request per owner", func(t *testing.T) {
		f := newFixture(t, defaultConfig())
		s := f.scheduler

		if !s.Enqueue(RefreshRequest{OwnerID: ownerID, Reason: models.ReasonManual}) {
			t.Fatal("first request should be accepted")
		}
		if s.Enqueue(RefreshRequest{OwnerID: ownerID, Reason: models.ReasonPeriodic}) {
			t.Error("duplicate request should be dropped")
		}
		if !s.Enqueue(RefreshRequest{OwnerID: otherID, Reason: models.ReasonPeriodic}) {
			t.Error("request for another owner should be accepted")
		}
		if !s.Pending(ownerID) {
			t.Error("owner should be pending")
		}
	})

	t.Run("full queue drops", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.QueueSize = 1
		f := newFixture(t, cfg)

		f.scheduler.Enqueue(RefreshRequest{OwnerID: ownerID})
		if f.scheduler.Enqueue(RefreshRequest{OwnerID: otherID}) {
			t.Error("request should be dropped when the queue is full")
		}
		if f.scheduler.Pending(otherID) {
			t.Error("dropped request must not mark the owner pending")
		}
	})

	t.Run("EnqueueAll", func(t *testing.T) {
		f := newFixture(t, defaultConfig())
		f.save(t, ownerID, "jazz", nil)
		f.save(t, otherID, "jazz", nil)
		f.save(t, "66666666-6666-4666-8666-666666666666", "off", func(c *models.SmartListConfig) { c.Enabled = false })

		if n := f.scheduler.EnqueueAll(context.Background(), models.ReasonPeriodic); n != 2 {
			t.Errorf("expected 2 owners queued, got %d", n)
		}
	})
}

func TestSessionStarted(t *testing.T) {
	t.Run("cooldown", func(t *testing.T) {
		f := newFixture(t, defaultConfig())
		s := f.scheduler

		if !s.SessionStarted(ownerID) {
			t.Fatal("first login should schedule a refresh")
		}
		if !s.Pending(ownerID) {
			t.Error("login without settle delay should enqueue immediately")
		}

		f.clock.Advance(4 * time.Minute)
		if s.SessionStarted(ownerID) {
			t.Error("login within cooldown should be suppressed")
		}
		if !s.SessionStarted(otherID) {
			t.Error("cooldown is per owner")
		}

		f.clock.Advance(time.Minute)
		if !s.SessionStarted(ownerID) {
			t.Error("login after cooldown should schedule again")
		}
	})

	t.Run("settle delay", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.LoginSettleSeconds = 1
		f := newFixture(t, cfg)

		f.scheduler.SessionStarted(ownerID)
		if f.scheduler.Pending(ownerID) {
			t.Fatal("request should wait for the settle delay")
		}

		deadline := time.Now().Add(3 * time.Second)
		for !f.scheduler.Pending(ownerID) {
			if time.Now().After(deadline) {
				t.Fatal("request was never enqueued")
			}
			time.Sleep(20 * time.Millisecond)
		}
	})
}

func TestRefreshOwner(t *testing.T) {
	ctx := context.Background()

	t.Run("mixed pass", func(t *testing.T) {
		f := newFixture(t, defaultConfig())

		jazz := f.save(t, ownerID, "a-jazz", nil)
		orphan := f.save(t, ownerID, "b-orphan", func(c *models.SmartListConfig) { c.ExternalListID = goneID })
		f.save(t, ownerID, "c-broken", func(c *models.SmartListConfig) { c.SourcePlaylistID = goneID })
		f.save(t, ownerID, "d-disabled", func(c *models.SmartListConfig) { c.Enabled = false })

		if _, err := f.ledger.Add(ctx, ownerID, orphan.ID, ignores.AddRequest{EntryID: rockTrack}); err != nil {
			t.Fatalf("failed to add ignore: %v", err)
		}
		if _, err := f.ledger.Add(ctx, ownerID, jazz.ID, ignores.AddRequest{EntryID: rockTrack, DurationDays: 1}); err != nil {
			t.Fatalf("failed to add ignore: %v", err)
		}
		f.clock.Advance(48 * time.Hour)

		summary := f.scheduler.RefreshOwner(ctx, ownerID, models.ReasonPeriodic)
		if summary.Succeeded != 1 || summary.Failed != 1 || summary.Orphaned != 1 {
			t.Errorf("unexpected summary %+v", summary)
		}
		if summary.Swept != 1 {
			t.Errorf("expected 1 swept ignore, got %d", summary.Swept)
		}
		if got := summary.String(); got != "1 succeeded, 1 failed, 1 orphaned" {
			t.Errorf("String() = %q", got)
		}

		saved, err := f.lists.Get(ctx, ownerID, jazz.ID)
		if err != nil {
			t.Fatalf("failed to reload list: %v", err)
		}
		if saved.LastRefreshed == nil || saved.ExternalListID == "" || saved.ItemCount != 1 {
			t.Errorf("refreshed list was not persisted: %+v", saved)
		}

		if _, err := f.lists.Get(ctx, ownerID, orphan.ID); !errors.Is(err, shared.ErrListNotFound) {
			t.Errorf("orphaned list should be deleted, got %v", err)
		}
		if remaining, _ := f.ledger.List(ctx, ownerID, ""); len(remaining) != 0 {
			t.Errorf("orphan ignores should cascade and expired ones be swept, got %+v", remaining)
		}

		runs, err := f.runs.List(ctx, map[string]any{"owner_id": ownerID})
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 3 {
			t.Fatalf("expected 3 recorded runs, got %d", len(runs))
		}
		statuses := map[models.RunStatus]int{}
		for _, r := range runs {
			statuses[r.Status]++
		}
		if statuses[models.RunSucceeded] != 1 || statuses[models.RunFailed] != 1 || statuses[models.RunOrphaned] != 1 {
			t.Errorf("unexpected run statuses %v", statuses)
		}
	})

	t.Run("cancelled before start", func(t *testing.T) {
		f := newFixture(t, defaultConfig())
		f.save(t, ownerID, "jazz", nil)

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		summary := f.scheduler.RefreshOwner(cctx, ownerID, models.ReasonManual)
		if !summary.Cancelled || len(summary.Outcomes) != 0 {
			t.Errorf("expected a cancelled pass with no outcomes, got %+v", summary)
		}
		if f.playlists.Len() != 0 {
			t.Error("cancelled pass should not refresh anything")
		}
	})

	t.Run("owner without lists", func(t *testing.T) {
		f := newFixture(t, defaultConfig())
		summary := f.scheduler.RefreshOwner(ctx, otherID, models.ReasonLogin)
		if summary.String() != "0 succeeded, 0 failed" {
			t.Errorf("unexpected summary %q", summary.String())
		}
	})
}

func TestRefreshList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultConfig())
	cfg := f.save(t, ownerID, "jazz", func(c *models.SmartListConfig) { c.ExternalListID = goneID })

	out, err := f.scheduler.RefreshList(ctx, ownerID, cfg.ID, models.ReasonManual)
	if err != nil {
		t.Fatalf("RefreshList() error = %v", err)
	}
	if out.Status != models.RunSucceeded || !out.Result.Created {
		t.Errorf("explicit refresh should recreate the playlist, got %+v", out)
	}

	saved, _ := f.lists.Get(ctx, ownerID, cfg.ID)
	if saved.ExternalListID == goneID || saved.ExternalListID == "" {
		t.Errorf("external id should be replaced, got %q", saved.ExternalListID)
	}

	if _, err := f.scheduler.RefreshList(ctx, ownerID, goneID, models.ReasonManual); !errors.Is(err, shared.ErrListNotFound) {
		t.Errorf("expected ErrListNotFound, got %v", err)
	}
}

func TestRun(t *testing.T) {
	f := newFixture(t, defaultConfig())
	cfg := f.save(t, ownerID, "jazz", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.scheduler.Run(ctx) }()

	f.scheduler.Enqueue(RefreshRequest{OwnerID: ownerID, Reason: models.ReasonManual})

	deadline := time.Now().Add(5 * time.Second)
	for {
		saved, err := f.lists.Get(context.Background(), ownerID, cfg.ID)
		if err == nil && saved.LastRefreshed != nil && !f.scheduler.Pending(ownerID) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("queued refresh was never processed")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

// gatedRefresher holds every Refresh call until release is closed.
type gatedRefresher struct {
	tasks.Refresher
	entered chan struct{}
	release chan struct{}
}

func (g *gatedRefresher) Refresh(ctx context.Context, cfg *models.SmartListConfig, progress chan<- tasks.ProgressUpdate) models.SyncResult {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.Refresher.Refresh(ctx, cfg, progress)
}

func TestOneRefreshPerOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultConfig())
	cfg := f.save(t, ownerID, "jazz", nil)

	gate := &gatedRefresher{Refresher: f.engine, entered: make(chan struct{}, 1), release: make(chan struct{})}
	f.scheduler = New(f.lists, gate, f.ledger, f.runs, defaultConfig(), f.clock.Now, shared.NewLogger(&bytes.Buffer{}))

	first := make(chan BatchSummary, 1)
	go func() { first <- f.scheduler.RefreshOwner(ctx, ownerID, models.ReasonLogin) }()

	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first pass never reached the refresher")
	}

	t.Run("running pass is reported", func(t *testing.T) {
		if !f.scheduler.Running(ownerID) {
			t.Error("expected owner to be running")
		}
		if f.scheduler.Running(otherID) {
			t.Error("other owners are unaffected")
		}
	})

	t.Run("manual pass is refused", func(t *testing.T) {
		summary := f.scheduler.RefreshOwner(ctx, ownerID, models.ReasonManual)
		if !summary.Busy || len(summary.Outcomes) != 0 {
			t.Errorf("expected a busy summary, got %+v", summary)
		}
		if summary.String() != shared.ErrRefreshInProgress.Error() {
			t.Errorf("unexpected summary %q", summary.String())
		}
	})

	t.Run("single list refresh is refused", func(t *testing.T) {
		if _, err := f.scheduler.RefreshList(ctx, ownerID, cfg.ID, models.ReasonManual); !errors.Is(err, shared.ErrRefreshInProgress) {
			t.Errorf("expected ErrRefreshInProgress, got %v", err)
		}
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- f.scheduler.Run(runCtx) }()
	if !f.scheduler.Enqueue(RefreshRequest{OwnerID: ownerID, Reason: models.ReasonPeriodic}) {
		t.Fatal("queued pass should be accepted while a manual pass runs")
	}

	close(gate.release)
	if summary := <-first; summary.Succeeded != 1 {
		t.Fatalf("first pass should succeed, got %s", summary.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.scheduler.Pending(ownerID) || f.scheduler.Running(ownerID) {
		if time.Now().After(deadline) {
			t.Fatal("queued pass never ran after the manual pass finished")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	<-done

	t.Run("passes ran one after the other", func(t *testing.T) {
		if f.playlists.Len() != 1 {
			t.Errorf("expected one external playlist, got %d", f.playlists.Len())
		}
		runs, err := f.runs.List(ctx, map[string]any{"list_id": cfg.ID})
		if err != nil || len(runs) != 2 {
			t.Fatalf("expected two recorded runs, got %d (%v)", len(runs), err)
		}
		for _, run := range runs {
			if run.Status != models.RunSucceeded {
				t.Errorf("run %d: status %s", run.Sequence, run.Status)
			}
		}
	})

	t.Run("claim is released", func(t *testing.T) {
		if _, err := f.scheduler.RefreshList(ctx, ownerID, cfg.ID, models.ReasonManual); err != nil {
			t.Errorf("refresh after release should run, got %v", err)
		}
	})
}

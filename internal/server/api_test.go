package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/smartsync/internal/composer"
	"github.com/desertthunder/smartsync/internal/ignores"
	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/repositories"
	"github.com/desertthunder/smartsync/internal/scheduler"
	"github.com/desertthunder/smartsync/internal/shared"
	"github.com/desertthunder/smartsync/internal/store"
	"github.com/desertthunder/smartsync/internal/tasks"
	tu "github.com/desertthunder/smartsync/internal/testing"
)

const (
	ownerID = "11111111-1111-4111-8111-111111111111"
	trackA  = "00000000-0000-4000-8000-000000000001"
	trackB  = "00000000-0000-4000-8000-000000000002"
	trackC  = "00000000-0000-4000-8000-000000000003"
)

type testAPI struct {
	router    *BasicRouter
	playlists *tu.MockPlaylists
	ledger    *ignores.Ledger
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	docs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	clock := tu.NewClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	logger := shared.NewLogger(&bytes.Buffer{})

	ledger := ignores.New(docs, clock.Now, logger)
	lists := repositories.NewSmartListRepository(docs, ledger, clock.Now)

	catalog := tu.NewMockCatalog()
	catalog.Put(ownerID,
		tu.Track(trackA, "So What", 9, "Jazz"),
		tu.Track(trackB, "Roxanne", 3, "Rock"),
		tu.Track(trackC, "Take Five", 5, "Jazz"),
	)
	playlists := tu.NewMockPlaylists()
	engine := tasks.NewSyncEngine(catalog, playlists, tu.NewMockOwners(ownerID), composer.New(ledger, logger), clock.Now, logger)
	sched := scheduler.New(lists, engine, ledger, nil, shared.SchedulerConfig{IntervalMinutes: 15, LoginCooldownMinutes: 5}, clock.Now, logger)

	router := NewBasicRouter()
	router.Use(Recover(logger), Logging(logger))
	NewAPI(lists, ledger, engine, sched, clock.Now, logger).Register(router)

	return &testAPI{router: router, playlists: playlists, ledger: ledger}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

const jazzBody = `{
  "name": "Jazz",
  "mediaTypes": ["Audio"],
  "enabled": true,
  "defaultIgnoreDays": 30,
  "rules": {"sets": [{"expressions": [{"field": "Genres", "operator": "HasAny", "operand": "Jazz"}]}]}
}`

func (a *testAPI) createJazz(t *testing.T) models.SmartListConfig {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/owners/"+ownerID+"/lists", jazzBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create list: status %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody[models.SmartListConfig](t, rec)
}

func TestListEndpoints(t *testing.T) {
	api := newTestAPI(t)
	base := "/api/owners/" + ownerID + "/lists"

	t.Run("create", func(t *testing.T) {
		cfg := api.createJazz(t)
		if !shared.ValidID(cfg.ID) || cfg.OwnerID != ownerID {
			t.Errorf("unexpected created list %+v", cfg)
		}
	})

	t.Run("create invalid", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, base, `{"name": "", "mediaTypes": ["Audio"]}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		rec = api.do(t, http.MethodPost, base, `{"name": "Shows", "mediaTypes": ["Series"]}`)
		if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Series") {
			t.Errorf("expected 400 naming Series, got %d: %s", rec.Code, rec.Body.String())
		}
		rec = api.do(t, http.MethodPost, base, `{not json`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for malformed JSON, got %d", rec.Code)
		}
	})

	t.Run("list get update delete", func(t *testing.T) {
		cfg := api.createJazz(t)

		lists := decodeBody[[]models.SmartListConfig](t, api.do(t, http.MethodGet, base, ""))
		if len(lists) < 1 {
			t.Fatal("expected at least one list")
		}

		rec := api.do(t, http.MethodGet, base+"/"+cfg.ID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("get: status %d", rec.Code)
		}

		rec = api.do(t, http.MethodPut, base+"/"+cfg.ID, strings.Replace(jazzBody, `"Jazz"`, `"Cool Jazz"`, 1))
		if rec.Code != http.StatusOK {
			t.Fatalf("update: status %d: %s", rec.Code, rec.Body.String())
		}
		updated := decodeBody[models.SmartListConfig](t, rec)
		if updated.Name != "Cool Jazz" || !updated.CreatedAt.Equal(cfg.CreatedAt) {
			t.Errorf("unexpected update %+v", updated)
		}

		if rec := api.do(t, http.MethodDelete, base+"/"+cfg.ID, ""); rec.Code != http.StatusNoContent {
			t.Errorf("delete: status %d", rec.Code)
		}
		if rec := api.do(t, http.MethodGet, base+"/"+cfg.ID, ""); rec.Code != http.StatusNotFound {
			t.Errorf("get after delete: expected 404, got %d", rec.Code)
		}
	})

	t.Run("bad owner id", func(t *testing.T) {
		if rec := api.do(t, http.MethodGet, "/api/owners/nobody/lists", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		if rec := api.do(t, http.MethodPatch, base, "{}"); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})
}

func TestRefreshEndpoints(t *testing.T) {
	api := newTestAPI(t)
	cfg := api.createJazz(t)
	base := "/api/owners/" + ownerID

	t.Run("preview", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, base+"/lists/"+cfg.ID+"/preview", "")
		preview := decodeBody[previewResponse](t, rec)
		if preview.ItemCount != 2 || preview.TotalRuntimeMinutes != 14 {
			t.Errorf("unexpected preview %+v", preview)
		}
		if api.playlists.Len() != 0 {
			t.Error("preview must not create playlists")
		}
	})

	t.Run("refresh one", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, base+"/lists/"+cfg.ID+"/refresh", "")
		result := decodeBody[models.SyncResult](t, rec)
		if !result.Success || result.ItemCount != 2 || !result.Created {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("refresh all", func(t *testing.T) {
		broken := strings.Replace(jazzBody, `"enabled": true`, `"enabled": true, "sourcePlaylistId": "99999999-9999-4999-8999-999999999999"`, 1)
		if rec := api.do(t, http.MethodPost, base+"/lists", broken); rec.Code != http.StatusCreated {
			t.Fatalf("create: status %d: %s", rec.Code, rec.Body.String())
		}

		rec := api.do(t, http.MethodPost, base+"/refresh", "")
		resp := decodeBody[batchResponse](t, rec)
		if resp.Summary != "1 succeeded, 1 failed" {
			t.Errorf("unexpected summary %q", resp.Summary)
		}
		if len(resp.Results) != 2 {
			t.Errorf("expected 2 results, got %d", len(resp.Results))
		}
	})

	t.Run("session start", func(t *testing.T) {
		body := `{"ownerId": "` + ownerID + `"}`
		first := decodeBody[map[string]any](t, api.do(t, http.MethodPost, "/api/sessions", body))
		second := decodeBody[map[string]any](t, api.do(t, http.MethodPost, "/api/sessions", body))
		if first["scheduled"] != true || second["scheduled"] != false {
			t.Errorf("expected cooldown to suppress the second login: %v %v", first, second)
		}
	})
}

func TestIgnoreEndpoints(t *testing.T) {
	api := newTestAPI(t)
	cfg := api.createJazz(t)
	base := "/api/owners/" + ownerID

	rec := api.do(t, http.MethodPost, base+"/lists/"+cfg.ID+"/ignores", `{"entryId": "`+trackA+`", "reason": "overplayed"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: status %d: %s", rec.Code, rec.Body.String())
	}
	added := decodeBody[[]ignoreView](t, rec)
	if len(added) != 1 || added[0].DurationDays == nil || *added[0].DurationDays != 30 || !added[0].Active {
		t.Fatalf("expected the list default of 30 days, got %+v", added)
	}

	rec = api.do(t, http.MethodPost, base+"/lists/"+cfg.ID+"/ignores",
		`[{"entryId": "`+trackB+`", "durationDays": 0}, {"entryId": "`+trackC+`", "durationDays": 7}]`)
	bulk := decodeBody[[]ignoreView](t, rec)
	if len(bulk) != 2 || bulk[0].ExpiresAt != nil {
		t.Fatalf("unexpected bulk add %+v", bulk)
	}

	all := decodeBody[[]ignoreView](t, api.do(t, http.MethodGet, base+"/ignores?listId="+cfg.ID, ""))
	if len(all) != 3 {
		t.Fatalf("expected 3 ignores, got %d", len(all))
	}

	preview := decodeBody[previewResponse](t, api.do(t, http.MethodGet, base+"/lists/"+cfg.ID+"/preview", ""))
	if preview.ItemCount != 0 {
		t.Errorf("all jazz tracks are ignored, got %v", preview.IDs)
	}

	rec = api.do(t, http.MethodPatch, base+"/ignores/"+added[0].ID, `{"durationDays": 1}`)
	updated := decodeBody[ignoreView](t, rec)
	if updated.ExpiresAt == nil || !updated.ExpiresAt.Equal(added[0].CreatedAt.Add(24*time.Hour)) {
		t.Errorf("expiry should be recomputed from creation time, got %+v", updated)
	}

	if rec := api.do(t, http.MethodDelete, base+"/ignores/"+added[0].ID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("remove: status %d", rec.Code)
	}
	if rec := api.do(t, http.MethodDelete, base+"/ignores/"+added[0].ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second remove: expected 404, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPatch, base+"/ignores/"+added[0].ID, `{"durationDays": 3}`); rec.Code != http.StatusNotFound {
		t.Errorf("update missing: expected 404, got %d", rec.Code)
	}

	ids := `{"ids": ["` + bulk[0].ID + `", "` + bulk[1].ID + `"]}`
	removed := decodeBody[map[string]int](t, api.do(t, http.MethodPost, base+"/ignores/remove", ids))
	if removed["removed"] != 2 {
		t.Errorf("expected 2 removed, got %v", removed)
	}

	preview = decodeBody[previewResponse](t, api.do(t, http.MethodGet, base+"/lists/"+cfg.ID+"/preview", ""))
	if preview.ItemCount != 2 {
		t.Errorf("ignored tracks should be restored, got %v", preview.IDs)
	}

	swept := decodeBody[map[string]int](t, api.do(t, http.MethodPost, base+"/ignores/sweep", ""))
	if swept["removed"] != 0 {
		t.Errorf("nothing should be swept, got %v", swept)
	}

	if _, err := api.ledger.List(context.Background(), ownerID, ""); err != nil {
		t.Errorf("ledger should remain readable: %v", err)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{shared.ValidationError{Field: "name", Message: "required"}, http.StatusBadRequest},
		{shared.ErrUnsupportedMediaType, http.StatusBadRequest},
		{shared.ErrListNotFound, http.StatusNotFound},
		{shared.ErrExternalSync, http.StatusBadGateway},
		{shared.ErrRefreshInProgress, http.StatusConflict},
		{shared.ErrPersistence, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// busyRefresher answers as if another refresh of every owner were running.
type busyRefresher struct{}

func (busyRefresher) RefreshList(_ context.Context, ownerID, _ string, _ models.Reason) (scheduler.Outcome, error) {
	return scheduler.Outcome{}, shared.ErrRefreshInProgress
}

func (busyRefresher) RefreshOwner(_ context.Context, ownerID string, reason models.Reason) scheduler.BatchSummary {
	return scheduler.BatchSummary{OwnerID: ownerID, Reason: reason, Busy: true}
}

func (busyRefresher) SessionStarted(string) bool { return false }

func TestRefreshConflict(t *testing.T) {
	router := NewBasicRouter()
	NewAPI(nil, nil, nil, busyRefresher{}, nil, shared.NewLogger(&bytes.Buffer{})).Register(router)

	for _, path := range []string{
		"/api/owners/" + ownerID + "/refresh",
		"/api/owners/" + ownerID + "/lists/" + trackA + "/refresh",
	} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))

			if rec.Code != http.StatusConflict {
				t.Errorf("expected 409, got %d: %s", rec.Code, rec.Body.String())
			}
			if body := decodeBody[errorBody](t, rec); !strings.Contains(body.Error, "already running") {
				t.Errorf("unexpected error body %q", body.Error)
			}
		})
	}
}

func TestRecover(t *testing.T) {
	router := NewBasicRouter()
	router.Use(Recover(shared.NewLogger(&bytes.Buffer{})))
	router.HandleFunc(http.MethodGet, "/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

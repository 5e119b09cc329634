package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/smartsync/internal/ignores"
	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/rules"
	"github.com/desertthunder/smartsync/internal/scheduler"
	"github.com/desertthunder/smartsync/internal/shared"
)

const maxBodyBytes = 1 << 20

// Lists stores smart list configurations.
type Lists interface {
	List(ctx context.Context, ownerID string) ([]*models.SmartListConfig, error)
	Get(ctx context.Context, ownerID, id string) (*models.SmartListConfig, error)
	Save(ctx context.Context, cfg *models.SmartListConfig) error
	Delete(ctx context.Context, ownerID, id string) error
}

// Ignores is the exclusion ledger.
type Ignores interface {
	List(ctx context.Context, ownerID, listID string) ([]models.ExclusionEntry, error)
	AddBulk(ctx context.Context, ownerID, listID string, reqs []ignores.AddRequest) ([]models.ExclusionEntry, error)
	UpdateDuration(ctx context.Context, ownerID, id string, durationDays int) (*models.ExclusionEntry, error)
	Remove(ctx context.Context, ownerID, id string) (bool, error)
	RemoveBulk(ctx context.Context, ownerID string, ids []string) (int, error)
	SweepExpired(ctx context.Context, ownerID string) (int, error)
}

// Previewer computes a list without writing it.
type Previewer interface {
	Preview(ctx context.Context, cfg *models.SmartListConfig) (rules.Selection, error)
}

// Refresher triggers refreshes.
type Refresher interface {
	RefreshList(ctx context.Context, ownerID, listID string, reason models.Reason) (scheduler.Outcome, error)
	RefreshOwner(ctx context.Context, ownerID string, reason models.Reason) scheduler.BatchSummary
	SessionStarted(ownerID string) bool
}

// API serves the JSON endpoints. The owner id always comes from the path.
type API struct {
	lists     Lists
	ignores   Ignores
	previewer Previewer
	refresher Refresher
	clock     models.Clock
	logger    *log.Logger
}

// NewAPI creates the API handlers.
func NewAPI(lists Lists, ledger Ignores, previewer Previewer, refresher Refresher, clock models.Clock, logger *log.Logger) *API {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &API{
		lists:     lists,
		ignores:   ledger,
		previewer: previewer,
		refresher: refresher,
		clock:     clock,
		logger:    shared.WithLogger(logger, "component", "api"),
	}
}

// Register adds all API routes to r.
func (a *API) Register(r *BasicRouter) {
	r.HandleFunc(http.MethodGet, "/healthz", a.health)

	r.HandleFunc(http.MethodGet, "/api/owners/{owner}/lists", a.listLists)
	r.HandleFunc(http.MethodPost, "/api/owners/{owner}/lists", a.createList)
	r.HandleFunc(http.MethodGet, "/api/owners/{owner}/lists/{id}", a.getList)
	r.HandleFunc(http.MethodPut, "/api/owners/{owner}/lists/{id}", a.updateList)
	r.HandleFunc(http.MethodDelete, "/api/owners/{owner}/lists/{id}", a.deleteList)
	r.HandleFunc(http.MethodGet, "/api/owners/{owner}/lists/{id}/preview", a.previewList)
	r.HandleFunc(http.MethodPost, "/api/owners/{owner}/lists/{id}/refresh", a.refreshList)
	r.HandleFunc(http.MethodPost, "/api/owners/{owner}/refresh", a.refreshOwner)

	r.HandleFunc(http.MethodGet, "/api/owners/{owner}/ignores", a.listIgnores)
	r.HandleFunc(http.MethodPost, "/api/owners/{owner}/lists/{id}/ignores", a.addIgnores)
	r.HandleFunc(http.MethodPatch, "/api/owners/{owner}/ignores/{ignore}", a.updateIgnore)
	r.HandleFunc(http.MethodDelete, "/api/owners/{owner}/ignores/{ignore}", a.removeIgnore)
	r.HandleFunc(http.MethodPost, "/api/owners/{owner}/ignores/remove", a.removeIgnores)
	r.HandleFunc(http.MethodPost, "/api/owners/{owner}/ignores/sweep", a.sweepIgnores)

	r.HandleFunc(http.MethodPost, "/api/sessions", a.sessionStarted)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrRefreshInProgress):
		return http.StatusConflict
	case errors.Is(err, shared.ErrExternalSync):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", shared.ErrInvalidInput, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (string, error) {
	id, err := shared.NormalizeID(r.PathValue(name))
	if err != nil {
		return "", shared.ValidationError{Field: name, Message: "must be a UUID"}
	}
	return id, nil
}

func (a *API) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := pathID(r, "owner")
	if err != nil {
		a.fail(w, r, err)
		return "", false
	}
	return id, true
}

func (a *API) ownerAndList(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	owner, ok := a.owner(w, r)
	if !ok {
		return "", "", false
	}
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return "", "", false
	}
	return owner, id, true
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) listLists(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	lists, err := a.lists.List(r.Context(), owner)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if lists == nil {
		lists = []*models.SmartListConfig{}
	}
	writeJSON(w, http.StatusOK, lists)
}

func (a *API) getList(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := a.ownerAndList(w, r)
	if !ok {
		return
	}
	cfg, err := a.lists.Get(r.Context(), owner, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) createList(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	var cfg models.SmartListConfig
	if err := decode(r, &cfg); err != nil {
		a.fail(w, r, err)
		return
	}
	cfg.OwnerID = owner
	cfg.KeepSyncState(nil)

	if err := a.lists.Save(r.Context(), &cfg); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

// updateList replaces the editable fields; sync state and creation time are kept.
func (a *API) updateList(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := a.ownerAndList(w, r)
	if !ok {
		return
	}
	existing, err := a.lists.Get(r.Context(), owner, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	var cfg models.SmartListConfig
	if err := decode(r, &cfg); err != nil {
		a.fail(w, r, err)
		return
	}
	cfg.OwnerID = owner
	cfg.KeepSyncState(existing)

	if err := a.lists.Save(r.Context(), &cfg); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) deleteList(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := a.ownerAndList(w, r)
	if !ok {
		return
	}
	if err := a.lists.Delete(r.Context(), owner, id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type previewResponse struct {
	IDs                 []string               `json:"ids"`
	Entries             []models.EntrySnapshot `json:"entries"`
	ItemCount           int                    `json:"itemCount"`
	TotalRuntimeMinutes float64                `json:"totalRuntimeMinutes"`
	MissingRuntime      int                    `json:"missingRuntime"`
}

func (a *API) previewList(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := a.ownerAndList(w, r)
	if !ok {
		return
	}
	cfg, err := a.lists.Get(r.Context(), owner, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	sel, err := a.previewer.Preview(r.Context(), cfg)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	resp := previewResponse{
		IDs:                 sel.IDs(),
		Entries:             make([]models.EntrySnapshot, len(sel.Entries)),
		ItemCount:           len(sel.Entries),
		TotalRuntimeMinutes: sel.TotalRuntime.Minutes(),
		MissingRuntime:      sel.MissingRuntime,
	}
	for i, e := range sel.Entries {
		resp.Entries[i] = e.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) refreshList(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := a.ownerAndList(w, r)
	if !ok {
		return
	}
	out, err := a.refresher.RefreshList(r.Context(), owner, id, models.ReasonManual)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out.Result)
}

type batchResponse struct {
	Summary   string                       `json:"summary"`
	Succeeded int                          `json:"succeeded"`
	Failed    int                          `json:"failed"`
	Orphaned  int                          `json:"orphaned"`
	Results   map[string]models.SyncResult `json:"results"`
}

func (a *API) refreshOwner(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	summary := a.refresher.RefreshOwner(r.Context(), owner, models.ReasonManual)
	if summary.Busy {
		a.fail(w, r, shared.ErrRefreshInProgress)
		return
	}

	resp := batchResponse{
		Summary:   summary.String(),
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
		Orphaned:  summary.Orphaned,
		Results:   make(map[string]models.SyncResult, len(summary.Outcomes)),
	}
	for _, o := range summary.Outcomes {
		resp.Results[o.ListID] = o.Result
	}
	writeJSON(w, http.StatusOK, resp)
}

type ignoreView struct {
	models.ExclusionEntry
	Active bool `json:"active"`
}

func (a *API) views(entries []models.ExclusionEntry) []ignoreView {
	now := a.clock.Now()
	out := make([]ignoreView, len(entries))
	for i, e := range entries {
		out[i] = ignoreView{ExclusionEntry: e, Active: e.IsActive(now)}
	}
	return out
}

func (a *API) listIgnores(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	listID := r.URL.Query().Get("listId")
	entries, err := a.ignores.List(r.Context(), owner, listID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.views(entries))
}

type ignoreRequest struct {
	EntryID      string               `json:"entryId"`
	DurationDays *int                 `json:"durationDays"`
	Reason       string               `json:"reason"`
	Snapshot     models.EntrySnapshot `json:"snapshot"`
}

// addIgnores accepts a single ignore object or an array of them. A missing duration falls back
// to the list's default.
func (a *API) addIgnores(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := a.ownerAndList(w, r)
	if !ok {
		return
	}
	cfg, err := a.lists.Get(r.Context(), owner, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	var raw json.RawMessage
	if err := decode(r, &raw); err != nil {
		a.fail(w, r, err)
		return
	}
	var reqs []ignoreRequest
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &reqs)
	} else {
		var one ignoreRequest
		err = json.Unmarshal(raw, &one)
		reqs = append(reqs, one)
	}
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}

	adds := make([]ignores.AddRequest, len(reqs))
	for i, req := range reqs {
		days := cfg.DefaultIgnoreDays
		if req.DurationDays != nil {
			days = *req.DurationDays
		}
		entryID, err := shared.NormalizeID(req.EntryID)
		if err != nil {
			a.fail(w, r, shared.ValidationError{Field: "entryId", Message: "must be a UUID"})
			return
		}
		adds[i] = ignores.AddRequest{EntryID: entryID, DurationDays: days, Reason: req.Reason, Snapshot: req.Snapshot}
	}

	added, err := a.ignores.AddBulk(r.Context(), owner, cfg.ID, adds)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.views(added))
}

func (a *API) updateIgnore(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	var body struct {
		DurationDays *int `json:"durationDays"`
	}
	if err := decode(r, &body); err != nil {
		a.fail(w, r, err)
		return
	}
	if body.DurationDays == nil {
		a.fail(w, r, shared.ValidationError{Field: "durationDays", Message: "is required"})
		return
	}

	updated, err := a.ignores.UpdateDuration(r.Context(), owner, r.PathValue("ignore"), *body.DurationDays)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if updated == nil {
		a.fail(w, r, fmt.Errorf("%w: %s", shared.ErrIgnoreNotFound, r.PathValue("ignore")))
		return
	}
	writeJSON(w, http.StatusOK, a.views([]models.ExclusionEntry{*updated})[0])
}

func (a *API) removeIgnore(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	removed, err := a.ignores.Remove(r.Context(), owner, r.PathValue("ignore"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !removed {
		a.fail(w, r, fmt.Errorf("%w: %s", shared.ErrIgnoreNotFound, r.PathValue("ignore")))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) removeIgnores(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := decode(r, &body); err != nil {
		a.fail(w, r, err)
		return
	}
	n, err := a.ignores.RemoveBulk(r.Context(), owner, body.IDs)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (a *API) sweepIgnores(w http.ResponseWriter, r *http.Request) {
	owner, ok := a.owner(w, r)
	if !ok {
		return
	}
	n, err := a.ignores.SweepExpired(r.Context(), owner)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// sessionStarted receives login events from the media server.
func (a *API) sessionStarted(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OwnerID string `json:"ownerId"`
	}
	if err := decode(r, &body); err != nil {
		a.fail(w, r, err)
		return
	}
	owner, err := shared.NormalizeID(body.OwnerID)
	if err != nil {
		a.fail(w, r, shared.ValidationError{Field: "ownerId", Message: "must be a UUID"})
		return
	}

	scheduled := a.refresher.SessionStarted(owner)
	writeJSON(w, http.StatusAccepted, map[string]any{"scheduled": scheduled, "at": a.clock.Now().Format(time.RFC3339)})
}

package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/smartsync/internal/composer"
	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/rules"
	"github.com/desertthunder/smartsync/internal/services"
	"github.com/desertthunder/smartsync/internal/shared"
)

// Refresher is the operation set the scheduler and API layers depend on.
type Refresher interface {
	// Refresh recomputes cfg and reconciles it into its external playlist.
	//
	// Faults are reported through the result, never returned. On success cfg carries the new
	// external id, item count, runtime and refresh time; the caller persists it.
	Refresh(ctx context.Context, cfg *models.SmartListConfig, progress chan<- ProgressUpdate) models.SyncResult

	// IsOrphaned reports whether cfg points at an external playlist that no longer exists.
	IsOrphaned(ctx context.Context, cfg *models.SmartListConfig) (bool, error)
}

// SyncEngine implements [Refresher] on top of the catalog, the external playlist store and the
// list composer.
type SyncEngine struct {
	catalog   services.Catalog
	playlists services.PlaylistStore
	owners    services.OwnerResolver
	composer  *composer.Composer
	clock     models.Clock
	logger    *log.Logger
}

// NewSyncEngine creates a new SyncEngine with the provided collaborators.
func NewSyncEngine(catalog services.Catalog, playlists services.PlaylistStore, owners services.OwnerResolver, c *composer.Composer, clock models.Clock, logger *log.Logger) *SyncEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if c == nil {
		c = composer.New(nil, logger)
	}
	return &SyncEngine{
		catalog:   catalog,
		playlists: playlists,
		owners:    owners,
		composer:  c,
		clock:     clock,
		logger:    shared.WithLogger(logger, "component", "sync"),
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *SyncEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Preview computes the current selection of cfg without touching the external playlist.
// Disabled lists are computed as if enabled.
func (e *SyncEngine) Preview(ctx context.Context, cfg *models.SmartListConfig) (rules.Selection, error) {
	return e.compute(ctx, cfg, nil)
}

// compute runs validation, owner resolution, the catalog pull and composition.
func (e *SyncEngine) compute(ctx context.Context, cfg *models.SmartListConfig, progress chan<- ProgressUpdate) (rules.Selection, error) {
	if e.catalog == nil || e.owners == nil || e.playlists == nil {
		return rules.Selection{}, fmt.Errorf("%w: sync engine is missing a collaborator", shared.ErrServiceUnavailable)
	}

	e.sendProgress(progress, validateUpdate(cfg))
	if err := cfg.ValidateMediaTypes(); err != nil {
		return rules.Selection{}, err
	}
	if !shared.ValidID(cfg.OwnerID) {
		return rules.Selection{}, shared.ValidationError{Field: "ownerId", Message: "owner id must be a UUID"}
	}

	e.sendProgress(progress, resolveOwnerUpdate(cfg.OwnerID))
	owner, err := e.owners.ResolveOwner(ctx, cfg.OwnerID)
	if err != nil {
		return rules.Selection{}, syncError("resolving owner", err)
	}
	if owner == nil {
		return rules.Selection{}, fmt.Errorf("%w: %s", shared.ErrOwnerNotFound, cfg.OwnerID)
	}

	e.sendProgress(progress, fetchCatalogUpdate(0, 0))
	all, err := e.catalog.Entries(ctx, owner.ID, cfg.MediaTypes)
	if err != nil {
		return rules.Selection{}, syncError("fetching catalog", err)
	}
	candidates := make([]models.MediaEntry, 0, len(all))
	for _, entry := range all {
		if cfg.AllowsKind(entry.Kind) {
			candidates = append(candidates, entry)
		}
	}
	e.sendProgress(progress, fetchCatalogUpdate(1, len(candidates)))

	var sourceOrder []string
	if cfg.SourcePlaylistID != "" {
		e.sendProgress(progress, fetchSourceUpdate(cfg.SourcePlaylistID))
		src, err := e.playlists.Resolve(ctx, cfg.SourcePlaylistID)
		if err != nil {
			return rules.Selection{}, syncError("fetching source playlist", err)
		}
		if src == nil {
			return rules.Selection{}, fmt.Errorf("%w: source %s", shared.ErrPlaylistNotFound, cfg.SourcePlaylistID)
		}
		sourceOrder = src.EntryIDs
	}

	sel, err := e.composer.Build(ctx, cfg, candidates, sourceOrder)
	if err != nil {
		return rules.Selection{}, err
	}
	e.sendProgress(progress, composeUpdate(sel, len(candidates)))
	return sel, nil
}

// Refresh implements [Refresher].
func (e *SyncEngine) Refresh(ctx context.Context, cfg *models.SmartListConfig, progress chan<- ProgressUpdate) models.SyncResult {
	logger := shared.WithLogger(e.logger, "owner", cfg.OwnerID, "list", cfg.ID)

	if !cfg.Enabled {
		result := models.SyncResult{Success: true, Message: "disabled", ExternalListID: cfg.ExternalListID}
		e.sendProgress(progress, doneUpdate(result))
		return result
	}

	fail := func(err error) models.SyncResult {
		logger.Error("refresh failed", "name", cfg.Name, "error", err)
		result := models.Failed("%v", err)
		e.sendProgress(progress, doneUpdate(result))
		return result
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	sel, err := e.compute(ctx, cfg, progress)
	if err != nil {
		return fail(err)
	}
	ids := sel.IDs()

	spec := services.PlaylistSpec{
		Name:      cfg.Name,
		OwnerID:   cfg.OwnerID,
		Public:    cfg.Public,
		MediaType: dominantKind(sel.Entries, cfg.MediaTypes),
	}

	externalID := cfg.ExternalListID
	if externalID != "" {
		pl, err := e.playlists.Resolve(ctx, externalID)
		if err != nil {
			return fail(syncError("resolving playlist", err))
		}
		if pl == nil {
			logger.Warn("external playlist is gone, recreating", "external_id", externalID)
			externalID = ""
		}
	}

	created := false
	if externalID == "" {
		e.sendProgress(progress, createPlaylistUpdate(cfg.Name))
		id, err := e.playlists.Create(ctx, spec)
		if err != nil {
			return fail(syncError("creating playlist", err))
		}
		externalID = id
		created = true
	}

	e.sendProgress(progress, updatePlaylistUpdate(externalID, len(ids)))
	if err := e.playlists.ReplaceMembership(ctx, externalID, ids); err != nil {
		if created {
			if derr := e.playlists.Delete(ctx, externalID); derr != nil {
				logger.Warn("failed to remove half-built playlist", "external_id", externalID, "error", derr)
			}
		}
		return fail(syncError("writing membership", err))
	}
	if !created {
		if err := e.playlists.Update(ctx, externalID, spec); err != nil {
			return fail(syncError("updating playlist", err))
		}
	}

	result := models.SyncResult{
		Success:        true,
		Message:        fmt.Sprintf("synced %d items (%s)", len(ids), shared.FormatDuration(sel.TotalRuntime)),
		ExternalListID: externalID,
		ItemCount:      len(ids),
		TotalRuntime:   sel.TotalRuntime,
		Created:        created,
	}
	cfg.RecordSync(result, e.clock.Now())

	logger.Info("refreshed list", "name", cfg.Name, "items", result.ItemCount, "runtime", result.TotalRuntime, "created", created)
	e.sendProgress(progress, doneUpdate(result))
	return result
}

// IsOrphaned implements [Refresher]. A list that was never synchronized is not orphaned.
func (e *SyncEngine) IsOrphaned(ctx context.Context, cfg *models.SmartListConfig) (bool, error) {
	if cfg.ExternalListID == "" {
		return false, nil
	}
	pl, err := e.playlists.Resolve(ctx, cfg.ExternalListID)
	if err != nil {
		return false, syncError("resolving playlist", err)
	}
	return pl == nil, nil
}

// dominantKind returns the most frequent kind among entries, falling back to the first
// allowed kind. Ties go to the kind listed first in allowed.
func dominantKind(entries []models.MediaEntry, allowed []models.MediaKind) models.MediaKind {
	counts := make(map[models.MediaKind]int)
	for _, entry := range entries {
		counts[entry.Kind]++
	}

	var best models.MediaKind
	for _, k := range allowed {
		if best == "" || counts[k] > counts[best] {
			best = k
		}
	}
	return best
}

// syncError tags err with the failing step and makes sure it matches [shared.ErrExternalSync].
func syncError(step string, err error) error {
	if errors.Is(err, shared.ErrExternalSync) {
		return fmt.Errorf("%s: %w", step, err)
	}
	return fmt.Errorf("%w: %s: %v", shared.ErrExternalSync, step, err)
}

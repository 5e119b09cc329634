package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/shared"
	"github.com/desertthunder/smartsync/internal/store"
)

const listKeyPrefix = "list-"

// ListKey returns the document key of a smart list.
func ListKey(listID string) string {
	return listKeyPrefix + listID
}

// IgnoreCleaner removes the ignores scoped to a list.
type IgnoreCleaner interface {
	RemoveAllForList(ctx context.Context, ownerID, listID string) (int, error)
}

// SmartListRepository stores each [models.SmartListConfig] as its own document.
type SmartListRepository struct {
	store   store.DocumentStore
	ignores IgnoreCleaner
	clock   models.Clock
}

// NewSmartListRepository creates a repository. ignores may be nil to skip cascading deletes.
func NewSmartListRepository(s store.DocumentStore, ignores IgnoreCleaner, clock models.Clock) *SmartListRepository {
	return &SmartListRepository{store: s, ignores: ignores, clock: clock}
}

// List returns the owner's smart lists ordered by creation time, then name.
func (r *SmartListRepository) List(ctx context.Context, ownerID string) ([]*models.SmartListConfig, error) {
	keys, err := r.store.Keys(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var lists []*models.SmartListConfig
	for _, key := range keys {
		if !strings.HasPrefix(key, listKeyPrefix) {
			continue
		}
		cfg, err := r.read(ctx, ownerID, key)
		if err != nil {
			return nil, err
		}
		if cfg != nil {
			lists = append(lists, cfg)
		}
	}

	sort.SliceStable(lists, func(i, j int) bool {
		if !lists[i].CreatedAt.Equal(lists[j].CreatedAt) {
			return lists[i].CreatedAt.Before(lists[j].CreatedAt)
		}
		return lists[i].Name < lists[j].Name
	})
	return lists, nil
}

// Get retrieves a smart list, returning [shared.ErrListNotFound] when the owner has none with id.
func (r *SmartListRepository) Get(ctx context.Context, ownerID, id string) (*models.SmartListConfig, error) {
	if !shared.ValidID(id) {
		return nil, fmt.Errorf("%w: %q", shared.ErrListNotFound, id)
	}
	cfg, err := r.read(ctx, ownerID, ListKey(id))
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrListNotFound, id)
	}
	return cfg, nil
}

// Save validates and writes cfg, assigning an id and creation time to new lists.
func (r *SmartListRepository) Save(ctx context.Context, cfg *models.SmartListConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	now := r.clock.Now()
	if cfg.ID == "" {
		cfg.ID = shared.GenerateID()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	data, err := store.EncodeJSON(cfg)
	if err != nil {
		return fmt.Errorf("%w: encoding list %s: %v", shared.ErrPersistence, cfg.ID, err)
	}
	return r.store.WriteAtomic(ctx, cfg.OwnerID, ListKey(cfg.ID), data)
}

// Delete removes a smart list and every ignore scoped to it.
func (r *SmartListRepository) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := r.Get(ctx, ownerID, id); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, ownerID, ListKey(id)); err != nil {
		return err
	}
	if r.ignores != nil {
		if _, err := r.ignores.RemoveAllForList(ctx, ownerID, id); err != nil {
			return fmt.Errorf("list deleted but ignores remain: %w", err)
		}
	}
	return nil
}

// OwnersWithEnabledLists returns every owner holding at least one enabled smart list.
func (r *SmartListRepository) OwnersWithEnabledLists(ctx context.Context) ([]string, error) {
	owners, err := r.store.Owners(ctx)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, owner := range owners {
		lists, err := r.List(ctx, owner)
		if err != nil {
			return nil, err
		}
		for _, cfg := range lists {
			if cfg.Enabled {
				out = append(out, owner)
				break
			}
		}
	}
	return out, nil
}

func (r *SmartListRepository) read(ctx context.Context, ownerID, key string) (*models.SmartListConfig, error) {
	data, err := r.store.Read(ctx, ownerID, key)
	if err != nil || data == nil {
		return nil, err
	}

	var cfg models.SmartListConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding %s/%s: %v", shared.ErrPersistence, ownerID, key, err)
	}
	return &cfg, nil
}

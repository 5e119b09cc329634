// package composer merges the inclusion sources of a smart list into one ordered candidate set.
package composer

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/rules"
	"github.com/desertthunder/smartsync/internal/shared"
)

// Exclusions answers which entries are currently ignored for a list.
type Exclusions interface {
	ActiveIDsFor(ctx context.Context, ownerID, listID string) (map[string]struct{}, error)
}

// Compose returns the ordered union of the source playlist membership, the manual includes
// and the rule matches over candidates. The first occurrence of an id wins.
//
// A list with no rule expressions and no source playlist yields exactly its manual includes.
func Compose(cfg *models.SmartListConfig, candidates []models.MediaEntry, sourceOrder []string) ([]string, error) {
	p, err := rules.Compile(cfg.Rules)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	out := make([]string, 0, len(sourceOrder)+len(cfg.ManualIncludeIDs))
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	if cfg.SourcePlaylistID != "" {
		for _, id := range sourceOrder {
			add(id)
		}
	}
	for _, id := range cfg.ManualIncludeIDs {
		add(id)
	}
	if !p.Empty() {
		for _, e := range p.Filter(candidates) {
			add(e.ID)
		}
	}
	return out, nil
}

// Composer builds the final ordered selection for a list.
type Composer struct {
	exclusions Exclusions
	logger     *log.Logger
}

// New creates a Composer. A nil exclusions source disables ignore subtraction.
func New(exclusions Exclusions, logger *log.Logger) *Composer {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Composer{exclusions: exclusions, logger: shared.WithLogger(logger, "component", "composer")}
}

// Build composes cfg over candidates, drops ids absent from the candidate snapshot, orders and
// caps the result, and finally subtracts the list's active ignores. Ignored entries still occupy
// their slot under the caps, so an ignore shortens the list rather than promoting the next match.
func (c *Composer) Build(ctx context.Context, cfg *models.SmartListConfig, candidates []models.MediaEntry, sourceOrder []string) (rules.Selection, error) {
	ids, err := Compose(cfg, candidates, sourceOrder)
	if err != nil {
		return rules.Selection{}, err
	}

	index := make(map[string]models.MediaEntry, len(candidates))
	for _, e := range candidates {
		index[e.ID] = e
	}

	entries := make([]models.MediaEntry, 0, len(ids))
	missing := 0
	for _, id := range ids {
		e, ok := index[id]
		if !ok {
			missing++
			continue
		}
		entries = append(entries, e)
	}
	if missing > 0 {
		c.logger.Warn("dropped entries not visible in catalog", "list", cfg.ID, "count", missing)
	}

	sel := rules.OrderAndLimit(entries, cfg)

	if c.exclusions != nil && cfg.ID != "" {
		ignored, err := c.exclusions.ActiveIDsFor(ctx, cfg.OwnerID, cfg.ID)
		if err != nil {
			return rules.Selection{}, fmt.Errorf("%w: loading ignores: %v", shared.ErrPersistence, err)
		}
		sel = sel.Without(ignored)
	}

	if sel.MissingRuntime > 0 {
		c.logger.Debug("entries without runtime metadata", "list", cfg.ID, "count", sel.MissingRuntime)
	}
	return sel, nil
}

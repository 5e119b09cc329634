package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/smartsync/internal/shared"
)

// SmartListConfig is one owner's smart list definition together with the metadata the
// orchestrator writes back after each synchronization.
//
// MaxItems and MaxPlayTimeMinutes of zero mean "no limit". DefaultIgnoreDays of zero means
// new ignores created from this list are permanent.
type SmartListConfig struct {
	ID                 string      `json:"id"`
	OwnerID            string      `json:"ownerId"`
	Name               string      `json:"name"`
	SourcePlaylistID   string      `json:"sourcePlaylistId,omitempty"`
	Rules              RuleSet     `json:"rules"`
	ManualIncludeIDs   []string    `json:"manualIncludeIds,omitempty"`
	Order              OrderSpec   `json:"order"`
	MediaTypes         []MediaKind `json:"mediaTypes"`
	Enabled            bool        `json:"enabled"`
	Public             bool        `json:"public"`
	MaxItems           int         `json:"maxItems,omitempty"`
	MaxPlayTimeMinutes int         `json:"maxPlayTimeMinutes,omitempty"`
	DefaultIgnoreDays  int         `json:"defaultIgnoreDays"`

	ExternalListID      string     `json:"externalListId,omitempty"`
	LastRefreshed       *time.Time `json:"lastRefreshed,omitempty"`
	ItemCount           int        `json:"itemCount"`
	TotalRuntimeMinutes float64    `json:"totalRuntimeMinutes"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasRules reports whether the list selects entries by rules.
func (c *SmartListConfig) HasRules() bool {
	return !c.Rules.Empty()
}

// ClosedList reports whether the list is made only of manual includes.
func (c *SmartListConfig) ClosedList() bool {
	return !c.HasRules() && c.SourcePlaylistID == ""
}

// AllowsKind reports whether entries of kind k pass the media-type filter.
func (c *SmartListConfig) AllowsKind(k MediaKind) bool {
	for _, allowed := range c.MediaTypes {
		if allowed == k {
			return true
		}
	}
	return false
}

// MaxPlayTime returns the runtime cap as a duration, zero when unset.
func (c *SmartListConfig) MaxPlayTime() time.Duration {
	return time.Duration(c.MaxPlayTimeMinutes) * time.Minute
}

// ValidateMediaTypes checks the media-type filter: it must be non-empty and contain only
// kinds that can live in an external playlist.
func (c *SmartListConfig) ValidateMediaTypes() error {
	if len(c.MediaTypes) == 0 {
		return shared.ValidationError{Field: "mediaTypes", Message: "at least one media type is required"}
	}
	for _, k := range c.MediaTypes {
		if !k.Known() {
			return shared.ValidationError{Field: "mediaTypes", Message: fmt.Sprintf("unknown media type %q", k)}
		}
		if !k.Playlistable() {
			return fmt.Errorf("%w: %s cannot be added to a playlist", shared.ErrUnsupportedMediaType, k)
		}
	}
	return nil
}

// Validate checks the configuration fields an owner can edit.
func (c *SmartListConfig) Validate() error {
	if c.ID != "" && !shared.ValidID(c.ID) {
		return shared.ValidationError{Field: "id", Message: "id must be a UUID"}
	}
	if !shared.ValidID(c.OwnerID) {
		return shared.ValidationError{Field: "ownerId", Message: "owner id must be a UUID"}
	}
	if strings.TrimSpace(c.Name) == "" {
		return shared.ValidationError{Field: "name", Message: "name is required"}
	}
	if err := c.ValidateMediaTypes(); err != nil {
		return err
	}
	if c.MaxItems < 0 {
		return shared.ValidationError{Field: "maxItems", Message: "cannot be negative"}
	}
	if c.MaxPlayTimeMinutes < 0 {
		return shared.ValidationError{Field: "maxPlayTimeMinutes", Message: "cannot be negative"}
	}
	if c.DefaultIgnoreDays < 0 {
		return shared.ValidationError{Field: "defaultIgnoreDays", Message: "cannot be negative"}
	}
	if c.SourcePlaylistID != "" && !shared.ValidID(c.SourcePlaylistID) {
		return shared.ValidationError{Field: "sourcePlaylistId", Message: "source playlist id must be a UUID"}
	}
	for _, id := range c.ManualIncludeIDs {
		if !shared.ValidID(id) {
			return shared.ValidationError{Field: "manualIncludeIds", Message: fmt.Sprintf("%q is not a UUID", id)}
		}
	}
	if c.Order.Enabled() {
		if _, ok := c.Order.Field.Kind(); !ok {
			return shared.ValidationError{Field: "order.field", Message: fmt.Sprintf("unknown field %q", c.Order.Field)}
		}
		switch c.Order.Direction {
		case "", Ascending, Descending:
		default:
			return shared.ValidationError{Field: "order.direction", Message: fmt.Sprintf("unknown direction %q", c.Order.Direction)}
		}
	}
	return nil
}

// RecordSync stores the outcome of a successful synchronization on the config.
func (c *SmartListConfig) RecordSync(result SyncResult, at time.Time) {
	c.ExternalListID = result.ExternalListID
	c.ItemCount = result.ItemCount
	c.TotalRuntimeMinutes = result.TotalRuntime.Minutes()
	c.LastRefreshed = &at
}

// KeepSyncState carries identity and sync bookkeeping over from prev, so an edit submitted by
// an owner cannot forge them. A nil prev resets them for a new list.
func (c *SmartListConfig) KeepSyncState(prev *SmartListConfig) {
	if prev == nil {
		c.ID = ""
		c.CreatedAt = time.Time{}
		c.ExternalListID = ""
		c.LastRefreshed = nil
		c.ItemCount = 0
		c.TotalRuntimeMinutes = 0
		return
	}
	c.ID = prev.ID
	c.CreatedAt = prev.CreatedAt
	c.ExternalListID = prev.ExternalListID
	c.LastRefreshed = prev.LastRefreshed
	c.ItemCount = prev.ItemCount
	c.TotalRuntimeMinutes = prev.TotalRuntimeMinutes
}

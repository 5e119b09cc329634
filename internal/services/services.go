package services

import (
	"context"

	"github.com/desertthunder/smartsync/internal/models"
)

// Catalog reads media entries visible to an owner.
type Catalog interface {
	// Entries returns every entry of the given kinds the owner can see, in catalog order.
	Entries(ctx context.Context, ownerID string, kinds []models.MediaKind) ([]models.MediaEntry, error)
}

// Playlist is an externally owned playlist.
type Playlist struct {
	ID       string
	Name     string
	OwnerID  string
	Public   bool
	EntryIDs []string // membership in playlist order
}

// PlaylistSpec carries the editable properties of an external playlist.
type PlaylistSpec struct {
	Name    string
	OwnerID string
	Public  bool
	// MediaType is the dominant kind of the playlist members, used by the server for display.
	MediaType models.MediaKind
}

// PlaylistStore manages external playlists.
type PlaylistStore interface {
	// Resolve returns the playlist with id, or nil when it does not exist.
	Resolve(ctx context.Context, id string) (*Playlist, error)

	// Create creates an empty playlist and returns its id.
	Create(ctx context.Context, spec PlaylistSpec) (string, error)

	// ReplaceMembership makes the playlist contain exactly entryIDs in that order.
	ReplaceMembership(ctx context.Context, id string, entryIDs []string) error

	// Update sets the name and visibility of an existing playlist.
	Update(ctx context.Context, id string, spec PlaylistSpec) error

	Delete(ctx context.Context, id string) error
}

// Owner is a media server user.
type Owner struct {
	ID   string
	Name string
}

// OwnerResolver looks up media server users.
type OwnerResolver interface {
	// ResolveOwner returns the owner with id, or nil when there is none.
	ResolveOwner(ctx context.Context, ownerID string) (*Owner, error)
}
